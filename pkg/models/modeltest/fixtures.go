package modeltest

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/HatiCode/ghgcast/pkg/features"
)

// Index returns a label index whose sizes match DefaultConfig's vocabulary.
func Index() *features.LabelIndex {
	return &features.LabelIndex{
		Country:   map[string]int{"PAK": 0, "USA": 1, "IND": 2, "BRA": 3},
		Sector:    map[string]int{"transportation": 0, "power": 1, "agriculture": 2, "waste": 3},
		Subsector: map[string]int{"road-transportation": 0, "domestic-aviation": 1, "electricity-generation": 2, "enteric-fermentation": 3, "rice-cultivation": 4, "solid-waste-disposal": 5},
		Gas:       map[string]int{"co2": 0, "ch4": 1, "n2o": 2},
	}
}

// Subsectors returns the subsector map used with Index. "railways" has no
// index entry and "waste" has no subsectors.
func Subsectors() features.SubsectorMap {
	return features.SubsectorMap{
		"transportation": {"road-transportation", "domestic-aviation", "railways"},
		"power":          {"electricity-generation"},
		"agriculture":    {"enteric-fermentation", "rice-cultivation"},
	}
}

// Centroids returns default locations for some of the indexed countries.
func Centroids() features.Centroids {
	return features.Centroids{
		"PAK": {Lat: 30.3753, Lon: 69.3451},
		"USA": {Lat: 37.0902, Lon: -95.7129},
	}
}

// Encoder builds an encoder over the fixture tables.
func Encoder(tb testing.TB) *features.Encoder {
	tb.Helper()
	enc, err := features.NewEncoder(Index(), features.DefaultScaler(), Subsectors(), Centroids(), Logger())
	if err != nil {
		tb.Fatalf("NewEncoder() error = %v", err)
	}
	return enc
}

// Logger returns a logger that discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Files are the paths of a written asset set.
type Files struct {
	Model      string
	Scaler     string
	Index      string
	Subsectors string
	Centroids  string
}

// WriteAssets writes the synthetic model and every fixture table to dir.
func WriteAssets(tb testing.TB, dir string) Files {
	tb.Helper()
	return Files{
		Model:      WriteFile(tb, dir),
		Scaler:     writeJSON(tb, filepath.Join(dir, "scaler.json"), features.DefaultScaler()),
		Index:      writeJSON(tb, filepath.Join(dir, "index.json"), Index()),
		Subsectors: writeJSON(tb, filepath.Join(dir, "subsectors.json"), Subsectors()),
		Centroids:  writeJSON(tb, filepath.Join(dir, "centroids.json"), Centroids()),
	}
}

func writeJSON(tb testing.TB, path string, v any) string {
	tb.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		tb.Fatalf("marshal %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}
