// Package assets loads the model artifact and its lookup tables once at
// startup into an immutable Bundle.
package assets

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/HatiCode/ghgcast/pkg/features"
	"github.com/HatiCode/ghgcast/pkg/models"
)

// Asset names used in errors, logs and metrics.
const (
	AssetModel      = "model"
	AssetScaler     = "scaler"
	AssetIndex      = "index"
	AssetSubsectors = "subsectors"
	AssetCentroids  = "centroids"
)

// Names lists every asset in load order.
var Names = []string{AssetModel, AssetScaler, AssetIndex, AssetSubsectors, AssetCentroids}

// Source tells where a loaded asset came from.
type Source string

const (
	SourceFile     Source = "file"
	SourceFallback Source = "fallback"
)

// Paths locates the asset files.
type Paths struct {
	Model      string
	Scaler     string
	Index      string
	Subsectors string
	Centroids  string

	// Strict makes a missing label index fatal instead of falling back to
	// empty mappings.
	Strict bool
}

// LoadError is a fatal startup failure for one asset.
type LoadError struct {
	Asset string
	Path  string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s asset %q: %v", e.Asset, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Bundle holds every loaded asset. It is read-only after Load returns.
type Bundle struct {
	Model      *models.Transformer
	Scaler     features.Scaler
	Index      *features.LabelIndex
	Subsectors features.SubsectorMap
	Centroids  features.Centroids
	Encoder    *features.Encoder

	Sources map[string]Source
}

// Load reads all assets.
//
// The model is required. A missing scaler falls back to the training
// constants; a missing index, subsector map or centroid table falls back to
// empty tables with a warning. Files that exist but cannot be parsed are
// always fatal.
func Load(p Paths, logger *slog.Logger) (*Bundle, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bundle{Sources: make(map[string]Source, len(Names))}

	artifact, err := models.ReadArtifact(p.Model)
	if err != nil {
		return nil, &LoadError{Asset: AssetModel, Path: p.Model, Err: err}
	}
	b.Model, err = models.Build(artifact)
	if err != nil {
		return nil, &LoadError{Asset: AssetModel, Path: p.Model, Err: err}
	}
	if err := checkSchema(b.Model); err != nil {
		return nil, &LoadError{Asset: AssetModel, Path: p.Model, Err: err}
	}
	b.Sources[AssetModel] = SourceFile
	logger.Info("loaded model",
		"path", p.Model,
		"blocks", len(b.Model.Blocks()),
		"model_dim", b.Model.ModelDim(),
	)

	b.Scaler = features.DefaultScaler()
	if err := loadOptional(b, AssetScaler, p.Scaler, &b.Scaler, false, logger); err != nil {
		return nil, err
	}

	b.Index = features.EmptyLabelIndex()
	if err := loadOptional(b, AssetIndex, p.Index, b.Index, p.Strict, logger); err != nil {
		return nil, err
	}
	if err := checkIndex(b.Index, b.Model); err != nil {
		return nil, &LoadError{Asset: AssetIndex, Path: p.Index, Err: err}
	}

	b.Subsectors = features.SubsectorMap{}
	if err := loadOptional(b, AssetSubsectors, p.Subsectors, &b.Subsectors, false, logger); err != nil {
		return nil, err
	}

	b.Centroids = features.Centroids{}
	if err := loadOptional(b, AssetCentroids, p.Centroids, &b.Centroids, false, logger); err != nil {
		return nil, err
	}

	b.Encoder, err = features.NewEncoder(b.Index, b.Scaler, b.Subsectors, b.Centroids, logger)
	if err != nil {
		return nil, &LoadError{Asset: AssetScaler, Path: p.Scaler, Err: err}
	}

	return b, nil
}

// loadOptional decodes the JSON file at path into dst. A missing file keeps
// dst unchanged unless required is set.
func loadOptional(b *Bundle, asset, path string, dst any, required bool, logger *slog.Logger) error {
	if path == "" {
		if required {
			return &LoadError{Asset: asset, Path: path, Err: errors.New("path not configured")}
		}
		logger.Warn("asset path not configured, using fallback", "asset", asset)
		b.Sources[asset] = SourceFallback
		return nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		logger.Warn("asset not found, using fallback", "asset", asset, "path", path)
		b.Sources[asset] = SourceFallback
		return nil
	}
	if err != nil {
		return &LoadError{Asset: asset, Path: path, Err: err}
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return &LoadError{Asset: asset, Path: path, Err: fmt.Errorf("decode: %w", err)}
	}
	b.Sources[asset] = SourceFile
	logger.Info("loaded asset", "asset", asset, "path", path)
	return nil
}

// checkIndex rejects label indices that address rows past the model's
// embedding tables.
// checkSchema rejects a model whose input shape differs from what the
// encoder produces, so a mismatch stops startup instead of failing every
// forward pass.
func checkSchema(m *models.Transformer) error {
	if m.SequenceLength() != features.SequenceLength {
		return fmt.Errorf("model expects %d timesteps, encoder produces %d: %w",
			m.SequenceLength(), features.SequenceLength, models.ErrShapeMismatch)
	}
	if m.NumericalFeatures() != features.NumNumerical {
		return fmt.Errorf("model expects %d numerical features, encoder produces %d: %w",
			m.NumericalFeatures(), features.NumNumerical, models.ErrShapeMismatch)
	}
	return nil
}

func checkIndex(index *features.LabelIndex, m *models.Transformer) error {
	vocab := m.VocabSizes()
	tables := [models.NumStreams]map[string]int{index.Country, index.Sector, index.Subsector, index.Gas}
	for s, table := range tables {
		for label, idx := range table {
			if idx < 0 || idx >= vocab[s] {
				return fmt.Errorf("%s %q maps to row %d, embedding has %d rows: %w",
					models.StreamNames[s], label, idx, vocab[s], models.ErrIndexOutOfRange)
			}
		}
	}
	return nil
}
