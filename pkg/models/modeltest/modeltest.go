// Package modeltest builds small deterministic transformer artifacts for tests.
package modeltest

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/HatiCode/ghgcast/pkg/models"
)

// Config sizes a synthetic model.
type Config struct {
	Seed        uint64
	Vocab       [models.NumStreams]int
	EmbedDim    int
	ModelDim    int
	Heads       int
	KeyDim      int
	FFDim       int
	Blocks      int
	SeqLen      int
	NumFeatures int
}

// DefaultConfig is a small two-block model matching the production input schema.
func DefaultConfig() Config {
	return Config{
		Seed:        7,
		Vocab:       [models.NumStreams]int{4, 4, 6, 3},
		EmbedDim:    3,
		ModelDim:    8,
		Heads:       2,
		KeyDim:      4,
		FFDim:       12,
		Blocks:      2,
		SeqLen:      12,
		NumFeatures: 6,
	}
}

// Artifact returns a randomly initialized artifact for cfg.
func Artifact(cfg Config) *models.Artifact {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	a := &models.Artifact{
		Format:            models.ArtifactFormat,
		SequenceLength:    cfg.SeqLen,
		NumericalFeatures: cfg.NumFeatures,
	}

	for s, name := range models.StreamNames {
		a.Layers = append(a.Layers, models.LayerSpec{
			Name:       "emb_" + name,
			Type:       models.LayerEmbedding,
			Embeddings: randMatrix(rng, cfg.Vocab[s], cfg.EmbedDim, 0.5),
		})
	}

	concat := models.NumStreams*cfg.EmbedDim + cfg.NumFeatures
	a.Layers = append(a.Layers,
		models.LayerSpec{Name: "dense", Type: models.LayerDense, Dense: randDense(rng, concat, cfg.ModelDim, "")},
		models.LayerSpec{Name: "positional_embedding", Type: models.LayerPositional, Embeddings: randMatrix(rng, cfg.SeqLen, cfg.ModelDim, 0.1)},
	)

	inner := cfg.Heads * cfg.KeyDim
	for i := range cfg.Blocks {
		name := "transformer_encoder"
		if i > 0 {
			name = fmt.Sprintf("transformer_encoder_%d", i)
		}
		a.Layers = append(a.Layers, models.LayerSpec{
			Name: name,
			Type: models.LayerTransformerEncoder,
			Encoder: &models.EncoderSpec{
				NumHeads: cfg.Heads,
				KeyDim:   cfg.KeyDim,
				Query:    *randDense(rng, cfg.ModelDim, inner, ""),
				Key:      *randDense(rng, cfg.ModelDim, inner, ""),
				Value:    *randDense(rng, cfg.ModelDim, inner, ""),
				Output:   *randDense(rng, inner, cfg.ModelDim, ""),
				FFN: []models.DenseSpec{
					*randDense(rng, cfg.ModelDim, cfg.FFDim, "relu"),
					*randDense(rng, cfg.FFDim, cfg.ModelDim, ""),
				},
				LayerNorm1: randNorm(rng, cfg.ModelDim),
				LayerNorm2: randNorm(rng, cfg.ModelDim),
			},
		})
	}

	a.Layers = append(a.Layers, models.LayerSpec{
		Name:  fmt.Sprintf("dense_%d", 2*cfg.Blocks+1),
		Type:  models.LayerDense,
		Dense: randDense(rng, cfg.ModelDim, 1, ""),
	})
	a.Layers[len(a.Layers)-1].Dense.Bias[0] = 1

	return a
}

// Model builds the default synthetic model or fails the test.
func Model(tb testing.TB) *models.Transformer {
	tb.Helper()
	m, err := models.Build(Artifact(DefaultConfig()))
	if err != nil {
		tb.Fatalf("build synthetic model: %v", err)
	}
	return m
}

// WriteFile writes the default synthetic artifact to dir and returns its path.
func WriteFile(tb testing.TB, dir string) string {
	tb.Helper()
	data, err := json.Marshal(Artifact(DefaultConfig()))
	if err != nil {
		tb.Fatalf("marshal artifact: %v", err)
	}
	path := filepath.Join(dir, "model.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tb.Fatalf("write artifact: %v", err)
	}
	return path
}

func randMatrix(rng *rand.Rand, rows, cols int, scale float64) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = make([]float64, cols)
		for j := range out[i] {
			out[i][j] = (rng.Float64()*2 - 1) * scale
		}
	}
	return out
}

func randDense(rng *rand.Rand, in, out int, activation string) *models.DenseSpec {
	bias := make([]float64, out)
	for i := range bias {
		bias[i] = (rng.Float64()*2 - 1) * 0.1
	}
	return &models.DenseSpec{
		Kernel:     randMatrix(rng, in, out, 0.6),
		Bias:       bias,
		Activation: activation,
	}
}

func randNorm(rng *rand.Rand, dim int) models.NormSpec {
	gamma := make([]float64, dim)
	beta := make([]float64, dim)
	for i := range gamma {
		gamma[i] = 1 + (rng.Float64()*2-1)*0.2
		beta[i] = (rng.Float64()*2 - 1) * 0.1
	}
	return models.NormSpec{Gamma: gamma, Beta: beta, Epsilon: 1e-6}
}
