package models

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// ArtifactFormat identifies the weight file layout understood by Build.
const ArtifactFormat = "ghgcast.layers.v1"

// Layer types in an artifact.
const (
	LayerEmbedding          = "embedding"
	LayerDense              = "dense"
	LayerPositional         = "positional_embedding"
	LayerTransformerEncoder = "transformer_encoder"
)

// Artifact is the exported layer graph of the trained model. Layers appear in
// graph order and keep the names they had in the training graph.
type Artifact struct {
	Format            string      `json:"format"`
	SequenceLength    int         `json:"sequence_length"`
	NumericalFeatures int         `json:"numerical_features"`
	Layers            []LayerSpec `json:"layers"`
}

// LayerSpec is one named layer and its trained weights.
type LayerSpec struct {
	Name string `json:"name"`
	Type string `json:"type"`

	// Embeddings holds the table of an embedding or positional_embedding layer.
	Embeddings [][]float64 `json:"embeddings,omitempty"`

	// Dense is set for dense layers.
	Dense *DenseSpec `json:"dense,omitempty"`

	// Encoder is set for transformer_encoder layers.
	Encoder *EncoderSpec `json:"encoder,omitempty"`
}

// DenseSpec is a fully connected layer: y = act(x*Kernel + Bias).
// Kernel is stored input-major (in x out).
type DenseSpec struct {
	Kernel     [][]float64 `json:"kernel"`
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation,omitempty"`
}

// NormSpec is a layer normalization over the last axis.
type NormSpec struct {
	Gamma   []float64 `json:"gamma"`
	Beta    []float64 `json:"beta"`
	Epsilon float64   `json:"epsilon"`
}

// EncoderSpec is one post-norm transformer encoder block. Query, Key and Value
// kernels are d_model x (heads*key_dim) with heads laid out contiguously;
// Output is (heads*key_dim) x d_model.
type EncoderSpec struct {
	NumHeads   int         `json:"num_heads"`
	KeyDim     int         `json:"key_dim"`
	Query      DenseSpec   `json:"query"`
	Key        DenseSpec   `json:"key"`
	Value      DenseSpec   `json:"value"`
	Output     DenseSpec   `json:"output"`
	FFN        []DenseSpec `json:"ffn"`
	LayerNorm1 NormSpec    `json:"layernorm1"`
	LayerNorm2 NormSpec    `json:"layernorm2"`
}

// DecodeArtifact reads an artifact from r.
func DecodeArtifact(r io.Reader) (*Artifact, error) {
	var a Artifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode model artifact: %w", err)
	}
	if a.Format != ArtifactFormat {
		return nil, fmt.Errorf("unsupported model artifact format %q, want %q", a.Format, ArtifactFormat)
	}
	return &a, nil
}

// ReadArtifact reads an artifact from a file.
func ReadArtifact(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeArtifact(f)
}
