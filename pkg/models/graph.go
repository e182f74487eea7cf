package models

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

const (
	activationLinear = "linear"
	activationReLU   = "relu"
)

type dense struct {
	w   *mat.Dense
	b   []float64
	act string
}

type layerNorm struct {
	gamma []float64
	beta  []float64
	eps   float64
}

type encoderBlock struct {
	name   string
	heads  int
	keyDim int
	q      dense
	k      dense
	v      dense
	o      dense
	ff1    dense
	ff2    dense
	ln1    layerNorm
	ln2    layerNorm
}

// Transformer is the emission model reconstructed from an artifact.
//
// Graph: embeddings -> concat(categorical) -> concat(numerical) -> input
// projection -> positional embedding -> encoder blocks -> output head -> squeeze.
//
// A Transformer holds only immutable weights. Every call allocates its own
// activations, so it is safe for concurrent use.
type Transformer struct {
	seqLen      int
	numFeatures int
	embedDims   [NumStreams]int
	embeddings  [NumStreams]*mat.Dense
	projection  dense
	positional  *mat.Dense
	blocks      []encoderBlock
	head        dense
}

// Build reconstructs the model graph from an artifact and validates every
// weight shape against the graph it implies. Encoder blocks are discovered by
// the "transformer_encoder" name prefix in artifact order. The first dense
// layer before the blocks is the input projection and the dense layer after
// them is the output head.
func Build(a *Artifact) (*Transformer, error) {
	if a.SequenceLength <= 0 || a.NumericalFeatures <= 0 {
		return nil, fmt.Errorf("invalid artifact dimensions seq=%d features=%d: %w", a.SequenceLength, a.NumericalFeatures, ErrShapeMismatch)
	}

	m := &Transformer{
		seqLen:      a.SequenceLength,
		numFeatures: a.NumericalFeatures,
	}

	var (
		positional  *LayerSpec
		blockSpecs  []LayerSpec
		before      []LayerSpec
		after       []LayerSpec
		embeddingOK [NumStreams]bool
	)

	for i := range a.Layers {
		l := a.Layers[i]
		switch {
		case l.Type == LayerEmbedding:
			idx := streamIndex(l.Name)
			if idx < 0 {
				return nil, fmt.Errorf("embedding layer %q does not match a categorical stream", l.Name)
			}
			table, err := matrix(l.Name, l.Embeddings)
			if err != nil {
				return nil, err
			}
			m.embeddings[idx] = table
			_, m.embedDims[idx] = table.Dims()
			embeddingOK[idx] = true

		case l.Type == LayerPositional:
			positional = &a.Layers[i]

		case l.Type == LayerTransformerEncoder || strings.HasPrefix(l.Name, LayerTransformerEncoder):
			if l.Encoder == nil {
				return nil, fmt.Errorf("encoder layer %q has no weights", l.Name)
			}
			blockSpecs = append(blockSpecs, l)

		case l.Type == LayerDense:
			if l.Dense == nil {
				return nil, fmt.Errorf("dense layer %q has no weights", l.Name)
			}
			if len(blockSpecs) == 0 {
				before = append(before, l)
			} else {
				after = append(after, l)
			}

		default:
			return nil, fmt.Errorf("layer %q has unsupported type %q", l.Name, l.Type)
		}
	}

	for i, ok := range embeddingOK {
		if !ok {
			return nil, fmt.Errorf("missing embedding layer emb_%s", StreamNames[i])
		}
	}
	if positional == nil {
		return nil, fmt.Errorf("missing %s layer", LayerPositional)
	}
	if len(blockSpecs) == 0 {
		return nil, fmt.Errorf("no %s layers found", LayerTransformerEncoder)
	}
	if len(before) != 1 {
		return nil, fmt.Errorf("expected 1 input projection dense layer, found %d", len(before))
	}
	if len(after) != 1 {
		return nil, fmt.Errorf("expected 1 output dense layer after encoder blocks, found %d", len(after))
	}

	concatWidth := m.numFeatures
	for _, d := range m.embedDims {
		concatWidth += d
	}

	var err error
	m.projection, err = buildDense(before[0].Name, *before[0].Dense, concatWidth, -1)
	if err != nil {
		return nil, err
	}
	_, dModel := m.projection.w.Dims()

	m.positional, err = matrix(positional.Name, positional.Embeddings)
	if err != nil {
		return nil, err
	}
	if r, c := m.positional.Dims(); r < m.seqLen || c != dModel {
		return nil, shapeErr(positional.Name, r, c, m.seqLen, dModel)
	}

	for _, spec := range blockSpecs {
		b, err := buildBlock(spec.Name, *spec.Encoder, dModel)
		if err != nil {
			return nil, err
		}
		m.blocks = append(m.blocks, b)
	}

	m.head, err = buildDense(after[0].Name, *after[0].Dense, dModel, 1)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Name returns the model identifier.
func (m *Transformer) Name() string {
	return "transformer"
}

// SequenceLength is the number of timesteps per input.
func (m *Transformer) SequenceLength() int {
	return m.seqLen
}

// NumericalFeatures is the width of the numerical input block.
func (m *Transformer) NumericalFeatures() int {
	return m.numFeatures
}

// EmbeddingDims returns the embedding width of each categorical stream.
func (m *Transformer) EmbeddingDims() [NumStreams]int {
	return m.embedDims
}

// VocabSizes returns the number of embedding rows of each categorical stream.
func (m *Transformer) VocabSizes() [NumStreams]int {
	var out [NumStreams]int
	for i, e := range m.embeddings {
		out[i], _ = e.Dims()
	}
	return out
}

// Blocks returns the names of the encoder blocks in execution order.
func (m *Transformer) Blocks() []string {
	names := make([]string, len(m.blocks))
	for i, b := range m.blocks {
		names[i] = b.name
	}
	return names
}

// ModelDim is the width of the transformer residual stream.
func (m *Transformer) ModelDim() int {
	_, d := m.projection.w.Dims()
	return d
}

func streamIndex(layerName string) int {
	for i, s := range StreamNames {
		if layerName == "emb_"+s {
			return i
		}
	}
	return -1
}

func matrix(name string, rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%s: empty weights: %w", name, ErrShapeMismatch)
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%s: row %d has %d values, want %d: %w", name, i, len(row), cols, ErrShapeMismatch)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), cols, data), nil
}

// buildDense validates a dense layer. wantIn and wantOut of -1 accept any size.
func buildDense(name string, spec DenseSpec, wantIn, wantOut int) (dense, error) {
	w, err := matrix(name+"/kernel", spec.Kernel)
	if err != nil {
		return dense{}, err
	}
	r, c := w.Dims()
	if (wantIn >= 0 && r != wantIn) || (wantOut >= 0 && c != wantOut) {
		wr, wc := wantIn, wantOut
		if wr < 0 {
			wr = r
		}
		if wc < 0 {
			wc = c
		}
		return dense{}, shapeErr(name+"/kernel", r, c, wr, wc)
	}
	if len(spec.Bias) != c {
		return dense{}, fmt.Errorf("%s/bias: got %d values, want %d: %w", name, len(spec.Bias), c, ErrShapeMismatch)
	}

	act := spec.Activation
	if act == "" {
		act = activationLinear
	}
	if act != activationLinear && act != activationReLU {
		return dense{}, fmt.Errorf("%s: unsupported activation %q", name, act)
	}

	return dense{w: w, b: append([]float64(nil), spec.Bias...), act: act}, nil
}

func buildNorm(name string, spec NormSpec, dim int) (layerNorm, error) {
	if len(spec.Gamma) != dim || len(spec.Beta) != dim {
		return layerNorm{}, fmt.Errorf("%s: gamma/beta have %d/%d values, want %d: %w", name, len(spec.Gamma), len(spec.Beta), dim, ErrShapeMismatch)
	}
	eps := spec.Epsilon
	if eps <= 0 {
		eps = 1e-6
	}
	return layerNorm{
		gamma: append([]float64(nil), spec.Gamma...),
		beta:  append([]float64(nil), spec.Beta...),
		eps:   eps,
	}, nil
}

func buildBlock(name string, spec EncoderSpec, dModel int) (encoderBlock, error) {
	if spec.NumHeads <= 0 || spec.KeyDim <= 0 {
		return encoderBlock{}, fmt.Errorf("%s: invalid heads=%d key_dim=%d", name, spec.NumHeads, spec.KeyDim)
	}
	if len(spec.FFN) != 2 {
		return encoderBlock{}, fmt.Errorf("%s: expected 2 feed-forward layers, found %d", name, len(spec.FFN))
	}
	inner := spec.NumHeads * spec.KeyDim

	b := encoderBlock{name: name, heads: spec.NumHeads, keyDim: spec.KeyDim}
	var err error
	if b.q, err = buildDense(name+"/query", spec.Query, dModel, inner); err != nil {
		return b, err
	}
	if b.k, err = buildDense(name+"/key", spec.Key, dModel, inner); err != nil {
		return b, err
	}
	if b.v, err = buildDense(name+"/value", spec.Value, dModel, inner); err != nil {
		return b, err
	}
	if b.o, err = buildDense(name+"/attention_output", spec.Output, inner, dModel); err != nil {
		return b, err
	}
	for _, d := range []dense{b.q, b.k, b.v, b.o} {
		if d.act != activationLinear {
			return b, fmt.Errorf("%s: attention projections must be linear, got %q", name, d.act)
		}
	}
	if b.ff1, err = buildDense(name+"/ffn_0", spec.FFN[0], dModel, -1); err != nil {
		return b, err
	}
	_, hidden := b.ff1.w.Dims()
	if b.ff2, err = buildDense(name+"/ffn_1", spec.FFN[1], hidden, dModel); err != nil {
		return b, err
	}
	if b.ln1, err = buildNorm(name+"/layernorm1", spec.LayerNorm1, dModel); err != nil {
		return b, err
	}
	if b.ln2, err = buildNorm(name+"/layernorm2", spec.LayerNorm2, dModel); err != nil {
		return b, err
	}
	return b, nil
}
