package models

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

type blockTape struct {
	q      *mat.Dense
	k      *mat.Dense
	v      *mat.Dense
	attn   []*mat.Dense
	ln1    normTape
	ffPre  *mat.Dense
	ffHid  *mat.Dense
	ffOut  *mat.Dense
	ln2    normTape
	scale  float64
	concat *mat.Dense
}

type tape struct {
	projPre *mat.Dense
	blocks  []blockTape
	final   *mat.Dense
	headPre *mat.Dense
}

// Predict embeds the categorical streams and runs the full graph.
func (m *Transformer) Predict(ctx context.Context, in Inputs) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := m.Embed(in)
	if err != nil {
		return nil, err
	}
	out, _, err := m.forward(e)
	return out, err
}

// Embed looks up each categorical stream in its embedding table.
func (m *Transformer) Embed(in Inputs) (Embedded, error) {
	var e Embedded
	for s, idx := range in.Categorical {
		if len(idx) != m.seqLen {
			return Embedded{}, fmt.Errorf("%s stream has %d steps, want %d: %w", StreamNames[s], len(idx), m.seqLen, ErrShapeMismatch)
		}
		table := m.embeddings[s]
		vocab, dim := table.Dims()
		out := mat.NewDense(m.seqLen, dim, nil)
		for t, id := range idx {
			if id < 0 || id >= vocab {
				return Embedded{}, fmt.Errorf("%s index %d (vocabulary %d): %w", StreamNames[s], id, vocab, ErrIndexOutOfRange)
			}
			out.SetRow(t, table.RawRowView(id))
		}
		e.Categorical[s] = out
	}
	if in.Numerical == nil {
		return Embedded{}, fmt.Errorf("numerical input missing: %w", ErrShapeMismatch)
	}
	if r, c := in.Numerical.Dims(); r != m.seqLen || c != m.numFeatures {
		return Embedded{}, shapeErr("numerical input", r, c, m.seqLen, m.numFeatures)
	}
	e.Numerical = in.Numerical
	return e, nil
}

func (m *Transformer) checkEmbedded(e Embedded) error {
	for s, c := range e.Categorical {
		if c == nil {
			return fmt.Errorf("%s embedding missing: %w", StreamNames[s], ErrShapeMismatch)
		}
		if r, cols := c.Dims(); r != m.seqLen || cols != m.embedDims[s] {
			return shapeErr(StreamNames[s]+" embedding", r, cols, m.seqLen, m.embedDims[s])
		}
	}
	if e.Numerical == nil {
		return fmt.Errorf("numerical input missing: %w", ErrShapeMismatch)
	}
	if r, c := e.Numerical.Dims(); r != m.seqLen || c != m.numFeatures {
		return shapeErr("numerical input", r, c, m.seqLen, m.numFeatures)
	}
	return nil
}

// forward runs the post-embedding graph and records the activations needed
// by backward.
func (m *Transformer) forward(e Embedded) ([]float64, *tape, error) {
	if err := m.checkEmbedded(e); err != nil {
		return nil, nil, err
	}

	concat := m.concat(e)
	t := &tape{}

	var x *mat.Dense
	t.projPre, x = m.projection.forward(concat)
	x.Add(x, m.positional.Slice(0, m.seqLen, 0, m.ModelDim()))

	t.blocks = make([]blockTape, len(m.blocks))
	for i := range m.blocks {
		x = m.blocks[i].forward(x, &t.blocks[i])
	}
	t.final = x

	var y *mat.Dense
	t.headPre, y = m.head.forward(x)

	out := make([]float64, m.seqLen)
	for i := range out {
		out[i] = y.At(i, 0)
	}
	return out, t, nil
}

func (m *Transformer) concat(e Embedded) *mat.Dense {
	width := m.numFeatures
	for _, d := range m.embedDims {
		width += d
	}
	out := mat.NewDense(m.seqLen, width, nil)
	off := 0
	for s, c := range e.Categorical {
		columns(out, off, off+m.embedDims[s]).Copy(c)
		off += m.embedDims[s]
	}
	columns(out, off, width).Copy(e.Numerical)
	return out
}

// forward runs multi-head self-attention followed by the feed-forward network,
// each wrapped in a residual connection and layer normalization.
func (b *encoderBlock) forward(x *mat.Dense, t *blockTape) *mat.Dense {
	seq, _ := x.Dims()
	inner := b.heads * b.keyDim

	t.scale = 1 / math.Sqrt(float64(b.keyDim))
	_, t.q = b.q.forward(x)
	_, t.k = b.k.forward(x)
	_, t.v = b.v.forward(x)

	t.concat = mat.NewDense(seq, inner, nil)
	t.attn = make([]*mat.Dense, b.heads)
	for h := range b.heads {
		lo, hi := h*b.keyDim, (h+1)*b.keyDim
		scores := mat.NewDense(seq, seq, nil)
		scores.Mul(columns(t.q, lo, hi), columns(t.k, lo, hi).T())
		scores.Scale(t.scale, scores)
		softmaxRows(scores)
		t.attn[h] = scores

		columns(t.concat, lo, hi).Mul(scores, columns(t.v, lo, hi))
	}

	_, attnOut := b.o.forward(t.concat)
	attnOut.Add(attnOut, x)

	out1, ln1 := b.ln1.forward(attnOut)
	t.ln1 = ln1

	t.ffPre, t.ffHid = b.ff1.forward(out1)
	var ffOut *mat.Dense
	t.ffOut, ffOut = b.ff2.forward(t.ffHid)
	if ffOut == t.ffOut {
		ffOut = mat.DenseCopyOf(ffOut)
	}
	ffOut.Add(ffOut, out1)

	out2, ln2 := b.ln2.forward(ffOut)
	t.ln2 = ln2
	return out2
}
