package models

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// Gradient evaluates the post-embedding graph at e and returns its outputs and
// the gradient of the summed outputs with respect to each of the five inputs.
func (m *Transformer) Gradient(ctx context.Context, e Embedded) ([]float64, Embedded, error) {
	if err := ctx.Err(); err != nil {
		return nil, Embedded{}, err
	}
	out, t, err := m.forward(e)
	if err != nil {
		return nil, Embedded{}, err
	}

	// d(sum y)/dy = 1 for every timestep.
	dy := mat.NewDense(m.seqLen, 1, nil)
	for i := range m.seqLen {
		dy.Set(i, 0, 1)
	}

	dx := m.head.backward(t.headPre, dy)
	for i := len(m.blocks) - 1; i >= 0; i-- {
		dx = m.blocks[i].backward(&t.blocks[i], dx)
	}
	// The positional embedding is additive, so its gradient passes through.
	dConcat := m.projection.backward(t.projPre, dx)

	var grads Embedded
	off := 0
	for s, d := range m.embedDims {
		grads.Categorical[s] = mat.DenseCopyOf(columns(dConcat, off, off+d))
		off += d
	}
	_, width := dConcat.Dims()
	grads.Numerical = mat.DenseCopyOf(columns(dConcat, off, width))

	return out, grads, nil
}

func (b *encoderBlock) backward(t *blockTape, dOut *mat.Dense) *mat.Dense {
	seq, dModel := dOut.Dims()
	inner := b.heads * b.keyDim

	// out2 = LN2(out1 + FFN(out1))
	dRes2 := b.ln2.backward(t.ln2, dOut)
	dHid := b.ff2.backward(t.ffOut, dRes2)
	dOut1 := b.ff1.backward(t.ffPre, dHid)
	dOut1.Add(dOut1, dRes2)

	// out1 = LN1(x + MHA(x, x))
	dRes1 := b.ln1.backward(t.ln1, dOut1)
	dConcat := b.o.backward(nil, dRes1)

	dQ := mat.NewDense(seq, inner, nil)
	dK := mat.NewDense(seq, inner, nil)
	dV := mat.NewDense(seq, inner, nil)
	dA := mat.NewDense(seq, seq, nil)
	dS := mat.NewDense(seq, seq, nil)

	for h := range b.heads {
		lo, hi := h*b.keyDim, (h+1)*b.keyDim
		a := t.attn[h]
		dO := columns(dConcat, lo, hi)

		dA.Mul(dO, columns(t.v, lo, hi).T())
		columns(dV, lo, hi).Mul(a.T(), dO)

		// Softmax backward: dS = A * (dA - rowsum(dA * A)).
		for i := range seq {
			aRow := a.RawRowView(i)
			daRow := dA.RawRowView(i)
			var dot float64
			for j := range aRow {
				dot += daRow[j] * aRow[j]
			}
			dsRow := dS.RawRowView(i)
			for j := range aRow {
				dsRow[j] = aRow[j] * (daRow[j] - dot) * t.scale
			}
		}

		columns(dQ, lo, hi).Mul(dS, columns(t.k, lo, hi))
		columns(dK, lo, hi).Mul(dS.T(), columns(t.q, lo, hi))
	}

	dx := mat.NewDense(seq, dModel, nil)
	dx.Copy(dRes1)
	addInPlace(dx,
		b.q.backward(nil, dQ),
		b.k.backward(nil, dK),
		b.v.backward(nil, dV),
	)
	return dx
}
