package models

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// forward returns the pre-activation and activated output of x*W + b.
func (d dense) forward(x mat.Matrix) (pre, out *mat.Dense) {
	r, _ := x.Dims()
	_, c := d.w.Dims()
	pre = mat.NewDense(r, c, nil)
	pre.Mul(x, d.w)
	for i := range r {
		row := pre.RawRowView(i)
		for j := range row {
			row[j] += d.b[j]
		}
	}
	if d.act == activationLinear {
		return pre, pre
	}
	out = mat.DenseCopyOf(pre)
	out.Apply(func(_, _ int, v float64) float64 { return math.Max(v, 0) }, out)
	return pre, out
}

// backward maps the gradient at the layer output to the gradient at its input.
func (d dense) backward(pre, dOut *mat.Dense) *mat.Dense {
	dPre := dOut
	if d.act == activationReLU {
		dPre = mat.DenseCopyOf(dOut)
		dPre.Apply(func(i, j int, v float64) float64 {
			if pre.At(i, j) > 0 {
				return v
			}
			return 0
		}, dPre)
	}
	r, _ := dPre.Dims()
	in, _ := d.w.Dims()
	dx := mat.NewDense(r, in, nil)
	dx.Mul(dPre, d.w.T())
	return dx
}

type normTape struct {
	xhat   *mat.Dense
	invStd []float64
}

// forward normalizes each row of x over its columns.
func (n layerNorm) forward(x *mat.Dense) (*mat.Dense, normTape) {
	r, c := x.Dims()
	out := mat.NewDense(r, c, nil)
	t := normTape{xhat: mat.NewDense(r, c, nil), invStd: make([]float64, r)}

	for i := range r {
		row := x.RawRowView(i)
		var mean float64
		for _, v := range row {
			mean += v
		}
		mean /= float64(c)
		var variance float64
		for _, v := range row {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(c)
		inv := 1 / math.Sqrt(variance+n.eps)
		t.invStd[i] = inv

		xh := t.xhat.RawRowView(i)
		o := out.RawRowView(i)
		for j, v := range row {
			xh[j] = (v - mean) * inv
			o[j] = n.gamma[j]*xh[j] + n.beta[j]
		}
	}
	return out, t
}

func (n layerNorm) backward(t normTape, dOut *mat.Dense) *mat.Dense {
	r, c := dOut.Dims()
	dx := mat.NewDense(r, c, nil)
	dxhat := make([]float64, c)

	for i := range r {
		dy := dOut.RawRowView(i)
		xh := t.xhat.RawRowView(i)
		var meanD, meanDX float64
		for j := range c {
			dxhat[j] = dy[j] * n.gamma[j]
			meanD += dxhat[j]
			meanDX += dxhat[j] * xh[j]
		}
		meanD /= float64(c)
		meanDX /= float64(c)

		out := dx.RawRowView(i)
		for j := range c {
			out[j] = t.invStd[i] * (dxhat[j] - meanD - xh[j]*meanDX)
		}
	}
	return dx
}

// softmaxRows applies a numerically stable softmax to each row in place.
func softmaxRows(m *mat.Dense) {
	r, _ := m.Dims()
	for i := range r {
		row := m.RawRowView(i)
		maxV := math.Inf(-1)
		for _, v := range row {
			maxV = math.Max(maxV, v)
		}
		var sum float64
		for j, v := range row {
			row[j] = math.Exp(v - maxV)
			sum += row[j]
		}
		for j := range row {
			row[j] /= sum
		}
	}
}

// columns returns a view of columns [from, to) of m.
func columns(m *mat.Dense, from, to int) *mat.Dense {
	r, _ := m.Dims()
	return m.Slice(0, r, from, to).(*mat.Dense)
}

func addInPlace(dst *mat.Dense, others ...mat.Matrix) {
	for _, o := range others {
		dst.Add(dst, o)
	}
}
