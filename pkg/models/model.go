// Package models implements the trained emission transformer: loading its
// weight artifact, the inference forward pass, and the reverse-mode gradient
// of the post-embedding sub-graph used for attribution.
package models

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// NumStreams is the number of categorical input streams
// (country, sector, subsector, gas).
const NumStreams = 4

// Stream names in input order. They match the embedding layer names of the
// trained graph without the "emb_" prefix.
var StreamNames = [NumStreams]string{"country", "sector", "subsector", "gas"}

var (
	// ErrShapeMismatch is returned when inputs or weights have unexpected dimensions.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrIndexOutOfRange is returned when a categorical index has no embedding row.
	ErrIndexOutOfRange = errors.New("categorical index out of range")
)

// Model is the interface every emission model must implement.
//
// Predict runs the forward pass in inference mode and returns one value per
// timestep, in the log1p space the model was trained in.
type Model interface {
	Name() string
	Predict(ctx context.Context, in Inputs) ([]float64, error)
}

// Differentiable is a Model whose post-embedding graph can be differentiated
// with respect to its dense inputs.
type Differentiable interface {
	Model

	// Embed looks up the categorical streams in the model's own embedding tables.
	Embed(in Inputs) (Embedded, error)

	// Gradient evaluates the post-embedding graph at e and returns the outputs
	// together with the gradient of their sum with respect to every input.
	Gradient(ctx context.Context, e Embedded) ([]float64, Embedded, error)
}

// Inputs is the five-tensor input signature of the model for a single sequence:
// four categorical index streams of length seq and a seq x features numerical block.
type Inputs struct {
	Categorical [NumStreams][]int
	Numerical   *mat.Dense
}

// Embedded holds the differentiable inputs of the post-embedding graph:
// one seq x dim matrix per categorical stream and the numerical block.
type Embedded struct {
	Categorical [NumStreams]*mat.Dense
	Numerical   *mat.Dense
}

// ZerosLike returns an Embedded of the same shape filled with zeros.
func (e Embedded) ZerosLike() Embedded {
	var out Embedded
	for i, m := range e.Categorical {
		r, c := m.Dims()
		out.Categorical[i] = mat.NewDense(r, c, nil)
	}
	r, c := e.Numerical.Dims()
	out.Numerical = mat.NewDense(r, c, nil)
	return out
}

// Tensors returns the five inputs in graph order.
func (e Embedded) Tensors() []*mat.Dense {
	return []*mat.Dense{e.Categorical[0], e.Categorical[1], e.Categorical[2], e.Categorical[3], e.Numerical}
}

func shapeErr(what string, gotR, gotC, wantR, wantC int) error {
	return fmt.Errorf("%s: got %dx%d, want %dx%d: %w", what, gotR, gotC, wantR, wantC, ErrShapeMismatch)
}
