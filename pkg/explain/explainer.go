// Package explain attributes emission forecasts to their input features with
// Integrated Gradients computed in embedding space.
package explain

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/HatiCode/ghgcast/pkg/features"
	"github.com/HatiCode/ghgcast/pkg/forecast"
	"github.com/HatiCode/ghgcast/pkg/models"
)

// DefaultSteps is the number of interpolation intervals between baseline and input.
const DefaultSteps = 50

// Feature groups reported in importance scores.
const (
	GroupCountry     = "Country"
	GroupSector      = "Sector"
	GroupSubsector   = "Subsector"
	GroupGas         = "Gas"
	GroupLocation    = "Location (Lat/Lon)"
	GroupYearTrend   = "Year Trend"
	GroupSeasonality = "Seasonality"
)

// Groups lists the feature groups in report order.
var Groups = []string{
	GroupCountry, GroupSector, GroupSubsector, GroupGas,
	GroupLocation, GroupYearTrend, GroupSeasonality,
}

// Numerical columns of each numeric group. Duration (column 2) is not reported.
var numericGroups = []struct {
	name     string
	from, to int
}{
	{GroupLocation, 0, 2},
	{GroupYearTrend, 3, 4},
	{GroupSeasonality, 4, 6},
}

// Explanation is the attribution of one subsector's forecast.
type Explanation struct {
	TargetSubsector string
	// Scores maps each of Groups to its share of the total absolute
	// attribution, in percent rounded to two decimals.
	Scores map[string]float64
	// Attributions are the signed per-element attributions.
	Attributions models.Embedded
}

// Explainer runs Integrated Gradients against a differentiable model.
type Explainer struct {
	encoder *features.Encoder
	model   models.Differentiable
	steps   int
	logger  *slog.Logger
}

// NewExplainer creates an explainer. steps < 1 selects DefaultSteps.
func NewExplainer(encoder *features.Encoder, model models.Differentiable, steps int, logger *slog.Logger) *Explainer {
	if steps < 1 {
		steps = DefaultSteps
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Explainer{
		encoder: encoder,
		model:   model,
		steps:   steps,
		logger:  logger,
	}
}

// Steps returns the number of interpolation intervals.
func (e *Explainer) Steps() int {
	return e.steps
}

// Explain encodes req and attributes the forecast of its first subsector.
//
// The baseline is all-zero in embedding and numerical space. Gradients of the
// summed 12-month output are averaged over steps+1 evenly spaced points from
// baseline to input (both endpoints included) and scaled by the input delta.
func (e *Explainer) Explain(ctx context.Context, req features.Request) (*Explanation, error) {
	enc, err := e.encoder.Encode(req)
	if err != nil {
		return nil, err
	}
	if enc.Empty() {
		n := req.Normalized()
		return nil, &features.ValidationError{
			Field: "sector",
			Value: n.Sector,
			Msg:   fmt.Sprintf("sector %q has no subsector known to the model", n.Sector),
		}
	}

	target := enc.Sequences[0]
	embedded, err := e.model.Embed(forecast.Inputs(&target.Sequence))
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", target.Subsector, err)
	}

	attrs, err := e.integratedGradients(ctx, embedded.ZerosLike(), embedded)
	if err != nil {
		return nil, fmt.Errorf("integrated gradients for %s: %w", target.Subsector, err)
	}

	e.logger.Debug("explained forecast",
		"subsector", target.Subsector,
		"steps", e.steps,
	)

	return &Explanation{
		TargetSubsector: target.Subsector,
		Scores:          Scores(attrs),
		Attributions:    attrs,
	}, nil
}

func (e *Explainer) integratedGradients(ctx context.Context, baseline, input models.Embedded) (models.Embedded, error) {
	base := baseline.Tensors()
	in := input.Tensors()

	delta := make([]*mat.Dense, len(in))
	for i := range in {
		delta[i] = new(mat.Dense)
		delta[i].Sub(in[i], base[i])
	}

	sum := baseline.ZerosLike()
	acc := sum.Tensors()
	point := baseline.ZerosLike()
	at := point.Tensors()

	for k := 0; k <= e.steps; k++ {
		if err := ctx.Err(); err != nil {
			return models.Embedded{}, err
		}

		alpha := float64(k) / float64(e.steps)
		for i := range at {
			at[i].Scale(alpha, delta[i])
			at[i].Add(at[i], base[i])
		}

		_, grad, err := e.model.Gradient(ctx, point)
		if err != nil {
			return models.Embedded{}, err
		}
		for i, g := range grad.Tensors() {
			acc[i].Add(acc[i], g)
		}
	}

	inv := 1 / float64(e.steps+1)
	for i := range acc {
		acc[i].Scale(inv, acc[i])
		acc[i].MulElem(acc[i], delta[i])
	}
	return sum, nil
}

// Scores groups attributions by feature and converts the absolute sums to
// percentages of their total. A zero total is treated as one, so a degenerate
// attribution reports every group as zero.
func Scores(attrs models.Embedded) map[string]float64 {
	raw := make(map[string]float64, len(Groups))
	for s, name := range Groups[:models.NumStreams] {
		raw[name] = absSum(attrs.Categorical[s])
	}
	rows, _ := attrs.Numerical.Dims()
	for _, g := range numericGroups {
		raw[g.name] = absSum(attrs.Numerical.Slice(0, rows, g.from, g.to))
	}

	var total float64
	for _, name := range Groups {
		total += raw[name]
	}
	if total == 0 {
		total = 1
	}

	out := make(map[string]float64, len(Groups))
	for _, name := range Groups {
		out[name] = forecast.Round2(raw[name] / total * 100)
	}
	return out
}

func absSum(m mat.Matrix) float64 {
	var s float64
	r, c := m.Dims()
	for i := range r {
		for j := range c {
			s += math.Abs(m.At(i, j))
		}
	}
	return s
}
