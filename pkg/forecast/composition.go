package forecast

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/HatiCode/ghgcast/pkg/features"
)

// Gases are the greenhouse gases included in the composition breakdown, in
// response order.
var Gases = []string{"co2", "ch4", "n2o"}

// Composition is the share of each gas in the combined annual total.
type Composition struct {
	// Ratios are percentages rounded to two decimals.
	Ratios map[string]float64
	// Totals are the unrounded annual totals per gas.
	Totals map[string]float64
	// Combined is the sum of Totals.
	Combined float64
}

// Composition runs the request once per gas in Gases, concurrently, and
// returns each gas's share of the combined total. A failing gas pass counts
// as zero. When every pass yields zero, all ratios are zero.
func (r *Runner) Composition(ctx context.Context, req features.Request) (Composition, error) {
	return r.composition(ctx, req, nil)
}

func (r *Runner) composition(ctx context.Context, req features.Request, known map[string]float64) (Composition, error) {
	totals := make([]float64, len(Gases))

	g, gctx := errgroup.WithContext(ctx)
	for i, gas := range Gases {
		if v, ok := known[gas]; ok {
			totals[i] = v
			continue
		}
		g.Go(func() error {
			res, err := r.Run(gctx, req.WithGas(gas))
			if err != nil {
				if IsCanceled(err) {
					return err
				}
				r.logger.Debug("gas pass failed, counting as zero",
					"gas", gas,
					"error", err,
				)
				return nil
			}
			totals[i] = res.Total
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Composition{}, err
	}

	return newComposition(totals), nil
}

func newComposition(totals []float64) Composition {
	c := Composition{
		Ratios: make(map[string]float64, len(Gases)),
		Totals: make(map[string]float64, len(Gases)),
	}
	for i, gas := range Gases {
		c.Totals[gas] = totals[i]
		c.Combined += totals[i]
	}
	for _, gas := range Gases {
		if c.Combined == 0 {
			c.Ratios[gas] = 0
			continue
		}
		c.Ratios[gas] = Round2(c.Totals[gas] / c.Combined * 100)
	}
	return c
}

// Forecast is the full answer to a predict request.
type Forecast struct {
	Request     features.Request
	Result      *Result
	Composition Composition
}

// Forecast runs the requested gas and the gas composition. The requested
// gas's own pass is reused for the composition when it is one of Gases.
func (r *Runner) Forecast(ctx context.Context, req features.Request) (*Forecast, error) {
	res, err := r.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	norm := req.Normalized()
	known := map[string]float64{}
	for _, gas := range Gases {
		if gas == norm.Gas {
			known[gas] = res.Total
		}
	}

	comp, err := r.composition(ctx, req, known)
	if err != nil {
		return nil, err
	}

	return &Forecast{
		Request:     norm,
		Result:      res,
		Composition: comp,
	}, nil
}
