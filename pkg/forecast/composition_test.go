package forecast

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/HatiCode/ghgcast/pkg/features"
	"github.com/HatiCode/ghgcast/pkg/models"
	"github.com/HatiCode/ghgcast/pkg/models/modeltest"
)

func TestRunner_Composition_SumsToHundred(t *testing.T) {
	r := NewRunner(modeltest.Encoder(t), modeltest.Model(t), 4, nil, modeltest.Logger())

	c, err := r.Composition(context.Background(), scenario())
	if err != nil {
		t.Fatalf("Composition() error = %v", err)
	}

	var sum, combined float64
	for _, gas := range Gases {
		ratio, ok := c.Ratios[gas]
		if !ok {
			t.Fatalf("ratio for %s missing", gas)
		}
		if ratio < 0 || ratio > 100 {
			t.Errorf("ratio[%s] = %v, want within [0,100]", gas, ratio)
		}
		sum += ratio
		combined += c.Totals[gas]
	}
	if math.Abs(sum-100) > 0.02 {
		t.Errorf("sum of ratios = %v, want ~100", sum)
	}
	if math.Abs(combined-c.Combined) > 1e-9 {
		t.Errorf("Combined = %v, want %v", c.Combined, combined)
	}
}

func TestRunner_Composition_PerGasShares(t *testing.T) {
	gasIdx := modeltest.Index().Gas
	values := map[int]float64{gasIdx["co2"]: 6, gasIdx["ch4"]: 3, gasIdx["n2o"]: 1}
	m := &fakeModel{fn: func(in models.Inputs) ([]float64, error) {
		return constant(math.Log1p(values[in.Categorical[features.ColGas][0]]))(in)
	}}
	r := NewRunner(modeltest.Encoder(t), m, 2, nil, modeltest.Logger())

	c, err := r.Composition(context.Background(), scenario())
	if err != nil {
		t.Fatalf("Composition() error = %v", err)
	}

	want := map[string]float64{"co2": 60, "ch4": 30, "n2o": 10}
	for gas, w := range want {
		if math.Abs(c.Ratios[gas]-w) > 1e-9 {
			t.Errorf("ratio[%s] = %v, want %v", gas, c.Ratios[gas], w)
		}
	}
	// 2 subsectors x 12 months x 6
	if math.Abs(c.Totals["co2"]-144) > 1e-9 {
		t.Errorf("co2 total = %v, want 144", c.Totals["co2"])
	}
}

func TestRunner_Composition_ZeroTotal(t *testing.T) {
	r := NewRunner(modeltest.Encoder(t), &fakeModel{fn: constant(-1)}, 2, nil, modeltest.Logger())

	c, err := r.Composition(context.Background(), scenario())
	if err != nil {
		t.Fatalf("Composition() error = %v", err)
	}
	if c.Combined != 0 {
		t.Errorf("Combined = %v, want 0", c.Combined)
	}
	for _, gas := range Gases {
		if c.Ratios[gas] != 0 {
			t.Errorf("ratio[%s] = %v, want 0", gas, c.Ratios[gas])
		}
	}
}

func TestRunner_Composition_FailedPassCountsZero(t *testing.T) {
	// "ch4" is missing from the index, so its pass fails validation.
	index := modeltest.Index()
	delete(index.Gas, "ch4")
	enc, err := features.NewEncoder(index, features.DefaultScaler(), modeltest.Subsectors(), modeltest.Centroids(), modeltest.Logger())
	if err != nil {
		t.Fatalf("NewEncoder() error = %v", err)
	}
	r := NewRunner(enc, &fakeModel{fn: constant(math.Log1p(1))}, 2, nil, modeltest.Logger())

	c, err := r.Composition(context.Background(), scenario())
	if err != nil {
		t.Fatalf("Composition() error = %v", err)
	}
	if c.Totals["ch4"] != 0 || c.Ratios["ch4"] != 0 {
		t.Errorf("ch4 = total %v ratio %v, want 0", c.Totals["ch4"], c.Ratios["ch4"])
	}
	if c.Ratios["co2"] != 50 || c.Ratios["n2o"] != 50 {
		t.Errorf("Ratios = %v, want co2 and n2o at 50", c.Ratios)
	}
}

func TestRunner_Composition_Canceled(t *testing.T) {
	r := NewRunner(modeltest.Encoder(t), &fakeModel{fn: constant(1)}, 1, nil, modeltest.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Composition(ctx, scenario()); !IsCanceled(err) {
		t.Fatalf("Composition() error = %v, want cancellation", err)
	}
}

func TestRunner_Forecast_ReusesRequestedGas(t *testing.T) {
	tests := []struct {
		name      string
		gas       string
		wantCalls int64
	}{
		// 2 subsectors for the requested gas, 2 more per remaining gas
		{name: "upper-case gas", gas: "CO2", wantCalls: 6},
		{name: "lower-case gas", gas: "n2o", wantCalls: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeModel{fn: constant(1)}
			r := NewRunner(modeltest.Encoder(t), m, 2, nil, modeltest.Logger())

			req := scenario()
			req.Gas = tt.gas
			f, err := r.Forecast(context.Background(), req)
			if err != nil {
				t.Fatalf("Forecast() error = %v", err)
			}
			if got := m.calls.Load(); got != tt.wantCalls {
				t.Errorf("model calls = %d, want %d", got, tt.wantCalls)
			}
			if f.Request.Country != "PAK" {
				t.Errorf("Request.Country = %q, want PAK", f.Request.Country)
			}
			if math.Abs(f.Composition.Totals[f.Request.Gas]-f.Result.Total) > 1e-9 {
				t.Errorf("composition total %v != result total %v", f.Composition.Totals[f.Request.Gas], f.Result.Total)
			}
		})
	}
}

func TestRunner_BoundsConcurrentInference(t *testing.T) {
	m := &fakeModel{fn: constant(1), delay: 2 * time.Millisecond}
	r := NewRunner(modeltest.Encoder(t), m, 1, nil, modeltest.Logger())

	if _, err := r.Composition(context.Background(), scenario()); err != nil {
		t.Fatalf("Composition() error = %v", err)
	}
	if p := m.peak.Load(); p != 1 {
		t.Errorf("peak concurrent predictions = %d, want 1", p)
	}
}
