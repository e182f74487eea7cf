package explain

import (
	"context"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/HatiCode/ghgcast/pkg/features"
	"github.com/HatiCode/ghgcast/pkg/forecast"
	"github.com/HatiCode/ghgcast/pkg/models"
	"github.com/HatiCode/ghgcast/pkg/models/modeltest"
)

func scenario() features.Request {
	return features.Request{Country: "PAK", Sector: "transportation", Gas: "n2o", Year: 2030, Month: 1}
}

func TestExplainer_Explain(t *testing.T) {
	ex := NewExplainer(modeltest.Encoder(t), modeltest.Model(t), 0, modeltest.Logger())
	if ex.Steps() != DefaultSteps {
		t.Fatalf("Steps() = %d, want %d", ex.Steps(), DefaultSteps)
	}

	got, err := ex.Explain(context.Background(), scenario())
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}

	if got.TargetSubsector != "road-transportation" {
		t.Errorf("TargetSubsector = %q, want road-transportation", got.TargetSubsector)
	}
	if len(got.Scores) != len(Groups) {
		t.Fatalf("len(Scores) = %d, want %d", len(got.Scores), len(Groups))
	}

	var sum float64
	for _, g := range Groups {
		v, ok := got.Scores[g]
		if !ok {
			t.Fatalf("score %q missing", g)
		}
		if v < 0 || math.IsNaN(v) {
			t.Errorf("score %q = %v, want non-negative", g, v)
		}
		sum += v
	}
	if math.Abs(sum-100) > 0.05 {
		t.Errorf("sum of scores = %v, want ~100", sum)
	}
}

// Integrated Gradients satisfies completeness: attributions sum to the
// difference between the output at the input and at the baseline.
func TestExplainer_Completeness(t *testing.T) {
	model := modeltest.Model(t)
	ex := NewExplainer(modeltest.Encoder(t), model, 400, modeltest.Logger())

	got, err := ex.Explain(context.Background(), scenario())
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}

	enc, err := modeltest.Encoder(t).Encode(scenario())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	input, err := model.Embed(forecast.Inputs(&enc.Sequences[0].Sequence))
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	atInput, gradInput, err := model.Gradient(context.Background(), input)
	if err != nil {
		t.Fatalf("Gradient() error = %v", err)
	}
	atBase, gradBase, err := model.Gradient(context.Background(), input.ZerosLike())
	if err != nil {
		t.Fatalf("Gradient() error = %v", err)
	}
	var want float64
	for i := range atInput {
		want += atInput[i] - atBase[i]
	}

	// The average over steps+1 points deviates from the path integral by at
	// most about (|mean| + endpoint slopes) / steps.
	slope := func(grad models.Embedded) float64 {
		var d float64
		g := grad.Tensors()
		for i, x := range input.Tensors() {
			var p mat.Dense
			p.MulElem(g[i], x)
			d += mat.Sum(&p)
		}
		return d
	}
	tol := 2*(math.Abs(want)+math.Abs(slope(gradInput))+math.Abs(slope(gradBase)))/float64(ex.Steps()) + 1e-6

	var total float64
	for _, m := range got.Attributions.Tensors() {
		total += mat.Sum(m)
	}
	if math.Abs(total-want) > tol {
		t.Errorf("sum of attributions = %v, want %v +/- %v", total, want, tol)
	}
}

func TestExplainer_Explain_Errors(t *testing.T) {
	tests := []struct {
		name string
		req  features.Request
	}{
		{"unknown country", features.Request{Country: "ZZZ", Sector: "power", Gas: "co2", Year: 2025, Month: 2}},
		{"unknown gas", features.Request{Country: "USA", Sector: "power", Gas: "sf6", Year: 2025, Month: 2}},
		{"no known subsectors", features.Request{Country: "USA", Sector: "waste", Gas: "co2", Year: 2025, Month: 2}},
	}

	ex := NewExplainer(modeltest.Encoder(t), modeltest.Model(t), 4, modeltest.Logger())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ex.Explain(context.Background(), tt.req)
			if !features.IsValidation(err) {
				t.Errorf("Explain() error = %v, want validation error", err)
			}
		})
	}
}

func TestExplainer_Explain_Canceled(t *testing.T) {
	ex := NewExplainer(modeltest.Encoder(t), modeltest.Model(t), 10, modeltest.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ex.Explain(ctx, scenario())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Explain() error = %v, want context.Canceled", err)
	}
}

type flatModel struct{ calls int }

func (m *flatModel) Name() string { return "flat" }

func (m *flatModel) Predict(context.Context, models.Inputs) ([]float64, error) {
	return make([]float64, features.SequenceLength), nil
}

func (m *flatModel) Embed(in models.Inputs) (models.Embedded, error) {
	var e models.Embedded
	for s := range e.Categorical {
		e.Categorical[s] = mat.NewDense(features.SequenceLength, 2, nil)
		e.Categorical[s].Apply(func(int, int, float64) float64 { return 1 }, e.Categorical[s])
	}
	e.Numerical = mat.DenseCopyOf(in.Numerical)
	return e, nil
}

func (m *flatModel) Gradient(_ context.Context, e models.Embedded) ([]float64, models.Embedded, error) {
	m.calls++
	return make([]float64, features.SequenceLength), e.ZerosLike(), nil
}

func TestExplainer_Explain_ZeroAttribution(t *testing.T) {
	model := &flatModel{}
	ex := NewExplainer(modeltest.Encoder(t), model, 8, modeltest.Logger())

	got, err := ex.Explain(context.Background(), scenario())
	if err != nil {
		t.Fatalf("Explain() error = %v", err)
	}
	if model.calls != 9 {
		t.Errorf("gradient evaluations = %d, want 9", model.calls)
	}
	for _, g := range Groups {
		if v := got.Scores[g]; v != 0 || math.IsNaN(v) {
			t.Errorf("score %q = %v, want 0", g, v)
		}
	}
}

func TestScores(t *testing.T) {
	newAttrs := func() models.Embedded {
		var e models.Embedded
		for s := range e.Categorical {
			e.Categorical[s] = mat.NewDense(2, 2, nil)
		}
		e.Numerical = mat.NewDense(2, features.NumNumerical, nil)
		return e
	}

	tests := []struct {
		name string
		set  func(e models.Embedded)
		want map[string]float64
	}{
		{
			name: "duration column is not reported",
			set: func(e models.Embedded) {
				e.Numerical.Set(0, 2, 5)
			},
			want: map[string]float64{},
		},
		{
			name: "signs are ignored",
			set: func(e models.Embedded) {
				e.Categorical[0].Set(0, 0, -1)
				e.Categorical[0].Set(1, 1, 1)
				e.Numerical.Set(1, 3, -2)
			},
			want: map[string]float64{GroupCountry: 50, GroupYearTrend: 50},
		},
		{
			name: "numeric groups",
			set: func(e models.Embedded) {
				e.Numerical.Set(0, 0, 1)
				e.Numerical.Set(0, 1, 1)
				e.Numerical.Set(0, 4, 1)
				e.Numerical.Set(1, 5, 1)
				e.Categorical[3].Set(0, 1, 2)
				e.Categorical[2].Set(0, 1, 2)
			},
			want: map[string]float64{GroupLocation: 25, GroupSeasonality: 25, GroupGas: 25, GroupSubsector: 25},
		},
		{
			name: "rounded to two decimals",
			set: func(e models.Embedded) {
				e.Categorical[1].Set(0, 0, 1)
				e.Categorical[0].Set(0, 0, 2)
			},
			want: map[string]float64{GroupSector: 33.33, GroupCountry: 66.67},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := newAttrs()
			tt.set(attrs)

			got := Scores(attrs)
			for _, g := range Groups {
				if got[g] != tt.want[g] {
					t.Errorf("score %q = %v, want %v", g, got[g], tt.want[g])
				}
			}
		})
	}
}
