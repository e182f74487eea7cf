package models_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/HatiCode/ghgcast/pkg/models"
	"github.com/HatiCode/ghgcast/pkg/models/modeltest"
)

func testInputs(seqLen int) models.Inputs {
	var in models.Inputs
	for s := range models.NumStreams {
		idx := make([]int, seqLen)
		for t := range idx {
			idx[t] = s % 3
		}
		in.Categorical[s] = idx
	}
	num := mat.NewDense(seqLen, 6, nil)
	for t := range seqLen {
		angle := 2 * math.Pi * float64(t+1) / 12
		num.SetRow(t, []float64{0.4, -0.2, 0.1 * float64(t%3), 0.5 + 0.1*float64(t/12), math.Sin(angle), math.Cos(angle)})
	}
	in.Numerical = num
	return in
}

func TestBuild_DiscoversEncoderBlocks(t *testing.T) {
	m := modeltest.Model(t)

	blocks := m.Blocks()
	want := []string{"transformer_encoder", "transformer_encoder_1"}
	if len(blocks) != len(want) {
		t.Fatalf("Blocks() = %v, want %v", blocks, want)
	}
	for i := range want {
		if blocks[i] != want[i] {
			t.Errorf("Blocks()[%d] = %q, want %q", i, blocks[i], want[i])
		}
	}
	if m.ModelDim() != 8 {
		t.Errorf("ModelDim() = %d, want 8", m.ModelDim())
	}
	if m.SequenceLength() != 12 || m.NumericalFeatures() != 6 {
		t.Errorf("dims = (%d, %d), want (12, 6)", m.SequenceLength(), m.NumericalFeatures())
	}
	if m.Name() != "transformer" {
		t.Errorf("Name() = %q, want %q", m.Name(), "transformer")
	}
}

func TestBuild_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *models.Artifact)
		want   string
	}{
		{
			name: "projection input width",
			mutate: func(a *models.Artifact) {
				for i := range a.Layers {
					if a.Layers[i].Name == "dense" {
						a.Layers[i].Dense.Kernel = a.Layers[i].Dense.Kernel[1:]
					}
				}
			},
			want: "dense/kernel",
		},
		{
			name: "missing embedding",
			mutate: func(a *models.Artifact) {
				a.Layers = a.Layers[1:]
			},
			want: "emb_country",
		},
		{
			name: "no encoder blocks",
			mutate: func(a *models.Artifact) {
				var kept []models.LayerSpec
				for _, l := range a.Layers {
					if !strings.HasPrefix(l.Name, "transformer_encoder") {
						kept = append(kept, l)
					}
				}
				a.Layers = kept
			},
			want: "transformer_encoder",
		},
		{
			name: "layer norm width",
			mutate: func(a *models.Artifact) {
				for i := range a.Layers {
					if a.Layers[i].Encoder != nil {
						a.Layers[i].Encoder.LayerNorm2.Gamma = a.Layers[i].Encoder.LayerNorm2.Gamma[:3]
					}
				}
			},
			want: "layernorm2",
		},
		{
			name: "output head width",
			mutate: func(a *models.Artifact) {
				last := &a.Layers[len(a.Layers)-1]
				for i := range last.Dense.Kernel {
					last.Dense.Kernel[i] = append(last.Dense.Kernel[i], 0)
				}
				last.Dense.Bias = append(last.Dense.Bias, 0)
			},
			want: "dense_5/kernel",
		},
		{
			name: "unknown layer type",
			mutate: func(a *models.Artifact) {
				a.Layers = append(a.Layers, models.LayerSpec{Name: "dropout", Type: "dropout"})
			},
			want: "unsupported type",
		},
		{
			name: "nonlinear attention projection",
			mutate: func(a *models.Artifact) {
				for i := range a.Layers {
					if a.Layers[i].Encoder != nil {
						a.Layers[i].Encoder.Query.Activation = "relu"
					}
				}
			},
			want: "must be linear",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := modeltest.Artifact(modeltest.DefaultConfig())
			tt.mutate(a)
			_, err := models.Build(a)
			if err == nil {
				t.Fatal("Build() expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestTransformer_Predict(t *testing.T) {
	m := modeltest.Model(t)

	out, err := m.Predict(context.Background(), testInputs(12))
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if len(out) != 12 {
		t.Fatalf("len(out) = %d, want 12", len(out))
	}
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("out[%d] = %v", i, v)
		}
	}

	again, err := m.Predict(context.Background(), testInputs(12))
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	for i := range out {
		if out[i] != again[i] {
			t.Errorf("Predict() is not deterministic at %d: %v vs %v", i, out[i], again[i])
		}
	}
}

func TestTransformer_Predict_InvalidInputs(t *testing.T) {
	m := modeltest.Model(t)

	tests := []struct {
		name   string
		mutate func(in *models.Inputs)
		want   error
	}{
		{"short stream", func(in *models.Inputs) { in.Categorical[1] = in.Categorical[1][:5] }, models.ErrShapeMismatch},
		{"index out of range", func(in *models.Inputs) { in.Categorical[2][0] = 99 }, models.ErrIndexOutOfRange},
		{"negative index", func(in *models.Inputs) { in.Categorical[0][3] = -1 }, models.ErrIndexOutOfRange},
		{"numerical width", func(in *models.Inputs) { in.Numerical = mat.NewDense(12, 5, nil) }, models.ErrShapeMismatch},
		{"numerical missing", func(in *models.Inputs) { in.Numerical = nil }, models.ErrShapeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := testInputs(12)
			tt.mutate(&in)
			if _, err := m.Predict(context.Background(), in); !errors.Is(err, tt.want) {
				t.Errorf("Predict() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTransformer_Predict_Canceled(t *testing.T) {
	m := modeltest.Model(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.Predict(ctx, testInputs(12)); !errors.Is(err, context.Canceled) {
		t.Errorf("Predict() error = %v, want context.Canceled", err)
	}
}

func TestTransformer_GradientOutputsMatchPredict(t *testing.T) {
	m := modeltest.Model(t)
	in := testInputs(12)

	want, err := m.Predict(context.Background(), in)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	e, err := m.Embed(in)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	got, _, err := m.Gradient(context.Background(), e)
	if err != nil {
		t.Fatalf("Gradient() error = %v", err)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("out[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

// TestTransformer_GradientFiniteDifference checks the analytic backward pass
// against central differences of the summed output.
func TestTransformer_GradientFiniteDifference(t *testing.T) {
	m := modeltest.Model(t)
	e, err := m.Embed(testInputs(12))
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}

	_, grads, err := m.Gradient(context.Background(), e)
	if err != nil {
		t.Fatalf("Gradient() error = %v", err)
	}

	sum := func() float64 {
		out, _, err := m.Gradient(context.Background(), e)
		if err != nil {
			t.Fatalf("Gradient() error = %v", err)
		}
		var s float64
		for _, v := range out {
			s += v
		}
		return s
	}

	const h = 1e-5
	rng := rand.New(rand.NewPCG(1, 2))
	inputs := e.Tensors()
	gradTensors := grads.Tensors()

	for k, x := range inputs {
		r, c := x.Dims()
		for range 8 {
			i, j := rng.IntN(r), rng.IntN(c)
			orig := x.At(i, j)

			x.Set(i, j, orig+h)
			plus := sum()
			x.Set(i, j, orig-h)
			minus := sum()
			x.Set(i, j, orig)

			numeric := (plus - minus) / (2 * h)
			analytic := gradTensors[k].At(i, j)
			if diff := math.Abs(numeric - analytic); diff > 1e-5+1e-3*math.Abs(numeric) {
				t.Errorf("input %d [%d,%d]: analytic %v, numeric %v", k, i, j, analytic, numeric)
			}
		}
	}
}

func TestTransformer_ConcurrentPredict(t *testing.T) {
	m := modeltest.Model(t)
	want, err := m.Predict(context.Background(), testInputs(12))
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := m.Predict(context.Background(), testInputs(12))
			if err != nil {
				t.Errorf("Predict() error = %v", err)
				return
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("concurrent Predict() differs at %d", i)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestDecodeArtifact(t *testing.T) {
	data, err := json.Marshal(modeltest.Artifact(modeltest.DefaultConfig()))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	a, err := models.DecodeArtifact(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeArtifact() error = %v", err)
	}
	if _, err := models.Build(a); err != nil {
		t.Errorf("Build() error = %v", err)
	}

	if _, err := models.DecodeArtifact(strings.NewReader(`{"format":"keras"}`)); err == nil {
		t.Error("DecodeArtifact() expected error for unknown format")
	}
	if _, err := models.DecodeArtifact(strings.NewReader(`{`)); err == nil {
		t.Error("DecodeArtifact() expected error for malformed JSON")
	}
}
