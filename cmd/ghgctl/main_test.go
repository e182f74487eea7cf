package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/HatiCode/ghgcast/pkg/api"
	"github.com/HatiCode/ghgcast/pkg/features"
	"github.com/HatiCode/ghgcast/pkg/grpcapi"
	"github.com/HatiCode/ghgcast/pkg/models/modeltest"
)

func predictResponse() *api.PredictResponse {
	monthly := make([]float64, 12)
	for i := range monthly {
		monthly[i] = float64(i + 1)
	}
	return &api.PredictResponse{
		Status: api.StatusSuccess,
		Meta:   api.PredictMeta{Country: "PAK", Sector: "transportation", Year: 2030, RequestedGas: "n2o"},
		Data: api.PredictData{
			TotalEmissions: 78,
			MonthlyTrends:  monthly,
			SubsectorBreakdown: []api.SubsectorBreakdown{
				{Name: "road-transportation", Total: 50, Monthly: monthly},
				{Name: "domestic-aviation", Total: 28, Monthly: monthly},
			},
			GasComposition: api.GasComposition{
				Ratios:         map[string]float64{"co2": 90, "ch4": 5, "n2o": 5},
				AbsoluteTotals: map[string]float64{"co2": 1404, "ch4": 78, "n2o": 78},
				TotalCombined:  1560,
			},
		},
	}
}

type fakeBackend struct{}

func (fakeBackend) Predict(context.Context, api.Request) (*api.PredictResponse, error) {
	return predictResponse(), nil
}

func (fakeBackend) Explain(context.Context, api.Request) (*api.ExplainResponse, error) {
	return &api.ExplainResponse{
		Status: api.StatusSuccess,
		Data: api.ExplainData{
			TargetSubsector:  "road-transportation",
			ImportanceScores: map[string]float64{"Country": 10, "Sector": 10, "Gas": 80},
		},
	}, nil
}

func newHTTPServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/predict":
			var req api.Request
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Country != "PAK" || req.Month == nil || *req.Month != 11 || req.Lat != nil {
				t.Errorf("request = %+v", req)
			}
			_ = json.NewEncoder(w).Encode(predictResponse())
		case "/explain":
			resp, _ := fakeBackend{}.Explain(r.Context(), api.Request{})
			_ = json.NewEncoder(w).Encode(resp)
		case "/health":
			_ = json.NewEncoder(w).Encode(api.OnlineHealth)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).Run(append([]string{"ghgctl"}, args...))
	return out.String(), err
}

func TestPredict_Table(t *testing.T) {
	srv := newHTTPServer(t)

	out, err := run(t, "--server", srv.URL, "predict", "--country", "PAK", "--sector", "transportation", "--gas", "n2o", "--year", "2030", "--month", "11")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	for _, want := range []string{
		"FORECAST SUMMARY: TRANSPORTATION SECTOR",
		"Forecast start: November 2030",
		"1,404.00",
		"January 2031",
		"October 2031",
		"ROAD-TRANSPORTATION",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPredict_JSON(t *testing.T) {
	srv := newHTTPServer(t)

	out, err := run(t, "--server", srv.URL, "predict", "-c", "PAK", "--sector", "transportation", "-m", "11", "-f", "json")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	var got api.PredictResponse
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got.Data.TotalEmissions != 78 {
		t.Errorf("TotalEmissions = %v, want 78", got.Data.TotalEmissions)
	}
}

func TestExplain_Table(t *testing.T) {
	srv := newHTTPServer(t)

	out, err := run(t, "--server", srv.URL, "explain", "--country", "PAK", "--sector", "transportation")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 6 {
		t.Fatalf("lines = %d, want 6:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[3], "Gas") || !strings.HasPrefix(lines[4], "Country") || !strings.HasPrefix(lines[5], "Sector") {
		t.Errorf("scores not ordered by importance:\n%s", out)
	}
}

func TestHealth_HTTP(t *testing.T) {
	srv := newHTTPServer(t)

	out, err := run(t, "--server", srv.URL, "health")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out != "online: GHG Prediction API is running\n" {
		t.Errorf("output = %q", out)
	}
}

func TestGRPCTransport(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv, _ := grpcapi.NewServer(fakeBackend{}, nil, modeltest.Logger())
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	out, err := run(t, "--transport", "grpc", "--server", lis.Addr().String(), "health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if !strings.HasPrefix(out, "online") {
		t.Errorf("health output = %q", out)
	}

	out, err = run(t, "--transport", "grpc", "--server", lis.Addr().String(), "predict", "-c", "PAK", "--sector", "transportation", "-f", "json")
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	var got api.PredictResponse
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(got.Data.SubsectorBreakdown) != 2 {
		t.Errorf("subsectors = %+v", got.Data.SubsectorBreakdown)
	}
}

func TestUnknownTransport(t *testing.T) {
	if _, err := run(t, "--transport", "carrier-pigeon", "health"); err == nil {
		t.Error("expected error for unknown transport")
	}
}

func TestWritePredictSummary_NoEmissions(t *testing.T) {
	resp := &api.PredictResponse{
		Meta: api.PredictMeta{Country: "PAK", Sector: "waste", RequestedGas: "co2"},
		Data: api.PredictData{MonthlyTrends: make([]float64, 12)},
	}

	tests := []struct {
		name      string
		month     int
		wantStart string
	}{
		{"december", 12, "Forecast start: December 2030"},
		{"month 13", 13, "Forecast start: January 2031"},
		{"month 25", 25, "Forecast start: January 2031"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			writePredictSummary(&buf, features.Request{Year: 2030, Month: tt.month}, resp)
			out := buf.String()

			if !strings.Contains(out, tt.wantStart) {
				t.Errorf("missing %q:\n%s", tt.wantStart, out)
			}
			if !strings.Contains(out, "No emissions detected") || !strings.Contains(out, "No data found for the requested gas: co2") {
				t.Errorf("output = %s", out)
			}
		})
	}
}

func TestCommas(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.00"},
		{12.346, "12.35"},
		{999.999, "1,000.00"},
		{1234567.891, "1,234,567.89"},
		{-4321.5, "-4,321.50"},
		{-0.001, "0.00"},
	}

	for _, tt := range tests {
		if got := commas(tt.in); got != tt.want {
			t.Errorf("commas(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
