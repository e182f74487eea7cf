// Package api defines the JSON payloads shared by the HTTP and gRPC
// transports and the client.
package api

import (
	"time"

	"github.com/HatiCode/ghgcast/pkg/explain"
	"github.com/HatiCode/ghgcast/pkg/features"
	"github.com/HatiCode/ghgcast/pkg/forecast"
)

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is the body of predict and explain calls. Year and month default to
// the current year and the month after the current one.
type Request struct {
	Country string   `json:"country" validate:"required"`
	Sector  string   `json:"sector" validate:"required"`
	Gas     string   `json:"gas" validate:"required"`
	Year    *int     `json:"year,omitempty" validate:"omitempty,min=1"`
	Month   *int     `json:"month,omitempty" validate:"omitempty,min=1"`
	Lat     *float64 `json:"lat,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Lon     *float64 `json:"lon,omitempty" validate:"omitempty,gte=-180,lte=180"`
}

// Resolve applies the year and month defaults relative to now.
func (r Request) Resolve(now time.Time) features.Request {
	out := features.Request{
		Country: r.Country,
		Sector:  r.Sector,
		Gas:     r.Gas,
		Year:    now.Year(),
		Month:   int(now.Month()) + 1,
		Lat:     r.Lat,
		Lon:     r.Lon,
	}
	if r.Year != nil {
		out.Year = *r.Year
	}
	if r.Month != nil {
		out.Month = *r.Month
	}
	return out
}

// ErrorResponse is the body of every failed call.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Health is the body of the health endpoint.
type Health struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// OnlineHealth is the health body of a running server.
var OnlineHealth = Health{Status: "online", Message: "GHG Prediction API is running"}

// PredictMeta echoes the identifying fields of a predict request.
type PredictMeta struct {
	Country      string `json:"country"`
	Sector       string `json:"sector"`
	Year         int    `json:"year"`
	RequestedGas string `json:"requested_gas"`
}

// SubsectorBreakdown is one subsector's share of a forecast.
type SubsectorBreakdown struct {
	Name    string    `json:"name"`
	Total   float64   `json:"total"`
	Monthly []float64 `json:"monthly"`
}

// GasComposition is the co2/ch4/n2o breakdown.
type GasComposition struct {
	Ratios         map[string]float64 `json:"ratios"`
	AbsoluteTotals map[string]float64 `json:"absolute_totals"`
	TotalCombined  float64            `json:"total_combined"`
}

// PredictData is the forecast payload.
type PredictData struct {
	TotalEmissions     float64              `json:"total_emissions"`
	MonthlyTrends      []float64            `json:"monthly_trends"`
	SubsectorBreakdown []SubsectorBreakdown `json:"subsector_breakdown"`
	GasComposition     GasComposition       `json:"gas_composition"`
}

// PredictResponse is the body of a successful predict call.
type PredictResponse struct {
	Status string      `json:"status"`
	Meta   PredictMeta `json:"meta"`
	Data   PredictData `json:"data"`
}

// ExplainMeta echoes the resolved explain request.
type ExplainMeta struct {
	Country string   `json:"country"`
	Sector  string   `json:"sector"`
	Gas     string   `json:"gas"`
	Year    int      `json:"year"`
	Month   int      `json:"month"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
}

// ExplainData is the attribution payload.
type ExplainData struct {
	TargetSubsector  string             `json:"target_subsector"`
	ImportanceScores map[string]float64 `json:"importance_scores"`
}

// ExplainResponse is the body of a successful explain call.
type ExplainResponse struct {
	Status string      `json:"status"`
	Meta   ExplainMeta `json:"meta"`
	Data   ExplainData `json:"data"`
}

// NewPredictData converts a forecast into the predict payload.
func NewPredictData(f *forecast.Forecast) PredictData {
	res := f.Result
	data := PredictData{
		TotalEmissions:     res.Total,
		MonthlyTrends:      append([]float64(nil), res.Monthly[:]...),
		SubsectorBreakdown: make([]SubsectorBreakdown, 0, len(res.Subsectors)),
		GasComposition: GasComposition{
			Ratios:         f.Composition.Ratios,
			AbsoluteTotals: f.Composition.Totals,
			TotalCombined:  f.Composition.Combined,
		},
	}
	for _, s := range res.Subsectors {
		data.SubsectorBreakdown = append(data.SubsectorBreakdown, SubsectorBreakdown{
			Name:    s.Name,
			Total:   s.Total,
			Monthly: append([]float64(nil), s.Monthly[:]...),
		})
	}
	return data
}

// NewPredictResponse wraps data with the meta of req. req is the resolved
// request as received, before label normalization.
func NewPredictResponse(req features.Request, data PredictData) *PredictResponse {
	return &PredictResponse{
		Status: StatusSuccess,
		Meta: PredictMeta{
			Country:      req.Country,
			Sector:       req.Sector,
			Year:         req.Year,
			RequestedGas: req.Gas,
		},
		Data: data,
	}
}

// NewExplainData converts an explanation into the explain payload.
func NewExplainData(e *explain.Explanation) ExplainData {
	return ExplainData{
		TargetSubsector:  e.TargetSubsector,
		ImportanceScores: e.Scores,
	}
}

// NewExplainResponse wraps data with the echo of req.
func NewExplainResponse(req features.Request, data ExplainData) *ExplainResponse {
	return &ExplainResponse{
		Status: StatusSuccess,
		Meta: ExplainMeta{
			Country: req.Country,
			Sector:  req.Sector,
			Gas:     req.Gas,
			Year:    req.Year,
			Month:   req.Month,
			Lat:     req.Lat,
			Lon:     req.Lon,
		},
		Data: data,
	}
}
