// Package forecast runs encoded request sequences through the emission model
// and aggregates the monthly predictions per subsector and across gases.
package forecast

import (
	"fmt"
	"math"

	"github.com/HatiCode/ghgcast/pkg/features"
)

// Months is the forecast horizon in months.
const Months = features.SequenceLength

// Status describes how much of a request was computed.
type Status string

const (
	// StatusComplete means every encoded subsector was predicted.
	StatusComplete Status = "complete"
	// StatusPartial means at least one subsector failed and was skipped.
	StatusPartial Status = "partial"
)

// SubsectorError is a forward-pass failure for one subsector. It is recorded
// on the Result and never aborts the remaining subsectors.
type SubsectorError struct {
	Subsector string
	Err       error
}

func (e *SubsectorError) Error() string {
	return fmt.Sprintf("subsector %s: %v", e.Subsector, e.Err)
}

func (e *SubsectorError) Unwrap() error {
	return e.Err
}

// SubsectorResult is the 12-month forecast of one subsector.
type SubsectorResult struct {
	Name    string
	Monthly [Months]float64
	Total   float64
}

// Result aggregates subsector forecasts for one request.
// Subsectors keeps the order in which subsectors were encoded.
type Result struct {
	Subsectors []SubsectorResult
	Monthly    [Months]float64
	Total      float64

	// Unknown lists subsectors of the sector that have no trained index.
	Unknown []string
	// Failed lists subsectors whose forward pass failed.
	Failed []*SubsectorError
}

// Status reports whether all encoded subsectors were computed.
func (r *Result) Status() Status {
	if len(r.Failed) > 0 {
		return StatusPartial
	}
	return StatusComplete
}

// Subsector returns the result for name.
func (r *Result) Subsector(name string) (SubsectorResult, bool) {
	for _, s := range r.Subsectors {
		if s.Name == name {
			return s, true
		}
	}
	return SubsectorResult{}, false
}

func (r *Result) add(s SubsectorResult) {
	r.Subsectors = append(r.Subsectors, s)
	for i, v := range s.Monthly {
		r.Monthly[i] += v
	}
	r.Total += s.Total
}

// FromLog1p inverts the log1p target transform, clamping at zero so that
// round-trip error never produces negative emissions.
func FromLog1p(y float64) float64 {
	return math.Max(math.Expm1(y), 0)
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
