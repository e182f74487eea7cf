package features

import (
	"fmt"
	"strings"
)

// LabelIndex holds the label encoders used at training time, one mapping per
// categorical feature.
type LabelIndex struct {
	Country   map[string]int `json:"iso3_country"`
	Sector    map[string]int `json:"sector"`
	Subsector map[string]int `json:"subsector"`
	Gas       map[string]int `json:"gas"`
}

// EmptyLabelIndex returns an index with four empty mappings.
func EmptyLabelIndex() *LabelIndex {
	return &LabelIndex{
		Country:   map[string]int{},
		Sector:    map[string]int{},
		Subsector: map[string]int{},
		Gas:       map[string]int{},
	}
}

// Lookup returns the index of label within category, or Unknown.
func (li *LabelIndex) Lookup(category, label string) int {
	var m map[string]int
	switch category {
	case CategoryCountry:
		m = li.Country
	case CategorySector:
		m = li.Sector
	case CategorySubsector:
		m = li.Subsector
	case CategoryGas:
		m = li.Gas
	}
	if idx, ok := m[label]; ok {
		return idx
	}
	return Unknown
}

// Size returns the number of labels per category.
func (li *LabelIndex) Size() map[string]int {
	return map[string]int{
		CategoryCountry:   len(li.Country),
		CategorySector:    len(li.Sector),
		CategorySubsector: len(li.Subsector),
		CategoryGas:       len(li.Gas),
	}
}

// Scaler holds z-score parameters aligned to
// [lat, lon, duration_days, start_year, month_sin, month_cos].
//
// Only the first ScaledFeatures entries are applied. The model was trained on
// raw sin/cos values, so the last two entries are carried but never used.
type Scaler struct {
	Means [NumNumerical]float64 `json:"means"`
	Stds  [NumNumerical]float64 `json:"stds"`
}

// ScaledFeatures is the number of leading numerical features that are standardized.
const ScaledFeatures = 4

// DefaultScaler returns the parameters derived from the training data, used
// when no scaler file is available. Model output depends on these exact values.
func DefaultScaler() Scaler {
	return Scaler{
		Means: [NumNumerical]float64{28.7782, 70.1860, 29.4286, 2022.8607, 0.0424, -0.0425},
		Stds:  [NumNumerical]float64{3.3953, 2.8178, 0.8421, 1.3561, 0.7058, 0.7058},
	}
}

// Validate fails if any applied feature has a zero standard deviation.
func (s Scaler) Validate() error {
	for i := range ScaledFeatures {
		if s.Stds[i] == 0 {
			return fmt.Errorf("feature %d: %w", i, ErrZeroStd)
		}
	}
	return nil
}

// Scale standardizes [lat, lon, duration, year].
func (s Scaler) Scale(raw [ScaledFeatures]float64) [ScaledFeatures]float64 {
	var out [ScaledFeatures]float64
	for i, x := range raw {
		out[i] = (x - s.Means[i]) / s.Stds[i]
	}
	return out
}

// SubsectorMap maps a sector to its ordered subsectors.
type SubsectorMap map[string][]string

// For returns the subsectors of sector, trying an exact match first and the
// lower-cased sector second.
func (m SubsectorMap) For(sector string) []string {
	if subs, ok := m[sector]; ok {
		return subs
	}
	return m[strings.ToLower(sector)]
}

// Location is a latitude/longitude pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Centroids maps ISO3 country codes to a default location.
type Centroids map[string]Location

// For returns the centroid of country. Unknown countries resolve to (0, 0);
// this permissive default matches what the model saw during training.
func (c Centroids) For(country string) Location {
	if loc, ok := c[country]; ok {
		return loc
	}
	return Location{}
}
