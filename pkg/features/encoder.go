// Package features turns raw forecast requests into the fixed-shape sequences
// the emission model was trained on.
package features

import (
	"fmt"
	"log/slog"
)

// Encoder builds model input sequences from requests. It holds only read-only
// lookup tables and is safe for concurrent use.
type Encoder struct {
	index      *LabelIndex
	scaler     Scaler
	subsectors SubsectorMap
	centroids  Centroids
	logger     *slog.Logger
}

// NewEncoder creates an encoder. It fails if the scaler would divide by zero.
func NewEncoder(index *LabelIndex, scaler Scaler, subsectors SubsectorMap, centroids Centroids, logger *slog.Logger) (*Encoder, error) {
	if err := scaler.Validate(); err != nil {
		return nil, err
	}
	if index == nil {
		index = EmptyLabelIndex()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Encoder{
		index:      index,
		scaler:     scaler,
		subsectors: subsectors,
		centroids:  centroids,
		logger:     logger,
	}, nil
}

// Encode converts a request into one 12-month sequence per subsector of the
// requested sector.
//
// Steps:
//   - country is upper-cased, sector and gas lower-cased
//   - missing lat/lon fall back to the country centroid
//   - country, sector and gas must be known labels, otherwise a *ValidationError is returned
//   - a start month past December rolls into January of the next year
//   - each timestep carries [country, sector, subsector, gas] indices, the scaled
//     [lat, lon, duration, year] and the unscaled month sin/cos
//
// Subsectors that are not in the subsector index are skipped and listed in
// Encoding.Skipped.
func (e *Encoder) Encode(req Request) (Encoding, error) {
	n := req.Normalized()

	if n.Month < 1 {
		return Encoding{}, &ValidationError{Field: "month", Value: fmt.Sprint(n.Month), Msg: fmt.Sprintf("month must be >= 1, got %d", n.Month)}
	}

	startYear, startMonth := StartMonth(n.Year, n.Month)

	var loc Location
	if n.Lat != nil && n.Lon != nil {
		loc = Location{Lat: *n.Lat, Lon: *n.Lon}
	} else {
		loc = e.centroids.For(n.Country)
	}

	countryIdx := e.index.Lookup(CategoryCountry, n.Country)
	if countryIdx == Unknown {
		return Encoding{}, &ValidationError{Field: "country", Value: n.Country}
	}
	sectorIdx := e.index.Lookup(CategorySector, n.Sector)
	if sectorIdx == Unknown {
		return Encoding{}, &ValidationError{Field: "sector", Value: n.Sector}
	}
	gasIdx := e.index.Lookup(CategoryGas, n.Gas)
	if gasIdx == Unknown {
		return Encoding{}, &ValidationError{Field: "gas", Value: n.Gas}
	}

	var out Encoding
	for _, subsector := range e.subsectors.For(req.Sector) {
		subIdx := e.index.Lookup(CategorySubsector, subsector)
		if subIdx == Unknown {
			e.logger.Debug("skipping unknown subsector", "sector", n.Sector, "subsector", subsector)
			out.Skipped = append(out.Skipped, subsector)
			continue
		}

		var seq Sequence
		for offset := range SequenceLength {
			year, month := MonthAt(startYear, startMonth, offset)
			scaled := e.scaler.Scale([ScaledFeatures]float64{
				loc.Lat,
				loc.Lon,
				float64(DaysInMonth(year, month)),
				float64(year),
			})
			sin, cos := MonthCycle(month)

			seq[offset] = Timestep{
				float64(countryIdx),
				float64(sectorIdx),
				float64(subIdx),
				float64(gasIdx),
				scaled[0],
				scaled[1],
				scaled[2],
				scaled[3],
				sin,
				cos,
			}
		}

		out.Sequences = append(out.Sequences, SubsectorSequence{Subsector: subsector, Sequence: seq})
	}

	return out, nil
}
