package features

import (
	"fmt"
	"strings"
)

// SequenceLength is the number of monthly timesteps the model consumes.
const SequenceLength = 12

// Timestep layout. The first four columns are categorical indices, the rest
// are numerical features in scaler order.
const (
	ColCountry = iota
	ColSector
	ColSubsector
	ColGas
	ColLat
	ColLon
	ColDuration
	ColYear
	ColMonthSin
	ColMonthCos

	TimestepWidth
)

// NumCategorical is the number of categorical index streams.
const NumCategorical = ColLat

// NumNumerical is the number of numerical features per timestep.
const NumNumerical = TimestepWidth - NumCategorical

// Unknown is returned by LabelIndex lookups for labels absent from training data.
const Unknown = -1

// Label index category names as they appear in the mapping file.
const (
	CategoryCountry   = "iso3_country"
	CategorySector    = "sector"
	CategorySubsector = "subsector"
	CategoryGas       = "gas"
)

// Request is a single forecast request as received from a caller.
// Lat and Lon are optional; when either is nil the country centroid is used.
type Request struct {
	Country string
	Sector  string
	Gas     string
	Year    int
	Month   int
	Lat     *float64
	Lon     *float64
}

// WithGas returns a copy of r targeting another gas.
func (r Request) WithGas(gas string) Request {
	r.Gas = gas
	return r
}

// Normalized returns a copy with country upper-cased and sector/gas lower-cased.
func (r Request) Normalized() Request {
	r.Country = strings.ToUpper(strings.TrimSpace(r.Country))
	r.Sector = strings.ToLower(strings.TrimSpace(r.Sector))
	r.Gas = strings.ToLower(strings.TrimSpace(r.Gas))
	return r
}

// Key returns a stable identifier for the normalized request, used for caching.
func (r Request) Key() string {
	n := r.Normalized()
	loc := "-"
	if n.Lat != nil && n.Lon != nil {
		loc = fmt.Sprintf("%g,%g", *n.Lat, *n.Lon)
	}
	return fmt.Sprintf("%s|%s|%s|%d|%d|%s", n.Country, n.Sector, n.Gas, n.Year, n.Month, loc)
}

// Timestep is one month of model input.
type Timestep [TimestepWidth]float64

// Sequence is the full 12-month input for one subsector.
type Sequence [SequenceLength]Timestep

// Categorical returns the index stream for the given categorical column.
func (s *Sequence) Categorical(col int) [SequenceLength]int {
	var out [SequenceLength]int
	for t := range s {
		out[t] = int(s[t][col])
	}
	return out
}

// Numerical returns the 12x6 numerical block.
func (s *Sequence) Numerical() [SequenceLength][NumNumerical]float64 {
	var out [SequenceLength][NumNumerical]float64
	for t := range s {
		copy(out[t][:], s[t][NumCategorical:])
	}
	return out
}

// SubsectorSequence pairs a subsector name with its encoded sequence.
type SubsectorSequence struct {
	Subsector string
	Sequence  Sequence
}

// Encoding is the result of encoding one request: one sequence per known
// subsector, in subsector map order. Skipped lists subsectors of the sector
// that are not present in the subsector index.
type Encoding struct {
	Sequences []SubsectorSequence
	Skipped   []string
}

// Empty reports whether no subsector could be encoded.
func (e Encoding) Empty() bool {
	return len(e.Sequences) == 0
}

// Subsectors returns the encoded subsector names in order.
func (e Encoding) Subsectors() []string {
	names := make([]string, len(e.Sequences))
	for i, s := range e.Sequences {
		names[i] = s.Subsector
	}
	return names
}
