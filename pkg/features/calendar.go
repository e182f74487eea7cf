package features

import (
	"math"
	"time"
)

// DaysInMonth returns the number of days of month in year using Gregorian rules.
func DaysInMonth(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// StartMonth returns the first forecast month for a requested year and
// month. Any month past December rolls into January of the following year,
// however far past it is.
func StartMonth(year, month int) (int, int) {
	if month > 12 {
		return year + 1, 1
	}
	return year, month
}

// MonthAt returns the calendar year and month (1-12) that lies offset months
// after startMonth of startYear. startMonth must be >= 1.
func MonthAt(startYear, startMonth, offset int) (int, int) {
	current := startMonth + offset
	year := startYear + (current-1)/12
	month := (current-1)%12 + 1
	return year, month
}

// MonthCycle returns sin and cos of the month angle 2*pi*month/12.
func MonthCycle(month int) (float64, float64) {
	angle := 2 * math.Pi * float64(month) / 12
	return math.Sin(angle), math.Cos(angle)
}
