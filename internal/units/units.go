// Package units provides shared constants and conversions for flow-rate units.
package units

import "strings"

// Unit constants. Speeds are stored in metres per year.
const (
	MPY = "mpy"
	MPD = "mpd"
	MPS = "mps"
)

// SecondsPerYear is the annualisation constant: a 365-day year. Leap days are
// ignored so that results stay comparable with earlier survey seasons.
const SecondsPerYear = 365 * 24 * 60 * 60

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPY, MPD, MPS}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertRate converts a rate in metres per year to the target units.
// Unknown units return the input unchanged.
func ConvertRate(metresPerYear float64, targetUnits string) float64 {
	switch targetUnits {
	case MPD:
		return metresPerYear / 365
	case MPS:
		return metresPerYear / SecondsPerYear
	default:
		return metresPerYear
	}
}

// Label returns the axis label used in plots for the unit.
func Label(unit string) string {
	switch unit {
	case MPD:
		return "m/day"
	case MPS:
		return "m/s"
	default:
		return "m/yr"
	}
}
