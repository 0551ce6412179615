// Package csvio reads and writes the tracking, projected and velocity CSV
// files exchanged between the click recorder, the projector and the speed
// estimator.
package csvio

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the naive layout of tracking CSVs. It matches the
// frame file names, which carry neither an offset nor sub-second digits.
const TimestampLayout = "2006-01-02 15:04:05"

var naiveLayouts = []string{
	TimestampLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// ParseTimestamp parses an RFC 3339 timestamp or a naive one, which is read
// in loc. A nil loc means UTC.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// FormatTimestamp formats t in loc as RFC 3339 with the offset and any
// fractional seconds, so ParseTimestamp returns the same instant.
func FormatTimestamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(time.RFC3339Nano)
}

// FormatNaiveTimestamp formats t in loc with TimestampLayout.
func FormatNaiveTimestamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(TimestampLayout)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func parseFloat(s, column string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: %w", column, err)
	}
	return v, nil
}

func parseOptional(s, column string) (*float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	v, err := parseFloat(s, column)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
