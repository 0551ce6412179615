// Package trajectory projects tracked pixel samples onto the terrain.
package trajectory

import (
	"sort"
	"time"

	"github.com/golang/geo/r3"
)

// TrackedSample is one manual click: the pixel position of a feature in one frame.
type TrackedSample struct {
	Filename  string
	Timestamp time.Time
	X, Y      float64
}

// ProjectedPoint is a tracked sample placed on the terrain in world coordinates.
type ProjectedPoint struct {
	Filename  string
	Timestamp time.Time
	Position  r3.Vector
}

// Track is the ordered sample sequence of one tracked feature.
type Track struct {
	ID      string
	Samples []TrackedSample
}

// ProjectedTrack is the result of projecting one Track.
type ProjectedTrack struct {
	ID     string
	Points []ProjectedPoint
	// Dropped lists samples whose ray never met the terrain.
	Dropped []TrackedSample
}

// SortByTimestamp orders samples by timestamp in place. Equal timestamps
// keep their input order.
func SortByTimestamp(samples []TrackedSample) {
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
}

// SortPointsByTimestamp orders projected points by timestamp in place,
// keeping the input order of equal timestamps.
func SortPointsByTimestamp(points []ProjectedPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
}
