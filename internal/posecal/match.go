// Package posecal recovers the rotation between two photographs of the same
// scene: feature matching, robust homography estimation, homography
// decomposition with known intrinsics, and conversion to Euler angles.
package posecal

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Feature is a keypoint location in pixels with its descriptor.
type Feature struct {
	X, Y       float64
	Descriptor []float64
}

// Match pairs a reference feature with its nearest shifted feature.
type Match struct {
	Ref      int
	Shifted  int
	Distance float64
}

// ErrInsufficientMatches is the sentinel wrapped by InsufficientMatchesError.
var ErrInsufficientMatches = errors.New("insufficient feature matches")

// InsufficientMatchesError reports how many matches survived the ratio test
// and how many were required.
type InsufficientMatchesError struct {
	Found    int
	Required int
}

func (e *InsufficientMatchesError) Error() string {
	return fmt.Sprintf("only %d matches were found, but %d are required; consider raising the match ratio", e.Found, e.Required)
}

// Unwrap lets errors.Is match ErrInsufficientMatches.
func (e *InsufficientMatchesError) Unwrap() error { return ErrInsufficientMatches }

// MatchFeatures finds, for each reference descriptor, its nearest and second
// nearest shifted descriptors by Euclidean distance and keeps the pair when
// nearest < ratio*second. A reference feature with fewer than two candidates
// is never matched. All descriptors must have the same length.
func MatchFeatures(ref, shifted []Feature, ratio float64) ([]Match, error) {
	if len(ref) == 0 || len(shifted) < 2 {
		return nil, nil
	}
	dim := len(ref[0].Descriptor)
	for _, set := range [][]Feature{ref, shifted} {
		for i, f := range set {
			if len(f.Descriptor) != dim {
				return nil, fmt.Errorf("descriptor %d has length %d, want %d", i, len(f.Descriptor), dim)
			}
		}
	}

	var matches []Match
	for i, r := range ref {
		best, second := math.Inf(1), math.Inf(1)
		bestIdx := -1
		for j, s := range shifted {
			d := floats.Distance(r.Descriptor, s.Descriptor, 2)
			switch {
			case d < best:
				second = best
				best, bestIdx = d, j
			case d < second:
				second = d
			}
		}
		if best < ratio*second {
			matches = append(matches, Match{Ref: i, Shifted: bestIdx, Distance: best})
		}
	}
	return matches, nil
}
