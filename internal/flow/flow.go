// Package flow turns projected trajectories into speeds along a fixed
// reference direction.
package flow

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/golang/geo/r2"

	"github.com/banshee-data/flow.report/internal/trajectory"
	"github.com/banshee-data/flow.report/internal/units"
)

// SecondsPerYear annualises speeds with a 365-day year.
const SecondsPerYear = units.SecondsPerYear

// ErrDegenerateReference is returned for a reference line whose endpoints coincide.
var ErrDegenerateReference = errors.New("reference line endpoints coincide")

// ReferenceDirection is the unit horizontal direction of a reference line.
type ReferenceDirection struct {
	Start, End r2.Point
	unit       r2.Point
}

// NewReferenceDirection builds the direction from start to end.
func NewReferenceDirection(start, end r2.Point) (ReferenceDirection, error) {
	d := end.Sub(start)
	n := d.Norm()
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return ReferenceDirection{}, fmt.Errorf("%w: %v -> %v", ErrDegenerateReference, start, end)
	}
	return ReferenceDirection{Start: start, End: end, unit: d.Mul(1 / n)}, nil
}

// Unit returns the unit direction vector.
func (r ReferenceDirection) Unit() r2.Point { return r.unit }

// Along returns the component of a horizontal displacement along the reference.
func (r ReferenceDirection) Along(d r2.Point) float64 { return d.Dot(r.unit) }

// SpeedSample pairs a projected point with the displacement and speed since
// the previous point. Nil means undefined: the first sample has neither, and
// a sample with non-positive elapsed time has no speed.
type SpeedSample struct {
	Point        trajectory.ProjectedPoint
	Displacement *float64 // metres along the reference
	Speed        *float64 // metres per year along the reference
}

// Estimate returns one SpeedSample per point. Points must already be in
// timestamp order; Estimate does not sort them.
func Estimate(points []trajectory.ProjectedPoint, ref ReferenceDirection) []SpeedSample {
	out := make([]SpeedSample, len(points))
	for i, p := range points {
		out[i].Point = p
		if i == 0 {
			continue
		}
		prev := points[i-1]
		d := r2.Point{X: p.Position.X - prev.Position.X, Y: p.Position.Y - prev.Position.Y}
		along := ref.Along(d)
		out[i].Displacement = &along

		dt := p.Timestamp.Sub(prev.Timestamp).Seconds()
		if dt <= 0 {
			continue
		}
		speed := along / dt * SecondsPerYear
		out[i].Speed = &speed
	}
	return out
}

// Summary aggregates the defined values of a speed series.
type Summary struct {
	Samples           int     `json:"samples"`
	Defined           int     `json:"defined"`
	MeanSpeed         float64 `json:"mean_speed_mpy"`
	MinSpeed          float64 `json:"min_speed_mpy"`
	MaxSpeed          float64 `json:"max_speed_mpy"`
	TotalDisplacement float64 `json:"total_displacement_m"`
}

// Summarize computes the Summary of samples. Speed fields are zero when no
// speed is defined.
func Summarize(samples []SpeedSample) Summary {
	s := Summary{Samples: len(samples), MinSpeed: math.Inf(1), MaxSpeed: math.Inf(-1)}
	var sum float64
	for _, sample := range samples {
		if sample.Displacement != nil {
			s.TotalDisplacement += *sample.Displacement
		}
		if sample.Speed == nil {
			continue
		}
		v := *sample.Speed
		s.Defined++
		sum += v
		s.MinSpeed = math.Min(s.MinSpeed, v)
		s.MaxSpeed = math.Max(s.MaxSpeed, v)
	}
	if s.Defined == 0 {
		s.MinSpeed, s.MaxSpeed = 0, 0
		return s
	}
	s.MeanSpeed = sum / float64(s.Defined)
	return s
}

// Series is the speed series of one track.
type Series struct {
	ID      string
	Samples []SpeedSample
}

// AveragePoint is the mean of the defined speeds of every series at one timestamp.
type AveragePoint struct {
	Timestamp time.Time
	Speed     float64
	Tracks    int
}

// AverageSeries joins all series on timestamp and averages the defined
// speeds at each timestamp. Timestamps where no series has a defined speed
// are omitted. The result is sorted by timestamp.
func AverageSeries(series []Series) []AveragePoint {
	type acc struct {
		ts  time.Time
		sum float64
		n   int
	}
	byTime := map[int64]*acc{}
	for _, s := range series {
		for _, sample := range s.Samples {
			if sample.Speed == nil {
				continue
			}
			key := sample.Point.Timestamp.UnixNano()
			a, ok := byTime[key]
			if !ok {
				a = &acc{ts: sample.Point.Timestamp}
				byTime[key] = a
			}
			a.sum += *sample.Speed
			a.n++
		}
	}

	out := make([]AveragePoint, 0, len(byTime))
	for _, a := range byTime {
		out = append(out, AveragePoint{Timestamp: a.ts, Speed: a.sum / float64(a.n), Tracks: a.n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// CountDefined returns how many samples have a defined speed.
func CountDefined(samples []SpeedSample) int {
	n := 0
	for _, s := range samples {
		if s.Speed != nil {
			n++
		}
	}
	return n
}
