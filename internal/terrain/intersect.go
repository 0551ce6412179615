package terrain

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/golang/geo/r3"
)

// OutOfBoundsPolicy controls what the ray march does with a step whose
// horizontal position falls outside the surface bounds.
type OutOfBoundsPolicy int

const (
	// OutOfBoundsContinue skips the step and keeps marching. A ray may
	// leave the surface and hit it again further out.
	OutOfBoundsContinue OutOfBoundsPolicy = iota
	// OutOfBoundsStop ends the march once a ray that has been over the
	// surface leaves it. Steps taken before the ray first enters are skipped.
	OutOfBoundsStop
)

func (p OutOfBoundsPolicy) String() string {
	switch p {
	case OutOfBoundsStop:
		return "stop"
	default:
		return "continue"
	}
}

// ParseOutOfBoundsPolicy accepts "continue" or "stop"; empty means continue.
func ParseOutOfBoundsPolicy(s string) (OutOfBoundsPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "continue":
		return OutOfBoundsContinue, nil
	case "stop":
		return OutOfBoundsStop, nil
	}
	return OutOfBoundsContinue, fmt.Errorf("unknown out-of-bounds policy %q (want continue or stop)", s)
}

// IntersectorConfig holds the ray-march settings.
type IntersectorConfig struct {
	// MaxDistance is the exclusive upper bound of the march, in metres.
	MaxDistance float64
	// Step is the march increment in metres.
	Step float64
	// RefineIterations enables bisection between the last above-ground step
	// and the first at-or-below-ground step. Zero keeps the raw step result.
	RefineIterations int
	// OutOfBounds selects the out-of-bounds policy.
	OutOfBounds OutOfBoundsPolicy
}

// DefaultIntersectorConfig returns a 5 km march in 0.5 m steps without refinement.
func DefaultIntersectorConfig() IntersectorConfig {
	return IntersectorConfig{
		MaxDistance: 5000,
		Step:        0.5,
	}
}

// Intersector finds the first crossing of a ray with a Surface.
type Intersector struct {
	surface Surface
	cfg     IntersectorConfig
}

// NewIntersector validates cfg and binds it to surface.
func NewIntersector(surface Surface, cfg IntersectorConfig) (*Intersector, error) {
	if surface == nil {
		return nil, errors.New("intersector: nil surface")
	}
	if !(cfg.Step > 0) || math.IsInf(cfg.Step, 0) {
		return nil, fmt.Errorf("intersector: step must be positive, got %v", cfg.Step)
	}
	if !(cfg.MaxDistance > 0) || math.IsInf(cfg.MaxDistance, 0) {
		return nil, fmt.Errorf("intersector: max distance must be positive, got %v", cfg.MaxDistance)
	}
	if cfg.RefineIterations < 0 {
		return nil, fmt.Errorf("intersector: refine iterations must not be negative, got %d", cfg.RefineIterations)
	}
	return &Intersector{surface: surface, cfg: cfg}, nil
}

// Config returns the intersector settings.
func (it *Intersector) Config() IntersectorConfig { return it.cfg }

// Intersect marches from origin along direction in steps of t = i*Step for
// t < MaxDistance and returns the first sample at or below the ground. The
// returned point carries the terrain elevation as Z, not the ray altitude.
// ok is false when no crossing is found within MaxDistance or when direction
// is zero or not finite.
func (it *Intersector) Intersect(origin, direction r3.Vector) (hit r3.Vector, ok bool) {
	if !finite(direction) || direction.Norm() == 0 {
		return r3.Vector{}, false
	}
	dir := direction.Normalize()

	var (
		entered bool
		prevT   float64
		hasPrev bool
	)
	for i := 0; ; i++ {
		t := float64(i) * it.cfg.Step
		if t >= it.cfg.MaxDistance {
			return r3.Vector{}, false
		}
		p := origin.Add(dir.Mul(t))

		if !it.surface.Contains(p.X, p.Y) {
			if entered && it.cfg.OutOfBounds == OutOfBoundsStop {
				return r3.Vector{}, false
			}
			hasPrev = false
			continue
		}
		entered = true

		ground, valid := it.surface.Elevation(p.X, p.Y)
		if !valid {
			hasPrev = false
			continue
		}
		if p.Z <= ground {
			hit = r3.Vector{X: p.X, Y: p.Y, Z: ground}
			if it.cfg.RefineIterations > 0 && hasPrev {
				hit = it.refine(origin, dir, prevT, t, hit)
			}
			return hit, true
		}
		prevT, hasPrev = t, true
	}
}

// refine bisects [above, below] along the ray, where the sample at above is
// over the ground and the sample at below is at or under it. Midpoints
// without valid elevation end the search early with the best bracket found.
func (it *Intersector) refine(origin, dir r3.Vector, above, below float64, coarse r3.Vector) r3.Vector {
	best := coarse
	for n := 0; n < it.cfg.RefineIterations; n++ {
		mid := (above + below) / 2
		p := origin.Add(dir.Mul(mid))
		ground, valid := it.surface.Elevation(p.X, p.Y)
		if !valid {
			break
		}
		if p.Z <= ground {
			below = mid
			best = r3.Vector{X: p.X, Y: p.Y, Z: ground}
		} else {
			above = mid
		}
	}
	return best
}

func finite(v r3.Vector) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
