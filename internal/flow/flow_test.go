package flow

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/flow.report/internal/camera"
	"github.com/banshee-data/flow.report/internal/monitoring"
	"github.com/banshee-data/flow.report/internal/terrain"
	"github.com/banshee-data/flow.report/internal/trajectory"
)

var t0 = time.Date(2019, 7, 1, 12, 0, 0, 0, time.UTC)

func point(ts time.Time, x, y float64) trajectory.ProjectedPoint {
	return trajectory.ProjectedPoint{Timestamp: ts, Position: r3.Vector{X: x, Y: y, Z: 1000}}
}

func eastRef(t *testing.T) ReferenceDirection {
	t.Helper()
	ref, err := NewReferenceDirection(r2.Point{X: 0, Y: 0}, r2.Point{X: 10, Y: 0})
	require.NoError(t, err)
	return ref
}

func TestNewReferenceDirection(t *testing.T) {
	ref, err := NewReferenceDirection(r2.Point{X: 887712.188, Y: 6540636.079}, r2.Point{X: 886806.161, Y: 6540336.018})
	require.NoError(t, err)
	u := ref.Unit()
	assert.InDelta(t, 1.0, u.Norm(), 1e-12)
	assert.Less(t, u.X, 0.0)
	assert.Less(t, u.Y, 0.0)

	_, err = NewReferenceDirection(r2.Point{X: 5, Y: 5}, r2.Point{X: 5, Y: 5})
	assert.True(t, errors.Is(err, ErrDegenerateReference))

	_, err = NewReferenceDirection(r2.Point{X: math.NaN()}, r2.Point{X: 1})
	assert.Error(t, err)
}

func TestEstimate_OneMetrePerSecond(t *testing.T) {
	got := Estimate([]trajectory.ProjectedPoint{
		point(t0, 0, 0),
		point(t0.Add(time.Second), 1, 0),
	}, eastRef(t))

	require.Len(t, got, 2)
	require.NotNil(t, got[1].Speed)
	assert.Equal(t, 31_536_000.0, *got[1].Speed)
	assert.Equal(t, 1.0, *got[1].Displacement)
}

func TestEstimate_FirstSampleUndefined(t *testing.T) {
	got := Estimate([]trajectory.ProjectedPoint{point(t0, 3, 4)}, eastRef(t))
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Displacement)
	assert.Nil(t, got[0].Speed)
	assert.Empty(t, Estimate(nil, eastRef(t)))
}

func TestEstimate_NonPositiveElapsed(t *testing.T) {
	got := Estimate([]trajectory.ProjectedPoint{
		point(t0, 0, 0),
		point(t0, 2, 0),                     // dt == 0
		point(t0.Add(-time.Hour), 3, 0),     // dt < 0
		point(t0.Add(24*time.Hour), 3.5, 0), // defined again
	}, eastRef(t))

	require.Len(t, got, 4)
	require.NotNil(t, got[1].Displacement)
	assert.Equal(t, 2.0, *got[1].Displacement)
	assert.Nil(t, got[1].Speed)
	assert.Nil(t, got[2].Speed)
	require.NotNil(t, got[3].Speed)
	// 0.5 m over 25 h.
	assert.InDelta(t, 0.5/(25*3600)*SecondsPerYear, *got[3].Speed, 1e-9)
}

func TestEstimate_ProjectionOntoReference(t *testing.T) {
	tests := []struct {
		name     string
		dx, dy   float64
		wantDisp float64
	}{
		{"along", 1, 0, 1},
		{"against", -2, 0, -2},
		{"perpendicular", 0, 5, 0},
		{"diagonal", 3, 4, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Estimate([]trajectory.ProjectedPoint{
				point(t0, 100, 100),
				point(t0.Add(time.Hour), 100+tt.dx, 100+tt.dy),
			}, eastRef(t))
			assert.InDelta(t, tt.wantDisp, *got[1].Displacement, 1e-12)
		})
	}
}

func TestEstimate_IgnoresElevation(t *testing.T) {
	a := point(t0, 0, 0)
	b := point(t0.Add(time.Hour), 1, 0)
	b.Position.Z = 1500
	got := Estimate([]trajectory.ProjectedPoint{a, b}, eastRef(t))
	assert.Equal(t, 1.0, *got[1].Displacement)
}

func TestSummarize(t *testing.T) {
	s := Summarize(Estimate([]trajectory.ProjectedPoint{
		point(t0, 0, 0),
		point(t0.Add(24*time.Hour), 1, 0),
		point(t0.Add(48*time.Hour), 3, 0),
		point(t0.Add(48*time.Hour), 4, 0),
	}, eastRef(t)))

	assert.Equal(t, 4, s.Samples)
	assert.Equal(t, 2, s.Defined)
	assert.InDelta(t, 365.0, s.MinSpeed, 1e-9)
	assert.InDelta(t, 730.0, s.MaxSpeed, 1e-9)
	assert.InDelta(t, 547.5, s.MeanSpeed, 1e-9)
	assert.InDelta(t, 4.0, s.TotalDisplacement, 1e-12)

	empty := Summarize(nil)
	assert.Equal(t, 0.0, empty.MinSpeed)
	assert.Equal(t, 0.0, empty.MaxSpeed)
}

func TestAverageSeries(t *testing.T) {
	ref := eastRef(t)
	a := Estimate([]trajectory.ProjectedPoint{
		point(t0, 0, 0),
		point(t0.Add(24*time.Hour), 1, 0),
		point(t0.Add(48*time.Hour), 2, 0),
	}, ref)
	b := Estimate([]trajectory.ProjectedPoint{
		point(t0, 0, 0),
		point(t0.Add(24*time.Hour), 3, 0),
		point(t0.Add(72*time.Hour), 4, 0),
	}, ref)

	got := AverageSeries([]Series{{ID: "a", Samples: a}, {ID: "b", Samples: b}})
	require.Len(t, got, 3)

	assert.True(t, got[0].Timestamp.Equal(t0.Add(24*time.Hour)))
	assert.InDelta(t, (365.0+3*365.0)/2, got[0].Speed, 1e-9)
	assert.Equal(t, 2, got[0].Tracks)

	assert.True(t, got[1].Timestamp.Equal(t0.Add(48*time.Hour)))
	assert.Equal(t, 1, got[1].Tracks)

	assert.True(t, got[2].Timestamp.Equal(t0.Add(72*time.Hour)))
	assert.InDelta(t, 365.0/2, got[2].Speed, 1e-9)

	assert.Equal(t, 4, CountDefined(append(a, b...)))
}

// TestConstantVelocityEndToEnd places a feature moving at a constant rate on
// flat terrain, renders it to pixels with the inverse camera model, and
// checks that projection plus estimation recovers the rate.
func TestConstantVelocityEndToEnd(t *testing.T) {
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	defer func() { monitoring.Logf = original }()

	const (
		ground  = 1000.0
		perDay  = 0.5 // metres per day along the reference
		days    = 40
		spacing = 5 // days between frames
	)
	cam, err := camera.NewCamera(camera.Intrinsics{
		FocalLengthMM: 34, SensorWidthMM: 22.3, SensorHeightMM: 14.9, ImageWidth: 1920, ImageHeight: 1440,
	}, camera.Pose{Position: r3.Vector{X: 0, Y: 0, Z: ground + 60}, Yaw: 90, Pitch: 6})
	require.NoError(t, err)

	grid, err := terrain.NewFlatGrid(terrain.Bounds{Left: -100, Bottom: -300, Right: 2000, Top: 300}, 5, ground)
	require.NoError(t, err)
	cfg := terrain.DefaultIntersectorConfig()
	cfg.RefineIterations = 30
	it, err := terrain.NewIntersector(grid, cfg)
	require.NoError(t, err)
	proj, err := trajectory.NewProjector(cam, it)
	require.NoError(t, err)

	// Reference runs south-west to north-east; the feature moves along it.
	ref, err := NewReferenceDirection(r2.Point{X: 500, Y: -50}, r2.Point{X: 560, Y: 30})
	require.NoError(t, err)
	u := ref.Unit()

	track := trajectory.Track{ID: "synthetic"}
	for d := 0; d <= days; d += spacing {
		dist := perDay * float64(d)
		world := r3.Vector{X: 500 + u.X*dist, Y: u.Y * dist, Z: ground}
		px, py, ok := cam.WorldToPixel(world)
		require.True(t, ok)
		track.Samples = append(track.Samples, trajectory.TrackedSample{
			Timestamp: t0.Add(time.Duration(d) * 24 * time.Hour), X: px, Y: py,
		})
	}

	projected := proj.Project(track)
	require.Len(t, projected.Points, len(track.Samples))

	speeds := Estimate(projected.Points, ref)
	want := perDay * 365
	for _, s := range speeds[1:] {
		require.NotNil(t, s.Speed)
		assert.InDelta(t, want, *s.Speed, want*0.01)
	}
	assert.InDelta(t, want, Summarize(speeds).MeanSpeed, want*0.01)
}
