package csvio

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/flow.report/internal/flow"
	"github.com/banshee-data/flow.report/internal/fsutil"
	"github.com/banshee-data/flow.report/internal/trajectory"
)

func paris(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	return loc
}

func TestParseTimestamp(t *testing.T) {
	loc := paris(t)
	want := time.Date(2019, 7, 1, 12, 30, 0, 0, loc)

	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"space layout", "2019-07-01 12:30:00", want},
		{"T layout", "2019-07-01T12:30:00", want},
		{"rfc3339 ignores site zone", "2019-07-01T10:30:00Z", want},
		{"fractional seconds", "2019-07-01 12:30:00.5", want.Add(500 * time.Millisecond)},
		{"padded", "  2019-07-01 12:30:00 ", want},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in, loc)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}

	_, err := ParseTimestamp("01/07/2019", loc)
	assert.Error(t, err)

	got, err := ParseTimestamp("2019-07-01 12:30:00", nil)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, got.Location())
}

func TestReadTracking(t *testing.T) {
	in := "filename,timestamp,x,y\n" +
		"20190701120000.jpg,2019-07-01 12:00:00,960,720\n" +
		"20190702120000.jpg,2019-07-02 12:00:00,961.5,722\n"

	samples, err := ReadTracking(strings.NewReader(in), time.UTC)
	require.NoError(t, err)
	want := []trajectory.TrackedSample{
		{Filename: "20190701120000.jpg", Timestamp: time.Date(2019, 7, 1, 12, 0, 0, 0, time.UTC), X: 960, Y: 720},
		{Filename: "20190702120000.jpg", Timestamp: time.Date(2019, 7, 2, 12, 0, 0, 0, time.UTC), X: 961.5, Y: 722},
	}
	if diff := cmp.Diff(want, samples); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}
}

func TestReadTracking_ColumnOrderAndExtras(t *testing.T) {
	in := "y,x,note,timestamp,filename\n720,960,first,2019-07-01 12:00:00,a.jpg\n"
	samples, err := ReadTracking(strings.NewReader(in), time.UTC)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, 960.0, samples[0].X)
	assert.Equal(t, 720.0, samples[0].Y)
	assert.Equal(t, "a.jpg", samples[0].Filename)
}

func TestReadTracking_Errors(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr string
	}{
		{"empty", "", "missing header"},
		{"missing column", "filename,timestamp,x\n", `missing column "y"`},
		{"bad x", "filename,timestamp,x,y\na.jpg,2019-07-01 12:00:00,abc,1\n", "line 2"},
		{"bad timestamp", "filename,timestamp,x,y\na.jpg,yesterday,1,1\n", "unrecognised timestamp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadTracking(strings.NewReader(tt.in), time.UTC)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTrackingWriter(t *testing.T) {
	var buf bytes.Buffer
	ts := time.Date(2019, 7, 1, 12, 0, 0, 0, time.UTC)

	w, err := NewTrackingWriter(&buf, time.UTC, true)
	require.NoError(t, err)
	require.NoError(t, w.Write(trajectory.TrackedSample{Filename: "a.jpg", Timestamp: ts, X: 10.9, Y: 20.2}))

	w2, err := NewTrackingWriter(&buf, time.UTC, false)
	require.NoError(t, err)
	require.NoError(t, w2.Write(trajectory.TrackedSample{Filename: "b.jpg", Timestamp: ts.Add(time.Hour), X: 11, Y: 21}))

	want := "filename,timestamp,x,y\n" +
		"a.jpg,2019-07-01 12:00:00,10,20\n" +
		"b.jpg,2019-07-01 13:00:00,11,21\n"
	assert.Equal(t, want, buf.String())
}

func TestLoadTrackDir(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	mfs.AddFile("tracks/boulder_b.csv", []byte("filename,timestamp,x,y\nb.jpg,2019-07-01 12:00:00,1,2\n"))
	mfs.AddFile("tracks/boulder_a.csv", []byte("filename,timestamp,x,y\na.jpg,2019-07-01 12:00:00,3,4\na2.jpg,2019-07-02 12:00:00,5,6\n"))
	mfs.AddFile("tracks/notes.txt", []byte("ignored"))

	tracks, err := LoadTrackDir(mfs, "tracks", time.UTC)
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "boulder_a", tracks[0].ID)
	assert.Len(t, tracks[0].Samples, 2)
	assert.Equal(t, "boulder_b", tracks[1].ID)

	_, err = LoadTrackDir(mfs, "missing", time.UTC)
	assert.Error(t, err)

	mfs.AddFile("broken/x.csv", []byte("filename,timestamp\n"))
	_, err = LoadTrackDir(mfs, "broken", time.UTC)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken/x.csv")
}

func TestProjectedRoundTrip(t *testing.T) {
	loc := paris(t)
	points := []trajectory.ProjectedPoint{
		{Filename: "a.jpg", Timestamp: time.Date(2019, 7, 1, 12, 0, 0, 0, loc), Position: r3.Vector{X: 887000.125, Y: 6540000.5, Z: 1380.25}},
		{Filename: "b.jpg", Timestamp: time.Date(2019, 7, 2, 12, 0, 0, 0, loc), Position: r3.Vector{X: 887001, Y: 6540001, Z: 1381}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteProjected(&buf, points, loc))
	assert.True(t, strings.HasPrefix(buf.String(), "filename,timestamp,utm_x,utm_y,utm_z\n"))
	assert.Contains(t, buf.String(), "a.jpg,2019-07-01T12:00:00+02:00,887000.125,6540000.5,1380.25\n")

	got, err := ReadProjected(&buf, loc)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range points {
		assert.True(t, points[i].Timestamp.Equal(got[i].Timestamp))
		assert.Equal(t, points[i].Position, got[i].Position)
		assert.Equal(t, points[i].Filename, got[i].Filename)
	}
}

func TestProjectedRoundTrip_KeepsInstant(t *testing.T) {
	loc := paris(t)
	// 2019-10-27 is the Paris fall-back day: 00:30Z and 01:10Z are both
	// 02:xx local wall time.
	fallBack := time.Date(2019, 10, 27, 0, 30, 0, 0, time.UTC)
	tests := []struct {
		name   string
		t0, t1 time.Time
	}{
		{"fractional seconds", time.Date(2019, 7, 1, 12, 0, 0, 0, loc), time.Date(2019, 7, 1, 12, 0, 0, 5e8, loc)},
		{"fall-back hour", fallBack, fallBack.Add(40 * time.Minute)},
	}
	ref, err := flow.NewReferenceDirection(r2.Point{}, r2.Point{X: 1})
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points := []trajectory.ProjectedPoint{
				{Filename: "a.jpg", Timestamp: tt.t0},
				{Filename: "b.jpg", Timestamp: tt.t1, Position: r3.Vector{X: 1}},
			}
			var buf bytes.Buffer
			require.NoError(t, WriteProjected(&buf, points, loc))
			got, err := ReadProjected(&buf, loc)
			require.NoError(t, err)
			require.Len(t, got, 2)
			for i := range points {
				assert.True(t, points[i].Timestamp.Equal(got[i].Timestamp), "point %d: %v != %v", i, got[i].Timestamp, points[i].Timestamp)
			}

			before := flow.Estimate(points, ref)
			after := flow.Estimate(got, ref)
			require.NotNil(t, before[1].Speed)
			require.NotNil(t, after[1].Speed)
			assert.Equal(t, *before[1].Speed, *after[1].Speed)
		})
	}
}

func TestVelocitiesRoundTrip(t *testing.T) {
	disp, speed := 0.5, 182.5
	t0 := time.Date(2019, 7, 1, 0, 0, 0, 0, time.UTC)
	samples := []flow.SpeedSample{
		{Point: trajectory.ProjectedPoint{Filename: "a.jpg", Timestamp: t0, Position: r3.Vector{X: 1, Y: 2, Z: 3}}},
		{Point: trajectory.ProjectedPoint{Filename: "b.jpg", Timestamp: t0, Position: r3.Vector{X: 1, Y: 2, Z: 3}}, Displacement: &disp},
		{Point: trajectory.ProjectedPoint{Filename: "c.jpg", Timestamp: t0.Add(24 * time.Hour), Position: r3.Vector{X: 1, Y: 2.5, Z: 3}}, Displacement: &disp, Speed: &speed},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteVelocities(&buf, samples, time.UTC))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "filename,timestamp,utm_x,utm_y,utm_z,line_displacement_m,line_speed_mpy", lines[0])
	assert.Equal(t, "a.jpg,2019-07-01T00:00:00Z,1,2,3,,", lines[1])
	assert.Equal(t, "b.jpg,2019-07-01T00:00:00Z,1,2,3,0.5,", lines[2])

	got, err := ReadVelocities(&buf, time.UTC)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Nil(t, got[0].Displacement)
	assert.Nil(t, got[0].Speed)
	require.NotNil(t, got[1].Displacement)
	assert.Nil(t, got[1].Speed)
	require.NotNil(t, got[2].Speed)
	assert.Equal(t, speed, *got[2].Speed)

	// A velocities file is also a valid projected file.
	var again bytes.Buffer
	require.NoError(t, WriteVelocities(&again, samples, time.UTC))
	points, err := ReadProjected(&again, time.UTC)
	require.NoError(t, err)
	assert.Len(t, points, 3)
}

func TestTrackID(t *testing.T) {
	assert.Equal(t, "boulder_1", TrackID("csv_tracking/boulder_1.csv"))
	assert.Equal(t, "x", TrackID("x"))
}
