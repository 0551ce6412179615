package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/flow.report/internal/csvio"
	"github.com/banshee-data/flow.report/internal/db"
	"github.com/banshee-data/flow.report/internal/monitoring"
	"github.com/banshee-data/flow.report/internal/testutil"
	"github.com/banshee-data/flow.report/internal/trajectory"
)

func quiet(t *testing.T) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })
}

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), args, &out), "flow-report %v", args)
	return out.String()
}

// survey lays out a synthetic site with two tracks moving north at 10 m/day.
type survey struct {
	dir, config, tracks string
}

func newSurvey(t *testing.T) survey {
	t.Helper()
	site := testutil.NewSite(t)
	dir := t.TempDir()
	dem := site.WriteDEM(t, dir)
	s := survey{dir: dir, config: site.WriteConfig(t, dir, dem), tracks: filepath.Join(dir, "tracks")}
	require.NoError(t, os.MkdirAll(s.tracks, 0o755))

	site.WriteTrack(t, s.tracks, site.Track(t, "boulder", r2.Point{X: 10, Y: 300}, r2.Point{X: 0, Y: 10}, 5))
	site.WriteTrack(t, s.tracks, site.Track(t, "stake", r2.Point{X: -30, Y: 400}, r2.Point{X: 4, Y: 10}, 4))
	return s
}

func (s survey) path(elem ...string) string {
	return filepath.Join(append([]string{s.dir}, elem...)...)
}

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), nil, &out)
	assert.ErrorIs(t, err, errUsage)
	for _, c := range commands {
		assert.Contains(t, out.String(), c.name)
	}

	out.Reset()
	require.NoError(t, run(context.Background(), []string{"help"}, &out))
	assert.Contains(t, out.String(), "Usage: flow-report")
}

func TestRun_UnknownCommand(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"frobnicate"}, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "frobnicate"`)
}

func TestRun_Version(t *testing.T) {
	assert.Contains(t, runCLI(t, "version"), "flow-report dev")
}

func TestProject_RequiresDEM(t *testing.T) {
	quiet(t)
	site := testutil.NewSite(t)
	dir := t.TempDir()
	cfg := site.WriteConfig(t, dir, "")

	err := run(context.Background(), []string{"project", "-config", cfg, "-tracks", dir}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no DEM")
}

func TestProject_NoTracks(t *testing.T) {
	quiet(t)
	site := testutil.NewSite(t)
	dir := t.TempDir()
	cfg := site.WriteConfig(t, dir, site.WriteDEM(t, dir))
	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.Mkdir(empty, 0o755))

	err := run(context.Background(), []string{"project", "-config", cfg, "-tracks", empty}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tracking CSVs")
}

func TestPipeline(t *testing.T) {
	quiet(t)
	s := newSurvey(t)
	dbPath := s.path("flow.db")

	out := runCLI(t, "project", "-config", s.config, "-tracks", s.tracks,
		"-out", s.path("projected"), "-db", dbPath)
	assert.Contains(t, out, "boulder: 5 projected, 0 dropped")
	assert.Contains(t, out, "stake: 4 projected, 0 dropped")
	assert.Contains(t, out, "stored run")

	out = runCLI(t, "speeds", "-config", s.config, "-projected", s.path("projected"),
		"-out", s.path("velocities"), "-db", dbPath)
	assert.Contains(t, out, "boulder: 4/5 speeds defined")

	f, err := os.Open(s.path("velocities", "boulder.csv"))
	require.NoError(t, err)
	samples, err := csvio.ReadVelocities(f, nil)
	f.Close()
	require.NoError(t, err)
	require.Len(t, samples, 5)
	assert.Nil(t, samples[0].Speed)
	for i, sample := range samples[1:] {
		require.NotNil(t, sample.Speed, "sample %d", i+1)
		assert.InEpsilon(t, 3650, *sample.Speed, 0.1, "sample %d", i+1)
	}

	database, err := db.NewDB(dbPath)
	require.NoError(t, err)
	tracks, err := database.Tracks().List()
	require.NoError(t, err)
	assert.Len(t, tracks, 2)
	_, stored, err := database.Speeds().Latest("stake")
	require.NoError(t, err)
	require.Len(t, stored, 4)
	assert.Nil(t, stored[0].Speed)
	require.NotNil(t, stored[3].Speed)
	assert.InEpsilon(t, 3650, *stored[3].Speed, 0.1)
	require.NoError(t, database.Close())

	out = runCLI(t, "export", "-config", s.config, "-projected", s.path("projected"),
		"-velocities", s.path("velocities"), "-out", s.path("export"))
	for _, name := range []string{"boulder.asc", "stake.asc", "boulder_speeds.asc", "stake_speeds.asc"} {
		assert.FileExists(t, s.path("export", name))
		assert.Contains(t, out, name)
	}

	out = runCLI(t, "plot", "-config", s.config, "-projected", s.path("projected"),
		"-db", dbPath, "-out", s.path("report"), "-units", "mpd")
	for _, name := range []string{"tracks.png", "speeds.png", "speeds.html"} {
		assert.FileExists(t, s.path("report", name))
		assert.Contains(t, out, name)
	}

	out = runCLI(t, "migrate", "status", "-db", dbPath)
	assert.Contains(t, out, "Dirty: false")
}

func TestProject_SortsSamples(t *testing.T) {
	quiet(t)
	site := testutil.NewSite(t)
	dir := t.TempDir()
	cfg := site.WriteConfig(t, dir, site.WriteDEM(t, dir))
	tracksDir := filepath.Join(dir, "tracks")
	require.NoError(t, os.Mkdir(tracksDir, 0o755))

	track := site.Track(t, "reversed", r2.Point{X: 0, Y: 300}, r2.Point{X: 0, Y: 10}, 3)
	samples := track.Samples
	samples[0], samples[2] = samples[2], samples[0]
	site.WriteTrack(t, tracksDir, track)

	runCLI(t, "project", "-config", cfg, "-tracks", tracksDir, "-out", filepath.Join(dir, "projected"))

	f, err := os.Open(filepath.Join(dir, "projected", "reversed.csv"))
	require.NoError(t, err)
	defer f.Close()
	points, err := csvio.ReadProjected(f, nil)
	require.NoError(t, err)
	require.Len(t, points, 3)
	sorted := append([]trajectory.ProjectedPoint(nil), points...)
	trajectory.SortPointsByTimestamp(sorted)
	assert.Equal(t, sorted, points)
	assert.Less(t, points[0].Position.Y, points[2].Position.Y)
}

func TestSpeeds_WithoutStoredRun(t *testing.T) {
	quiet(t)
	s := newSurvey(t)
	runCLI(t, "project", "-config", s.config, "-tracks", s.tracks, "-out", s.path("projected"))

	out := runCLI(t, "speeds", "-config", s.config, "-projected", s.path("projected"),
		"-out", s.path("velocities"), "-db", s.path("empty.db"))
	assert.Contains(t, out, "stake: 3/4 speeds defined")
}

func TestSpeeds_StaleProjectedCSV(t *testing.T) {
	quiet(t)
	s := newSurvey(t)
	dbPath := s.path("flow.db")
	runCLI(t, "project", "-config", s.config, "-tracks", s.tracks, "-out", s.path("projected"), "-db", dbPath)

	// Edit stake.csv so it no longer matches the stored run.
	stakePath := s.path("projected", "stake.csv")
	f, err := os.Open(stakePath)
	require.NoError(t, err)
	points, err := csvio.ReadProjected(f, nil)
	f.Close()
	require.NoError(t, err)
	out, err := os.Create(stakePath)
	require.NoError(t, err)
	require.NoError(t, csvio.WriteProjected(out, points[1:], nil))
	require.NoError(t, out.Close())

	stdout := runCLI(t, "speeds", "-config", s.config, "-projected", s.path("projected"),
		"-out", s.path("velocities"), "-db", dbPath)
	assert.Contains(t, stdout, "stake: 2/3 speeds defined")

	database, err := db.NewDB(dbPath)
	require.NoError(t, err)
	defer database.Close()
	_, stake, err := database.Speeds().Latest("stake")
	require.NoError(t, err)
	require.Len(t, stake, 4)
	for _, sample := range stake {
		assert.Nil(t, sample.Speed)
	}
	_, boulder, err := database.Speeds().Latest("boulder")
	require.NoError(t, err)
	require.Len(t, boulder, 5)
	assert.NotNil(t, boulder[4].Speed)
}

func TestMigrate_ActionAfterFlags(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "flow.db")
	out := runCLI(t, "migrate", "-db", dbPath, "up")
	assert.Contains(t, out, "All migrations applied")

	err := run(context.Background(), []string{"migrate", "-db", dbPath}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestNewHTTPServer(t *testing.T) {
	quiet(t)
	database, err := db.NewDB(filepath.Join(t.TempDir(), "flow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	_, err = newHTTPServer(database, ":0", "furlongs")
	assert.Error(t, err)

	server, err := newHTTPServer(database, ":0", "mpd")
	require.NoError(t, err)

	for _, path := range []string{"/api/tracks", "/healthz"} {
		rec := httptest.NewRecorder()
		server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
