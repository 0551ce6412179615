// Package testutil provides a synthetic survey site shared by end-to-end
// tests: a flat DEM under a camera with known pose, plus tracks whose pixel
// clicks are generated from known world positions.
package testutil

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/banshee-data/flow.report/internal/camera"
	"github.com/banshee-data/flow.report/internal/config"
	"github.com/banshee-data/flow.report/internal/csvio"
	"github.com/banshee-data/flow.report/internal/terrain"
	"github.com/banshee-data/flow.report/internal/trajectory"
)

// Site geometry. The camera looks north, 10 degrees down, from 100 m above
// a flat surface at 1000 m.
const (
	SiteElevation = 1000.0
	SiteCellSize  = 20.0
)

var (
	SiteBounds = terrain.Bounds{Left: -1000, Bottom: -100, Right: 1000, Top: 3000}
	SitePose   = camera.Pose{Position: r3.Vector{X: 0, Y: 0, Z: 1100}, Yaw: 0, Pitch: 10}
	SiteStart  = time.Date(2019, 7, 1, 12, 0, 0, 0, time.UTC)
)

// SiteIntrinsics are the intrinsics of the survey camera.
var SiteIntrinsics = camera.Intrinsics{
	FocalLengthMM:  34,
	SensorWidthMM:  22.3,
	SensorHeightMM: 14.9,
	ImageWidth:     1920,
	ImageHeight:    1440,
}

// Site bundles the synthetic camera and DEM.
type Site struct {
	Camera *camera.Camera
	DEM    *terrain.Grid
}

// NewSite builds the synthetic site.
func NewSite(t testing.TB) *Site {
	t.Helper()
	cam, err := camera.NewCamera(SiteIntrinsics, SitePose)
	if err != nil {
		t.Fatalf("camera: %v", err)
	}
	dem, err := terrain.NewFlatGrid(SiteBounds, SiteCellSize, SiteElevation)
	if err != nil {
		t.Fatalf("dem: %v", err)
	}
	return &Site{Camera: cam, DEM: dem}
}

// Config returns a survey config describing the site. The reference line
// points north and refinement is on so that projected positions are close
// to the generating ones.
func (s *Site) Config(demPath string) *config.SurveyConfig {
	cfg := config.EmptySurveyConfig()
	pos := SitePose.Position
	cfg.CameraX, cfg.CameraY, cfg.CameraZ = &pos.X, &pos.Y, &pos.Z
	yaw, pitch, roll := SitePose.Yaw, SitePose.Pitch, SitePose.Roll
	cfg.YawDeg, cfg.PitchDeg, cfg.RollDeg = &yaw, &pitch, &roll

	in := SiteIntrinsics
	cfg.FocalLengthMM = &in.FocalLengthMM
	cfg.SensorWidthMM = &in.SensorWidthMM
	cfg.SensorHeightMM = &in.SensorHeightMM
	cfg.ImageWidth = &in.ImageWidth
	cfg.ImageHeight = &in.ImageHeight

	x0, y0, x1, y1 := 0.0, 0.0, 0.0, 1.0
	cfg.ReferenceStartX, cfg.ReferenceStartY = &x0, &y0
	cfg.ReferenceEndX, cfg.ReferenceEndY = &x1, &y1

	refine, tz, workers := 20, "UTC", 2
	cfg.RefineIterations = &refine
	cfg.Timezone = &tz
	cfg.Workers = &workers
	if demPath != "" {
		cfg.DEMPath = &demPath
	}
	return cfg
}

// WriteConfig writes the site config as JSON and returns its path.
func (s *Site) WriteConfig(t testing.TB, dir, demPath string) string {
	t.Helper()
	data, err := json.MarshalIndent(s.Config(demPath), "", "  ")
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	path := filepath.Join(dir, "survey.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// WriteDEM writes the site DEM as an ESRI ASCII grid and returns its path.
func (s *Site) WriteDEM(t testing.TB, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "site.asc")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create dem: %v", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "ncols %d\nnrows %d\n", s.DEM.Cols(), s.DEM.Rows())
	fmt.Fprintf(w, "xllcorner %g\nyllcorner %g\n", SiteBounds.Left, SiteBounds.Bottom)
	fmt.Fprintf(w, "cellsize %g\nNODATA_value -9999\n", SiteCellSize)
	for r := 0; r < s.DEM.Rows(); r++ {
		for c := 0; c < s.DEM.Cols(); c++ {
			if c > 0 {
				w.WriteByte(' ')
			}
			v, _ := s.DEM.At(r, c)
			fmt.Fprintf(w, "%g", v)
		}
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("write dem: %v", err)
	}
	return path
}

// Track generates a track of n daily clicks of a feature starting at start
// (a ground position) and moving by perDay metres each day.
func (s *Site) Track(t testing.TB, id string, start, perDay r2.Point, n int) trajectory.Track {
	t.Helper()
	track := trajectory.Track{ID: id}
	for i := 0; i < n; i++ {
		ts := SiteStart.AddDate(0, 0, i)
		p := start.Add(perDay.Mul(float64(i)))
		px, py, ok := s.Camera.WorldToPixel(r3.Vector{X: p.X, Y: p.Y, Z: SiteElevation})
		if !ok {
			t.Fatalf("track %s: point %d at %v is not visible", id, i, p)
		}
		track.Samples = append(track.Samples, trajectory.TrackedSample{
			Filename:  ts.Format("20060102150405") + ".jpg",
			Timestamp: ts,
			X:         px,
			Y:         py,
		})
	}
	return track
}

// WriteTrack writes track as a tracking CSV named after its ID and returns
// the path.
func (s *Site) WriteTrack(t testing.TB, dir string, track trajectory.Track) string {
	t.Helper()
	path := filepath.Join(dir, track.ID+".csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create track: %v", err)
	}
	defer f.Close()

	tw, err := csvio.NewTrackingWriter(f, time.UTC, true)
	if err != nil {
		t.Fatalf("tracking writer: %v", err)
	}
	for _, sample := range track.Samples {
		if err := tw.Write(sample); err != nil {
			t.Fatalf("write sample: %v", err)
		}
	}
	return path
}
