package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/banshee-data/flow.report/internal/camera"
	"github.com/banshee-data/flow.report/internal/csvio"
	"github.com/banshee-data/flow.report/internal/terrain"
	"github.com/banshee-data/flow.report/internal/trajectory"
)

// projectionParams is recorded with every stored projection run.
type projectionParams struct {
	DEM              string            `json:"dem"`
	Pose             camera.Pose       `json:"pose"`
	Intrinsics       camera.Intrinsics `json:"intrinsics"`
	MaxDistance      float64           `json:"max_distance"`
	Step             float64           `json:"step"`
	RefineIterations int               `json:"refine_iterations"`
	OutOfBounds      string            `json:"out_of_bounds"`
}

func runProject(ctx context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("project")
	configPath := fs.String("config", "", "Survey config JSON (built-in defaults when empty)")
	demPath := fs.String("dem", "", "DEM ASCII grid (overrides dem_path)")
	tracksDir := fs.String("tracks", "data/tracks", "Directory of tracking CSVs")
	outDir := fs.String("out", "data/projected", "Directory for projected CSVs")
	dbPath := fs.String("db", "", "SQLite database to store tracks and projection runs in")
	workers := fs.Int("workers", 0, "Projection workers (0 uses the config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, loc, err := loadSurvey(*configPath)
	if err != nil {
		return err
	}
	dem := *demPath
	if dem == "" {
		dem = cfg.GetDEMPath()
	}
	if dem == "" {
		return fmt.Errorf("no DEM: pass -dem or set dem_path in the config")
	}
	cam, err := cfg.Camera()
	if err != nil {
		return err
	}
	icfg, err := cfg.IntersectorConfig()
	if err != nil {
		return err
	}
	grid, err := terrain.LoadASCIIGrid(osfs, dem)
	if err != nil {
		return err
	}
	intersector, err := terrain.NewIntersector(grid, icfg)
	if err != nil {
		return err
	}
	projector, err := trajectory.NewProjector(cam, intersector)
	if err != nil {
		return err
	}

	tracks, err := csvio.LoadTrackDir(osfs, *tracksDir, loc)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		return fmt.Errorf("no tracking CSVs in %s", *tracksDir)
	}
	// Stored point order doubles as speed order, so sort before projecting.
	for i := range tracks {
		trajectory.SortByTimestamp(tracks[i].Samples)
	}

	n := *workers
	if n <= 0 {
		n = cfg.GetWorkers()
	}
	projected, err := projector.ProjectTracks(ctx, tracks, n)
	if err != nil {
		return fmt.Errorf("projection interrupted: %w", err)
	}

	store, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}
	params := projectionParams{
		DEM:              dem,
		Pose:             cam.Pose(),
		Intrinsics:       cam.Intrinsics(),
		MaxDistance:      icfg.MaxDistance,
		Step:             icfg.Step,
		RefineIterations: icfg.RefineIterations,
		OutOfBounds:      icfg.OutOfBounds.String(),
	}

	for i, pt := range projected {
		path, err := writeOutput(osfs, *outDir, pt.ID+".csv", func(w io.Writer) error {
			return csvio.WriteProjected(w, pt.Points, loc)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s: %d projected, %d dropped -> %s\n", pt.ID, len(pt.Points), len(pt.Dropped), path)

		if store == nil {
			continue
		}
		source := filepath.Join(*tracksDir, pt.ID+".csv")
		if err := store.Tracks().Save(tracks[i], source); err != nil {
			return fmt.Errorf("store track %s: %w", pt.ID, err)
		}
		run, err := store.Projections().Save(pt, params)
		if err != nil {
			return fmt.Errorf("store projection %s: %w", pt.ID, err)
		}
		fmt.Fprintf(stdout, "%s: stored run %s\n", pt.ID, run.ID)
	}
	return nil
}
