package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/banshee-data/flow.report/internal/export"
	"github.com/banshee-data/flow.report/internal/flow"
	"github.com/banshee-data/flow.report/internal/report"
	"github.com/banshee-data/flow.report/internal/terrain"
	"github.com/banshee-data/flow.report/internal/trajectory"
	"github.com/banshee-data/flow.report/internal/units"
)

func runPlot(_ context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("plot")
	configPath := fs.String("config", "", "Survey config JSON (built-in defaults when empty)")
	demPath := fs.String("dem", "", "DEM ASCII grid drawn under the tracks (overrides dem_path)")
	projectedDir := fs.String("projected", "data/projected", "Directory of projected CSVs")
	velocitiesDir := fs.String("velocities", "data/velocities", "Directory of velocity CSVs")
	dbPath := fs.String("db", "", "Read speed series from this database instead of -velocities")
	outDir := fs.String("out", "data/report", "Directory for the rendered reports")
	unit := fs.String("units", units.MPY, "Speed units: "+units.GetValidUnitsString())
	html := fs.Bool("html", true, "Also write an interactive HTML speed chart")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !units.IsValid(*unit) {
		return fmt.Errorf("invalid units %q (want %s)", *unit, units.GetValidUnitsString())
	}

	cfg, loc, err := loadSurvey(*configPath)
	if err != nil {
		return err
	}

	var tracks []trajectory.ProjectedTrack
	if osfs.Exists(*projectedDir) {
		if tracks, err = loadProjectedDir(osfs, *projectedDir, loc); err != nil {
			return err
		}
	}
	var dem *terrain.Grid
	path := *demPath
	if path == "" {
		path = cfg.GetDEMPath()
	}
	if path != "" && osfs.Exists(path) {
		if dem, err = terrain.LoadASCIIGrid(osfs, path); err != nil {
			return err
		}
	}
	p, err := report.TracksPlot(dem, tracks)
	switch {
	case errors.Is(err, report.ErrNoData):
		log.Printf("no tracks or DEM to plot")
	case err != nil:
		return err
	default:
		out, err := writeOutput(osfs, *outDir, "tracks.png", func(w io.Writer) error {
			return report.WritePNG(w, p, report.DefaultWidth, report.DefaultHeight)
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s\n", out)
	}

	series, err := loadSeries(*dbPath, *velocitiesDir, loc)
	if err != nil {
		return err
	}
	p, err = report.SpeedSeriesPlot(series, *unit)
	if errors.Is(err, report.ErrNoData) {
		log.Printf("no speeds to plot")
		return nil
	}
	if err != nil {
		return err
	}
	out, err := writeOutput(osfs, *outDir, "speeds.png", func(w io.Writer) error {
		return report.WritePNG(w, p, report.DefaultWidth, report.DefaultHeight)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s\n", out)

	if !*html {
		return nil
	}
	out, err = writeOutput(osfs, *outDir, "speeds.html", func(w io.Writer) error {
		return report.RenderSpeedChart(w, series, *unit)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote %s\n", out)
	return nil
}

func loadSeries(dbPath, dir string, loc *time.Location) ([]flow.Series, error) {
	if dbPath != "" {
		store, err := openStore(dbPath)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return store.Speeds().AllLatest()
	}
	if !osfs.Exists(dir) {
		return nil, nil
	}
	return loadVelocityDir(osfs, dir, loc)
}

func runExport(_ context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("export")
	configPath := fs.String("config", "", "Survey config JSON (built-in defaults when empty)")
	projectedDir := fs.String("projected", "data/projected", "Directory of projected CSVs")
	velocitiesDir := fs.String("velocities", "", "Directory of velocity CSVs (speeds are skipped when empty)")
	outDir := fs.String("out", "data/export", "Directory for the .asc files")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, loc, err := loadSurvey(*configPath)
	if err != nil {
		return err
	}
	tracks, err := loadProjectedDir(osfs, *projectedDir, loc)
	if err != nil {
		return err
	}
	for _, track := range tracks {
		if len(track.Points) == 0 {
			log.Printf("%s: no projected points, skipped", track.ID)
			continue
		}
		path, err := export.WriteTrajectoryASC(osfs, *outDir, track)
		if err != nil {
			return fmt.Errorf("export %s: %w", track.ID, err)
		}
		fmt.Fprintf(stdout, "wrote %s\n", path)
	}

	if *velocitiesDir == "" {
		return nil
	}
	series, err := loadVelocityDir(osfs, *velocitiesDir, loc)
	if err != nil {
		return err
	}
	for _, s := range series {
		if len(s.Samples) == 0 {
			continue
		}
		path, err := export.WriteSpeedsASC(osfs, *outDir, s)
		if err != nil {
			return fmt.Errorf("export speeds %s: %w", s.ID, err)
		}
		fmt.Fprintf(stdout, "wrote %s\n", path)
	}
	return nil
}
