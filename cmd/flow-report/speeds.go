package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/banshee-data/flow.report/internal/csvio"
	"github.com/banshee-data/flow.report/internal/db"
	"github.com/banshee-data/flow.report/internal/flow"
	"github.com/banshee-data/flow.report/internal/metrics"
	"github.com/banshee-data/flow.report/internal/trajectory"
)

func runSpeeds(_ context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("speeds")
	configPath := fs.String("config", "", "Survey config JSON (built-in defaults when empty)")
	projectedDir := fs.String("projected", "data/projected", "Directory of projected CSVs")
	outDir := fs.String("out", "data/velocities", "Directory for velocity CSVs")
	dbPath := fs.String("db", "", "SQLite database holding the projection runs to attach speeds to")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, loc, err := loadSurvey(*configPath)
	if err != nil {
		return err
	}
	ref, err := cfg.ReferenceDirection()
	if err != nil {
		return err
	}
	tracks, err := loadProjectedDir(osfs, *projectedDir, loc)
	if err != nil {
		return err
	}
	if len(tracks) == 0 {
		return fmt.Errorf("no projected CSVs in %s", *projectedDir)
	}

	store, err := openStore(*dbPath)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	for _, track := range tracks {
		trajectory.SortPointsByTimestamp(track.Points)
		samples := flow.Estimate(track.Points, ref)
		defined := flow.CountDefined(samples)
		metrics.ObserveSpeeds(defined, len(samples)-defined)

		path, err := writeOutput(osfs, *outDir, track.ID+".csv", func(w io.Writer) error {
			return csvio.WriteVelocities(w, samples, loc)
		})
		if err != nil {
			return err
		}
		sum := flow.Summarize(samples)
		fmt.Fprintf(stdout, "%s: %d/%d speeds defined, mean %.2f m/yr -> %s\n",
			track.ID, sum.Defined, sum.Samples, sum.MeanSpeed, path)

		if store == nil {
			continue
		}
		run, err := store.Projections().LatestRun(track.ID)
		if errors.Is(err, db.ErrTrackNotFound) || errors.Is(err, db.ErrNoProjection) {
			log.Printf("%s: no stored projection run, speeds not stored", track.ID)
			continue
		}
		if err != nil {
			return err
		}
		err = store.Speeds().Save(run.ID, samples)
		if errors.Is(err, db.ErrPointMismatch) {
			log.Printf("%s: %v; re-run project with -db to store these speeds", track.ID, err)
			continue
		}
		if err != nil {
			return fmt.Errorf("store speeds %s: %w", track.ID, err)
		}
	}
	return nil
}
