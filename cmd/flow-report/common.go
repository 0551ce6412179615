package main

import (
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/flow.report/internal/config"
	"github.com/banshee-data/flow.report/internal/csvio"
	"github.com/banshee-data/flow.report/internal/db"
	"github.com/banshee-data/flow.report/internal/flow"
	"github.com/banshee-data/flow.report/internal/fsutil"
	"github.com/banshee-data/flow.report/internal/security"
	"github.com/banshee-data/flow.report/internal/trajectory"
	"github.com/banshee-data/flow.report/internal/units"
)

var osfs fsutil.FileSystem = fsutil.OSFileSystem{}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet("flow-report "+name, flag.ContinueOnError)
}

// loadSurvey reads the survey config at path, or the built-in defaults
// when path is empty, and resolves the site timezone.
func loadSurvey(path string) (*config.SurveyConfig, *time.Location, error) {
	cfg := config.DefaultSurveyConfig()
	if path != "" {
		var err error
		if cfg, err = config.LoadSurveyConfig(path); err != nil {
			return nil, nil, err
		}
	}
	loc, err := units.SiteLocation(cfg.GetTimezone())
	if err != nil {
		return nil, nil, err
	}
	return cfg, loc, nil
}

// openStore opens and migrates the database at path. An empty path means
// no database and returns nil.
func openStore(path string) (*db.DB, error) {
	if path == "" {
		return nil, nil
	}
	store, err := db.NewDB(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return store, nil
}

// csvFiles lists the .csv files directly inside dir in name order.
func csvFiles(fsys fsutil.FileSystem, dir string) ([]string, error) {
	infos, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var paths []string
	for _, info := range infos {
		if info.IsDir() || !strings.EqualFold(filepath.Ext(info.Name()), ".csv") {
			continue
		}
		paths = append(paths, filepath.Join(dir, info.Name()))
	}
	return paths, nil
}

func loadProjectedDir(fsys fsutil.FileSystem, dir string, loc *time.Location) ([]trajectory.ProjectedTrack, error) {
	paths, err := csvFiles(fsys, dir)
	if err != nil {
		return nil, err
	}
	tracks := make([]trajectory.ProjectedTrack, 0, len(paths))
	for _, path := range paths {
		f, err := fsys.Open(path)
		if err != nil {
			return nil, err
		}
		points, err := csvio.ReadProjected(f, loc)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		tracks = append(tracks, trajectory.ProjectedTrack{ID: csvio.TrackID(path), Points: points})
	}
	return tracks, nil
}

func loadVelocityDir(fsys fsutil.FileSystem, dir string, loc *time.Location) ([]flow.Series, error) {
	paths, err := csvFiles(fsys, dir)
	if err != nil {
		return nil, err
	}
	series := make([]flow.Series, 0, len(paths))
	for _, path := range paths {
		f, err := fsys.Open(path)
		if err != nil {
			return nil, err
		}
		samples, err := csvio.ReadVelocities(f, loc)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		series = append(series, flow.Series{ID: csvio.TrackID(path), Samples: samples})
	}
	return series, nil
}

// writeOutput creates name inside dir and fills it with write. It returns
// the path written.
func writeOutput(fsys fsutil.FileSystem, dir, name string, write func(io.Writer) error) (string, error) {
	path, err := security.OutputPath(dir, name)
	if err != nil {
		return "", fmt.Errorf("invalid output path: %w", err)
	}
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	f, err := fsys.Create(path)
	if err != nil {
		return "", err
	}
	if err := write(f); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
