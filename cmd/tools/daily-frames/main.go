// Command daily-frames copies the largest frame of each day from a
// timelapse directory, thinning a multi-shot-per-day camera down to one
// frame per day for tracking.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/banshee-data/flow.report/internal/config"
	"github.com/banshee-data/flow.report/internal/frames"
	"github.com/banshee-data/flow.report/internal/fsutil"
	"github.com/banshee-data/flow.report/internal/units"
)

func main() {
	var src, dst, configPath string
	var dryRun bool

	flag.StringVar(&src, "src", "data/raw", "directory of raw timelapse frames")
	flag.StringVar(&dst, "dst", "data/frames", "directory to copy the selected frames to")
	flag.StringVar(&configPath, "config", "", "survey config JSON, for the site timezone")
	flag.BoolVar(&dryRun, "dry-run", false, "only list the selected frames")
	flag.Parse()

	cfg := config.DefaultSurveyConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadSurveyConfig(configPath); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	loc, err := units.SiteLocation(cfg.GetTimezone())
	if err != nil {
		log.Fatalf("timezone: %v", err)
	}

	if err := selectDaily(fsutil.OSFileSystem{}, src, dst, loc, dryRun, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func selectDaily(fsys fsutil.FileSystem, src, dst string, loc *time.Location, dryRun bool, out io.Writer) error {
	all, err := frames.List(fsys, src, frames.DefaultExtensions, loc)
	if err != nil {
		return err
	}
	selected := frames.SelectLargestPerDay(all)
	fmt.Fprintf(out, "%d frames over %d days in %s\n", len(all), len(selected), src)
	if dryRun {
		for _, f := range selected {
			fmt.Fprintf(out, "  %s (%.1f KB)\n", f.Name, float64(f.Size)/1024)
		}
		return nil
	}
	if err := frames.CopyFrames(fsys, selected, dst); err != nil {
		return err
	}
	fmt.Fprintf(out, "Copied %d frames to %s\n", len(selected), dst)
	return nil
}
