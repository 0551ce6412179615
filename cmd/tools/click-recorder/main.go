// Command click-recorder walks the frames of a timelapse and records the
// pixel position of one feature per frame into a tracking CSV.
//
// For each frame it prints the frame path and reads one line from stdin:
//
//	<x> <y>   record the feature at pixel (x, y) and advance
//	s         skip the frame
//	q         stop; clicks so far are already saved
//
// Re-running against an existing CSV resumes after its last timestamp.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/banshee-data/flow.report/internal/config"
	"github.com/banshee-data/flow.report/internal/csvio"
	"github.com/banshee-data/flow.report/internal/frames"
	"github.com/banshee-data/flow.report/internal/fsutil"
	"github.com/banshee-data/flow.report/internal/tracking"
	"github.com/banshee-data/flow.report/internal/units"
)

func main() {
	var framesDir, outPath, configPath, startAfter string

	flag.StringVar(&framesDir, "frames", "data/frames", "directory of timelapse frames")
	flag.StringVar(&outPath, "out", "", "tracking CSV to append to (required)")
	flag.StringVar(&configPath, "config", "", "survey config JSON, for the site timezone")
	flag.StringVar(&startAfter, "start-after", "", "only offer frames after this time (default: resume after the last click in -out)")
	flag.Parse()

	if outPath == "" {
		log.Fatal("-out is required")
	}

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

	all, err := frames.List(fsutil.OSFileSystem{}, framesDir, frames.DefaultExtensions, loc)
	if err != nil {
		log.Fatalf("list frames: %v", err)
	}
	if len(all) == 0 {
		log.Fatalf("no frames in %s", framesDir)
	}

	var after time.Time
	if startAfter != "" {
		if after, err = csvio.ParseTimestamp(startAfter, loc); err != nil {
			log.Fatalf("invalid -start-after: %v", err)
		}
	} else if after, err = lastClick(outPath, loc); err != nil {
		log.Fatalf("read %s: %v", outPath, err)
	}
	if !after.IsZero() && !all[len(all)-1].Time.After(after) {
		fmt.Println("All frames already tracked")
		return
	}

	f, tw, err := openTrackingCSV(outPath, loc)
	if err != nil {
		log.Fatalf("open %s: %v", outPath, err)
	}
	defer f.Close()

	session := tracking.NewSession(all, after)
	clicks, err := record(os.Stdin, os.Stdout, session, tw, loc)
	if err != nil {
		log.Printf("stopped: %v", err)
	}
	fmt.Printf("Recorded %d clicks to %s\n", clicks, outPath)
}
