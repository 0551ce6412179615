package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/banshee-data/flow.report/internal/posecal"
)

func runPose(_ context.Context, args []string, stdout io.Writer) error {
	fs := newFlagSet("pose")
	configPath := fs.String("config", "", "Survey config JSON (built-in defaults when empty)")
	refPath := fs.String("ref", "", "Reference frame")
	shiftedPath := fs.String("shifted", "", "Frame taken after the camera moved")
	selector := fs.String("selector", "", "Candidate selector (overrides candidate_selector)")
	dbPath := fs.String("db", "", "SQLite database to record the calibration in")
	asJSON := fs.Bool("json", false, "Print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *refPath == "" || *shiftedPath == "" {
		return fmt.Errorf("both -ref and -shifted are required")
	}

	cfg, _, err := loadSurvey(*configPath)
	if err != nil {
		return err
	}
	intr, err := cfg.Intrinsics()
	if err != nil {
		return err
	}
	pcfg, err := cfg.PoseConfig()
	if err != nil {
		return err
	}
	if *selector != "" {
		if pcfg.Selector, err = posecal.SelectorByName(*selector); err != nil {
			return err
		}
	}

	res, err := posecal.RecoverFromFiles(posecal.NewSIFTExtractor(), *refPath, *shiftedPath, intr, pcfg)
	if err != nil {
		return err
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(stdout, "roll %.4f pitch %.4f yaw %.4f (degrees)\n", res.Roll, res.Pitch, res.Yaw)
		fmt.Fprintf(stdout, "%d matches, %d inliers, %d candidates\n", res.Matches, res.Inliers, res.Candidates)
	}

	store, err := openStore(*dbPath)
	if err != nil || store == nil {
		return err
	}
	defer store.Close()
	c, err := store.Calibrations().Save(*refPath, *shiftedPath, res)
	if err != nil {
		return fmt.Errorf("store calibration: %w", err)
	}
	if !*asJSON {
		fmt.Fprintf(stdout, "stored calibration %s\n", c.ID)
	}
	return nil
}
