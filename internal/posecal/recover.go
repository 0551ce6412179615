package posecal

import (
	"errors"
	"fmt"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/flow.report/internal/camera"
	"github.com/banshee-data/flow.report/internal/metrics"
	"github.com/banshee-data/flow.report/internal/monitoring"
)

var logf = monitoring.Component("posecal")

// Config holds the pose recovery settings.
type Config struct {
	// Ratio is the nearest/second-nearest distance ratio of the match test.
	Ratio float64
	// MinMatches is the number of matches below which recovery fails.
	MinMatches int
	RANSAC     RANSACOptions
	// MaxConditionNumber bounds sigma1/sigma3 of the fitted homography.
	MaxConditionNumber float64
	// Selector picks among decomposition candidates. Nil means SelectFirst.
	Selector CandidateSelector
}

// DefaultConfig returns ratio 0.3, at least 10 matches and the default
// RANSAC settings.
func DefaultConfig() Config {
	return Config{
		Ratio:              0.3,
		MinMatches:         10,
		RANSAC:             DefaultRANSACOptions(),
		MaxConditionNumber: 1e7,
		Selector:           SelectFirst,
	}
}

// Result is a recovered rotation between the reference and shifted image.
type Result struct {
	Roll, Pitch, Yaw float64 // degrees, intrinsic x-y-z
	Matches          int
	Inliers          int
	Candidates       int
	Homography       [9]float64
}

// Recover estimates the camera rotation from matched features of a
// reference and a shifted image taken with the same intrinsics.
func Recover(ref, shifted []Feature, intr camera.Intrinsics, cfg Config) (res *Result, err error) {
	defer func() { metrics.ObservePoseRecovery(outcome(err)) }()

	if err := intr.Validate(); err != nil {
		return nil, err
	}
	matches, err := MatchFeatures(ref, shifted, cfg.Ratio)
	if err != nil {
		return nil, fmt.Errorf("match features: %w", err)
	}
	if len(matches) < cfg.MinMatches {
		return nil, &InsufficientMatchesError{Found: len(matches), Required: cfg.MinMatches}
	}

	pairs := make([]Correspondence, len(matches))
	for i, m := range matches {
		pairs[i] = Correspondence{
			Src: r2.Point{X: ref[m.Ref].X, Y: ref[m.Ref].Y},
			Dst: r2.Point{X: shifted[m.Shifted].X, Y: shifted[m.Shifted].Y},
		}
	}
	h, mask, err := EstimateHomography(pairs, cfg.RANSAC)
	if err != nil {
		return nil, fmt.Errorf("estimate homography: %w", err)
	}
	if err := CheckConditioning(h, cfg.MaxConditionNumber); err != nil {
		return nil, err
	}

	candidates, err := Decompose(h, CalibrationMatrix(intr))
	if err != nil {
		return nil, fmt.Errorf("decompose homography: %w", err)
	}
	selector := cfg.Selector
	if selector == nil {
		selector = SelectFirst
	}
	chosen := selector(candidates)

	res = &Result{Matches: len(matches), Candidates: len(candidates)}
	res.Roll, res.Pitch, res.Yaw = EulerXYZ(chosen.R)
	for _, in := range mask {
		if in {
			res.Inliers++
		}
	}
	copy(res.Homography[:], mat.DenseCopyOf(h).RawMatrix().Data)

	logf("%d matches, %d inliers, %d candidates: roll %.3f pitch %.3f yaw %.3f",
		res.Matches, res.Inliers, res.Candidates, res.Roll, res.Pitch, res.Yaw)
	return res, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientMatches):
		return "insufficient_matches"
	case errors.Is(err, ErrDegenerateHomography):
		return "degenerate"
	default:
		return "error"
	}
}
