package posecal

import (
	"errors"
	"fmt"

	"github.com/banshee-data/flow.report/internal/camera"
)

// ErrExtractorUnavailable is returned by the SIFT extractor in builds
// without OpenCV support (the withcv build tag).
var ErrExtractorUnavailable = errors.New("feature extraction requires a build with -tags withcv")

// FeatureExtractor detects keypoints and descriptors in an image file.
type FeatureExtractor interface {
	Extract(path string) ([]Feature, error)
}

// RecoverFromFiles extracts features from both images and runs Recover.
func RecoverFromFiles(ex FeatureExtractor, refPath, shiftedPath string, intr camera.Intrinsics, cfg Config) (*Result, error) {
	ref, err := ex.Extract(refPath)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", refPath, err)
	}
	shifted, err := ex.Extract(shiftedPath)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", shiftedPath, err)
	}
	logf("%s: %d features, %s: %d features", refPath, len(ref), shiftedPath, len(shifted))
	return Recover(ref, shifted, intr, cfg)
}
