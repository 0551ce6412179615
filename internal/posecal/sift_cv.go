//go:build withcv
// +build withcv

package posecal

import (
	"fmt"

	"gocv.io/x/gocv"
)

// SIFTExtractor detects SIFT keypoints with OpenCV.
type SIFTExtractor struct{}

// NewSIFTExtractor returns the OpenCV SIFT extractor.
func NewSIFTExtractor() *SIFTExtractor { return &SIFTExtractor{} }

// Extract reads path as grayscale and returns its SIFT features.
func (SIFTExtractor) Extract(path string) ([]Feature, error) {
	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("image %s is empty or unreadable", path)
	}

	sift := gocv.NewSIFT()
	defer sift.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	keypoints, desc := sift.DetectAndCompute(img, mask)
	defer desc.Close()

	features := make([]Feature, len(keypoints))
	cols := desc.Cols()
	for i, kp := range keypoints {
		d := make([]float64, cols)
		for j := range d {
			d[j] = float64(desc.GetFloatAt(i, j))
		}
		features[i] = Feature{X: kp.X, Y: kp.Y, Descriptor: d}
	}
	return features, nil
}
