//go:build !withcv
// +build !withcv

package posecal

// SIFTExtractor is unavailable without the withcv build tag.
type SIFTExtractor struct{}

// NewSIFTExtractor returns an extractor that always fails with ErrExtractorUnavailable.
func NewSIFTExtractor() *SIFTExtractor { return &SIFTExtractor{} }

// Extract always returns ErrExtractorUnavailable.
func (SIFTExtractor) Extract(string) ([]Feature, error) {
	return nil, ErrExtractorUnavailable
}
