// Package tracking records manual feature clicks over a sequence of frames.
package tracking

import (
	"time"

	"github.com/banshee-data/flow.report/internal/frames"
	"github.com/banshee-data/flow.report/internal/trajectory"
)

// Session walks a frame sequence, recording one click per frame. A Session
// is not safe for concurrent use.
type Session struct {
	frames  []frames.Frame
	index   int
	samples []trajectory.TrackedSample
}

// NewSession returns a session positioned on the first frame captured
// strictly after startAfter. When no frame qualifies the cursor starts at
// the first frame. A zero startAfter starts at the first frame.
func NewSession(fs []frames.Frame, startAfter time.Time) *Session {
	s := &Session{frames: fs}
	for i, f := range fs {
		if f.Time.After(startAfter) {
			s.index = i
			break
		}
	}
	return s
}

// Current returns the frame under the cursor, false once the session is done.
func (s *Session) Current() (frames.Frame, bool) {
	if s.Done() {
		return frames.Frame{}, false
	}
	return s.frames[s.index], true
}

// Index returns the cursor position.
func (s *Session) Index() int { return s.index }

// Len returns the number of frames in the session.
func (s *Session) Len() int { return len(s.frames) }

// Done reports whether every frame has been clicked or skipped.
func (s *Session) Done() bool { return s.index >= len(s.frames) }

// Click records the feature at pixel (x, y) in the current frame and
// advances. Coordinates are truncated to whole pixels. It returns false,
// recording nothing, once the session is done.
func (s *Session) Click(x, y float64) (trajectory.TrackedSample, bool) {
	f, ok := s.Current()
	if !ok {
		return trajectory.TrackedSample{}, false
	}
	sample := trajectory.TrackedSample{
		Filename:  f.Name,
		Timestamp: f.Time,
		X:         float64(int(x)),
		Y:         float64(int(y)),
	}
	s.samples = append(s.samples, sample)
	s.index++
	return sample, true
}

// Skip advances without recording.
func (s *Session) Skip() {
	if !s.Done() {
		s.index++
	}
}

// Samples returns the clicks recorded so far.
func (s *Session) Samples() []trajectory.TrackedSample {
	return append([]trajectory.TrackedSample(nil), s.samples...)
}
