// Package frames lists timelapse frames and selects the frames used for
// tracking.
package frames

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/banshee-data/flow.report/internal/fsutil"
	"github.com/banshee-data/flow.report/internal/monitoring"
)

// NameLayout is the layout of a frame file name stem.
const NameLayout = "20060102150405"

// DefaultExtensions are the image extensions List accepts when none are given.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png"}

// Frame is one timelapse image.
type Frame struct {
	Name string
	Path string
	Time time.Time
	Size int64
}

// Day returns the YYYYMMDD prefix of the frame name.
func (f Frame) Day() string {
	return f.Name[:8]
}

// ParseFrameTime parses the capture time encoded in a frame file name,
// e.g. 20190701120000.jpg, in loc. A nil loc means UTC.
func ParseFrameTime(name string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	base := filepath.Base(name)
	stem := base
	if i := strings.IndexByte(base, '.'); i >= 0 {
		stem = base[:i]
	}
	t, err := time.ParseInLocation(NameLayout, stem, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("frame name %q: %w", base, err)
	}
	return t, nil
}

func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// List returns the frames in dir with one of exts, sorted by name. Files
// whose names do not carry a timestamp are skipped.
func List(fsys fsutil.FileSystem, dir string, exts []string, loc *time.Location) ([]Frame, error) {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	var frames []Frame
	for _, e := range entries {
		if !hasExtension(e.Name(), exts) {
			continue
		}
		t, err := ParseFrameTime(e.Name(), loc)
		if err != nil {
			monitoring.Logf("Skipping %s: %v", e.Name(), err)
			continue
		}
		frames = append(frames, Frame{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Time: t,
			Size: e.Size(),
		})
	}
	sort.SliceStable(frames, func(i, j int) bool { return frames[i].Name < frames[j].Name })
	return frames, nil
}

// SelectLargestPerDay keeps the largest frame of each day. Frames of the
// same size keep the first in name order. The result is sorted by day.
func SelectLargestPerDay(frames []Frame) []Frame {
	best := map[string]Frame{}
	for _, f := range frames {
		cur, ok := best[f.Day()]
		if !ok || f.Size > cur.Size {
			best[f.Day()] = f
		}
	}
	out := make([]Frame, 0, len(best))
	for _, f := range best {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CopyFrames copies frames into outDir, creating it when needed.
func CopyFrames(fsys fsutil.FileSystem, frames []Frame, outDir string) error {
	if err := fsys.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	for _, f := range frames {
		if err := copyFile(fsys, f.Path, filepath.Join(outDir, f.Name)); err != nil {
			return fmt.Errorf("copy %s: %w", f.Name, err)
		}
		monitoring.Logf("Copied: %s (%.1f KB)", f.Name, float64(f.Size)/1024)
	}
	return nil
}

func copyFile(fsys fsutil.FileSystem, src, dst string) error {
	in, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := fsys.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
