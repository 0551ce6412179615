package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/flow.report/internal/fsutil"
	"github.com/banshee-data/flow.report/internal/trajectory"
)

// TrackingHeader is the header of a tracking CSV.
var TrackingHeader = []string{"filename", "timestamp", "x", "y"}

// ReadTracking reads the samples of a tracking CSV in file order.
func ReadTracking(r io.Reader, loc *time.Location) ([]trajectory.TrackedSample, error) {
	cr := newReader(r)
	cols, err := readHeader(cr, TrackingHeader...)
	if err != nil {
		return nil, err
	}
	var samples []trajectory.TrackedSample
	err = eachRow(cr, func(_ int, row []string) error {
		ts, err := ParseTimestamp(cols.get(row, "timestamp"), loc)
		if err != nil {
			return err
		}
		x, err := parseFloat(cols.get(row, "x"), "x")
		if err != nil {
			return err
		}
		y, err := parseFloat(cols.get(row, "y"), "y")
		if err != nil {
			return err
		}
		samples = append(samples, trajectory.TrackedSample{
			Filename:  strings.TrimSpace(cols.get(row, "filename")),
			Timestamp: ts,
			X:         x,
			Y:         y,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return samples, nil
}

// TrackID derives a track identifier from a CSV path: the file name
// without directory or extension.
func TrackID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadTrack reads one tracking CSV as a Track named after the file.
func LoadTrack(fsys fsutil.FileSystem, path string, loc *time.Location) (trajectory.Track, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return trajectory.Track{}, fmt.Errorf("open tracking file: %w", err)
	}
	defer f.Close()

	samples, err := ReadTracking(f, loc)
	if err != nil {
		return trajectory.Track{}, fmt.Errorf("%s: %w", path, err)
	}
	return trajectory.Track{ID: TrackID(path), Samples: samples}, nil
}

// LoadTrackDir loads every .csv file directly inside dir, in name order.
func LoadTrackDir(fsys fsutil.FileSystem, dir string, loc *time.Location) ([]trajectory.Track, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list tracking directory: %w", err)
	}
	var tracks []trajectory.Track
	for _, e := range entries {
		if !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		track, err := LoadTrack(fsys, filepath.Join(dir, e.Name()), loc)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

// TrackingWriter appends clicks to a tracking CSV.
type TrackingWriter struct {
	w   *csv.Writer
	loc *time.Location
}

// NewTrackingWriter returns a writer for w. The header is written only when
// writeHeader is set, so that an existing file can be appended to.
func NewTrackingWriter(w io.Writer, loc *time.Location, writeHeader bool) (*TrackingWriter, error) {
	tw := &TrackingWriter{w: csv.NewWriter(w), loc: loc}
	if writeHeader {
		if err := tw.w.Write(TrackingHeader); err != nil {
			return nil, err
		}
		tw.w.Flush()
		if err := tw.w.Error(); err != nil {
			return nil, err
		}
	}
	return tw, nil
}

// Write appends one sample and flushes it. Pixel coordinates are written
// as integers.
func (tw *TrackingWriter) Write(s trajectory.TrackedSample) error {
	row := []string{
		s.Filename,
		FormatNaiveTimestamp(s.Timestamp, tw.loc),
		strconv.Itoa(int(s.X)),
		strconv.Itoa(int(s.Y)),
	}
	if err := tw.w.Write(row); err != nil {
		return err
	}
	tw.w.Flush()
	return tw.w.Error()
}
