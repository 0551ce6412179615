package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/flow.report/internal/csvio"
	"github.com/banshee-data/flow.report/internal/tracking"
)

// lastClick returns the latest timestamp in an existing tracking CSV, or
// the zero time when the file does not exist or holds no clicks.
func lastClick(path string, loc *time.Location) (time.Time, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return time.Time{}, err
	}
	samples, err := csvio.ReadTracking(f, loc)
	if err != nil {
		return time.Time{}, err
	}
	var last time.Time
	for _, s := range samples {
		if s.Timestamp.After(last) {
			last = s.Timestamp
		}
	}
	return last, nil
}

// openTrackingCSV opens path for appending clicks. The header is written
// when the file is new or empty.
func openTrackingCSV(path string, loc *time.Location) (*os.File, *csvio.TrackingWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	tw, err := csvio.NewTrackingWriter(f, loc, info.Size() == 0)
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("write header: %w", err)
	}
	return f, tw, nil
}

// record drives session from the lines of in until every frame is handled,
// the user quits or in is exhausted. Each click is written through tw as
// soon as it is made. It returns the number of clicks recorded.
func record(in io.Reader, out io.Writer, session *tracking.Session, tw *csvio.TrackingWriter, loc *time.Location) (int, error) {
	sc := bufio.NewScanner(in)
	clicks := 0
	for {
		frame, ok := session.Current()
		if !ok {
			fmt.Fprintln(out, "All frames done")
			return clicks, nil
		}
		fmt.Fprintf(out, "[%d/%d] %s (%s) > ", session.Index()+1, session.Len(), frame.Path,
			csvio.FormatNaiveTimestamp(frame.Time, loc))
		if !sc.Scan() {
			fmt.Fprintln(out)
			return clicks, sc.Err()
		}

		fields := strings.Fields(sc.Text())
		switch {
		case len(fields) == 1 && (fields[0] == "q" || fields[0] == "quit"):
			return clicks, nil
		case len(fields) == 1 && (fields[0] == "s" || fields[0] == "skip"):
			session.Skip()
		case len(fields) == 2:
			x, errX := strconv.ParseFloat(fields[0], 64)
			y, errY := strconv.ParseFloat(fields[1], 64)
			if errX != nil || errY != nil || x < 0 || y < 0 {
				fmt.Fprintln(out, "coordinates must be two non-negative numbers")
				continue
			}
			sample, _ := session.Click(x, y)
			if err := tw.Write(sample); err != nil {
				return clicks, fmt.Errorf("save click: %w", err)
			}
			clicks++
		default:
			fmt.Fprintln(out, "enter '<x> <y>', 's' to skip or 'q' to quit")
		}
	}
}
