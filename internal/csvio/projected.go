package csvio

import (
	"encoding/csv"
	"io"
	"strings"
	"time"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/flow.report/internal/flow"
	"github.com/banshee-data/flow.report/internal/trajectory"
)

// ProjectedHeader is the header of a projected CSV.
var ProjectedHeader = []string{"filename", "timestamp", "utm_x", "utm_y", "utm_z"}

// VelocitiesHeader is the header of a velocities CSV.
var VelocitiesHeader = append(append([]string{}, ProjectedHeader...), "line_displacement_m", "line_speed_mpy")

func projectedRow(p trajectory.ProjectedPoint, loc *time.Location) []string {
	return []string{
		p.Filename,
		FormatTimestamp(p.Timestamp, loc),
		formatFloat(p.Position.X),
		formatFloat(p.Position.Y),
		formatFloat(p.Position.Z),
	}
}

func parseProjected(cols columns, row []string, loc *time.Location) (trajectory.ProjectedPoint, error) {
	var p trajectory.ProjectedPoint
	ts, err := ParseTimestamp(cols.get(row, "timestamp"), loc)
	if err != nil {
		return p, err
	}
	var v [3]float64
	for i, name := range []string{"utm_x", "utm_y", "utm_z"} {
		if v[i], err = parseFloat(cols.get(row, name), name); err != nil {
			return p, err
		}
	}
	p.Filename = strings.TrimSpace(cols.get(row, "filename"))
	p.Timestamp = ts
	p.Position = r3.Vector{X: v[0], Y: v[1], Z: v[2]}
	return p, nil
}

// WriteProjected writes points as a projected CSV.
func WriteProjected(w io.Writer, points []trajectory.ProjectedPoint, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ProjectedHeader); err != nil {
		return err
	}
	for _, p := range points {
		if err := cw.Write(projectedRow(p, loc)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadProjected reads a projected CSV. Velocity files are accepted too;
// their extra columns are ignored.
func ReadProjected(r io.Reader, loc *time.Location) ([]trajectory.ProjectedPoint, error) {
	cr := newReader(r)
	cols, err := readHeader(cr, ProjectedHeader...)
	if err != nil {
		return nil, err
	}
	var points []trajectory.ProjectedPoint
	err = eachRow(cr, func(_ int, row []string) error {
		p, err := parseProjected(cols, row, loc)
		if err != nil {
			return err
		}
		points = append(points, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

// WriteVelocities writes speed samples as a velocities CSV. Undefined
// displacement and speed are written as empty cells.
func WriteVelocities(w io.Writer, samples []flow.SpeedSample, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(VelocitiesHeader); err != nil {
		return err
	}
	for _, s := range samples {
		row := append(projectedRow(s.Point, loc), formatOptional(s.Displacement), formatOptional(s.Speed))
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadVelocities reads a velocities CSV. Empty cells become nil.
func ReadVelocities(r io.Reader, loc *time.Location) ([]flow.SpeedSample, error) {
	cr := newReader(r)
	cols, err := readHeader(cr, VelocitiesHeader...)
	if err != nil {
		return nil, err
	}
	var samples []flow.SpeedSample
	err = eachRow(cr, func(_ int, row []string) error {
		p, err := parseProjected(cols, row, loc)
		if err != nil {
			return err
		}
		disp, err := parseOptional(cols.get(row, "line_displacement_m"), "line_displacement_m")
		if err != nil {
			return err
		}
		speed, err := parseOptional(cols.get(row, "line_speed_mpy"), "line_speed_mpy")
		if err != nil {
			return err
		}
		samples = append(samples, flow.SpeedSample{Point: p, Displacement: disp, Speed: speed})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return samples, nil
}
