// Package export writes projected tracks as CloudCompare-compatible ASCII
// point clouds.
package export

import (
	"bufio"
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/flow.report/internal/flow"
	"github.com/banshee-data/flow.report/internal/fsutil"
	"github.com/banshee-data/flow.report/internal/monitoring"
	"github.com/banshee-data/flow.report/internal/security"
	"github.com/banshee-data/flow.report/internal/trajectory"
)

// PointASC is a point with extra columns, written as "X Y Z extra...".
type PointASC struct {
	X, Y, Z float64
	Extra   []interface{}
}

// TrajectoryColumns names the extra columns of TrajectoryPoints.
const TrajectoryColumns = " Timestamp Index"

// SpeedColumns names the extra columns of SpeedPoints.
const SpeedColumns = " Timestamp Index SpeedMPY"

// TrajectoryPoints converts a projected track into points carrying the
// unix timestamp and the sample index.
func TrajectoryPoints(track trajectory.ProjectedTrack) []PointASC {
	out := make([]PointASC, len(track.Points))
	for i, p := range track.Points {
		out[i] = PointASC{
			X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z,
			Extra: []interface{}{p.Timestamp.Unix(), i},
		}
	}
	return out
}

// SpeedPoints converts a speed series into points carrying the unix
// timestamp, the sample index and the speed. Undefined speeds are written
// as nan, which CloudCompare reads as an invalid scalar.
func SpeedPoints(samples []flow.SpeedSample) []PointASC {
	out := make([]PointASC, len(samples))
	for i, s := range samples {
		speed := math.NaN()
		if s.Speed != nil {
			speed = *s.Speed
		}
		p := s.Point.Position
		out[i] = PointASC{
			X: p.X, Y: p.Y, Z: p.Z,
			Extra: []interface{}{s.Point.Timestamp.Unix(), i, speed},
		}
	}
	return out
}

// WriteASC writes points to w. extraHeader describes the extra columns.
func WriteASC(w io.Writer, points []PointASC, extraHeader string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# Exported points\n")
	fmt.Fprintf(bw, "# Format: X Y Z%s\n", extraHeader)
	for _, p := range points {
		fmt.Fprintf(bw, "%.6f %.6f %.6f", p.X, p.Y, p.Z)
		for _, col := range p.Extra {
			switch v := col.(type) {
			case int:
				fmt.Fprintf(bw, " %d", v)
			case int64:
				fmt.Fprintf(bw, " %d", v)
			case float64:
				if math.IsNaN(v) {
					fmt.Fprint(bw, " nan")
					continue
				}
				fmt.Fprintf(bw, " %.6f", v)
			default:
				fmt.Fprintf(bw, " %v", v)
			}
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// WriteTrajectoryASC writes a projected track to <outDir>/<id>.asc and
// returns the path written. The file name is derived from the track ID and
// confined to outDir.
func WriteTrajectoryASC(fsys fsutil.FileSystem, outDir string, track trajectory.ProjectedTrack) (string, error) {
	return writeFile(fsys, outDir, track.ID+".asc", TrajectoryPoints(track), TrajectoryColumns)
}

// WriteSpeedsASC writes a speed series to <outDir>/<id>_speeds.asc.
func WriteSpeedsASC(fsys fsutil.FileSystem, outDir string, series flow.Series) (string, error) {
	return writeFile(fsys, outDir, series.ID+"_speeds.asc", SpeedPoints(series.Samples), SpeedColumns)
}

func writeFile(fsys fsutil.FileSystem, outDir, name string, points []PointASC, extraHeader string) (string, error) {
	if len(points) == 0 {
		return "", fmt.Errorf("no points to export")
	}
	path, err := security.OutputPath(outDir, name)
	if err != nil {
		return "", fmt.Errorf("invalid export path: %w", err)
	}
	if err := fsys.MkdirAll(outDir, 0755); err != nil {
		return "", err
	}
	f, err := fsys.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteASC(f, points, extraHeader); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	monitoring.Logf("Exported %d points to %s", len(points), path)
	return path, nil
}
