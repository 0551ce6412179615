// Package report renders projected tracks and speed series as PNG plots
// and HTML charts.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/flow.report/internal/flow"
	"github.com/banshee-data/flow.report/internal/terrain"
	"github.com/banshee-data/flow.report/internal/trajectory"
	"github.com/banshee-data/flow.report/internal/units"
)

// Default PNG dimensions.
const (
	DefaultWidth  = 12 * vg.Inch
	DefaultHeight = 8 * vg.Inch
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("nothing to plot")

// demGrid adapts a terrain grid to plotter.GridXYZ. Plot rows run south to
// north while grid rows run north to south.
type demGrid struct {
	g *terrain.Grid
}

func (d demGrid) Dims() (c, r int) { return d.g.Cols(), d.g.Rows() }

func (d demGrid) Z(c, r int) float64 {
	v, ok := d.g.At(d.g.Rows()-1-r, c)
	if !ok {
		return math.NaN()
	}
	return v
}

func (d demGrid) X(c int) float64 {
	gt := d.g.Transform()
	return gt.OriginX + (float64(c)+0.5)*gt.PixelWidth
}

func (d demGrid) Y(r int) float64 {
	gt := d.g.Transform()
	return gt.OriginY + (float64(d.g.Rows()-1-r)+0.5)*gt.PixelHeight
}

// TracksPlot draws every projected track over a heat map of the DEM. dem
// may be nil to draw the tracks alone.
func TracksPlot(dem *terrain.Grid, tracks []trajectory.ProjectedTrack) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Projected tracks"
	p.X.Label.Text = "Easting (m)"
	p.Y.Label.Text = "Northing (m)"

	drawn := 0
	if dem != nil {
		if lo, hi, ok := dem.Range(); ok {
			hm := plotter.NewHeatMap(demGrid{dem}, palette.Heat(32, 1))
			hm.NaN = color.Transparent
			if hi > lo {
				hm.Min, hm.Max = lo, hi
			}
			p.Add(hm)
			drawn++
		}
	}

	colors := trackColors(len(tracks))
	for i, track := range tracks {
		if len(track.Points) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(track.Points))
		for j, pt := range track.Points {
			pts[j] = plotter.XY{X: pt.Position.X, Y: pt.Position.Y}
		}
		line, scatter, err := plotter.NewLinePoints(pts)
		if err != nil {
			return nil, fmt.Errorf("track %s: %w", track.ID, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1.5)
		scatter.Color = colors[i]
		scatter.Radius = vg.Points(2)
		p.Add(line, scatter)
		p.Legend.Add(track.ID, line)
		drawn++
	}
	if drawn == 0 {
		return nil, ErrNoData
	}
	p.Legend.Top = true
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

// SpeedSeriesPlot draws the defined speeds of every series against time,
// converted to unit, plus the average over all series.
func SpeedSeriesPlot(series []flow.Series, unit string) (*plot.Plot, error) {
	if !units.IsValid(unit) {
		return nil, fmt.Errorf("invalid units %q (want %s)", unit, units.GetValidUnitsString())
	}
	p := plot.New()
	p.Title.Text = "Flow speed along the reference line"
	p.X.Label.Text = "Date"
	p.Y.Label.Text = "Speed (" + units.Label(unit) + ")"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	p.Add(plotter.NewGrid())

	drawn := 0
	colors := trackColors(len(series))
	for i, s := range series {
		pts := speedXYs(s.Samples, unit)
		if len(pts) == 0 {
			continue
		}
		line, scatter, err := plotter.NewLinePoints(pts)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", s.ID, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		scatter.Color = colors[i]
		scatter.Radius = vg.Points(1.5)
		p.Add(line, scatter)
		p.Legend.Add(s.ID, line)
		drawn++
	}
	if drawn == 0 {
		return nil, ErrNoData
	}

	avg := flow.AverageSeries(series)
	avgPts := make(plotter.XYs, len(avg))
	for i, a := range avg {
		avgPts[i] = plotter.XY{X: unixSeconds(a.Timestamp), Y: units.ConvertRate(a.Speed, unit)}
	}
	avgLine, err := plotter.NewLine(avgPts)
	if err != nil {
		return nil, fmt.Errorf("average: %w", err)
	}
	avgLine.Color = color.Black
	avgLine.Width = vg.Points(2.5)
	avgLine.Dashes = []vg.Length{vg.Points(6), vg.Points(3)}
	p.Add(avgLine)
	p.Legend.Add("average", avgLine)

	p.Legend.Top = true
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p, nil
}

func speedXYs(samples []flow.SpeedSample, unit string) plotter.XYs {
	pts := make(plotter.XYs, 0, len(samples))
	for _, s := range samples {
		if s.Speed == nil {
			continue
		}
		pts = append(pts, plotter.XY{X: unixSeconds(s.Point.Timestamp), Y: units.ConvertRate(*s.Speed, unit)})
	}
	return pts
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// WritePNG renders p as a PNG of the given size.
func WritePNG(w io.Writer, p *plot.Plot, width, height vg.Length) error {
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("render plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write plot: %w", err)
	}
	return nil
}
