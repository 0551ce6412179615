package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/flow.report/internal/flow"
	"github.com/banshee-data/flow.report/internal/units"
)

// AssetsHost serves the echarts JavaScript for rendered charts.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

func lineData(samples []flow.SpeedSample, unit string) []opts.LineData {
	data := make([]opts.LineData, 0, len(samples))
	for _, s := range samples {
		if s.Speed == nil {
			continue
		}
		data = append(data, opts.LineData{
			Name:  s.Point.Filename,
			Value: []interface{}{s.Point.Timestamp.UnixMilli(), units.ConvertRate(*s.Speed, unit)},
		})
	}
	return data
}

// SpeedChart builds an HTML line chart of every series plus the average.
func SpeedChart(series []flow.Series, unit string) (*charts.Line, error) {
	if !units.IsValid(unit) {
		return nil, fmt.Errorf("invalid units %q (want %s)", unit, units.GetValidUnitsString())
	}
	label := units.Label(unit)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Flow speed", Width: "100%", Height: "720px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Flow speed along the reference line", Subtitle: fmt.Sprintf("tracks=%d units=%s", len(series), label)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Type: "scroll"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "time", Name: "Date", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Speed (" + label + ")", NameLocation: "middle", NameGap: 50}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
	)

	colors := trackColors(len(series))
	for i, s := range series {
		line.AddSeries(s.ID, lineData(s.Samples, unit),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(colors[i])}),
		)
	}

	avg := flow.AverageSeries(series)
	avgData := make([]opts.LineData, len(avg))
	for i, a := range avg {
		avgData[i] = opts.LineData{Value: []interface{}{a.Timestamp.UnixMilli(), units.ConvertRate(a.Speed, unit)}}
	}
	line.AddSeries("average", avgData,
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#000000"}),
		charts.WithLineStyleOpts(opts.LineStyle{Width: 3, Type: "dashed"}),
	)
	return line, nil
}

// RenderSpeedChart writes the HTML page of SpeedChart to w.
func RenderSpeedChart(w io.Writer, series []flow.Series, unit string) error {
	line, err := SpeedChart(series, unit)
	if err != nil {
		return err
	}
	return line.Render(w)
}
