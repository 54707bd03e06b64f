// Package report renders recorded runs: an interactive HTML page with the
// trajectory map, object speeds and step timing, plus a static PNG figure of
// the trajectory.
package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/fgtrack.report/internal/storage/sqlite"
)

// Data bundles everything loaded for one run.
type Data struct {
	Run        sqlite.Run
	Trajectory []sqlite.TrajectoryPoint
	Objects    map[int][]sqlite.ObjectSample
	Steps      []sqlite.StepRecord
}

// WriteHTML renders the full run page to w.
func WriteHTML(w io.Writer, d Data) error {
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("run %s", d.Run.ID)
	page.AddCharts(
		trajectoryChart(d),
		speedChart(d),
		timingChart(d),
	)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render run page: %w", err)
	}
	return nil
}

// WriteHTMLFile renders the run page to path.
func WriteHTMLFile(path string, d Data) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}
	if err := WriteHTML(f, d); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func objectIndices(objects map[int][]sqlite.ObjectSample) []int {
	ids := make([]int, 0, len(objects))
	for id := range objects {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// trajectoryChart is a top-down XY view: the ego keyframe path plus one
// scatter series per tracked object.
func trajectoryChart(d Data) components.Charter {
	scatter := charts.NewScatter()

	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	grow := func(x, y float64) {
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}

	ego := make([]opts.ScatterData, 0, len(d.Trajectory))
	for _, p := range d.Trajectory {
		ego = append(ego, opts.ScatterData{Value: []interface{}{p.Pose.T.X, p.Pose.T.Y}})
		grow(p.Pose.T.X, p.Pose.T.Y)
	}

	pad := 1.0
	if len(ego) > 0 || len(d.Objects) > 0 {
		for _, id := range objectIndices(d.Objects) {
			for _, s := range d.Objects[id] {
				grow(s.Pose.T.X, s.Pose.T.Y)
			}
		}
		pad = math.Max(maxX-minX, maxY-minY)*0.05 + 1
	} else {
		minX, maxX, minY, maxY = -1, 1, -1, 1
	}

	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Trajectory",
			Subtitle: fmt.Sprintf("keyframes=%d objects=%d", len(d.Trajectory), len(d.Objects)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: minX - pad, Max: maxX + pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: minY - pad, Max: maxY + pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)

	scatter.AddSeries("ego", ego, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	for _, id := range objectIndices(d.Objects) {
		data := make([]opts.ScatterData, 0, len(d.Objects[id]))
		for _, s := range d.Objects[id] {
			data = append(data, opts.ScatterData{Value: []interface{}{s.Pose.T.X, s.Pose.T.Y}})
		}
		scatter.AddSeries(fmt.Sprintf("object %d", id), data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	}
	return scatter
}

// speedChart plots each object's ground speed over time. The stored velocity
// is a per-second body-frame motion, so speed is its translation norm.
func speedChart(d Data) components.Charter {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Object speeds"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "t (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "speed (m/s)"}),
	)

	for _, id := range objectIndices(d.Objects) {
		samples := d.Objects[id]
		data := make([]opts.LineData, 0, len(samples))
		for _, s := range samples {
			data = append(data, opts.LineData{Value: []interface{}{s.Stamp, s.Velocity.T.Norm()}})
		}
		line.AddSeries(fmt.Sprintf("object %d", id), data)
	}
	return line
}

// timingChart plots per-step processing time, with keyframe steps as a
// second series so spikes can be attributed.
func timingChart(d Data) components.Charter {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Step timing"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "t (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "elapsed (ms)"}),
	)

	all := make([]opts.LineData, 0, len(d.Steps))
	key := make([]opts.LineData, 0, len(d.Steps))
	for _, s := range d.Steps {
		all = append(all, opts.LineData{Value: []interface{}{s.Stamp, s.ElapsedMS}})
		if s.Keyframe {
			key = append(key, opts.LineData{Value: []interface{}{s.Stamp, s.ElapsedMS}})
		}
	}
	line.AddSeries("all steps", all)
	line.AddSeries("keyframe steps", key)
	return line
}
