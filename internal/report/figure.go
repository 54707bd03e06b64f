package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var objectPalette = []color.RGBA{
	{R: 214, G: 69, B: 65, A: 255},
	{R: 68, G: 108, B: 179, A: 255},
	{R: 38, G: 166, B: 91, A: 255},
	{R: 244, G: 179, B: 80, A: 255},
	{R: 155, G: 89, B: 182, A: 255},
}

// SaveTrajectoryPNG writes a static top-down figure of the ego path and the
// tracked object paths.
func SaveTrajectoryPNG(path string, d Data) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("run %s", d.Run.ID)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	egoPts := make(plotter.XYs, len(d.Trajectory))
	for i, t := range d.Trajectory {
		egoPts[i].X = t.Pose.T.X
		egoPts[i].Y = t.Pose.T.Y
	}
	egoLine, err := plotter.NewLine(egoPts)
	if err != nil {
		return fmt.Errorf("ego line: %w", err)
	}
	egoLine.Width = vg.Points(2)
	egoLine.Color = color.RGBA{A: 255}
	p.Add(egoLine)
	p.Legend.Add("ego", egoLine)

	for i, id := range objectIndices(d.Objects) {
		samples := d.Objects[id]
		pts := make(plotter.XYs, len(samples))
		for j, s := range samples {
			pts[j].X = s.Pose.T.X
			pts[j].Y = s.Pose.T.Y
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("object %d line: %w", id, err)
		}
		line.Width = vg.Points(1)
		line.Color = objectPalette[i%len(objectPalette)]
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("object %d", id), line)
	}

	if err := p.Save(10*vg.Inch, 10*vg.Inch, path); err != nil {
		return fmt.Errorf("save figure %s: %w", path, err)
	}
	return nil
}
