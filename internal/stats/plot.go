package stats

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"stickreach/internal/model"
)

// WriteFitnessPlot renders best, elite mean and mean fitness per generation
// as a PNG at path.
func WriteFitnessPlot(path, title string, history []model.GenerationStats) error {
	if len(history) == 0 {
		return fmt.Errorf("fitness history is empty")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s fitness", title)
	p.X.Label.Text = "generation"
	p.Y.Label.Text = "fitness"
	p.Add(plotter.NewGrid())

	series := []struct {
		name  string
		color color.RGBA
		value func(model.GenerationStats) float64
	}{
		{"best", color.RGBA{R: 200, A: 255}, func(g model.GenerationStats) float64 { return g.BestFitness }},
		{"elite mean", color.RGBA{G: 140, A: 255}, func(g model.GenerationStats) float64 { return g.EliteMeanFitness }},
		{"mean", color.RGBA{B: 200, A: 255}, func(g model.GenerationStats) float64 { return g.MeanFitness }},
	}
	for _, s := range series {
		pts := make(plotter.XYs, len(history))
		for i, gen := range history {
			pts[i].X = float64(gen.Generation)
			pts[i].Y = s.value(gen)
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = s.color
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true
	p.Legend.Left = false

	return p.Save(8*vg.Inch, 5*vg.Inch, path)
}
