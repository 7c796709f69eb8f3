package monitor

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/lostnav/internal/lost"
)

var (
	colorOccupied = color.RGBA{R: 90, G: 90, B: 90, A: 255}
	colorHit      = color.RGBA{R: 30, G: 160, B: 60, A: 255}
	colorMiss     = color.RGBA{R: 220, G: 40, B: 40, A: 255}
)

// PlotScene draws the scene as a PNG of size×size points.
func PlotScene(w io.Writer, sc Scene, size vg.Length) error {
	p := plot.New()
	p.Title.Text = "Scan vs map"
	if res := sc.Result; res != nil {
		p.Title.Text = fmt.Sprintf("Scan vs map: %d/%d hits, lost %.1f%%", res.OccupiedHits, res.Total, res.LostRate)
	}
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())
	p.X.Min, p.X.Max, p.Y.Min, p.Y.Max = sc.bounds()

	layers := []struct {
		name   string
		pts    []lost.Point
		color  color.Color
		radius vg.Length
	}{
		{"occupied", sc.Occupied, colorOccupied, vg.Points(0.8)},
		{"hits", sc.Hits, colorHit, vg.Points(2)},
		{"misses", sc.Misses, colorMiss, vg.Points(2)},
	}
	for _, l := range layers {
		if len(l.pts) == 0 {
			continue
		}
		xys := make(plotter.XYs, len(l.pts))
		for i, pt := range l.pts {
			xys[i] = plotter.XY{X: pt.X, Y: pt.Y}
		}
		s, err := plotter.NewScatter(xys)
		if err != nil {
			return fmt.Errorf("failed to create %s scatter: %w", l.name, err)
		}
		s.GlyphStyle.Color = l.color
		s.GlyphStyle.Radius = l.radius
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(s)
		p.Legend.Add(l.name, s)
	}
	p.Legend.Top = true

	wt, err := p.WriterTo(size, size, "png")
	if err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
