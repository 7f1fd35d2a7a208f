package physics

import (
	"bytes"
	"fmt"
	"image/color"
	"math"

	"github.com/m4xw311/nima/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const plotPoints = 1000

var (
	blue    = color.RGBA{B: 200, A: 255}
	red     = color.RGBA{R: 200, A: 255}
	green   = color.RGBA{G: 150, A: 255}
	magenta = color.RGBA{R: 180, B: 180, A: 255}
)

type series struct {
	label string
	color color.Color
	fn    func(float64) float64
}

// RenderQuarkPlots draws a 2×2 PNG: the quark distributions, the u/d ratio,
// both cross sections and the σ1/σ2 ratio.
func RenderQuarkPlots(params Params) ([]byte, error) {
	ratio := func(num, den func(float64) float64) func(float64) float64 {
		return func(x float64) float64 {
			d := den(x)
			if d <= 0 {
				return math.NaN()
			}
			return num(x) / d
		}
	}

	grid := [][]struct {
		title, ylabel string
		series        []series
	}{
		{
			{"Quark Distributions", "PDF", []series{{"u-quark", blue, params.U}, {"d-quark", red, params.D}}},
			{"u/d Ratio", "Ratio", []series{{"", green, ratio(params.U, params.D)}}},
		},
		{
			{"Cross Sections", "Cross Section", []series{{"σ1 = 4u + d", blue, params.Sigma1}, {"σ2 = 4d + u", red, params.Sigma2}}},
			{"σ1/σ2 Ratio", "Ratio", []series{{"", magenta, ratio(params.Sigma1, params.Sigma2)}}},
		},
	}

	plots := make([][]*plot.Plot, len(grid))
	for j, row := range grid {
		plots[j] = make([]*plot.Plot, len(row))
		for i, cell := range row {
			p, err := newPanel(cell.title, cell.ylabel, cell.series)
			if err != nil {
				return nil, errors.Wrapf(err, "could not build %s panel", cell.title)
			}
			plots[j][i] = p
		}
	}
	plots[0][0].Title.Text = fmt.Sprintf("Quark Distributions %v", params[:])

	img := vgimg.New(12*vg.Inch, 10*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      2,
		Cols:      2,
		PadX:      vg.Millimeter * 4,
		PadY:      vg.Millimeter * 4,
		PadTop:    vg.Millimeter * 2,
		PadBottom: vg.Millimeter * 2,
		PadLeft:   vg.Millimeter * 2,
		PadRight:  vg.Millimeter * 2,
	}
	canvases := plot.Align(plots, tiles, dc)
	for j := range plots {
		for i := range plots[j] {
			plots[j][i].Draw(canvases[j][i])
		}
	}

	var buf bytes.Buffer
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(&buf); err != nil {
		return nil, errors.Wrapf(err, "could not encode plot")
	}
	return buf.Bytes(), nil
}

func newPanel(title, ylabel string, ss []series) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Momentum Fraction (x)"
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())

	for _, s := range ss {
		line, err := plotter.NewLine(sampleXYs(s.fn))
		if err != nil {
			return nil, err
		}
		line.LineStyle.Color = s.color
		line.LineStyle.Width = vg.Points(2)
		p.Add(line)
		if s.label != "" {
			p.Legend.Add(s.label, line)
		}
	}
	p.Legend.Top = true
	return p, nil
}

// sampleXYs evaluates fn on an even grid over [XMin, XMax), dropping points
// that are not finite.
func sampleXYs(fn func(float64) float64) plotter.XYs {
	pts := make(plotter.XYs, 0, plotPoints)
	for i := 0; i < plotPoints; i++ {
		x := XMin + (XMax-XMin)*float64(i)/float64(plotPoints)
		y := fn(x)
		if math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: x, Y: y})
	}
	return pts
}
