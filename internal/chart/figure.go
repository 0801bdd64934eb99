// Package chart draws the figures analysis code builds through the plt and
// sns namespaces and stores them as uniquely named artifacts.
package chart

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Default figure size in inches, matching a 10x6 matplotlib figure.
const (
	DefaultWidth  = 10.0
	DefaultHeight = 6.0
)

// Figure is one plot under construction.
type Figure struct {
	plot   *plot.Plot
	width  vg.Length
	height vg.Length
	layers int
}

// NewFigure starts an empty figure. Non-positive sizes use the defaults.
func NewFigure(widthIn, heightIn float64) *Figure {
	if widthIn <= 0 {
		widthIn = DefaultWidth
	}
	if heightIn <= 0 {
		heightIn = DefaultHeight
	}
	p := plot.New()
	p.Add(plotter.NewGrid())
	return &Figure{plot: p, width: vg.Length(widthIn) * vg.Inch, height: vg.Length(heightIn) * vg.Inch}
}

// Empty reports whether nothing has been drawn.
func (f *Figure) Empty() bool {
	return f.layers == 0
}

func (f *Figure) nextColor() color.Color {
	c := plotutil.Color(f.layers)
	f.layers++
	return c
}

// SetTitle sets the figure title.
func (f *Figure) SetTitle(s string) { f.plot.Title.Text = s }

// SetXLabel sets the x axis label.
func (f *Figure) SetXLabel(s string) { f.plot.X.Label.Text = s }

// SetYLabel sets the y axis label.
func (f *Figure) SetYLabel(s string) { f.plot.Y.Label.Text = s }

// Hist draws a histogram. bins <= 0 picks 10.
func (f *Figure) Hist(values []float64, bins int) error {
	if len(values) == 0 {
		return fmt.Errorf("hist: no numeric values to plot")
	}
	if bins <= 0 {
		bins = 10
	}
	h, err := plotter.NewHist(plotter.Values(values), bins)
	if err != nil {
		return fmt.Errorf("hist: %w", err)
	}
	h.FillColor = f.nextColor()
	f.plot.Add(h)
	if f.plot.Y.Label.Text == "" {
		f.plot.Y.Label.Text = "Count"
	}
	return nil
}

// Bar draws one bar per label.
func (f *Figure) Bar(labels []string, values []float64) error {
	if len(labels) != len(values) {
		return fmt.Errorf("bar: %d labels for %d values", len(labels), len(values))
	}
	if len(values) == 0 {
		return fmt.Errorf("bar: no values to plot")
	}
	b, err := plotter.NewBarChart(plotter.Values(values), vg.Points(20))
	if err != nil {
		return fmt.Errorf("bar: %w", err)
	}
	b.Color = f.nextColor()
	b.LineStyle.Width = vg.Length(0)
	f.plot.Add(b)
	f.plot.NominalX(labels...)
	return nil
}

func points(xs, ys []float64) (plotter.XYs, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("x has %d values, y has %d", len(xs), len(ys))
	}
	if len(xs) == 0 {
		return nil, fmt.Errorf("no points to plot")
	}
	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i].X, pts[i].Y = xs[i], ys[i]
	}
	return pts, nil
}

// Line draws a polyline through the points.
func (f *Figure) Line(xs, ys []float64) error {
	pts, err := points(xs, ys)
	if err != nil {
		return fmt.Errorf("plot: %w", err)
	}
	l, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("plot: %w", err)
	}
	l.Color = f.nextColor()
	f.plot.Add(l)
	return nil
}

// Scatter draws unconnected points.
func (f *Figure) Scatter(xs, ys []float64) error {
	pts, err := points(xs, ys)
	if err != nil {
		return fmt.Errorf("scatter: %w", err)
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("scatter: %w", err)
	}
	s.Color = f.nextColor()
	f.plot.Add(s)
	return nil
}

// Box draws one box per group. labels may be nil for a single group.
func (f *Figure) Box(labels []string, groups [][]float64) error {
	if len(groups) == 0 {
		return fmt.Errorf("boxplot: no values to plot")
	}
	if labels != nil && len(labels) != len(groups) {
		return fmt.Errorf("boxplot: %d labels for %d groups", len(labels), len(groups))
	}
	for i, g := range groups {
		if len(g) == 0 {
			return fmt.Errorf("boxplot: group %d has no numeric values", i)
		}
		b, err := plotter.NewBoxPlot(vg.Points(20), float64(i), plotter.Values(g))
		if err != nil {
			return fmt.Errorf("boxplot: %w", err)
		}
		b.FillColor = f.nextColor()
		f.plot.Add(b)
	}
	if labels != nil {
		f.plot.NominalX(labels...)
	}
	return nil
}
