// Package plot draws the up-versus-down comparison charts of a sample.
package plot

import (
	"bytes"
	"fmt"
	"image/color"
	"log/slog"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"enrich/internal/domain"
)

// minAdjustedP keeps the log transform finite for adjusted p-values reported as 0.
const minAdjustedP = 1e-300

var (
	upColor   = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	downColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
)

// Bar is one horizontal bar of a comparison chart.
type Bar struct {
	Term      string
	Direction domain.Direction
	Value     float64
}

// Bars truncates both tables to their first topN rows and computes the bar
// magnitudes: -log10(adj) for up-regulated terms and +log10(adj) for
// down-regulated ones. Up bars come first.
func Bars(up, down *domain.ResultTable, topN int) []Bar {
	upRows, downRows := up.Head(topN), down.Head(topN)
	bars := make([]Bar, 0, len(upRows)+len(downRows))
	for _, r := range upRows {
		bars = append(bars, Bar{Term: r.Term, Direction: domain.Upregulated, Value: -log10(r.AdjustedPValue)})
	}
	for _, r := range downRows {
		bars = append(bars, Bar{Term: r.Term, Direction: domain.Downregulated, Value: log10(r.AdjustedPValue)})
	}
	return bars
}

func log10(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	if p < minAdjustedP {
		p = minAdjustedP
	}
	return math.Log10(p)
}

// Renderer implements domain.ChartRenderer with gonum/plot.
type Renderer struct {
	logger *slog.Logger
}

func NewRenderer(logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{logger: logger.With(slog.String("component", "visualizer"))}
}

// Compare renders a PNG chart. It returns nil bytes and no error when both
// truncated inputs are empty.
func (r *Renderer) Compare(up, down *domain.ResultTable, title string, topN int) ([]byte, error) {
	bars := Bars(up, down, topN)
	if len(bars) == 0 {
		r.logger.Warn("nothing to plot", slog.String("title", title))
		return nil, nil
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "-log10(Adjusted P-value)"
	p.Y.Label.Text = "Term"
	p.Legend.Top = true

	labels := make([]string, len(bars))
	var upVals, downVals plotter.Values
	for i, b := range bars {
		labels[i] = b.Term
		if b.Direction == domain.Upregulated {
			upVals = append(upVals, b.Value)
		} else {
			downVals = append(downVals, b.Value)
		}
	}

	width := vg.Points(12)
	if len(upVals) > 0 {
		bc, err := newBars(upVals, width, upColor, 0)
		if err != nil {
			return nil, err
		}
		p.Add(bc)
		p.Legend.Add(string(domain.Upregulated), bc)
	}
	if len(downVals) > 0 {
		bc, err := newBars(downVals, width, downColor, float64(len(upVals)))
		if err != nil {
			return nil, err
		}
		p.Add(bc)
		p.Legend.Add(string(domain.Downregulated), bc)
	}

	zero, err := plotter.NewLine(plotter.XYs{{X: 0, Y: -0.5}, {X: 0, Y: float64(len(bars)) - 0.5}})
	if err != nil {
		return nil, err
	}
	zero.LineStyle.Width = vg.Points(0.8)
	zero.LineStyle.Color = color.Black
	p.Add(zero)
	p.NominalY(labels...)

	height := math.Max(3, 0.4*float64(len(bars)))
	wt, err := p.WriterTo(14*vg.Inch, vg.Length(height)*vg.Inch, "png")
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", title, err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode %s: %w", title, err)
	}
	r.logger.Debug("rendered chart", slog.String("title", title), slog.Int("bars", len(bars)))
	return buf.Bytes(), nil
}

func newBars(vals plotter.Values, width vg.Length, c color.Color, offset float64) (*plotter.BarChart, error) {
	bc, err := plotter.NewBarChart(vals, width)
	if err != nil {
		return nil, err
	}
	bc.Horizontal = true
	bc.Color = c
	bc.LineStyle.Width = 0
	bc.XMin = offset
	return bc, nil
}
