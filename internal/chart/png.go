// Package chart renders price history for the model and for the web page.
//
// PNGRenderer draws the close line with moving-average overlays through
// go-chart; the PNG is what gets attached to the analysis prompt.
// CandlestickSVG draws an inline SVG for the HTML page.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/seenimoa/chartscout/pkg/models"
)

var (
	// ErrEmptySeries is returned when there are too few bars to draw a line.
	ErrEmptySeries = errors.New("chart: not enough bars to render")
	// ErrRender wraps failures inside the rendering library.
	ErrRender = errors.New("chart: render failed")
)

var overlayColors = []drawing.Color{
	{R: 0xff, G: 0x98, B: 0x00, A: 0xff},
	{R: 0x21, G: 0x96, B: 0xf3, A: 0xff},
	{R: 0x9c, G: 0x27, B: 0xb0, A: 0xff},
	{R: 0x4c, G: 0xaf, B: 0x50, A: 0xff},
}

// PNGRenderer renders history series to PNG images.
type PNGRenderer struct {
	Width  int
	Height int
}

// NewPNGRenderer returns a renderer sized for model input.
func NewPNGRenderer() *PNGRenderer {
	return &PNGRenderer{Width: 1000, Height: 500}
}

// Render draws the close line titled "<label> Chart Analysis" and one SMA
// overlay per window shorter than the series.
func (r *PNGRenderer) Render(series models.HistorySeries, label string, windows []int) ([]byte, error) {
	if series.Len() < 2 {
		return nil, fmt.Errorf("%w: %s has %d bars", ErrEmptySeries, series.Code, series.Len())
	}

	xs := make([]time.Time, series.Len())
	ys := make([]float64, series.Len())
	for i, b := range series.Bars {
		xs[i] = b.Timestamp
		ys[i] = b.Close
	}

	closeLine := gochart.TimeSeries{
		Name:    "Close",
		XValues: xs,
		YValues: ys,
		Style: gochart.Style{
			StrokeColor: drawing.ColorBlack,
			StrokeWidth: 1.5,
		},
	}

	list := []gochart.Series{closeLine}
	for i, w := range windows {
		if w <= 1 || w > series.Len() {
			continue
		}
		list = append(list, &gochart.SMASeries{
			Name:        fmt.Sprintf("MA%d", w),
			InnerSeries: closeLine,
			Period:      w,
			Style: gochart.Style{
				StrokeColor: overlayColors[i%len(overlayColors)],
				StrokeWidth: 1,
			},
		})
	}

	if label == "" {
		label = series.Code
	}
	graph := gochart.Chart{
		Title:  label + " Chart Analysis",
		Width:  r.width(),
		Height: r.height(),
		Background: gochart.Style{
			Padding: gochart.Box{Top: 40, Left: 10, Right: 10, Bottom: 10},
		},
		XAxis: gochart.XAxis{
			ValueFormatter: gochart.TimeDateValueFormatter,
		},
		Series: list,
	}
	graph.Elements = []gochart.Renderable{gochart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(gochart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRender, series.Code, err)
	}
	return buf.Bytes(), nil
}

func (r *PNGRenderer) width() int {
	if r.Width <= 0 {
		return 1000
	}
	return r.Width
}

func (r *PNGRenderer) height() int {
	if r.Height <= 0 {
		return 500
	}
	return r.Height
}
