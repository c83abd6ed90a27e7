package chart

import (
	"fmt"
	"math"
	"strings"

	"github.com/seenimoa/chartscout/internal/analysis/technical"
	"github.com/seenimoa/chartscout/pkg/models"
	"github.com/seenimoa/chartscout/pkg/utils"
)

// ════════════════════════════════════════════════════════════════════
// SVG candlesticks for the web page
// ════════════════════════════════════════════════════════════════════

// SVGConfig holds rendering parameters for SVG charts.
type SVGConfig struct {
	Width        int
	Height       int
	MarginTop    int
	MarginRight  int
	MarginBottom int
	MarginLeft   int
	Background   string
	Grid         string
	Text         string
	FontSize     int
	Title        string
}

// DefaultSVGConfig returns the page chart size.
func DefaultSVGConfig() SVGConfig {
	return SVGConfig{
		Width:        800,
		Height:       400,
		MarginTop:    40,
		MarginRight:  20,
		MarginBottom: 50,
		MarginLeft:   90,
		Background:   "#ffffff",
		Grid:         "#e8e8e8",
		Text:         "#333333",
		FontSize:     11,
	}
}

func (c SVGConfig) plotArea() (x, y, w, h int) {
	return c.MarginLeft, c.MarginTop,
		c.Width - c.MarginLeft - c.MarginRight,
		c.Height - c.MarginTop - c.MarginBottom
}

// Korean convention: rising bars red, falling bars blue.
const (
	upColor   = "#d32f2f"
	downColor = "#1565c0"
)

var svgOverlayColors = []string{"#ff9800", "#2196f3", "#9c27b0", "#4caf50"}

// CandlestickSVG draws OHLC candles with a volume strip and an SMA line per
// window.
func CandlestickSVG(series models.HistorySeries, windows []int, cfg SVGConfig) string {
	bars := series.Bars
	if cfg.Width == 0 {
		title := cfg.Title
		cfg = DefaultSVGConfig()
		cfg.Title = title
	}
	if len(bars) == 0 {
		return emptySVG(cfg, "No data")
	}
	if cfg.Title == "" {
		cfg.Title = series.Code
	}

	px, py, pw, ph := cfg.plotArea()
	volH := float64(ph) * 0.2
	priceH := float64(ph) - volH

	lo, hi := bars[0].Low, bars[0].High
	var maxVol int64
	for _, b := range bars {
		lo = math.Min(lo, b.Low)
		hi = math.Max(hi, b.High)
		if b.Volume > maxVol {
			maxVol = b.Volume
		}
	}
	span := hi - lo
	if span < 0.01 {
		span = 1
	}
	lo -= span * 0.05
	hi += span * 0.05
	span = hi - lo

	n := len(bars)
	step := float64(pw) / float64(n)
	body := math.Min(step, 12) * 0.7
	xAt := func(i int) float64 { return float64(px) + float64(i)*step + step/2 }
	yAt := func(p float64) float64 { return float64(py) + priceH - (p-lo)/span*priceH }

	var sb strings.Builder
	fmt.Fprintf(&sb, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" font-family="sans-serif">`,
		cfg.Width, cfg.Height, cfg.Width, cfg.Height)
	fmt.Fprintf(&sb, `<rect width="%d" height="%d" fill="%s"/>`, cfg.Width, cfg.Height, cfg.Background)
	fmt.Fprintf(&sb, `<text x="%d" y="22" font-size="14" font-weight="bold" fill="%s" text-anchor="middle">%s</text>`,
		cfg.Width/2, cfg.Text, escapeXML(cfg.Title))

	const gridLines = 5
	for i := 0; i <= gridLines; i++ {
		p := lo + span*float64(i)/gridLines
		y := yAt(p)
		fmt.Fprintf(&sb, `<line x1="%d" y1="%.1f" x2="%d" y2="%.1f" stroke="%s" stroke-dasharray="3,3"/>`,
			px, y, px+pw, y, cfg.Grid)
		fmt.Fprintf(&sb, `<text x="%d" y="%.1f" font-size="%d" fill="%s" text-anchor="end">%s</text>`,
			px-5, y+4, cfg.FontSize, cfg.Text, utils.FormatKRW(p))
	}

	for i, b := range bars {
		color := upColor
		if !b.Bullish() {
			color = downColor
		}
		cx := xAt(i)

		if maxVol > 0 {
			vh := float64(b.Volume) / float64(maxVol) * volH
			fmt.Fprintf(&sb, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s" opacity="0.3"/>`,
				cx-body/2, float64(py+ph)-vh, body, vh, color)
		}

		fmt.Fprintf(&sb, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="%s"/>`,
			cx, yAt(b.High), cx, yAt(b.Low), color)
		top, bottom := yAt(math.Max(b.Open, b.Close)), yAt(math.Min(b.Open, b.Close))
		fmt.Fprintf(&sb, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s"/>`,
			cx-body/2, top, body, math.Max(bottom-top, 1), color)
	}

	closes := series.Closes()
	drawn := 0
	for _, w := range windows {
		sma := technical.SMA(closes, w)
		if sma == nil {
			continue
		}
		color := svgOverlayColors[drawn%len(svgOverlayColors)]
		var path strings.Builder
		for i := w - 1; i < n; i++ {
			cmd := 'L'
			if i == w-1 {
				cmd = 'M'
			}
			fmt.Fprintf(&path, "%c%.1f,%.1f ", cmd, xAt(i), yAt(sma[i]))
		}
		fmt.Fprintf(&sb, `<path d="%s" fill="none" stroke="%s" stroke-width="1.5"/>`,
			strings.TrimSpace(path.String()), color)

		ly := py + 12 + drawn*16
		fmt.Fprintf(&sb, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s" stroke-width="2"/>`,
			px+10, ly, px+30, ly, color)
		fmt.Fprintf(&sb, `<text x="%d" y="%d" font-size="10" fill="%s">MA%d</text>`,
			px+35, ly+4, cfg.Text, w)
		drawn++
	}

	every := max(n/6, 1)
	for i := 0; i < n; i += every {
		fmt.Fprintf(&sb, `<text x="%.1f" y="%d" font-size="%d" fill="%s" text-anchor="middle">%s</text>`,
			xAt(i), py+ph+18, cfg.FontSize-1, cfg.Text, bars[i].Timestamp.Format("01/02"))
	}

	sb.WriteString("</svg>")
	return sb.String()
}

func emptySVG(cfg SVGConfig, msg string) string {
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d"><rect width="%d" height="%d" fill="#f5f5f5"/><text x="%d" y="%d" text-anchor="middle" fill="#999" font-size="14">%s</text></svg>`,
		cfg.Width, cfg.Height, cfg.Width, cfg.Height, cfg.Width/2, cfg.Height/2, escapeXML(msg))
}

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func escapeXML(s string) string { return xmlEscaper.Replace(s) }
