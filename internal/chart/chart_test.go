package chart

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/seenimoa/chartscout/pkg/models"
)

func testSeries(n int) models.HistorySeries {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	bars := make([]models.OHLCV, n)
	for i := range bars {
		c := 70_000 + float64(i*150)
		if i%3 == 0 {
			c -= 400
		}
		bars[i] = models.OHLCV{
			Timestamp: start.AddDate(0, 0, i),
			Open:      c - 100,
			High:      c + 300,
			Low:       c - 300,
			Close:     c,
			Volume:    int64(1_000_000 + i*1000),
		}
	}
	bars[n-1].Open = bars[n-1].Close + 200 // one falling bar
	return models.HistorySeries{Code: "005930", Bars: bars}
}

// ════════════════════════════════════════════════════════════════════
// PNG
// ════════════════════════════════════════════════════════════════════

func TestPNGRender(t *testing.T) {
	png, err := NewPNGRenderer().Render(testSeries(60), "005930", []int{5, 20, 120})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG\r\n\x1a\n")) {
		t.Errorf("output is not a PNG (first bytes %q)", png[:min(8, len(png))])
	}
}

func TestPNGRenderTooShort(t *testing.T) {
	r := &PNGRenderer{}
	full := testSeries(2)
	for _, n := range []int{0, 1} {
		_, err := r.Render(models.HistorySeries{Code: full.Code, Bars: full.Bars[:n]}, "x", nil)
		if !errors.Is(err, ErrEmptySeries) {
			t.Errorf("n=%d: err = %v, want ErrEmptySeries", n, err)
		}
	}
}

// ════════════════════════════════════════════════════════════════════
// SVG
// ════════════════════════════════════════════════════════════════════

func TestCandlestickSVG(t *testing.T) {
	svg := CandlestickSVG(testSeries(40), []int{5, 20, 60}, SVGConfig{Title: "삼성전자 <KOSPI>"})

	if !strings.HasPrefix(svg, "<svg") || !strings.HasSuffix(svg, "</svg>") {
		t.Fatal("not an svg document")
	}
	for _, want := range []string{"MA5", "MA20", upColor, downColor, "&lt;KOSPI&gt;", "₩"} {
		if !strings.Contains(svg, want) {
			t.Errorf("svg missing %q", want)
		}
	}
	if strings.Contains(svg, "MA60") {
		t.Error("MA60 drawn on a 40-bar series")
	}
}

func TestCandlestickSVGEmpty(t *testing.T) {
	svg := CandlestickSVG(models.HistorySeries{}, nil, SVGConfig{})
	if !strings.Contains(svg, "No data") {
		t.Errorf("got %s", svg)
	}
}

func TestEscapeXML(t *testing.T) {
	if got := escapeXML(`a & "b" <c>`); got != "a &amp; &quot;b&quot; &lt;c&gt;" {
		t.Errorf("escapeXML = %q", got)
	}
}
