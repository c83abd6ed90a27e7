package prompts

import (
	"fmt"
	"slices"
	"strings"

	"github.com/seenimoa/chartscout/pkg/models"
	"github.com/seenimoa/chartscout/pkg/utils"
)

// IndicatorContext is the numeric summary sent next to the chart image.
type IndicatorContext struct {
	Bars        int
	Close       float64
	ChangePct   float64
	MovingAvgs  map[int]float64
	VolumeRatio float64
	RSI         float64 // zero when not computed
	BandUpper   float64 // Bollinger(20, 2); zero when not computed
	BandLower   float64
}

// ChartRequest is the user turn that accompanies a chart image.
type ChartRequest struct {
	Code       string
	Name       string
	Market     string
	Indicators *IndicatorContext
	Theme      string
}

// Render builds the user message text.
func (r ChartRequest) Render() string {
	var b strings.Builder
	b.WriteString(FormatTickerPrompt(r.Code, r.Name, r.Market))

	if ic := r.Indicators; ic != nil {
		b.WriteString("\n## 참고 수치 (최근 봉 기준)\n")
		fmt.Fprintf(&b, "- 종가: %s (%s), 봉 개수: %d\n", utils.FormatKRW(ic.Close), utils.FormatPct(ic.ChangePct), ic.Bars)

		windows := make([]int, 0, len(ic.MovingAvgs))
		for w := range ic.MovingAvgs {
			windows = append(windows, w)
		}
		slices.Sort(windows)
		for _, w := range windows {
			fmt.Fprintf(&b, "- %d일 이동평균: %s\n", w, utils.FormatKRW(ic.MovingAvgs[w]))
		}
		if ic.VolumeRatio > 0 {
			fmt.Fprintf(&b, "- 거래량 전일 대비: %.2f배\n", ic.VolumeRatio)
		}
		if ic.RSI > 0 {
			fmt.Fprintf(&b, "- RSI(14): %.1f\n", ic.RSI)
		}
		if ic.BandUpper > 0 {
			fmt.Fprintf(&b, "- 볼린저밴드(20,2): 상단 %s / 하단 %s\n", utils.FormatKRW(ic.BandUpper), utils.FormatKRW(ic.BandLower))
		}
	}

	if t := strings.TrimSpace(r.Theme); t != "" {
		b.WriteString("\n## 오늘의 시장 테마\n")
		b.WriteString(t)
		b.WriteString("\n")
	}

	b.WriteString("\n첨부된 차트 이미지를 위 기준과 형식에 맞춰 분석해주세요.")
	return b.String()
}

// ThemeRequest renders the headlines for the theme writer, newest first.
func ThemeRequest(headlines []models.NewsArticle) string {
	var b strings.Builder
	b.WriteString("## 최근 경제 뉴스 헤드라인\n")
	for i, h := range headlines {
		fmt.Fprintf(&b, "%d. %s", i+1, h.Title)
		if h.Source != "" {
			fmt.Fprintf(&b, " (%s)", h.Source)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n위 헤드라인을 바탕으로 오늘의 시장 테마를 요약해주세요.")
	return b.String()
}
