package prompts

import (
	"fmt"
	"strings"
)

// ── Korean Market–Specific Context ──

// KoreanMarketContext gives the model the trading rules it needs to read a
// KRX daily chart.
const KoreanMarketContext = `
## 한국 시장 참고
- 거래소: KRX (유가증권시장 KOSPI / 코스닥 KOSDAQ)
- 통화: 원 (₩ / KRW)
- 정규장: 09:00 – 15:30 KST (동시호가 08:30–09:00, 15:20–15:30)
- 가격제한폭: 전일 종가 대비 ±30%
- 결제: T+2
- 차트 색상: 상승 빨강, 하락 파랑
`

// KoreanNumberFormat describes how prices should be written back.
const KoreanNumberFormat = `
## 숫자 표기
- 가격은 원 단위 정수와 천 단위 쉼표: 71,200원
- 큰 금액은 억/조 단위: 시가총액 425조, 거래대금 1,250억
- 등락률은 부호와 소수 둘째 자리: +3.25%
`

// KoreanMarketPromptSuffix returns the market context appended to system prompts.
func KoreanMarketPromptSuffix() string {
	return KoreanMarketContext + KoreanNumberFormat
}

// KRXSectors lists a few well-known sector groupings by KRX code.
var KRXSectors = map[string][]string{
	"반도체":  {"005930", "000660", "042700", "058470"},
	"2차전지": {"373220", "006400", "247540", "086520", "003670"},
	"자동차":  {"005380", "000270", "012330"},
	"인터넷":  {"035420", "035720"},
	"바이오":  {"207940", "068270", "196170"},
	"조선":   {"009540", "010140", "042660"},
	"금융":   {"105560", "055550", "086790"},
}

// SectorForCode returns the sector of a KRX code, or "" when unknown.
func SectorForCode(code string) string {
	for sector, codes := range KRXSectors {
		for _, c := range codes {
			if c == code {
				return sector
			}
		}
	}
	return ""
}

// SectorPeers returns the other codes in code's sector.
func SectorPeers(code string) []string {
	sector := SectorForCode(code)
	if sector == "" {
		return nil
	}
	codes := KRXSectors[sector]
	peers := make([]string, 0, len(codes)-1)
	for _, c := range codes {
		if c != code {
			peers = append(peers, c)
		}
	}
	return peers
}

// FormatTickerPrompt renders the instrument header of a request.
func FormatTickerPrompt(code, name, market string) string {
	var b strings.Builder
	if name == "" {
		name = code
	}
	if market == "" {
		market = "KRX"
	}
	fmt.Fprintf(&b, "종목: %s (%s, %s)\n", name, code, market)
	if sector := SectorForCode(code); sector != "" {
		peers := SectorPeers(code)
		if len(peers) > 4 {
			peers = peers[:4]
		}
		fmt.Fprintf(&b, "업종: %s (비교 종목: %s)\n", sector, strings.Join(peers, ", "))
	}
	return b.String()
}
