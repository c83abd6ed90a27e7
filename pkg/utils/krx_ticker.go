package utils

import (
	"strings"

	"github.com/seenimoa/chartscout/pkg/models"
)

// Common name aliases users type instead of the six-digit KRX code.
var codeAliases = map[string]string{
	"SAMSUNG":          "005930",
	"삼성전자":             "005930",
	"SK HYNIX":         "000660",
	"SKHYNIX":          "000660",
	"SK하이닉스":           "000660",
	"NAVER":            "035420",
	"네이버":              "035420",
	"KAKAO":            "035720",
	"카카오":              "035720",
	"HYUNDAI MOTOR":    "005380",
	"현대차":              "005380",
	"LG ENERGY":        "373220",
	"LG에너지솔루션":         "373220",
	"CELLTRION":        "068270",
	"셀트리온":             "068270",
	"ECOPRO BM":        "247540",
	"에코프로비엠":           "247540",
	"SAMSUNG BIOLOGICS": "207940",
	"삼성바이오로직스":         "207940",
}

// NormalizeCode normalizes a user-input instrument code to the six-digit KRX form.
// It handles aliases, the "A" prefix used by some brokers, Yahoo suffixes,
// and codes whose leading zeros were dropped by a spreadsheet.
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if alias, ok := codeAliases[strings.ToUpper(code)]; ok {
		return alias
	}

	code = strings.ToUpper(code)
	code = strings.TrimSuffix(code, ".KS")
	code = strings.TrimSuffix(code, ".KQ")
	if len(code) == 7 && code[0] == 'A' && isDigits(code[1:]) {
		code = code[1:]
	}
	if isDigits(code) && len(code) < 6 {
		code = strings.Repeat("0", 6-len(code)) + code
	}
	return code
}

// IsValidCode reports whether code is a six-digit KRX code after normalization.
func IsValidCode(code string) bool {
	c := NormalizeCode(code)
	return len(c) == 6 && isDigits(c)
}

// ToYFinanceTicker converts a KRX code to Yahoo Finance form:
// KOSPI → ".KS", KOSDAQ → ".KQ". Other segments default to ".KS".
func ToYFinanceTicker(code string, market models.Market) string {
	upper := strings.ToUpper(strings.TrimSpace(code))
	if strings.HasSuffix(upper, ".KS") || strings.HasSuffix(upper, ".KQ") {
		return upper
	}
	code = NormalizeCode(code)
	if market == models.MarketKOSDAQ {
		return code + ".KQ"
	}
	return code + ".KS"
}

// FromYFinanceTicker strips the .KS or .KQ suffix.
func FromYFinanceTicker(yfTicker string) string {
	yfTicker = strings.TrimSuffix(yfTicker, ".KS")
	yfTicker = strings.TrimSuffix(yfTicker, ".KQ")
	return yfTicker
}

// MarketFromYFinanceTicker infers the segment from a Yahoo suffix.
func MarketFromYFinanceTicker(yfTicker string) models.Market {
	switch {
	case strings.HasSuffix(yfTicker, ".KQ"):
		return models.MarketKOSDAQ
	case strings.HasSuffix(yfTicker, ".KS"):
		return models.MarketKOSPI
	default:
		return models.MarketOther
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
