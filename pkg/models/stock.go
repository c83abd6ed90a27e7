// Package models defines the core data structures used throughout chartscout.
package models

import (
	"strings"
	"time"
)

// Market is the exchange segment an instrument is listed on.
type Market string

const (
	MarketKOSPI  Market = "KOSPI"
	MarketKOSDAQ Market = "KOSDAQ"
	MarketOther  Market = "OTHER"
	MarketAll    Market = "ALL" // listing selector only, never set on an Instrument
)

// ParseMarket maps user input to a Market. Unknown values map to MarketOther.
func ParseMarket(s string) Market {
	switch Market(strings.ToUpper(strings.TrimSpace(s))) {
	case MarketKOSPI:
		return MarketKOSPI
	case MarketKOSDAQ:
		return MarketKOSDAQ
	case MarketAll, "":
		return MarketAll
	default:
		return MarketOther
	}
}

// ListingRow is one raw row from a market listing, before numeric coercion.
// Numeric fields are kept as the source printed them (e.g. "71,200", "+3.25%").
type ListingRow struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Market    Market `json:"market"`
	Close     string `json:"close"`
	Volume    string `json:"volume"`
	ChangePct string `json:"change_pct"`
}

// Instrument is a tradable security with its latest session numbers.
type Instrument struct {
	Code      string  `json:"code"` // e.g., "005930"
	Name      string  `json:"name"` // e.g., "삼성전자"
	Market    Market  `json:"market"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
	ChangePct float64 `json:"change_pct"`
}

// OHLCV represents a single daily bar.
type OHLCV struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// Bullish reports whether the bar closed at or above its open.
func (b OHLCV) Bullish() bool { return b.Close >= b.Open }

// HistorySeries is an ordered (oldest first) run of daily bars for one instrument.
type HistorySeries struct {
	Code string  `json:"code"`
	Bars []OHLCV `json:"bars"`
}

// Len returns the number of bars.
func (s HistorySeries) Len() int { return len(s.Bars) }

// Last returns the most recent bar and false when the series is empty.
func (s HistorySeries) Last() (OHLCV, bool) {
	if len(s.Bars) == 0 {
		return OHLCV{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Closes returns the closing prices in bar order.
func (s HistorySeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}
