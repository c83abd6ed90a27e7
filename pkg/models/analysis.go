package models

import "time"

// Candidate is an instrument that passed every screening predicate in one pass.
type Candidate struct {
	Instrument  Instrument      `json:"instrument"`
	History     HistorySeries   `json:"history"`
	MovingAvgs  map[int]float64 `json:"moving_avgs"`  // window → MA at the last bar
	VolumeRatio float64         `json:"volume_ratio"` // today / yesterday, 0 when yesterday had no volume
}

// NewsArticle is a single headline pulled from an RSS feed.
type NewsArticle struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	Summary     string    `json:"summary,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// MarketTheme is a short free-text summary of what the market is trading on,
// built from recent headlines and interpolated into chart prompts.
type MarketTheme struct {
	Text      string        `json:"text"`
	Mood      MarketMood    `json:"mood"`
	Headlines []NewsArticle `json:"headlines,omitempty"`
	BuiltAt   time.Time     `json:"built_at"`
}

// MarketMood is the keyword-scored tone of a set of headlines.
type MarketMood struct {
	Score    float64 `json:"score"` // -1 (bearish) .. +1 (bullish)
	Label    string  `json:"label"`
	Articles int     `json:"articles"`
}

// Empty reports whether there is no theme text to use.
func (t *MarketTheme) Empty() bool { return t == nil || t.Text == "" }

// Analysis is the model's reading of one chart.
type Analysis struct {
	Code        string        `json:"code"`
	Text        string        `json:"text"`
	Placeholder bool          `json:"placeholder"` // true when Text is the fixed failure sentinel
	Provider    string        `json:"provider,omitempty"`
	Model       string        `json:"model,omitempty"`
	Latency     time.Duration `json:"latency"`
}

// TickerReport is the result of analysing one user-chosen instrument.
type TickerReport struct {
	Code     string        `json:"code"`
	Name     string        `json:"name"`
	History  HistorySeries `json:"history"`
	Analysis Analysis      `json:"analysis"`
	Theme    *MarketTheme  `json:"theme,omitempty"`
	ChartPNG []byte        `json:"-"`
}

// SkipCounts tallies why sampled instruments were not promoted to candidates.
type SkipCounts struct {
	FetchFailed       int `json:"fetch_failed"`
	InsufficientBars  int `json:"insufficient_bars"`
	TrendNotAligned   int `json:"trend_not_aligned"`
	NoVolumeSurge     int `json:"no_volume_surge"`
	BearishBar        int `json:"bearish_bar"`
}

// ScreenReport summarises one screening pass.
type ScreenReport struct {
	ListingRows int        `json:"listing_rows"`
	Malformed   int        `json:"malformed"`
	Retained    int        `json:"retained"`
	Sampled     int        `json:"sampled"`
	Evaluated   int        `json:"evaluated"`
	Skipped     SkipCounts `json:"skipped"`
}

// RunResult is a screening pass plus per-candidate analyses.
type RunResult struct {
	ID         string       `json:"id"`
	Preset     string       `json:"preset"`
	Market     Market       `json:"market"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Theme      *MarketTheme `json:"theme,omitempty"`
	Report     ScreenReport `json:"report"`
	Candidates []Candidate  `json:"candidates"`
	Analyses   []Analysis   `json:"analyses,omitempty"`
}

// RunSummary is the persisted, compact view of a past run.
type RunSummary struct {
	ID         string    `json:"id"`
	Preset     string    `json:"preset"`
	Market     Market    `json:"market"`
	StartedAt  time.Time `json:"started_at"`
	Sampled    int       `json:"sampled"`
	Candidates []string  `json:"candidates"` // instrument codes
}
