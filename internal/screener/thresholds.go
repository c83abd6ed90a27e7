package screener

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/seenimoa/chartscout/internal/config"
)

// ErrInvalidThresholds is returned when a threshold set cannot be evaluated.
var ErrInvalidThresholds = errors.New("invalid thresholds")

// Thresholds configures one screening pass.
type Thresholds struct {
	Name string `json:"name" yaml:"name"`

	MinVolume    int64   `json:"min_volume"     yaml:"min_volume"`
	MinPrice     float64 `json:"min_price"      yaml:"min_price"`
	MinPctChange float64 `json:"min_pct_change" yaml:"min_pct_change"`
	MaxPctChange float64 `json:"max_pct_change" yaml:"max_pct_change"` // 0 = unbounded

	SamplePoolSize int `json:"sample_pool_size" yaml:"sample_pool_size"` // 0 = evaluate every retained instrument
	MinHistoryBars int `json:"min_history_bars" yaml:"min_history_bars"`
	HistoryDays    int `json:"history_days"     yaml:"history_days"` // calendar days of history to fetch

	VolumeSurgeRatio  float64 `json:"volume_surge_ratio"  yaml:"volume_surge_ratio"` // 0 = disabled
	ShortWindow       int     `json:"short_window"        yaml:"short_window"`
	LongWindow        int     `json:"long_window"         yaml:"long_window"`
	TrendWindow       int     `json:"trend_window"        yaml:"trend_window"` // 0 = disabled
	RequireBullishBar bool    `json:"require_bullish_bar" yaml:"require_bullish_bar"`

	MaxCandidates int `json:"max_candidates" yaml:"max_candidates"` // K; 0 = unlimited
}

// Presets are the threshold sets the screener ships with.
//
//	classic   liquidity floor 50k, +3..25%, MA 5 over 20, 2x volume surge, first 3
//	momentum  liquidity floor 100k, +3..25%, MA 5 over 20 over 60, surge, bullish bar, first 3
//	wide      liquidity floor 100k, +3% and up, MA 5 over 20, no surge, every match
var Presets = map[string]Thresholds{
	"classic": {
		Name:             "classic",
		MinVolume:        50_000,
		MinPrice:         2_000,
		MinPctChange:     3,
		MaxPctChange:     25,
		SamplePoolSize:   30,
		MinHistoryBars:   20,
		HistoryDays:      80,
		VolumeSurgeRatio: 2.0,
		ShortWindow:      5,
		LongWindow:       20,
		MaxCandidates:    3,
	},
	"momentum": {
		Name:              "momentum",
		MinVolume:         100_000,
		MinPrice:          2_000,
		MinPctChange:      3,
		MaxPctChange:      25,
		SamplePoolSize:    20,
		MinHistoryBars:    60,
		HistoryDays:       120,
		VolumeSurgeRatio:  2.0,
		ShortWindow:       5,
		LongWindow:        20,
		TrendWindow:       60,
		RequireBullishBar: true,
		MaxCandidates:     3,
	},
	"wide": {
		Name:           "wide",
		MinVolume:      100_000,
		MinPrice:       2_000,
		MinPctChange:   3,
		SamplePoolSize: 30,
		MinHistoryBars: 20,
		HistoryDays:    80,
		ShortWindow:    5,
		LongWindow:     20,
	},
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for n := range Presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Preset returns a copy of the named preset.
func Preset(name string) (Thresholds, error) {
	t, ok := Presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Thresholds{}, fmt.Errorf("%w: unknown preset %q (have %s)", ErrInvalidThresholds, name, strings.Join(PresetNames(), ", "))
	}
	return t, nil
}

// FromConfig resolves the configured preset and applies any explicit overrides.
func FromConfig(sc config.ScreenerConfig) (Thresholds, error) {
	name := sc.Preset
	if name == "" {
		name = "classic"
	}
	t, err := Preset(name)
	if err != nil {
		return Thresholds{}, err
	}

	var overridden bool
	override(&t.MinVolume, sc.MinVolume, &overridden)
	override(&t.MinPrice, sc.MinPrice, &overridden)
	override(&t.MinPctChange, sc.MinPctChange, &overridden)
	override(&t.MaxPctChange, sc.MaxPctChange, &overridden)
	override(&t.SamplePoolSize, sc.SamplePoolSize, &overridden)
	override(&t.MinHistoryBars, sc.MinHistoryBars, &overridden)
	override(&t.VolumeSurgeRatio, sc.VolumeSurgeRatio, &overridden)
	override(&t.ShortWindow, sc.ShortWindow, &overridden)
	override(&t.LongWindow, sc.LongWindow, &overridden)
	override(&t.TrendWindow, sc.TrendWindow, &overridden)
	override(&t.RequireBullishBar, sc.RequireBullishBar, &overridden)
	override(&t.MaxCandidates, sc.MaxCandidates, &overridden)
	override(&t.HistoryDays, sc.HistoryDays, &overridden)
	if overridden {
		t.Name += "+custom"
	}

	if err := t.Validate(); err != nil {
		return Thresholds{}, err
	}
	return t, nil
}

func override[T any](dst *T, src *T, changed *bool) {
	if src != nil {
		*dst = *src
		*changed = true
	}
}

// Validate checks that the thresholds describe an evaluable pass.
func (t Thresholds) Validate() error {
	var problems []string
	if t.MinVolume < 0 {
		problems = append(problems, "min_volume must be >= 0")
	}
	if t.MinPrice < 0 {
		problems = append(problems, "min_price must be >= 0")
	}
	if t.MaxPctChange != 0 && t.MaxPctChange < t.MinPctChange {
		problems = append(problems, "max_pct_change must be >= min_pct_change (or 0 for unbounded)")
	}
	if t.SamplePoolSize < 0 {
		problems = append(problems, "sample_pool_size must be >= 0")
	}
	if t.MinHistoryBars < 0 {
		problems = append(problems, "min_history_bars must be >= 0")
	}
	if t.HistoryDays <= 0 {
		problems = append(problems, "history_days must be > 0")
	}
	if t.VolumeSurgeRatio < 0 {
		problems = append(problems, "volume_surge_ratio must be >= 0")
	}
	if t.ShortWindow <= 0 {
		problems = append(problems, "short_window must be > 0")
	}
	if t.LongWindow <= t.ShortWindow {
		problems = append(problems, "long_window must be > short_window")
	}
	if t.TrendWindow != 0 && t.TrendWindow <= t.LongWindow {
		problems = append(problems, "trend_window must be > long_window (or 0 to disable)")
	}
	if t.MaxCandidates < 0 {
		problems = append(problems, "max_candidates must be >= 0")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidThresholds, strings.Join(problems, "; "))
	}
	return nil
}

// Windows returns the moving-average windows the pass evaluates.
func (t Thresholds) Windows() []int {
	w := []int{t.ShortWindow, t.LongWindow}
	if t.TrendWindow > 0 {
		w = append(w, t.TrendWindow)
	}
	return w
}

// RequiredBars is the shortest history every active predicate can be
// evaluated on.
func (t Thresholds) RequiredBars() int {
	n := max(t.MinHistoryBars, t.ShortWindow, t.LongWindow, t.TrendWindow, 1)
	if t.VolumeSurgeRatio > 0 {
		n = max(n, 2)
	}
	return n
}
