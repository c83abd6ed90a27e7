package screener

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/seenimoa/chartscout/internal/config"
	"github.com/seenimoa/chartscout/internal/datasource"
	"github.com/seenimoa/chartscout/pkg/models"
)

// fakeHistory serves canned series by code. Codes in fail return
// ErrSourceUnavailable.
type fakeHistory struct {
	series map[string]models.HistorySeries
	fail   map[string]bool
	calls  atomic.Int32
}

func (f *fakeHistory) FetchHistory(_ context.Context, code string, _, _ time.Time) (models.HistorySeries, error) {
	f.calls.Add(1)
	if f.fail[code] {
		return models.HistorySeries{}, fmt.Errorf("%w: boom", datasource.ErrSourceUnavailable)
	}
	s, ok := f.series[code]
	if !ok {
		return models.HistorySeries{}, datasource.ErrTickerNotFound
	}
	return s, nil
}

type fakeListing struct {
	rows []models.ListingRow
	err  error
}

func (f fakeListing) FetchListing(context.Context, models.Market) ([]models.ListingRow, error) {
	return f.rows, f.err
}

// risingSeries builds n bars with closes climbing by 1 from 100, a doubled
// final volume and a bullish last bar.
func risingSeries(code string, n int) models.HistorySeries {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.OHLCV, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = models.OHLCV{
			Timestamp: start.AddDate(0, 0, i),
			Open:      c - 0.5,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    100_000,
		}
	}
	bars[n-1].Volume = 300_000
	return models.HistorySeries{Code: code, Bars: bars}
}

func row(code string, vol, price, pct string) models.ListingRow {
	return models.ListingRow{Code: code, Name: "name-" + code, Market: models.MarketKOSPI, Close: price, Volume: vol, ChangePct: pct}
}

func inst(code string, vol int64, price, pct float64) models.Instrument {
	return models.Instrument{Code: code, Market: models.MarketKOSPI, Close: price, Volume: vol, ChangePct: pct}
}

func testThresholds() Thresholds {
	t := Presets["classic"]
	t.SamplePoolSize = 0
	t.MaxCandidates = 0
	return t
}

func codes(cs []models.Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Instrument.Code
	}
	return out
}

func newTestScreener(h datasource.HistorySource) *Screener {
	return New(h, WithSeed(42), WithClock(func() time.Time {
		return time.Date(2026, 2, 11, 16, 0, 0, 0, time.UTC)
	}))
}

// ════════════════════════════════════════════════════════════════════
// Hygiene
// ════════════════════════════════════════════════════════════════════

func TestCoerce(t *testing.T) {
	got, err := Coerce(row("005930", "12,345,678", "71,200", "+3.25%"))
	if err != nil {
		t.Fatalf("Coerce: %v", err)
	}
	if got.Volume != 12345678 || got.Close != 71200 || got.ChangePct != 3.25 {
		t.Errorf("got %+v", got)
	}

	neg, err := Coerce(row("000660", "1,000", "150,000", "-1.50%"))
	if err != nil || neg.ChangePct != -1.5 {
		t.Errorf("negative pct: %+v, %v", neg, err)
	}
}

func TestCoerceMalformed(t *testing.T) {
	tests := []struct {
		name string
		row  models.ListingRow
	}{
		{"empty code", row("", "1", "1", "1")},
		{"text price", row("A", "1", "N/A", "1")},
		{"empty volume", row("A", "", "1", "1")},
		{"fractional volume", row("A", "1.5", "1", "1")},
		{"negative price", row("A", "1", "-5", "1")},
		{"bad pct", row("A", "1", "1", "x%")},
		{"nan", row("A", "1", "NaN", "1")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Coerce(tt.row)
			if !errors.Is(err, datasource.ErrMalformedRecord) {
				t.Errorf("err = %v, want ErrMalformedRecord", err)
			}
		})
	}
}

func TestClean(t *testing.T) {
	rows := []models.ListingRow{
		row("A", "100", "1,000", "1.0"),
		row("B", "?", "1,000", "1.0"),
		row("C", "200", "2,000", "2.0"),
	}
	got, malformed := Clean(rows)
	if malformed != 1 {
		t.Errorf("malformed = %d, want 1", malformed)
	}
	if len(got) != 2 || got[0].Code != "A" || got[1].Code != "C" {
		t.Errorf("got %+v", got)
	}
}

// ════════════════════════════════════════════════════════════════════
// Filter and sample
// ════════════════════════════════════════════════════════════════════

func TestFilterLiquidity(t *testing.T) {
	listing := []models.Instrument{
		inst("A", 200_000, 5000, 5),
		inst("B", 10_000, 5000, 5),
	}
	th := testThresholds()
	th.MinVolume = 100_000

	got := Filter(listing, th)
	if len(got) != 1 || got[0].Code != "A" {
		t.Errorf("Filter = %+v, want only A", got)
	}
}

func TestFilterBand(t *testing.T) {
	th := testThresholds() // 50k, 2000, 3..25
	tests := []struct {
		name string
		in   models.Instrument
		want bool
	}{
		{"inside", inst("X", 60_000, 5000, 10), true},
		{"low edge", inst("X", 60_000, 5000, 3), true},
		{"high edge", inst("X", 60_000, 5000, 25), true},
		{"below band", inst("X", 60_000, 5000, 2.9), false},
		{"above band", inst("X", 60_000, 5000, 29.9), false},
		{"cheap", inst("X", 60_000, 1500, 10), false},
		{"thin", inst("X", 49_999, 5000, 10), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := th.Passes(tt.in); got != tt.want {
				t.Errorf("Passes = %v, want %v", got, tt.want)
			}
		})
	}

	th.MaxPctChange = 0
	if !th.Passes(inst("X", 60_000, 5000, 29.9)) {
		t.Error("max 0 should leave the band unbounded")
	}
}

func TestFilterIsPure(t *testing.T) {
	listing := []models.Instrument{
		inst("A", 200_000, 5000, 5),
		inst("B", 10_000, 5000, 5),
		inst("C", 300_000, 8000, 12),
		inst("D", 300_000, 8000, -2),
	}
	before := slices.Clone(listing)
	th := testThresholds()

	first := Filter(listing, th)
	second := Filter(listing, th)
	if !slices.Equal(first, second) {
		t.Errorf("filter not repeatable: %v vs %v", first, second)
	}
	if !slices.Equal(listing, before) {
		t.Error("filter modified its input")
	}
}

func TestSampleFullPool(t *testing.T) {
	in := []models.Instrument{inst("A", 1, 1, 1), inst("B", 1, 1, 1), inst("C", 1, 1, 1)}
	rng := rand.New(rand.NewPCG(1, 2))

	for _, n := range []int{0, 3, 10} {
		got := Sample(in, n, rng)
		if !slices.Equal(got, in) {
			t.Errorf("Sample(n=%d) = %v, want input unchanged", n, got)
		}
	}
}

func TestSampleSubset(t *testing.T) {
	in := make([]models.Instrument, 50)
	for i := range in {
		in[i] = inst(fmt.Sprintf("%06d", i), 1, 1, 1)
	}
	rng := rand.New(rand.NewPCG(7, 7))

	for trial := 0; trial < 20; trial++ {
		got := Sample(in, 10, rng)
		if len(got) != 10 {
			t.Fatalf("len = %d, want 10", len(got))
		}
		seen := map[string]bool{}
		for _, g := range got {
			if seen[g.Code] {
				t.Fatalf("duplicate %s in sample", g.Code)
			}
			seen[g.Code] = true
			if !slices.Contains(in, g) {
				t.Fatalf("%s not drawn from input", g.Code)
			}
		}
	}
}

func TestSampleDeterministicWithSeed(t *testing.T) {
	in := make([]models.Instrument, 30)
	for i := range in {
		in[i] = inst(fmt.Sprintf("%06d", i), 1, 1, 1)
	}
	a := Sample(in, 5, newRand(99))
	b := Sample(in, 5, newRand(99))
	if !slices.Equal(a, b) {
		t.Errorf("same seed gave different samples: %v vs %v", a, b)
	}
}

// ════════════════════════════════════════════════════════════════════
// Run
// ════════════════════════════════════════════════════════════════════

func TestRunFindsCandidates(t *testing.T) {
	h := &fakeHistory{series: map[string]models.HistorySeries{
		"A": risingSeries("A", 40),
		"B": risingSeries("B", 40),
	}}
	rows := []models.ListingRow{
		row("A", "200,000", "5,000", "5.00%"),
		row("B", "200,000", "5,000", "5.00%"),
		row("C", "1,000", "5,000", "5.00%"),
	}

	res, err := newTestScreener(h).Run(context.Background(), rows, testThresholds(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := codes(res.Candidates); !slices.Equal(got, []string{"A", "B"}) {
		t.Errorf("candidates = %v, want [A B]", got)
	}
	if res.Report.Retained != 2 || res.Report.Evaluated != 2 {
		t.Errorf("report = %+v", res.Report)
	}

	c := res.Candidates[0]
	if c.VolumeRatio != 3 {
		t.Errorf("VolumeRatio = %v, want 3", c.VolumeRatio)
	}
	if c.MovingAvgs[5] <= c.MovingAvgs[20] {
		t.Errorf("MA5 %v should exceed MA20 %v", c.MovingAvgs[5], c.MovingAvgs[20])
	}
}

func TestRunNeverExceedsK(t *testing.T) {
	series := map[string]models.HistorySeries{}
	var rows []models.ListingRow
	for i := 0; i < 10; i++ {
		code := fmt.Sprintf("%06d", i)
		series[code] = risingSeries(code, 30)
		rows = append(rows, row(code, "200,000", "5,000", "5"))
	}
	h := &fakeHistory{series: series}
	th := testThresholds()
	th.MaxCandidates = 3

	res, err := newTestScreener(h).Run(context.Background(), rows, th, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Candidates) != 3 {
		t.Errorf("got %d candidates, want 3", len(res.Candidates))
	}
	if h.calls.Load() != 3 {
		t.Errorf("fetched %d histories, want the pass to stop at 3", h.calls.Load())
	}
}

func TestRunZeroCandidatesIsNotError(t *testing.T) {
	h := &fakeHistory{}
	rows := []models.ListingRow{row("A", "10", "5,000", "5")}

	res, err := newTestScreener(h).Run(context.Background(), rows, testThresholds(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Candidates) != 0 {
		t.Errorf("got %v", res.Candidates)
	}
}

func TestRunBearishBarSkipped(t *testing.T) {
	s := risingSeries("A", 70)
	last := &s.Bars[len(s.Bars)-1]
	last.Open, last.Close = 100, 99
	// Keep MA alignment intact despite the lower last close.
	for i := range s.Bars[:len(s.Bars)-1] {
		s.Bars[i].Close = 50 + float64(i)*0.1
	}
	h := &fakeHistory{series: map[string]models.HistorySeries{"A": s}}
	th := Presets["momentum"]
	th.SamplePoolSize = 0

	res, err := newTestScreener(h).Run(context.Background(), []models.ListingRow{row("A", "200,000", "5,000", "5")}, th, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Candidates) != 0 {
		t.Fatalf("bearish bar should be skipped, got %v", codes(res.Candidates))
	}
	if res.Report.Skipped.BearishBar != 1 {
		t.Errorf("skips = %+v, want one bearish", res.Report.Skipped)
	}
}

func TestRunHistoryFailureIsSkipped(t *testing.T) {
	h := &fakeHistory{
		series: map[string]models.HistorySeries{
			"A": risingSeries("A", 30),
			"C": risingSeries("C", 30),
		},
		fail: map[string]bool{"B": true},
	}
	rows := []models.ListingRow{
		row("A", "200,000", "5,000", "5"),
		row("B", "200,000", "5,000", "5"),
		row("C", "200,000", "5,000", "5"),
	}
	var progress []int

	res, err := newTestScreener(h).Run(context.Background(), rows, testThresholds(), func(done, total int) {
		progress = append(progress, done)
		if total != 3 {
			t.Errorf("total = %d, want 3", total)
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := codes(res.Candidates); !slices.Equal(got, []string{"A", "C"}) {
		t.Errorf("candidates = %v, want [A C]", got)
	}
	if res.Report.Skipped.FetchFailed != 1 || res.Report.Evaluated != 3 {
		t.Errorf("report = %+v", res.Report)
	}
	if !slices.Equal(progress, []int{1, 2, 3}) {
		t.Errorf("progress = %v", progress)
	}
}

func TestRunSkipReasons(t *testing.T) {
	short := risingSeries("SHORT", 10)

	flat := risingSeries("FLAT", 30)
	for i := range flat.Bars {
		flat.Bars[i].Close = 100
	}

	quiet := risingSeries("QUIET", 30)
	quiet.Bars[len(quiet.Bars)-1].Volume = 100_000

	h := &fakeHistory{series: map[string]models.HistorySeries{
		"SHORT": short, "FLAT": flat, "QUIET": quiet,
	}}
	rows := []models.ListingRow{
		row("SHORT", "200,000", "5,000", "5"),
		row("FLAT", "200,000", "5,000", "5"),
		row("QUIET", "200,000", "5,000", "5"),
	}

	res, err := newTestScreener(h).Run(context.Background(), rows, testThresholds(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := models.SkipCounts{InsufficientBars: 1, TrendNotAligned: 1, NoVolumeSurge: 1}
	if res.Report.Skipped != want {
		t.Errorf("skips = %+v, want %+v", res.Report.Skipped, want)
	}
}

func TestRunCancelled(t *testing.T) {
	h := &fakeHistory{series: map[string]models.HistorySeries{"A": risingSeries("A", 30)}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestScreener(h).Run(ctx, []models.ListingRow{row("A", "200,000", "5,000", "5")}, testThresholds(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if h.calls.Load() != 0 {
		t.Error("no history should be fetched after cancellation")
	}
}

func TestScreenListingFailure(t *testing.T) {
	src := fakeListing{err: errors.New("connection refused")}
	_, err := newTestScreener(&fakeHistory{}).Screen(context.Background(), src, models.MarketAll, testThresholds(), nil)
	if !errors.Is(err, datasource.ErrSourceUnavailable) {
		t.Errorf("err = %v, want ErrSourceUnavailable", err)
	}
}

func TestScreenInvalidThresholds(t *testing.T) {
	th := testThresholds()
	th.LongWindow = th.ShortWindow
	_, err := newTestScreener(&fakeHistory{}).Screen(context.Background(), fakeListing{}, models.MarketAll, th, nil)
	if !errors.Is(err, ErrInvalidThresholds) {
		t.Errorf("err = %v, want ErrInvalidThresholds", err)
	}
}

// ════════════════════════════════════════════════════════════════════
// Thresholds
// ════════════════════════════════════════════════════════════════════

func TestPresetsValid(t *testing.T) {
	for _, name := range PresetNames() {
		p, err := Preset(name)
		if err != nil {
			t.Fatalf("Preset(%q): %v", name, err)
		}
		if err := p.Validate(); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	if _, err := Preset("nope"); !errors.Is(err, ErrInvalidThresholds) {
		t.Errorf("unknown preset err = %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	th, err := FromConfig(config.ScreenerConfig{Preset: "momentum"})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if th.Name != "momentum" || th.TrendWindow != 60 {
		t.Errorf("got %+v", th)
	}

	zero := 0
	price := 1000.0
	off := false
	th, err = FromConfig(config.ScreenerConfig{
		Preset:            "momentum",
		MaxCandidates:     &zero,
		MinPrice:          &price,
		RequireBullishBar: &off,
	})
	if err != nil {
		t.Fatalf("FromConfig overrides: %v", err)
	}
	if th.Name != "momentum+custom" || th.MaxCandidates != 0 || th.MinPrice != 1000 || th.RequireBullishBar {
		t.Errorf("overrides not applied: %+v", th)
	}

	bad := 3
	if _, err := FromConfig(config.ScreenerConfig{Preset: "classic", LongWindow: &bad}); !errors.Is(err, ErrInvalidThresholds) {
		t.Errorf("err = %v, want ErrInvalidThresholds", err)
	}
}

func TestRequiredBars(t *testing.T) {
	if got := Presets["classic"].RequiredBars(); got != 20 {
		t.Errorf("classic RequiredBars = %d, want 20", got)
	}
	if got := Presets["momentum"].RequiredBars(); got != 60 {
		t.Errorf("momentum RequiredBars = %d, want 60", got)
	}
}
