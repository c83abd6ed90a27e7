// Package screener selects momentum candidates from a market listing.
//
// A pass coerces the listing, keeps instruments inside the liquidity, price
// and percent-change band, samples a bounded pool, and then fetches history
// for each sampled instrument in turn, keeping those whose moving averages
// are aligned, whose volume surged and whose last bar is bullish (each
// predicate only when enabled). The pass stops at MaxCandidates.
package screener

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/seenimoa/chartscout/internal/analysis/technical"
	"github.com/seenimoa/chartscout/internal/datasource"
	"github.com/seenimoa/chartscout/pkg/models"
)

// ProgressFunc receives the number of sampled instruments processed so far
// and the sample size. It is advisory and must not block for long.
type ProgressFunc func(processed, total int)

// Result is the outcome of one screening pass.
type Result struct {
	Candidates []models.Candidate
	Report     models.ScreenReport
}

// Screener runs screening passes against a history source.
type Screener struct {
	history datasource.HistorySource
	rng     *rand.Rand
	now     func() time.Time
	log     *zap.Logger
}

// Option configures a Screener.
type Option func(*Screener)

// WithSeed seeds the sampler. Seed 0 seeds from the clock.
func WithSeed(seed int64) Option {
	return func(s *Screener) { s.rng = newRand(seed) }
}

// WithRand sets the sampler's random source.
func WithRand(r *rand.Rand) Option {
	return func(s *Screener) { s.rng = r }
}

// WithClock sets the clock used to compute the history window.
func WithClock(now func() time.Time) Option {
	return func(s *Screener) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Screener) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a Screener reading history from h.
func New(h datasource.HistorySource, opts ...Option) *Screener {
	s := &Screener{
		history: h,
		rng:     newRand(0),
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1|1))
}

// Screen fetches the listing for market and runs a pass over it. A listing
// failure is the only error that aborts the pass.
func (s *Screener) Screen(ctx context.Context, src datasource.ListingSource, market models.Market, t Thresholds, progress ProgressFunc) (Result, error) {
	if err := t.Validate(); err != nil {
		return Result{}, err
	}
	rows, err := src.FetchListing(ctx, market)
	if err != nil {
		if !errors.Is(err, datasource.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %w", datasource.ErrSourceUnavailable, err)
		}
		return Result{}, fmt.Errorf("fetch listing: %w", err)
	}
	return s.Run(ctx, rows, t, progress)
}

// Run screens already-fetched listing rows. Per-instrument failures are
// counted in the report and skipped. An empty result is not an error; the
// only error besides invalid thresholds is ctx cancellation, returned with
// the candidates collected so far.
func (s *Screener) Run(ctx context.Context, rows []models.ListingRow, t Thresholds, progress ProgressFunc) (Result, error) {
	if err := t.Validate(); err != nil {
		return Result{}, err
	}

	var res Result
	res.Report.ListingRows = len(rows)

	instruments, malformed := Clean(rows)
	res.Report.Malformed = malformed

	retained := Filter(instruments, t)
	res.Report.Retained = len(retained)

	sample := Sample(retained, t.SamplePoolSize, s.rng)
	res.Report.Sampled = len(sample)

	s.log.Info("screening pass",
		zap.String("preset", t.Name),
		zap.Int("rows", len(rows)),
		zap.Int("malformed", malformed),
		zap.Int("retained", len(retained)),
		zap.Int("sampled", len(sample)),
	)

	to := s.now()
	from := to.AddDate(0, 0, -t.HistoryDays)

	for i, inst := range sample {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("screening interrupted after %d of %d: %w", i, len(sample), err)
		}

		series, err := s.history.FetchHistory(ctx, inst.Code, from, to)
		if err != nil {
			res.Report.Skipped.FetchFailed++
			s.log.Debug("history fetch failed", zap.String("code", inst.Code), zap.Error(err))
		} else if cand, reason := evaluate(inst, series, t); reason != skipNone {
			reason.tally(&res.Report.Skipped)
			s.log.Debug("skipped", zap.String("code", inst.Code), zap.String("reason", reason.String()))
		} else {
			res.Candidates = append(res.Candidates, cand)
			s.log.Info("candidate", zap.String("code", inst.Code), zap.String("name", inst.Name),
				zap.Float64("volume_ratio", cand.VolumeRatio))
		}

		res.Report.Evaluated = i + 1
		if progress != nil {
			progress(i+1, len(sample))
		}
		if t.MaxCandidates > 0 && len(res.Candidates) >= t.MaxCandidates {
			break
		}
	}
	return res, nil
}

type skipReason int

const (
	skipNone skipReason = iota
	skipInsufficientBars
	skipTrend
	skipVolume
	skipBearish
)

func (r skipReason) String() string {
	switch r {
	case skipInsufficientBars:
		return "insufficient_bars"
	case skipTrend:
		return "trend_not_aligned"
	case skipVolume:
		return "no_volume_surge"
	case skipBearish:
		return "bearish_bar"
	default:
		return "none"
	}
}

func (r skipReason) tally(c *models.SkipCounts) {
	switch r {
	case skipInsufficientBars:
		c.InsufficientBars++
	case skipTrend:
		c.TrendNotAligned++
	case skipVolume:
		c.NoVolumeSurge++
	case skipBearish:
		c.BearishBar++
	}
}

// evaluate applies the history predicates in order: length, MA alignment,
// volume surge, bullish bar.
func evaluate(inst models.Instrument, series models.HistorySeries, t Thresholds) (models.Candidate, skipReason) {
	if series.Len() < t.RequiredBars() {
		return models.Candidate{}, skipInsufficientBars
	}

	mas := make(map[int]float64, 3)
	for _, w := range t.Windows() {
		v, err := technical.MovingAverage(series.Bars, w)
		if err != nil {
			return models.Candidate{}, skipInsufficientBars
		}
		mas[w] = v
	}
	if !(mas[t.ShortWindow] > mas[t.LongWindow]) {
		return models.Candidate{}, skipTrend
	}
	if t.TrendWindow > 0 && !(mas[t.LongWindow] > mas[t.TrendWindow]) {
		return models.Candidate{}, skipTrend
	}

	ratio := technical.VolumeRatio(series.Bars)
	if t.VolumeSurgeRatio > 0 {
		n := series.Len()
		today, yesterday := series.Bars[n-1].Volume, series.Bars[n-2].Volume
		if !(float64(today) > float64(yesterday)*t.VolumeSurgeRatio) {
			return models.Candidate{}, skipVolume
		}
	}

	if t.RequireBullishBar {
		if last, _ := series.Last(); !last.Bullish() {
			return models.Candidate{}, skipBearish
		}
	}

	return models.Candidate{
		Instrument:  inst,
		History:     series,
		MovingAvgs:  mas,
		VolumeRatio: ratio,
	}, skipNone
}
