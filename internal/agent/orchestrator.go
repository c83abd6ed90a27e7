package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seenimoa/chartscout/internal/agent/prompts"
	"github.com/seenimoa/chartscout/internal/analysis/technical"
	"github.com/seenimoa/chartscout/internal/datasource"
	"github.com/seenimoa/chartscout/internal/recorder"
	"github.com/seenimoa/chartscout/internal/screener"
	"github.com/seenimoa/chartscout/pkg/models"
	"github.com/seenimoa/chartscout/pkg/utils"
)

// Renderer draws a price series as a PNG image.
type Renderer interface {
	Render(series models.HistorySeries, label string, windows []int) ([]byte, error)
}

// TickerWindows are the moving averages drawn for a single-ticker analysis.
var TickerWindows = []int{5, 20, 60}

// DefaultAnalyzeDays is the calendar span fetched for a single-ticker analysis.
const DefaultAnalyzeDays = 200

// Stage names a phase of a run.
type Stage string

const (
	StageTheme   Stage = "theme"
	StageScreen  Stage = "screen"
	StageAnalyze Stage = "analyze"
	StageDone    Stage = "done"
)

// Progress is an advisory update emitted while a run executes.
type Progress struct {
	RunID     string `json:"run_id"`
	Stage     Stage  `json:"stage"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Code      string `json:"code,omitempty"`
}

// ProgressFunc receives run progress. It is called on the run's goroutine.
type ProgressFunc func(Progress)

// RunRequest selects what one run does.
type RunRequest struct {
	Market     models.Market
	Thresholds screener.Thresholds
	Analyze    bool // render and analyse each candidate
	Theme      bool // build the market theme first and add it to prompts
}

// ── Orchestrator ──

// Orchestrator chains listing, screening, chart rendering and analysis.
type Orchestrator struct {
	listing     datasource.ListingSource
	history     datasource.HistorySource
	screener    *screener.Screener
	renderer    Renderer
	analyst     *Analyst
	themes      *ThemeWriter
	recorder    recorder.Recorder
	analyzeDays int
	now         func() time.Time
	log         *zap.Logger
}

// OrchestratorConfig holds the collaborators of an Orchestrator. Themes and
// Recorder are optional.
type OrchestratorConfig struct {
	Listing     datasource.ListingSource
	History     datasource.HistorySource
	Screener    *screener.Screener
	Renderer    Renderer
	Analyst     *Analyst
	Themes      *ThemeWriter
	Recorder    recorder.Recorder
	AnalyzeDays int
	Clock       func() time.Time
	Logger      *zap.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{
		listing:     cfg.Listing,
		history:     cfg.History,
		screener:    cfg.Screener,
		renderer:    cfg.Renderer,
		analyst:     cfg.Analyst,
		themes:      cfg.Themes,
		recorder:    cfg.Recorder,
		analyzeDays: cfg.AnalyzeDays,
		now:         cfg.Clock,
		log:         cfg.Logger,
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.recorder == nil {
		o.recorder = recorder.NewNoopRecorder()
	}
	if o.analyst == nil {
		o.analyst = NewChartAnalyst(nil, nil, o.log)
	}
	if o.screener == nil {
		o.screener = screener.New(cfg.History, screener.WithLogger(o.log))
	}
	if o.analyzeDays <= 0 {
		o.analyzeDays = DefaultAnalyzeDays
	}
	if o.now == nil {
		o.now = time.Now
	}
	o.log = o.log.Named("orchestrator")
	return o
}

// Run executes one screening run and, if requested, analyses every
// candidate in order. A listing failure or invalid thresholds return a nil
// result. Cancellation returns the partial result with the context error.
// Analysis failures never fail the run; they yield placeholder analyses.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest, progress ProgressFunc) (*models.RunResult, error) {
	run := &models.RunResult{
		ID:        uuid.NewString(),
		Preset:    req.Thresholds.Name,
		Market:    req.Market,
		StartedAt: o.now(),
	}
	emit := func(p Progress) {
		p.RunID = run.ID
		if progress != nil {
			progress(p)
		}
	}
	log := o.log.With(zap.String("run", run.ID))

	if req.Theme {
		emit(Progress{Stage: StageTheme})
		run.Theme = o.themeFor(ctx)
	}

	res, err := o.screener.Screen(ctx, o.listing, req.Market, req.Thresholds, func(done, total int) {
		emit(Progress{Stage: StageScreen, Processed: done, Total: total})
	})
	if err != nil {
		if errors.Is(err, datasource.ErrSourceUnavailable) || errors.Is(err, screener.ErrInvalidThresholds) {
			return nil, err
		}
		run.Report, run.Candidates = res.Report, res.Candidates
		run.FinishedAt = o.now()
		return run, err
	}
	run.Report, run.Candidates = res.Report, res.Candidates

	if req.Analyze {
		themeText := ""
		if !run.Theme.Empty() {
			themeText = run.Theme.Text
		}
		windows := req.Thresholds.Windows()
		for i, cand := range run.Candidates {
			if err := ctx.Err(); err != nil {
				run.FinishedAt = o.now()
				return run, fmt.Errorf("analysis interrupted after %d of %d: %w", i, len(run.Candidates), err)
			}
			emit(Progress{Stage: StageAnalyze, Processed: i, Total: len(run.Candidates), Code: cand.Instrument.Code})
			run.Analyses = append(run.Analyses, o.analyzeCandidate(ctx, cand, windows, themeText))
		}
	}

	run.FinishedAt = o.now()
	if err := o.recorder.Record(ctx, run); err != nil {
		log.Warn("record run failed", zap.Error(err))
	}

	log.Info("run finished",
		zap.String("preset", run.Preset),
		zap.Int("sampled", run.Report.Sampled),
		zap.Int("candidates", len(run.Candidates)),
		zap.Int("analyses", len(run.Analyses)),
		zap.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)),
	)
	emit(Progress{Stage: StageDone, Processed: len(run.Candidates), Total: len(run.Candidates)})
	return run, nil
}

// AnalyzeTicker renders and analyses one instrument chosen by the caller.
// name is only used as the chart label and in the prompt; it defaults to
// the code. The analysis is the placeholder when the model is unavailable.
func (o *Orchestrator) AnalyzeTicker(ctx context.Context, code, name string, withTheme bool) (*models.TickerReport, error) {
	series, err := o.History(ctx, code, o.analyzeDays)
	if err != nil {
		return nil, err
	}
	if series.Len() < 2 {
		return nil, fmt.Errorf("%w: %s has %d bars", datasource.ErrInsufficientHistory, series.Code, series.Len())
	}
	code = series.Code
	if name == "" {
		name = code
	}

	report := &models.TickerReport{Code: code, Name: name, History: series}
	if withTheme {
		report.Theme = o.themeFor(ctx)
	}

	png, err := o.renderer.Render(series, name, TickerWindows)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", code, err)
	}
	report.ChartPNG = png

	closes := series.Closes()
	n := len(closes)
	changePct := 0.0
	if closes[n-2] > 0 {
		changePct = (closes[n-1] - closes[n-2]) / closes[n-2] * 100
	}
	ic := indicatorContext(series, technical.MultiSMA(closes, TickerWindows), technical.VolumeRatio(series.Bars), changePct)

	themeText := ""
	if !report.Theme.Empty() {
		themeText = report.Theme.Text
	}
	prompt := prompts.ChartRequest{Code: code, Name: name, Indicators: ic, Theme: themeText}.Render()
	report.Analysis = o.analyst.Analyze(ctx, code, png, prompt)
	return report, nil
}

// History fetches the last days calendar days of bars for code.
func (o *Orchestrator) History(ctx context.Context, code string, days int) (models.HistorySeries, error) {
	code = utils.NormalizeCode(code)
	if !utils.IsValidCode(code) {
		return models.HistorySeries{}, fmt.Errorf("%w: %q", datasource.ErrTickerNotFound, code)
	}
	if days <= 0 {
		days = o.analyzeDays
	}
	to := o.now()
	series, err := o.history.FetchHistory(ctx, code, to.AddDate(0, 0, -days), to)
	if err != nil {
		return models.HistorySeries{}, err
	}
	series.Code = code
	return series, nil
}

// Theme builds the market theme. It fails when no headline source is set.
func (o *Orchestrator) Theme(ctx context.Context) (*models.MarketTheme, error) {
	if o.themes == nil {
		return nil, fmt.Errorf("%w: no news feeds configured", datasource.ErrSourceUnavailable)
	}
	return o.themes.Build(ctx)
}

// Recent lists recorded runs, newest first.
func (o *Orchestrator) Recent(ctx context.Context, limit int) ([]models.RunSummary, error) {
	return o.recorder.Recent(ctx, limit)
}

// AnalystAvailable reports whether chart analysis has a model behind it.
func (o *Orchestrator) AnalystAvailable() bool { return o.analyst.Available() }

// themeFor builds the theme for use in prompts. Failures are logged; the
// partial theme (headlines, mood) is still returned when there is one.
func (o *Orchestrator) themeFor(ctx context.Context) *models.MarketTheme {
	theme, err := o.Theme(ctx)
	if err != nil {
		o.log.Warn("market theme unavailable", zap.Error(err))
	}
	return theme
}

// analyzeCandidate renders a candidate's chart and asks for an analysis. A
// render failure yields the placeholder without calling the model.
func (o *Orchestrator) analyzeCandidate(ctx context.Context, cand models.Candidate, windows []int, theme string) models.Analysis {
	inst := cand.Instrument
	png, err := o.renderer.Render(cand.History, inst.Name, windows)
	if err != nil {
		o.log.Warn("chart render failed", zap.String("code", inst.Code), zap.Error(err))
		return Placeholder(inst.Code, err)
	}

	prompt := prompts.ChartRequest{
		Code:       inst.Code,
		Name:       inst.Name,
		Market:     string(inst.Market),
		Indicators: indicatorContext(cand.History, cand.MovingAvgs, cand.VolumeRatio, inst.ChangePct),
		Theme:      theme,
	}.Render()
	return o.analyst.Analyze(ctx, inst.Code, png, prompt)
}

func indicatorContext(series models.HistorySeries, mas map[int]float64, volumeRatio, changePct float64) *prompts.IndicatorContext {
	closes := series.Closes()
	ic := &prompts.IndicatorContext{
		Bars:        len(closes),
		ChangePct:   changePct,
		MovingAvgs:  mas,
		VolumeRatio: volumeRatio,
	}
	if last, ok := series.Last(); ok {
		ic.Close = last.Close
	}
	if rsi, ok := technical.RSILatest(closes, 14); ok {
		ic.RSI = rsi
	}
	if bands := technical.Bollinger(closes, 20, 2); len(bands) > 0 {
		b := bands[len(bands)-1]
		ic.BandUpper, ic.BandLower = b.Upper, b.Lower
	}
	return ic
}
