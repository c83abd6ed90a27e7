package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/seenimoa/chartscout/api"
	"github.com/seenimoa/chartscout/internal/agent"
	"github.com/seenimoa/chartscout/internal/chart"
	"github.com/seenimoa/chartscout/internal/config"
	"github.com/seenimoa/chartscout/internal/datasource"
	"github.com/seenimoa/chartscout/internal/infra"
	"github.com/seenimoa/chartscout/internal/llm"
	"github.com/seenimoa/chartscout/internal/logging"
	"github.com/seenimoa/chartscout/internal/recorder"
	"github.com/seenimoa/chartscout/internal/scheduler"
	"github.com/seenimoa/chartscout/internal/screener"
	"github.com/seenimoa/chartscout/pkg/models"
)

const scheduledJob = "screen"

// app holds the wired components shared by the commands.
type app struct {
	orch *agent.Orchestrator
	rec  recorder.Recorder
}

func (a *app) Close() {
	if err := a.rec.Close(); err != nil {
		log.Warn("closing recorder", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	l, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return l, nil
}

// newApp wires sources, the model provider, the renderer and the recorder
// into an orchestrator. A non-zero seed overrides cfg.Screener.Seed.
func newApp(cfg *config.Config, log *zap.Logger, seed int64) (*app, error) {
	src := cfg.Sources
	hc := &http.Client{Timeout: time.Duration(src.TimeoutSec) * time.Second}
	// One limiter across every outbound source.
	limiter := infra.NewLimiter(src.RequestsPerSec, src.Burst)
	common := []datasource.Option{
		datasource.WithHTTPClient(hc),
		datasource.WithUserAgent(src.UserAgent),
		datasource.WithLimiter(limiter),
		datasource.WithLogger(log),
	}

	listing := datasource.NewNaverListing(src.PageConcurrency, src.MaxPages,
		append(common, datasource.WithBaseURL(src.NaverBaseURL))...)
	history := datasource.NewYFinance(append(common, datasource.WithBaseURL(src.YahooBaseURL))...)

	provider, err := llm.NewFromConfig(cfg.LLM)
	switch {
	case errors.Is(err, llm.ErrNoAPIKey):
		log.Warn("no model key configured, analyses will use the placeholder",
			zap.String("provider", cfg.LLM.Primary))
		provider = nil
	case err != nil:
		return nil, err
	}
	opts := llm.Options(cfg.LLM)

	var themes *agent.ThemeWriter
	if len(cfg.News.Feeds) > 0 {
		news := datasource.NewNews(cfg.News.Feeds, time.Duration(cfg.News.CacheTTL)*time.Second, common...)
		themes = agent.NewThemeWriter(news, agent.NewThemeAnalyst(provider, opts, log), cfg.News.MaxHeadlines, log)
	}

	if seed == 0 {
		seed = cfg.Screener.Seed
	}
	sopts := []screener.Option{screener.WithLogger(log)}
	if seed != 0 {
		sopts = append(sopts, screener.WithSeed(seed))
	}

	rec, err := recorder.Open(cfg.Recorder, log)
	if err != nil {
		return nil, err
	}

	orch := agent.NewOrchestrator(agent.OrchestratorConfig{
		Listing:     listing,
		History:     history,
		Screener:    screener.New(history, sopts...),
		Renderer:    chart.NewPNGRenderer(),
		Analyst:     agent.NewChartAnalyst(provider, opts, log),
		Themes:      themes,
		Recorder:    rec,
		AnalyzeDays: src.AnalyzeDays,
		Logger:      log,
	})
	return &app{orch: orch, rec: rec}, nil
}

// runFunc executes one screening run. Server.Screen and Orchestrator.Run
// (with no progress callback) both fit.
type runFunc func(ctx context.Context, req agent.RunRequest) (*models.RunResult, error)

// screenJob builds the scheduled job. The request is rebuilt from cfg on
// every activation.
func screenJob(cfg *config.Config, run runFunc) scheduler.Job {
	return func(ctx context.Context) error {
		req, err := api.RunRequestFromConfig(cfg)
		if err != nil {
			return err
		}
		res, err := run(ctx, req)
		if err != nil {
			return err
		}
		log.Info("scheduled run complete",
			zap.String("run_id", res.ID),
			zap.Int("candidates", len(res.Candidates)))
		return nil
	}
}

func startSchedule(cfg *config.Config, run runFunc) (*scheduler.Scheduler, error) {
	if cfg.Schedule.Cron == "" {
		return nil, errors.New("no schedule configured (set schedule.cron or pass --cron)")
	}
	if _, err := api.RunRequestFromConfig(cfg); err != nil {
		return nil, err
	}

	sched := scheduler.New(time.Duration(cfg.API.RunTimeoutSec)*time.Second, log)
	if err := sched.Add(scheduledJob, cfg.Schedule.Cron, screenJob(cfg, run)); err != nil {
		return nil, err
	}
	sched.Start()
	return sched, nil
}
