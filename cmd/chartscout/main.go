// chartscout is a Korean market momentum screener with LLM chart analysis.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seenimoa/chartscout/api"
	"github.com/seenimoa/chartscout/internal/agent"
	"github.com/seenimoa/chartscout/internal/config"
	"github.com/seenimoa/chartscout/internal/llm"
	"github.com/seenimoa/chartscout/pkg/models"
	"github.com/seenimoa/chartscout/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger, set in PersistentPreRunE.
var (
	cfg *config.Config
	log *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chartscout",
	Short: "chartscout — KOSPI/KOSDAQ momentum screener with chart analysis",
	Long: `chartscout screens the Korean stock market for momentum candidates
(price and volume filters, moving-average alignment, volume surge) and asks a
vision-capable model to read each candidate's candlestick chart.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real environment variables win.
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to read .env: %w", err)
		}

		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			cfg.Logging.Level = lvl
		}
		log, err = newLogger(cfg)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(screenCmd)
	rootCmd.AddCommand(themeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(statusCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("chartscout %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Analyze Command ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze [code]",
	Short: "Chart-analyze a single ticker",
	Long: `Fetch recent daily bars for one ticker, render its candlestick chart with
5/20/60-day moving averages and ask the configured model to read it.

Examples:
  chartscout analyze 005930
  chartscout analyze 삼성전자 --theme
  chartscout analyze 000660 --name SK하이닉스 --png hynix.png`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		withTheme, _ := cmd.Flags().GetBool("theme")
		pngPath, _ := cmd.Flags().GetString("png")

		a, err := newApp(cfg, log, 0)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		rep, err := a.orch.AnalyzeTicker(ctx, args[0], name, withTheme)
		if err != nil {
			return err
		}

		if pngPath != "" {
			if err := os.WriteFile(pngPath, rep.ChartPNG, 0o644); err != nil {
				return fmt.Errorf("write chart: %w", err)
			}
		}
		printReport(rep, pngPath)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().String("name", "", "display name used in the chart title and prompt")
	analyzeCmd.Flags().Bool("theme", false, "include today's market theme in the prompt")
	analyzeCmd.Flags().String("png", "", "write the rendered chart to this file")
}

// --- Screen Command ---

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Run one screening pass",
	Long: `Fetch the market listing, filter and sample it, evaluate each sampled
ticker's history and stop after the preset's candidate limit. With --analyze
each candidate's chart is sent to the model.

Examples:
  chartscout screen
  chartscout screen --preset momentum --market KOSDAQ --analyze
  chartscout screen --preset wide --max 10 --seed 42`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if p, _ := cmd.Flags().GetString("preset"); p != "" {
			cfg.Screener.Preset = p
		}
		if m, _ := cmd.Flags().GetString("market"); m != "" {
			cfg.Screener.Market = m
		}
		if cmd.Flags().Changed("max") {
			k, _ := cmd.Flags().GetInt("max")
			cfg.Screener.MaxCandidates = &k
		}
		analyze, _ := cmd.Flags().GetBool("analyze")
		withTheme, _ := cmd.Flags().GetBool("theme")
		seed, _ := cmd.Flags().GetInt64("seed")

		req, err := api.RunRequestFromConfig(cfg)
		if err != nil {
			return err
		}
		req.Analyze = analyze
		req.Theme = withTheme

		a, err := newApp(cfg, log, seed)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		fmt.Printf("🔍 Screening %s with preset %q\n", req.Market, req.Thresholds.Name)
		run, err := a.orch.Run(ctx, req, printProgress)
		fmt.Println()
		if run != nil {
			printRun(run)
		}
		return err
	},
}

func init() {
	screenCmd.Flags().String("preset", "", "threshold preset (classic, momentum, wide)")
	screenCmd.Flags().String("market", "", "market to screen (KOSPI, KOSDAQ, ALL)")
	screenCmd.Flags().Int("max", 0, "stop after this many candidates (0 = unlimited)")
	screenCmd.Flags().Bool("analyze", false, "chart-analyze each candidate")
	screenCmd.Flags().Bool("theme", false, "build the market theme and include it in prompts")
	screenCmd.Flags().Int64("seed", 0, "sampling seed (0 = config or time-based)")
}

// --- Theme Command ---

var themeCmd = &cobra.Command{
	Use:   "theme",
	Short: "Summarize today's market theme from news headlines",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, log, 0)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signalContext()
		defer stop()

		theme, err := a.orch.Theme(ctx)
		if theme != nil {
			printTheme(theme)
		}
		return err
	},
}

// --- History Command ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded screening runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cfg, log, 0)
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.orch.Recent(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Printf("No recorded runs (recorder driver: %s)\n", cfg.Recorder.Driver)
			return nil
		}
		for _, r := range runs {
			fmt.Printf("%s  %-8s %-6s  sampled %3d  %s\n",
				utils.FormatDateTimeKST(r.StartedAt), r.Preset, r.Market, r.Sampled, strings.Join(r.Candidates, ", "))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "number of runs to show")
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		withSchedule, _ := cmd.Flags().GetBool("schedule")
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.API.Port = port
		}

		a, err := newApp(cfg, log, 0)
		if err != nil {
			return err
		}
		defer a.Close()

		api.Version = version
		srv, err := api.NewServer(cfg, a.orch, log)
		if err != nil {
			return err
		}

		ctx, stop := signalContext()
		defer stop()

		if withSchedule {
			sched, err := startSchedule(cfg, srv.Screen)
			if err != nil {
				return err
			}
			defer sched.Stop()
		}

		addr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
		fmt.Printf("🌐 Starting chartscout API server on %s\n", addr)
		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (default from config)")
	serveCmd.Flags().Bool("schedule", false, "also run the scheduled screening job")
}

// --- Schedule Command ---

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run screening on a cron schedule without the API server",
	Long: `Run the screening job on a six-field cron spec (seconds first) until
interrupted. Results go to the configured recorder.

Examples:
  chartscout schedule
  chartscout schedule --cron "0 40 15 * * 1-5"
  chartscout schedule --now`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if spec, _ := cmd.Flags().GetString("cron"); spec != "" {
			cfg.Schedule.Cron = spec
		}
		now, _ := cmd.Flags().GetBool("now")

		a, err := newApp(cfg, log, 0)
		if err != nil {
			return err
		}
		defer a.Close()

		runner := func(ctx context.Context, req agent.RunRequest) (*models.RunResult, error) {
			return a.orch.Run(ctx, req, nil)
		}

		ctx, stop := signalContext()
		defer stop()

		sched, err := startSchedule(cfg, runner)
		if err != nil {
			return err
		}
		defer sched.Stop()

		if now {
			sched.RunNow(scheduledJob, screenJob(cfg, runner))
		}
		if next, ok := sched.Next(); ok {
			fmt.Printf("⏰ Next run: %s\n", utils.FormatDateTimeKST(next))
		}
		<-ctx.Done()
		return nil
	},
}

func init() {
	scheduleCmd.Flags().String("cron", "", "six-field cron spec, seconds first (default from config)")
	scheduleCmd.Flags().Bool("now", false, "run once immediately before waiting")
}

// --- Config Command ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with keys masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  chartscout — System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:       %s (%s)\n", version, commit)
		fmt.Printf("  Market Status: %s\n", utils.MarketStatus())
		fmt.Printf("  Time (KST):    %s\n", utils.FormatDateTimeKST(utils.NowKST()))
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    LLM Provider:  %s\n", cfg.LLM.Primary)
		fmt.Printf("    Preset:        %s (%s)\n", cfg.Screener.Preset, cfg.Screener.Market)
		fmt.Printf("    Recorder:      %s\n", cfg.Recorder.Driver)
		fmt.Printf("    News Feeds:    %d\n", len(cfg.News.Feeds))
		fmt.Printf("    Schedule:      %s\n", cfg.Schedule.Cron)
		fmt.Printf("    API Server:    %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Println()

		fmt.Println("  API Keys:")
		for _, k := range config.CheckAPIKeys(cfg) {
			status := "❌ not set"
			if k.IsSet {
				status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-25s %s\n", k.Name+":", status)
		}
		if !config.HasAnalysisKey(cfg) {
			fmt.Printf("\n  ⚠️  No key for %q: analyses will read %q\n", cfg.LLM.Primary, agent.PlaceholderNoKey)
		} else if ping, _ := cmd.Flags().GetBool("ping"); ping {
			fmt.Printf("\n  Model check:   %s\n", pingProvider(cmd.Context(), cfg))
		}

		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}

func init() {
	statusCmd.Flags().Bool("ping", false, "send a minimal request to the configured model")
}

func pingProvider(ctx context.Context, cfg *config.Config) string {
	p, err := llm.NewFromConfig(cfg.LLM)
	if err != nil {
		return "❌ " + err.Error()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := p.Ping(ctx); err != nil {
		return "❌ " + err.Error()
	}
	return fmt.Sprintf("✅ %s reachable", p.Name())
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printProgress(p agent.Progress) {
	switch p.Stage {
	case agent.StageTheme:
		fmt.Print("\r   building market theme...")
	case agent.StageScreen:
		fmt.Printf("\r   evaluated %d/%d    ", p.Processed, p.Total)
	case agent.StageAnalyze:
		fmt.Printf("\r   analyzing %d/%d %s    ", p.Processed, p.Total, p.Code)
	}
}

func printRun(run *models.RunResult) {
	r := run.Report
	fmt.Printf("Listing %d rows (%d malformed), %d passed filters, %d sampled, %d evaluated\n",
		r.ListingRows, r.Malformed, r.Retained, r.Sampled, r.Evaluated)
	fmt.Printf("Skipped: fetch %d, bars %d, trend %d, volume %d, bearish %d\n",
		r.Skipped.FetchFailed, r.Skipped.InsufficientBars, r.Skipped.TrendNotAligned,
		r.Skipped.NoVolumeSurge, r.Skipped.BearishBar)

	if run.Theme != nil {
		printTheme(run.Theme)
	}

	if len(run.Candidates) == 0 {
		fmt.Println("\nNo candidates.")
		return
	}
	fmt.Printf("\n%d candidate(s):\n", len(run.Candidates))
	for i, c := range run.Candidates {
		inst := c.Instrument
		fmt.Printf("\n%d. %s (%s) %s  %s  vol %s  x%.2f\n",
			i+1, inst.Name, inst.Code, utils.FormatKRW(inst.Close), utils.FormatPct(inst.ChangePct),
			utils.FormatVolume(inst.Volume), c.VolumeRatio)
		if i < len(run.Analyses) {
			fmt.Println(indent(run.Analyses[i].Text))
		}
	}
}

func printReport(rep *models.TickerReport, pngPath string) {
	bars := rep.History.Bars
	last := bars[len(bars)-1]
	fmt.Printf("📊 %s (%s)  %s  %s\n", rep.Name, rep.Code, utils.FormatKRW(last.Close),
		last.Timestamp.In(utils.KST).Format("2006-01-02"))
	if pngPath != "" {
		fmt.Printf("   chart: %s\n", pngPath)
	}
	if rep.Theme != nil {
		printTheme(rep.Theme)
	}
	fmt.Println()
	fmt.Println(rep.Analysis.Text)
	if rep.Analysis.Latency > 0 {
		fmt.Printf("\n(%s, %s)\n", rep.Analysis.Model, rep.Analysis.Latency.Round(time.Millisecond))
	}
}

func printTheme(t *models.MarketTheme) {
	fmt.Printf("\n📰 Market mood: %s (%+.2f over %d headlines)\n", t.Mood.Label, t.Mood.Score, t.Mood.Articles)
	if t.Text != "" {
		fmt.Println(indent(t.Text))
	}
}

func indent(s string) string {
	return "   " + strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n   ")
}
