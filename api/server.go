// Package api provides the HTTP server for chartscout.
//
// It exposes single-ticker analysis, screening runs, the market theme, price
// history with an SVG chart, recorded runs, and a WebSocket that streams
// screening progress. GET / serves a small HTML page over the same endpoints.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/seenimoa/chartscout/internal/agent"
	"github.com/seenimoa/chartscout/internal/chart"
	"github.com/seenimoa/chartscout/internal/config"
	"github.com/seenimoa/chartscout/internal/datasource"
	"github.com/seenimoa/chartscout/internal/screener"
	"github.com/seenimoa/chartscout/pkg/models"
	"github.com/seenimoa/chartscout/pkg/utils"
)

// Version is reported by the health endpoint. Set by the CLI at startup.
var Version = "dev"

// ErrRunInProgress is returned when a screening run is requested while
// another is executing.
var ErrRunInProgress = errors.New("a screening run is already in progress")

// Server is the HTTP API server.
type Server struct {
	router chi.Router
	cfg    *config.Config
	orch   *agent.Orchestrator
	wsHub  *WSHub
	page   *template.Template
	log    *zap.Logger

	runMu sync.Mutex // held for the whole of a screening run

	lastMu sync.RWMutex
	last   *models.RunResult // most recent run, for redisplay only
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config, orch *agent.Orchestrator, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}
	page, err := parsePage()
	if err != nil {
		return nil, fmt.Errorf("page template: %w", err)
	}

	srv := &Server{
		cfg:   cfg,
		orch:  orch,
		wsHub: NewWSHub(log),
		page:  page,
		log:   log.Named("api"),
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.runTimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.wsHub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/", s.handlePage)
	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/analyze", s.handleAnalyze)
		r.Post("/screen", s.handleScreen)
		r.Get("/screen/last", s.handleLastRun)
		r.Get("/presets", s.handlePresets)
		r.Get("/theme", s.handleTheme)
		r.Get("/history/{code}", s.handleHistory)
		r.Get("/runs", s.handleRuns)

		r.Get("/config", s.handleGetConfig)
		r.Get("/config/keys", s.handleGetConfigKeys)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// requestLogger logs each request through zap.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// AnalyzeRequest is the body for POST /api/v1/analyze.
type AnalyzeRequest struct {
	Code  string `json:"code"`
	Name  string `json:"name,omitempty"`
	Theme bool   `json:"theme,omitempty"`
}

// AnalyzeResponse carries the report plus the exact chart the model saw.
type AnalyzeResponse struct {
	*models.TickerReport
	ChartImage string `json:"chart_image"` // data:image/png;base64,...
}

// ScreenRequest is the body for POST /api/v1/screen. Empty fields fall back
// to the configured screener section.
type ScreenRequest struct {
	Preset        string `json:"preset,omitempty"`
	Market        string `json:"market,omitempty"`
	Analyze       bool   `json:"analyze"`
	Theme         bool   `json:"theme"`
	MaxCandidates *int   `json:"max_candidates,omitempty"`
}

// HistoryResponse is returned by GET /api/v1/history/{code}.
type HistoryResponse struct {
	Code string         `json:"code"`
	Bars []models.OHLCV `json:"bars"`
	SVG  string         `json:"svg"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":            "ok",
			"version":           Version,
			"market_status":     utils.MarketStatus(),
			"time_kst":          utils.FormatDateTimeKST(utils.NowKST()),
			"analysis_key":      config.HasAnalysisKey(s.cfg),
			"run_in_progress":   s.runBusy(),
			"websocket_clients": s.wsHub.ClientCount(),
		},
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout())
	defer cancel()

	rep, err := s.orch.AnalyzeTicker(ctx, req.Code, strings.TrimSpace(req.Name), req.Theme)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: AnalyzeResponse{
			TickerReport: rep,
			ChartImage:   "data:image/png;base64," + base64.StdEncoding.EncodeToString(rep.ChartPNG),
		},
	})
}

func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	var req ScreenRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	runReq, err := s.runRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout())
	defer cancel()

	run, err := s.Screen(ctx, runReq)
	if err != nil && run == nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if err != nil {
		// Interrupted: the partial result is still returned.
		writeJSON(w, statusFor(err), APIResponse{Success: false, Data: run, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: run})
}

func (s *Server) handleLastRun(w http.ResponseWriter, r *http.Request) {
	run := s.LastRun()
	if run == nil {
		writeError(w, http.StatusNotFound, "no run yet")
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: run})
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: screener.Presets})
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout())
	defer cancel()

	theme, err := s.orch.Theme(ctx)
	if err != nil && theme == nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	resp := APIResponse{Success: true, Data: theme}
	if err != nil {
		// Headlines and mood without model text.
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 3650 {
			writeError(w, http.StatusBadRequest, "days must be between 1 and 3650")
			return
		}
		days = n
	}

	series, err := s.orch.History(r.Context(), code, days)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	cfg := chart.DefaultSVGConfig()
	cfg.Title = series.Code
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: HistoryResponse{
			Code: series.Code,
			Bars: series.Bars,
			SVG:  chart.CandlestickSVG(series, agent.TickerWindows, cfg),
		},
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	runs, err := s.orch.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []models.RunSummary{}
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: runs})
}

// ============================================================
// Screening runs
// ============================================================

// Screen executes one run under the run lock, streaming progress to
// WebSocket clients. It returns ErrRunInProgress without waiting when another
// run holds the lock. Used by the HTTP handler and the scheduler.
func (s *Server) Screen(ctx context.Context, req agent.RunRequest) (*models.RunResult, error) {
	if !s.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.runMu.Unlock()

	run, err := s.orch.Run(ctx, req, func(p agent.Progress) {
		s.wsHub.Broadcast(WSMessage{Type: "screen_progress", Data: p})
	})
	if run != nil {
		s.setLast(run)
	}
	if err != nil {
		s.wsHub.Broadcast(WSMessage{Type: "screen_failed", Data: map[string]string{"error": err.Error()}})
		return run, err
	}

	codes := make([]string, 0, len(run.Candidates))
	for _, c := range run.Candidates {
		codes = append(codes, c.Instrument.Code)
	}
	s.wsHub.Broadcast(WSMessage{
		Type: "screen_complete",
		Data: map[string]interface{}{"run_id": run.ID, "candidates": codes},
	})
	return run, nil
}

// LastRun returns the most recent run result, or nil.
func (s *Server) LastRun() *models.RunResult {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.last
}

func (s *Server) setLast(run *models.RunResult) {
	s.lastMu.Lock()
	s.last = run
	s.lastMu.Unlock()
}

func (s *Server) runBusy() bool {
	if s.runMu.TryLock() {
		s.runMu.Unlock()
		return false
	}
	return true
}

// RunRequestFromConfig builds a run request from the screener and schedule
// sections of cfg.
func RunRequestFromConfig(cfg *config.Config) (agent.RunRequest, error) {
	t, err := screener.FromConfig(cfg.Screener)
	if err != nil {
		return agent.RunRequest{}, err
	}
	return agent.RunRequest{
		Market:     models.ParseMarket(cfg.Screener.Market),
		Thresholds: t,
		Analyze:    cfg.Schedule.Analyze,
		Theme:      cfg.Schedule.Theme,
	}, nil
}

func (s *Server) runRequest(req ScreenRequest) (agent.RunRequest, error) {
	sc := s.cfg.Screener
	if req.Preset != "" {
		sc.Preset = req.Preset
	}
	if req.Market != "" {
		sc.Market = req.Market
	}
	t, err := screener.FromConfig(sc)
	if err != nil {
		return agent.RunRequest{}, err
	}
	if req.MaxCandidates != nil {
		t.MaxCandidates = *req.MaxCandidates
		if err := t.Validate(); err != nil {
			return agent.RunRequest{}, err
		}
	}
	return agent.RunRequest{
		Market:     models.ParseMarket(sc.Market),
		Thresholds: t,
		Analyze:    req.Analyze,
		Theme:      req.Theme,
	}, nil
}

func (s *Server) runTimeout() time.Duration {
	if s.cfg.API.RunTimeoutSec > 0 {
		return time.Duration(s.cfg.API.RunTimeoutSec) * time.Second
	}
	return 10 * time.Minute
}

// ============================================================
// Helpers
// ============================================================

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, screener.ErrInvalidThresholds):
		return http.StatusBadRequest
	case errors.Is(err, datasource.ErrTickerNotFound):
		return http.StatusNotFound
	case errors.Is(err, datasource.ErrInsufficientHistory):
		return http.StatusUnprocessableEntity
	case errors.Is(err, datasource.ErrSourceUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499 // client closed request
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
