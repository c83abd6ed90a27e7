package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seenimoa/chartscout/internal/agent"
	"github.com/seenimoa/chartscout/internal/config"
	"github.com/seenimoa/chartscout/internal/datasource"
	"github.com/seenimoa/chartscout/internal/screener"
	"github.com/seenimoa/chartscout/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Test Helpers
// ════════════════════════════════════════════════════════════════════

type fakeListing struct {
	rows []models.ListingRow
	err  error
}

func (f fakeListing) FetchListing(context.Context, models.Market) ([]models.ListingRow, error) {
	return f.rows, f.err
}

type fakeHistory struct{}

func (fakeHistory) FetchHistory(_ context.Context, code string, _, _ time.Time) (models.HistorySeries, error) {
	if code == "999999" {
		return models.HistorySeries{}, datasource.ErrTickerNotFound
	}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.OHLCV, 80)
	for i := range bars {
		c := 10_000 + float64(i)*50
		bars[i] = models.OHLCV{Timestamp: start.AddDate(0, 0, i), Open: c - 20, High: c + 40, Low: c - 40, Close: c, Volume: 100_000}
	}
	bars[len(bars)-1].Volume = 400_000
	return models.HistorySeries{Code: code, Bars: bars}, nil
}

type fakeRenderer struct{}

func (fakeRenderer) Render(models.HistorySeries, string, []int) ([]byte, error) {
	return []byte("\x89PNG"), nil
}

func testServer(t *testing.T, listing datasource.ListingSource) *Server {
	t.Helper()
	if listing == nil {
		listing = fakeListing{rows: []models.ListingRow{
			{Code: "005930", Name: "삼성전자", Market: models.MarketKOSPI, Close: "71,200", Volume: "1,200,000", ChangePct: "+4.10%"},
			{Code: "000660", Name: "SK하이닉스", Market: models.MarketKOSPI, Close: "180,000", Volume: "900,000", ChangePct: "+6.20%"},
			{Code: "035420", Name: "NAVER", Market: models.MarketKOSPI, Close: "200,000", Volume: "10", ChangePct: "+5.00%"},
		}}
	}

	cfg := &config.Config{}
	cfg.Screener.Preset = "classic"
	cfg.Screener.Market = "KOSPI"
	cfg.API.RunTimeoutSec = 30
	cfg.LLM.GeminiKey = "AIzaSyTESTKEY1234567"

	orch := agent.NewOrchestrator(agent.OrchestratorConfig{
		Listing:  listing,
		History:  fakeHistory{},
		Screener: screener.New(fakeHistory{}, screener.WithSeed(1)),
		Renderer: fakeRenderer{},
	})

	srv, err := NewServer(cfg, orch, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.wsHub.Run(ctx)
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

// decodeData re-decodes the envelope's data field into v.
func decodeData(t *testing.T, resp APIResponse, v interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
}

// ════════════════════════════════════════════════════════════════════
// Health / page
// ════════════════════════════════════════════════════════════════════

func TestHandleHealth(t *testing.T) {
	srv := testServer(t, nil)
	rec := do(t, srv, "GET", "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}

	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	if !ok {
		t.Fatal("data should be a map")
	}
	for _, key := range []string{"status", "version", "market_status", "time_kst", "analysis_key", "run_in_progress"} {
		if _, ok := data[key]; !ok {
			t.Errorf("missing %s", key)
		}
	}
	if data["analysis_key"] != true {
		t.Error("analysis_key should reflect the configured gemini key")
	}
	if data["run_in_progress"] != false {
		t.Error("no run should be in progress")
	}
}

func TestHandlePage(t *testing.T) {
	srv := testServer(t, nil)
	rec := do(t, srv, "GET", "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"chartscout", `value="momentum"`, "아직 실행된 스크리닝이 없습니다"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}

	if rec := do(t, srv, "POST", "/api/v1/screen", `{"analyze":true}`); rec.Code != http.StatusOK {
		t.Fatalf("screen status %d", rec.Code)
	}
	body = do(t, srv, "GET", "/", "").Body.String()
	if !strings.Contains(body, "삼성전자 (005930)") {
		t.Error("page should list the last run's candidates")
	}
}

// ════════════════════════════════════════════════════════════════════
// Analyze
// ════════════════════════════════════════════════════════════════════

func TestHandleAnalyze_InvalidJSON(t *testing.T) {
	srv := testServer(t, nil)
	rec := do(t, srv, "POST", "/api/v1/analyze", "{invalid")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if resp := decodeResponse(t, rec); resp.Success || resp.Error == "" {
		t.Errorf("expected failure envelope, got %+v", resp)
	}
}

func TestHandleAnalyze_MissingCode(t *testing.T) {
	srv := testServer(t, nil)
	rec := do(t, srv, "POST", "/api/v1/analyze", `{"name":"삼성전자"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if resp := decodeResponse(t, rec); !strings.Contains(resp.Error, "code") {
		t.Errorf("error should mention 'code': %q", resp.Error)
	}
}

func TestHandleAnalyze(t *testing.T) {
	srv := testServer(t, nil)
	rec := do(t, srv, "POST", "/api/v1/analyze", `{"code":"5930","name":"삼성전자"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d: %s", rec.Code, rec.Body.String())
	}

	var got struct {
		Code       string          `json:"code"`
		Name       string          `json:"name"`
		Analysis   models.Analysis `json:"analysis"`
		ChartImage string          `json:"chart_image"`
	}
	decodeData(t, decodeResponse(t, rec), &got)

	if got.Code != "005930" || got.Name != "삼성전자" {
		t.Errorf("unexpected identity %s/%s", got.Code, got.Name)
	}
	if !strings.HasPrefix(got.ChartImage, "data:image/png;base64,") {
		t.Errorf("unexpected chart image %q", got.ChartImage)
	}
	// The orchestrator was built without a provider.
	if !got.Analysis.Placeholder || got.Analysis.Text != agent.PlaceholderNoKey {
		t.Errorf("expected placeholder analysis, got %+v", got.Analysis)
	}
}

func TestHandleAnalyze_UnknownTicker(t *testing.T) {
	srv := testServer(t, nil)
	rec := do(t, srv, "POST", "/api/v1/analyze", `{"code":"999999"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

// ════════════════════════════════════════════════════════════════════
// Screen
// ════════════════════════════════════════════════════════════════════

func TestHandleScreen(t *testing.T) {
	srv := testServer(t, nil)

	if rec := do(t, srv, "GET", "/api/v1/screen/last", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("last run before any run: got %d, want 404", rec.Code)
	}

	rec := do(t, srv, "POST", "/api/v1/screen", `{"analyze":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d: %s", rec.Code, rec.Body.String())
	}
	var run models.RunResult
	decodeData(t, decodeResponse(t, rec), &run)

	// NAVER fails the liquidity floor.
	if run.Report.Retained != 2 || len(run.Candidates) != 2 || len(run.Analyses) != 2 {
		t.Errorf("unexpected run: retained %d, candidates %d, analyses %d",
			run.Report.Retained, len(run.Candidates), len(run.Analyses))
	}
	if run.Preset != "classic" || run.Market != models.MarketKOSPI {
		t.Errorf("unexpected run metadata %s/%s", run.Preset, run.Market)
	}

	last := srv.LastRun()
	if last == nil || last.ID != run.ID {
		t.Fatal("last run should be retained")
	}
	if rec := do(t, srv, "GET", "/api/v1/screen/last", ""); rec.Code != http.StatusOK {
		t.Errorf("last run: got %d", rec.Code)
	}
}

func TestHandleScreen_Overrides(t *testing.T) {
	srv := testServer(t, nil)
	rec := do(t, srv, "POST", "/api/v1/screen", `{"preset":"wide","max_candidates":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d: %s", rec.Code, rec.Body.String())
	}
	var run models.RunResult
	decodeData(t, decodeResponse(t, rec), &run)
	if run.Preset != "wide" || len(run.Candidates) != 1 {
		t.Errorf("expected one wide candidate, got %s with %d", run.Preset, len(run.Candidates))
	}
}

func TestHandleScreen_BadRequest(t *testing.T) {
	srv := testServer(t, nil)
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{"},
		{"unknown preset", `{"preset":"yolo"}`},
		{"negative k", `{"max_candidates":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, srv, "POST", "/api/v1/screen", tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleScreen_Conflict(t *testing.T) {
	srv := testServer(t, nil)
	srv.runMu.Lock()
	defer srv.runMu.Unlock()

	rec := do(t, srv, "POST", "/api/v1/screen", `{}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusConflict)
	}
	if health := decodeResponse(t, do(t, srv, "GET", "/health", "")); health.Data.(map[string]interface{})["run_in_progress"] != true {
		t.Error("health should report the held run lock")
	}
}

func TestHandleScreen_ListingFailure(t *testing.T) {
	srv := testServer(t, fakeListing{err: errors.New("naver down")})
	rec := do(t, srv, "POST", "/api/v1/screen", `{}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusBadGateway)
	}
	if srv.LastRun() != nil {
		t.Error("failed run should not replace the last run")
	}
}

// ════════════════════════════════════════════════════════════════════
// History / runs / presets / config / theme
// ════════════════════════════════════════════════════════════════════

func TestHandleHistory(t *testing.T) {
	srv := testServer(t, nil)
	rec := do(t, srv, "GET", "/api/v1/history/005930?days=120", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d: %s", rec.Code, rec.Body.String())
	}
	var got HistoryResponse
	decodeData(t, decodeResponse(t, rec), &got)
	if got.Code != "005930" || len(got.Bars) != 80 {
		t.Errorf("unexpected history %s with %d bars", got.Code, len(got.Bars))
	}
	if !strings.HasPrefix(got.SVG, "<svg") || !strings.Contains(got.SVG, "MA20") {
		t.Errorf("unexpected svg: %.80s", got.SVG)
	}
}

func TestHandleHistory_Errors(t *testing.T) {
	srv := testServer(t, nil)
	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/history/005930?days=abc", http.StatusBadRequest},
		{"/api/v1/history/005930?days=0", http.StatusBadRequest},
		{"/api/v1/history/notacode", http.StatusNotFound},
		{"/api/v1/history/999999", http.StatusNotFound},
	}
	for _, tt := range tests {
		if rec := do(t, srv, "GET", tt.path, ""); rec.Code != tt.want {
			t.Errorf("%s: got %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
}

func TestHandleRuns(t *testing.T) {
	srv := testServer(t, nil)
	rec := do(t, srv, "GET", "/api/v1/runs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	data, ok := decodeResponse(t, rec).Data.([]interface{})
	if !ok || len(data) != 0 {
		t.Errorf("expected empty list, got %#v", data)
	}

	if rec := do(t, srv, "GET", "/api/v1/runs?limit=0", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("limit=0: got %d, want 400", rec.Code)
	}
}

func TestHandlePresets(t *testing.T) {
	srv := testServer(t, nil)
	resp := decodeResponse(t, do(t, srv, "GET", "/api/v1/presets", ""))
	var presets map[string]screener.Thresholds
	decodeData(t, resp, &presets)
	for _, name := range []string{"classic", "momentum", "wide"} {
		if _, ok := presets[name]; !ok {
			t.Errorf("missing preset %s", name)
		}
	}
}

func TestHandleGetConfigMasksKeys(t *testing.T) {
	srv := testServer(t, nil)
	rec := do(t, srv, "GET", "/api/v1/config", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "AIzaSyTESTKEY1234567") {
		t.Fatal("config response leaks the api key")
	}

	var cfg map[string]map[string]interface{}
	decodeData(t, decodeResponse(t, do(t, srv, "GET", "/api/v1/config", "")), &cfg)
	if got := cfg["llm"]["gemini_key"]; got != "AIz...567" {
		t.Errorf("gemini_key: got %v", got)
	}
}

func TestHandleGetConfigKeys(t *testing.T) {
	srv := testServer(t, nil)
	var keys []config.KeyStatus
	decodeData(t, decodeResponse(t, do(t, srv, "GET", "/api/v1/config/keys", "")), &keys)
	if len(keys) != 2 || !keys[0].IsSet || keys[1].IsSet {
		t.Errorf("unexpected key status %+v", keys)
	}
}

func TestHandleThemeWithoutNews(t *testing.T) {
	srv := testServer(t, nil)
	if rec := do(t, srv, "GET", "/api/v1/theme", ""); rec.Code != http.StatusBadGateway {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusBadGateway)
	}
}

// ════════════════════════════════════════════════════════════════════
// WebSocket progress
// ════════════════════════════════════════════════════════════════════

func TestWebSocketStreamsProgress(t *testing.T) {
	srv := testServer(t, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.wsHub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Post(ts.URL+"/api/v1/screen", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var sawProgress bool
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v (progress seen: %v)", err, sawProgress)
		}
		if msg.Type == "screen_progress" {
			sawProgress = true
		}
		if msg.Type == "screen_complete" {
			break
		}
	}
	if !sawProgress {
		t.Error("expected progress before completion")
	}
}

// ════════════════════════════════════════════════════════════════════
// Helpers
// ════════════════════════════════════════════════════════════════════

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrRunInProgress, http.StatusConflict},
		{fmt.Errorf("x: %w", screener.ErrInvalidThresholds), http.StatusBadRequest},
		{datasource.ErrTickerNotFound, http.StatusNotFound},
		{datasource.ErrInsufficientHistory, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: boom", datasource.ErrSourceUnavailable), http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, APIResponse{Success: true, Data: "hello"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusCreated)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	resp := decodeResponse(t, rec)
	if !resp.Success || resp.Data != "hello" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, http.StatusNotFound, "not found")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusNotFound)
	}
	resp := decodeResponse(t, rec)
	if resp.Success || resp.Error != "not found" {
		t.Errorf("unexpected response: %+v", resp)
	}
}
