// Package agent runs chartscout's model-backed work: reading candidate charts,
// writing the daily market theme, and the orchestrator that chains listing,
// screening, rendering and analysis into one run.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/seenimoa/chartscout/internal/agent/prompts"
	"github.com/seenimoa/chartscout/internal/llm"
	"github.com/seenimoa/chartscout/pkg/models"
)

// ErrAnalysisUnavailable is returned when the model call fails or no
// credential is configured. Callers substitute a placeholder and continue.
var ErrAnalysisUnavailable = errors.New("analysis unavailable")

// Placeholder texts shown in place of an analysis.
const (
	PlaceholderNoKey  = "API Key가 필요합니다."
	PlaceholderFailed = "차트 분석을 가져오지 못했습니다."
)

// ── Analyst ──

// Analyst sends one system prompt plus a single user turn to a provider.
// A nil provider is valid; every call then fails with ErrAnalysisUnavailable.
type Analyst struct {
	name         string
	systemPrompt string
	provider     llm.Provider
	opts         *llm.ChatOptions
	log          *zap.Logger
}

// AnalystConfig configures an Analyst.
type AnalystConfig struct {
	Name         string
	SystemPrompt string
	Provider     llm.Provider
	ChatOptions  *llm.ChatOptions
	Logger       *zap.Logger
}

// NewAnalyst creates an Analyst from the given configuration.
func NewAnalyst(cfg AnalystConfig) *Analyst {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyst{
		name:         cfg.Name,
		systemPrompt: cfg.SystemPrompt,
		provider:     cfg.Provider,
		opts:         cfg.ChatOptions,
		log:          log.Named(cfg.Name),
	}
}

// NewChartAnalyst creates the analyst that reads candidate charts.
func NewChartAnalyst(provider llm.Provider, opts *llm.ChatOptions, log *zap.Logger) *Analyst {
	return NewAnalyst(AnalystConfig{
		Name:         prompts.AgentChartAnalyst,
		SystemPrompt: prompts.ChartAnalystSystemPrompt + prompts.KoreanMarketPromptSuffix(),
		Provider:     provider,
		ChatOptions:  opts,
		Logger:       log,
	})
}

// NewThemeAnalyst creates the analyst that summarises headlines.
func NewThemeAnalyst(provider llm.Provider, opts *llm.ChatOptions, log *zap.Logger) *Analyst {
	return NewAnalyst(AnalystConfig{
		Name:         prompts.AgentThemeWriter,
		SystemPrompt: prompts.ThemeSystemPrompt,
		Provider:     provider,
		ChatOptions:  opts,
		Logger:       log,
	})
}

// Name returns the analyst's identifier.
func (a *Analyst) Name() string { return a.name }

// Available reports whether a provider is configured.
func (a *Analyst) Available() bool { return a.provider != nil }

// Ask makes exactly one model call. A PNG, when given, is attached to the
// user turn.
func (a *Analyst) Ask(ctx context.Context, prompt string, png []byte) (*llm.Response, error) {
	if a.provider == nil {
		return nil, fmt.Errorf("%w: %w", ErrAnalysisUnavailable, llm.ErrNoAPIKey)
	}

	user := llm.UserMessage(prompt)
	if len(png) > 0 {
		user = llm.UserImageMessage(prompt, png)
	}
	msgs := []llm.Message{llm.SystemMessage(a.systemPrompt), user}

	resp, err := a.provider.Chat(ctx, msgs, a.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAnalysisUnavailable, a.name, err)
	}
	a.log.Debug("model replied", zap.Stringer("response", resp))
	return resp, nil
}

// Analyze reads one chart. It never fails: any error yields the placeholder
// analysis so a batch keeps going.
func (a *Analyst) Analyze(ctx context.Context, code string, png []byte, prompt string) models.Analysis {
	resp, err := a.Ask(ctx, prompt, png)
	if err != nil {
		a.log.Warn("chart analysis unavailable", zap.String("code", code), zap.Error(err))
		return Placeholder(code, err)
	}
	return models.Analysis{
		Code:     code,
		Text:     strings.TrimSpace(resp.Content),
		Provider: resp.Provider,
		Model:    resp.Model,
		Latency:  resp.Latency,
	}
}

// Placeholder returns the fixed analysis substituted when err prevented a
// real one.
func Placeholder(code string, err error) models.Analysis {
	text := PlaceholderFailed
	if errors.Is(err, llm.ErrNoAPIKey) {
		text = PlaceholderNoKey
	}
	return models.Analysis{Code: code, Text: text, Placeholder: true}
}
