package llm

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/seenimoa/chartscout/internal/config"
)

// NewFromConfig builds the configured primary provider. It returns
// ErrNoAPIKey when that provider has no key, so callers can fall back to the
// placeholder path without making a request.
func NewFromConfig(cfg config.LLMConfig) (Provider, error) {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	switch strings.ToLower(cfg.Primary) {
	case ProviderGemini, "":
		p, err := NewGeminiProvider(cfg.GeminiKey,
			WithGeminiModel(cfg.GeminiModel),
			WithGeminiHTTPClient(client))
		if err != nil {
			return nil, err
		}
		return p, nil
	case ProviderOpenAI:
		p, err := NewOpenAIProvider(cfg.OpenAIKey,
			WithOpenAIModel(cfg.OpenAIModel),
			WithOpenAIHTTPClient(client))
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknown, cfg.Primary)
	}
}

// Options returns the per-request options configured for the analyst.
func Options(cfg config.LLMConfig) *ChatOptions {
	return &ChatOptions{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens}
}
