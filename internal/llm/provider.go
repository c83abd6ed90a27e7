// Package llm talks to multimodal chat models (Gemini, OpenAI) over their
// REST APIs. Messages may carry images, which is how chart PNGs reach the
// model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider names for configuration.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Common errors returned by providers.
var (
	ErrNoAPIKey      = errors.New("llm: API key not configured")
	ErrRateLimit     = errors.New("llm: rate limit exceeded")
	ErrProviderDown  = errors.New("llm: provider unavailable")
	ErrInvalidModel  = errors.New("llm: invalid model")
	ErrEmptyResponse = errors.New("llm: empty response")
	ErrUnknown       = errors.New("llm: unknown provider")
)

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Image is an inline image attached to a message.
type Image struct {
	MIMEType string
	Data     []byte
}

// Message is a single conversation turn.
type Message struct {
	Role    Role    `json:"role"`
	Content string  `json:"content"`
	Images  []Image `json:"-"`
}

// Response is a complete model reply.
type Response struct {
	Content      string        `json:"content"`
	FinishReason string        `json:"finish_reason"`
	Usage        Usage         `json:"usage"`
	Model        string        `json:"model"`
	Provider     string        `json:"provider"`
	Latency      time.Duration `json:"latency"`
}

// Usage tracks token consumption for a request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatOptions configures a single chat request. Zero values fall back to
// the provider defaults.
type ChatOptions struct {
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// Provider is implemented by every model backend.
type Provider interface {
	// Name returns the provider identifier ("gemini", "openai").
	Name() string

	// Model returns the default model name.
	Model() string

	// Chat sends a conversation and returns the complete reply.
	Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error)

	// Ping checks that the provider is reachable and the key is accepted.
	Ping(ctx context.Context) error
}

// SystemMessage creates a system prompt message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// UserImageMessage creates a user message with a PNG attached.
func UserImageMessage(content string, png []byte) Message {
	return Message{
		Role:    RoleUser,
		Content: content,
		Images:  []Image{{MIMEType: "image/png", Data: png}},
	}
}

// String returns a short summary of the response.
func (r *Response) String() string {
	text := []rune(r.Content)
	if len(text) > 80 {
		text = append(text[:80], []rune("...")...)
	}
	return fmt.Sprintf("[%s/%s] %q, %d tokens, %v",
		r.Provider, r.Model, string(text), r.Usage.TotalTokens, r.Latency.Round(time.Millisecond))
}
