// Package llm provides a unified interface for local and OpenAI-compatible
// text-generation services, with typed failures and a router that retries
// and falls back across providers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"
)

// Provider names for routing and configuration.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Common errors returned by LLM providers. A *GenerationError matches the
// sentinel of its Kind under errors.Is.
var (
	ErrNoAPIKey          = errors.New("llm: API key rejected")
	ErrRateLimit         = errors.New("llm: rate limit exceeded")
	ErrContextLength     = errors.New("llm: context length exceeded")
	ErrProviderDown      = errors.New("llm: provider unavailable")
	ErrModelNotFound     = errors.New("llm: model not found")
	ErrTimeout           = errors.New("llm: request timed out")
	ErrMalformedResponse = errors.New("llm: malformed response")
	ErrNoProviders       = errors.New("llm: no providers configured")
)

// ErrorKind classifies a generation failure.
type ErrorKind string

const (
	KindTimeout       ErrorKind = "timeout"
	KindUnavailable   ErrorKind = "unavailable"
	KindModelNotFound ErrorKind = "model_not_found"
	KindMalformed     ErrorKind = "malformed"
	KindRateLimited   ErrorKind = "rate_limited"
	KindAuth          ErrorKind = "auth"
	KindContextLength ErrorKind = "context_length"
)

var kindSentinels = map[ErrorKind]error{
	KindTimeout:       ErrTimeout,
	KindUnavailable:   ErrProviderDown,
	KindModelNotFound: ErrModelNotFound,
	KindMalformed:     ErrMalformedResponse,
	KindRateLimited:   ErrRateLimit,
	KindAuth:          ErrNoAPIKey,
	KindContextLength: ErrContextLength,
}

// GenerationError is a failed call to a text-generation service.
type GenerationError struct {
	Provider string
	Kind     ErrorKind
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("llm: %s %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Is matches the sentinel error for the Kind.
func (e *GenerationError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// newGenError builds a GenerationError, classifying transport errors.
func newGenError(provider string, kind ErrorKind, err error) *GenerationError {
	return &GenerationError{Provider: provider, Kind: kind, Err: err}
}

// classifyTransport maps a transport-level failure to a GenerationError.
func classifyTransport(provider string, ctx context.Context, err error) *GenerationError {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge
	}
	if errors.Is(err, context.DeadlineExceeded) || (ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return newGenError(provider, KindTimeout, err)
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return newGenError(provider, KindTimeout, err)
	}
	return newGenError(provider, KindUnavailable, err)
}

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// FinishReason indicates why the model stopped generating.
type FinishReason string

const (
	FinishStop   FinishReason = "stop"
	FinishLength FinishReason = "length"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Response represents a complete response from the LLM.
type Response struct {
	Content      string        `json:"content"`
	Reasoning    string        `json:"reasoning,omitempty"` // stripped <think> blocks
	FinishReason FinishReason  `json:"finish_reason"`
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

// ChatOptions configures a single chat request.
type ChatOptions struct {
	Model       string   `json:"model,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// LLMProvider is the interface that all LLM backends must implement.
type LLMProvider interface {
	// Name returns the provider identifier (e.g., "ollama", "openai").
	Name() string

	// Chat sends a conversation and returns a complete response. Failures
	// are *GenerationError.
	Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error)

	// Models returns the models known to this provider.
	Models() []string

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// NewMessage creates a message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// SystemMessage creates a system prompt message.
func SystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// UserMessage creates a user message.
func UserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// String returns a human-readable summary of the response.
func (r *Response) String() string {
	truncated := r.Content
	if len(truncated) > 100 {
		truncated = truncated[:100] + "..."
	}
	return fmt.Sprintf("[%s/%s] %q, %d tokens, %v",
		r.Provider, r.Model, truncated, r.Usage.TotalTokens, r.Latency.Round(time.Millisecond))
}

var thinkBlock = regexp.MustCompile(`(?s)<think>(.*?)</think>`)

// StripReasoning removes <think>…</think> blocks emitted by reasoning models
// and returns the visible answer and the concatenated reasoning. An unclosed
// <think> tag swallows the rest of the text.
func StripReasoning(text string) (answer, reasoning string) {
	var parts []string
	answer = thinkBlock.ReplaceAllStringFunc(text, func(m string) string {
		parts = append(parts, strings.TrimSpace(thinkBlock.FindStringSubmatch(m)[1]))
		return ""
	})
	if i := strings.Index(answer, "<think>"); i >= 0 {
		parts = append(parts, strings.TrimSpace(answer[i+len("<think>"):]))
		answer = answer[:i]
	}
	return strings.TrimSpace(answer), strings.Join(parts, "\n")
}

// finishResponse strips reasoning and rejects empty answers.
func finishResponse(provider string, r *Response) (*Response, error) {
	r.Content, r.Reasoning = StripReasoning(r.Content)
	if r.Content == "" {
		return nil, newGenError(provider, KindMalformed, errors.New("empty response"))
	}
	return r, nil
}
