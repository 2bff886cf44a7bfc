package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// ollamaModels lists commonly used Ollama models, reported until the server
// has been asked for its installed models.
var ollamaModels = []string{
	"deepseek-r1:8b",
	"deepseek-r1:14b",
	"llama3.1:8b",
	"qwen2.5:7b",
	"qwen2.5:14b",
	"mistral:7b",
	"phi4:14b",
	"gemma2:9b",
}

// OllamaProvider implements LLMProvider for local Ollama instances.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *resty.Client

	mu        sync.RWMutex
	installed []string
}

// OllamaOption configures the Ollama provider.
type OllamaOption func(*OllamaProvider)

// WithOllamaModel sets the default model.
func WithOllamaModel(model string) OllamaOption {
	return func(p *OllamaProvider) { p.model = model }
}

// WithOllamaHTTPClient sets a custom HTTP client.
func WithOllamaHTTPClient(client *http.Client) OllamaOption {
	return func(p *OllamaProvider) { p.client = resty.NewWithClient(client) }
}

// WithOllamaTimeout bounds a single request. Callers usually bound requests
// with a context instead.
func WithOllamaTimeout(d time.Duration) OllamaOption {
	return func(p *OllamaProvider) { p.client.SetTimeout(d) }
}

// NewOllamaProvider creates an Ollama provider.
// baseURL is the Ollama server URL (e.g., "http://localhost:11434").
func NewOllamaProvider(baseURL string, opts ...OllamaOption) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	p := &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   "deepseek-r1:8b",
		client:  resty.New().SetTimeout(10 * time.Minute), // local models are slow
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client.SetBaseURL(p.baseURL).SetHeader("Content-Type", "application/json")
	return p, nil
}

func (p *OllamaProvider) Name() string { return ProviderOllama }

// Models returns the installed models once ListModels has run, otherwise a
// static list of common models.
func (p *OllamaProvider) Models() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.installed) > 0 {
		return append([]string(nil), p.installed...)
	}
	return ollamaModels
}

// Ping checks if the Ollama server is reachable.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	_, err := p.ListModels(ctx)
	return err
}

// ListModels queries /api/tags for the installed models.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]string, error) {
	resp, err := p.client.R().SetContext(ctx).Get("/api/tags")
	if err != nil {
		return nil, classifyTransport(ProviderOllama, ctx, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, newGenError(ProviderOllama, KindUnavailable, fmt.Errorf("status %d", resp.StatusCode()))
	}
	var tags ollamaTagsResponse
	if err := json.Unmarshal(resp.Body(), &tags); err != nil {
		return nil, newGenError(ProviderOllama, KindMalformed, fmt.Errorf("decode tags: %w", err))
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	p.mu.Lock()
	p.installed = names
	p.mu.Unlock()
	return names, nil
}

// HasModel reports whether a model is installed, checking the server.
func (p *OllamaProvider) HasModel(ctx context.Context, model string) (bool, error) {
	names, err := p.ListModels(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == model || strings.TrimSuffix(n, ":latest") == model {
			return true, nil
		}
	}
	return false, nil
}

// Chat sends a chat request to Ollama using the /api/chat endpoint.
func (p *OllamaProvider) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	start := time.Now()
	model := p.resolveModel(opts)

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(p.buildRequest(messages, model, opts)).
		Post("/api/chat")
	if err != nil {
		return nil, classifyTransport(ProviderOllama, ctx, err)
	}
	if err := p.checkError(resp.StatusCode(), resp.Body(), model); err != nil {
		return nil, err
	}

	var result ollamaChatResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, newGenError(ProviderOllama, KindMalformed, fmt.Errorf("decode response: %w", err))
	}
	return finishResponse(ProviderOllama, p.parseResponse(&result, model, start))
}

// ── Internal Types ──

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64  `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaChatResponse struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	DoneReason      string  `json:"done_reason"`
	TotalDuration   int64   `json:"total_duration"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}

// ── Helpers ──

func (p *OllamaProvider) resolveModel(opts *ChatOptions) string {
	if opts != nil && opts.Model != "" {
		return opts.Model
	}
	return p.model
}

func (p *OllamaProvider) buildRequest(messages []Message, model string, opts *ChatOptions) ollamaChatRequest {
	r := ollamaChatRequest{Model: model, Messages: messages}
	if opts != nil {
		if opts.Temperature > 0 || opts.MaxTokens > 0 || opts.TopP > 0 || len(opts.Stop) > 0 {
			r.Options = &ollamaOptions{
				Temperature: opts.Temperature,
				NumPredict:  opts.MaxTokens,
				TopP:        opts.TopP,
				Stop:        opts.Stop,
			}
		}
	}
	return r
}

func (p *OllamaProvider) checkError(status int, body []byte, model string) error {
	if status == http.StatusOK {
		return nil
	}
	msg := strings.TrimSpace(string(body))
	var apiErr ollamaErrorResponse
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		msg = apiErr.Error
	}
	if len(msg) > 512 {
		msg = msg[:512]
	}
	switch {
	case status == http.StatusNotFound && strings.Contains(msg, "not found"):
		return newGenError(ProviderOllama, KindModelNotFound, fmt.Errorf("%s: %s (try `ollama pull %s`)", model, msg, model))
	case status == http.StatusTooManyRequests:
		return newGenError(ProviderOllama, KindRateLimited, fmt.Errorf("%s", msg))
	}
	return newGenError(ProviderOllama, KindUnavailable, fmt.Errorf("HTTP %d: %s", status, msg))
}

func (p *OllamaProvider) parseResponse(raw *ollamaChatResponse, model string, start time.Time) *Response {
	r := &Response{
		Model:    raw.Model,
		Provider: ProviderOllama,
		Latency:  time.Since(start),
		Content:  raw.Message.Content,
		Usage: Usage{
			PromptTokens:     raw.PromptEvalCount,
			CompletionTokens: raw.EvalCount,
			TotalTokens:      raw.PromptEvalCount + raw.EvalCount,
		},
		FinishReason: FinishStop,
	}
	if r.Model == "" {
		r.Model = model
	}
	if raw.DoneReason == "length" {
		r.FinishReason = FinishLength
	}
	return r
}
