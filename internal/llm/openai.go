package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// OpenAIProvider implements LLMProvider for OpenAI-compatible Chat
// Completions servers (LM Studio, vLLM, llama.cpp server, OpenAI itself).
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *resty.Client
}

// OpenAIOption configures the OpenAI provider.
type OpenAIOption func(*OpenAIProvider)

// WithOpenAIBaseURL sets the server base URL including the /v1 prefix.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(p *OpenAIProvider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithOpenAIModel sets the default model.
func WithOpenAIModel(model string) OpenAIOption {
	return func(p *OpenAIProvider) { p.model = model }
}

// WithOpenAIHTTPClient sets a custom HTTP client.
func WithOpenAIHTTPClient(client *http.Client) OpenAIOption {
	return func(p *OpenAIProvider) { p.client = resty.NewWithClient(client) }
}

// NewOpenAIProvider creates an OpenAI-compatible provider. apiKey may be
// empty for local servers that do not authenticate.
func NewOpenAIProvider(apiKey string, opts ...OpenAIOption) (*OpenAIProvider, error) {
	p := &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: "https://api.openai.com/v1",
		model:   "gpt-4o-mini",
		client:  resty.New().SetTimeout(5 * time.Minute),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.baseURL == "" {
		return nil, fmt.Errorf("openai: empty base URL")
	}
	p.client.SetBaseURL(p.baseURL).SetHeader("Content-Type", "application/json")
	if p.apiKey != "" {
		p.client.SetAuthToken(p.apiKey)
	}
	return p, nil
}

func (p *OpenAIProvider) Name() string     { return ProviderOpenAI }
func (p *OpenAIProvider) Models() []string { return []string{p.model} }

// Ping lists models to check reachability and credentials.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	resp, err := p.client.R().SetContext(ctx).Get("/models")
	if err != nil {
		return classifyTransport(ProviderOpenAI, ctx, err)
	}
	return p.checkError(resp.StatusCode(), resp.Body())
}

// Chat sends a chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	start := time.Now()
	model := p.resolveModel(opts)

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(p.buildRequest(messages, model, opts)).
		Post("/chat/completions")
	if err != nil {
		return nil, classifyTransport(ProviderOpenAI, ctx, err)
	}
	if err := p.checkError(resp.StatusCode(), resp.Body()); err != nil {
		return nil, err
	}

	var result openAIChatResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, newGenError(ProviderOpenAI, KindMalformed, fmt.Errorf("decode response: %w", err))
	}
	if len(result.Choices) == 0 {
		return nil, newGenError(ProviderOpenAI, KindMalformed, fmt.Errorf("no choices in response"))
	}
	return finishResponse(ProviderOpenAI, p.parseResponse(&result, model, start))
}

// ── Internal Types ──

type openAIChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

type openAIChatResponse struct {
	ID      string         `json:"id"`
	Choices []openAIChoice `json:"choices"`
	Usage   Usage          `json:"usage"`
	Model   string         `json:"model"`
}

type openAIChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// ── Helpers ──

func (p *OpenAIProvider) resolveModel(opts *ChatOptions) string {
	if opts != nil && opts.Model != "" {
		return opts.Model
	}
	return p.model
}

func (p *OpenAIProvider) buildRequest(messages []Message, model string, opts *ChatOptions) openAIChatRequest {
	r := openAIChatRequest{Model: model, Messages: messages}
	if opts != nil {
		if opts.Temperature > 0 {
			r.Temperature = &opts.Temperature
		}
		if opts.MaxTokens > 0 {
			r.MaxTokens = &opts.MaxTokens
		}
		if opts.TopP > 0 {
			r.TopP = &opts.TopP
		}
		r.Stop = opts.Stop
	}
	return r
}

func (p *OpenAIProvider) checkError(status int, body []byte) error {
	if status == http.StatusOK {
		return nil
	}
	msg := strings.TrimSpace(string(body))
	code := ""
	var apiErr openAIErrorResponse
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		msg, code = apiErr.Error.Message, apiErr.Error.Code
	}
	if len(msg) > 512 {
		msg = msg[:512]
	}
	kind := KindUnavailable
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuth
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	case strings.Contains(code, "context_length"):
		kind = KindContextLength
	case strings.Contains(code, "model_not_found") || status == http.StatusNotFound:
		kind = KindModelNotFound
	}
	return newGenError(ProviderOpenAI, kind, fmt.Errorf("HTTP %d: %s", status, msg))
}

func (p *OpenAIProvider) parseResponse(raw *openAIChatResponse, model string, start time.Time) *Response {
	choice := raw.Choices[0]
	r := &Response{
		Content:      choice.Message.Content,
		Model:        raw.Model,
		Provider:     ProviderOpenAI,
		Latency:      time.Since(start),
		Usage:        raw.Usage,
		FinishReason: mapFinishReason(choice.FinishReason),
	}
	if r.Model == "" {
		r.Model = model
	}
	return r
}

func mapFinishReason(reason string) FinishReason {
	switch reason {
	case "length":
		return FinishLength
	default:
		return FinishStop
	}
}
