package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/seenimoa/stockpilot/internal/config"
)

// ════════════════════════════════════════════════════════════════════
// provider.go: types and helpers
// ════════════════════════════════════════════════════════════════════

func TestMessageConstructors(t *testing.T) {
	sys := SystemMessage("You are helpful.")
	if sys.Role != RoleSystem || sys.Content != "You are helpful." {
		t.Fatalf("SystemMessage: got %+v", sys)
	}
	user := UserMessage("hello")
	if user.Role != RoleUser || user.Content != "hello" {
		t.Fatalf("UserMessage: got %+v", user)
	}
}

func TestResponseString(t *testing.T) {
	r := &Response{Provider: "ollama", Model: "deepseek-r1:8b", Content: strings.Repeat("x", 150), Latency: 1500 * time.Millisecond}
	s := r.String()
	if !strings.Contains(s, "ollama/deepseek-r1:8b") || !strings.Contains(s, "...") {
		t.Fatalf("String: got %s", s)
	}
}

func TestStripReasoning(t *testing.T) {
	tests := []struct {
		in, answer, reasoning string
	}{
		{"plain answer", "plain answer", ""},
		{"<think>weighing news</think>\nSENTIMENT: Bullish", "SENTIMENT: Bullish", "weighing news"},
		{"<think>a</think>one<think>b</think> two", "one two", "a\nb"},
		{"RECOMMENDATION: HOLD<think>cut off", "RECOMMENDATION: HOLD", "cut off"},
	}
	for _, tt := range tests {
		a, r := StripReasoning(tt.in)
		if a != tt.answer || r != tt.reasoning {
			t.Errorf("StripReasoning(%q) = %q, %q; want %q, %q", tt.in, a, r, tt.answer, tt.reasoning)
		}
	}
}

func TestGenerationErrorIs(t *testing.T) {
	err := error(&GenerationError{Provider: "ollama", Kind: KindTimeout, Err: context.DeadlineExceeded})
	if !errors.Is(err, ErrTimeout) {
		t.Error("timeout kind should match ErrTimeout")
	}
	if errors.Is(err, ErrProviderDown) {
		t.Error("timeout kind should not match ErrProviderDown")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("should unwrap to the cause")
	}
	var ge *GenerationError
	if !errors.As(err, &ge) || ge.Provider != "ollama" {
		t.Errorf("errors.As: %+v", ge)
	}
}

func TestClassifyTransport(t *testing.T) {
	if ge := classifyTransport("x", nil, context.DeadlineExceeded); ge.Kind != KindTimeout {
		t.Errorf("deadline: got %s", ge.Kind)
	}
	if ge := classifyTransport("x", nil, errors.New("connection refused")); ge.Kind != KindUnavailable {
		t.Errorf("refused: got %s", ge.Kind)
	}
	orig := &GenerationError{Provider: "x", Kind: KindMalformed, Err: errors.New("bad json")}
	if ge := classifyTransport("y", nil, orig); ge != orig {
		t.Error("existing GenerationError should pass through")
	}
}

// ════════════════════════════════════════════════════════════════════
// ollama.go
// ════════════════════════════════════════════════════════════════════

func TestOllamaChat(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"model":"deepseek-r1:8b","message":{"role":"assistant","content":"<think>hmm</think>SENTIMENT: Bullish"},"done":true,"prompt_eval_count":12,"eval_count":30}`)
	}))
	defer srv.Close()

	p, _ := NewOllamaProvider(srv.URL, WithOllamaModel("deepseek-r1:8b"))
	resp, err := p.Chat(context.Background(), []Message{UserMessage("analyze")}, &ChatOptions{Temperature: 0.7, MaxTokens: 4000})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "SENTIMENT: Bullish" || resp.Reasoning != "hmm" {
		t.Errorf("content: %q reasoning: %q", resp.Content, resp.Reasoning)
	}
	if resp.Usage.TotalTokens != 42 {
		t.Errorf("tokens: got %d", resp.Usage.TotalTokens)
	}
	if got.Stream {
		t.Error("request should not stream")
	}
	if got.Options == nil || got.Options.NumPredict != 4000 || got.Options.Temperature != 0.7 {
		t.Errorf("options: got %+v", got.Options)
	}
}

func TestOllamaModelNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"model \"nope\" not found, try pulling it first"}`)
	}))
	defer srv.Close()

	p, _ := NewOllamaProvider(srv.URL)
	_, err := p.Chat(context.Background(), []Message{UserMessage("x")}, &ChatOptions{Model: "nope"})
	if !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
}

func TestOllamaEmptyResponseIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"message":{"role":"assistant","content":"<think>only thoughts</think>"},"done":true}`)
	}))
	defer srv.Close()

	p, _ := NewOllamaProvider(srv.URL)
	if _, err := p.Chat(context.Background(), []Message{UserMessage("x")}, nil); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestOllamaTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p, _ := NewOllamaProvider(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.Chat(ctx, []Message{UserMessage("x")}, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestOllamaListModelsAndPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		io.WriteString(w, `{"models":[{"name":"deepseek-r1:8b"},{"name":"llama3.1:latest"}]}`)
	}))
	defer srv.Close()

	p, _ := NewOllamaProvider(srv.URL)
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if got := p.Models(); len(got) != 2 || got[0] != "deepseek-r1:8b" {
		t.Errorf("Models after ListModels: %v", got)
	}
	ok, err := p.HasModel(context.Background(), "llama3.1")
	if err != nil || !ok {
		t.Errorf("HasModel(llama3.1) = %v, %v", ok, err)
	}
}

func TestOllamaPingDown(t *testing.T) {
	p, _ := NewOllamaProvider("http://127.0.0.1:1")
	if err := p.Ping(context.Background()); !errors.Is(err, ErrProviderDown) {
		t.Fatalf("expected ErrProviderDown, got %v", err)
	}
}

// ════════════════════════════════════════════════════════════════════
// openai.go
// ════════════════════════════════════════════════════════════════════

func TestOpenAIChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path: got %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("auth header: %q", auth)
		}
		var req openAIChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.MaxTokens == nil || *req.MaxTokens != 500 {
			t.Errorf("max_tokens: %v", req.MaxTokens)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"1","model":"local-model","choices":[{"index":0,"message":{"role":"assistant","content":"RECOMMENDATION: BUY"},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":3,"total_tokens":8}}`)
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider("sk-test", WithOpenAIBaseURL(srv.URL+"/v1"))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := p.Chat(context.Background(), []Message{UserMessage("go")}, &ChatOptions{MaxTokens: 500})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "RECOMMENDATION: BUY" || resp.Usage.TotalTokens != 8 || resp.Provider != ProviderOpenAI {
		t.Errorf("response: %+v", resp)
	}
}

func TestOpenAIErrorHandling(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   error
	}{
		{401, `{"error":{"message":"bad key","type":"auth"}}`, ErrNoAPIKey},
		{429, `{"error":{"message":"slow down"}}`, ErrRateLimit},
		{400, `{"error":{"message":"too long","code":"context_length_exceeded"}}`, ErrContextLength},
		{404, `{"error":{"message":"no such model","code":"model_not_found"}}`, ErrModelNotFound},
		{500, `oops`, ErrProviderDown},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			io.WriteString(w, tt.body)
		}))
		p, _ := NewOpenAIProvider("k", WithOpenAIBaseURL(srv.URL))
		_, err := p.Chat(context.Background(), []Message{UserMessage("x")}, nil)
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.want, err)
		}
		srv.Close()
	}
}

func TestOpenAINoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()
	p, _ := NewOpenAIProvider("", WithOpenAIBaseURL(srv.URL))
	if _, err := p.Chat(context.Background(), []Message{UserMessage("x")}, nil); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

// ════════════════════════════════════════════════════════════════════
// router.go
// ════════════════════════════════════════════════════════════════════

// mockProvider is a test double for LLMProvider.
type mockProvider struct {
	name    string
	mu      sync.Mutex
	calls   int
	errs    []error // returned in order, then resp
	resp    *Response
	pingErr error
}

func (m *mockProvider) Name() string                   { return m.name }
func (m *mockProvider) Models() []string               { return []string{m.name + "-model"} }
func (m *mockProvider) Ping(ctx context.Context) error { return m.pingErr }
func (m *mockProvider) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls <= len(m.errs) {
		return nil, m.errs[m.calls-1]
	}
	if m.resp == nil {
		return nil, newGenError(m.name, KindUnavailable, errors.New("down"))
	}
	return m.resp, nil
}

func down(name string) error { return newGenError(name, KindUnavailable, errors.New("down")) }

func TestRouterChat(t *testing.T) {
	p := &mockProvider{name: "ollama", resp: &Response{Content: "ok", Provider: "ollama"}}
	r := NewRouter("ollama", WithRetryDelay(time.Millisecond))
	r.RegisterProvider(p)

	resp, err := r.Chat(context.Background(), []Message{UserMessage("hi")}, nil)
	if err != nil || resp.Content != "ok" {
		t.Fatalf("Chat = %+v, %v", resp, err)
	}
}

func TestRouterRetriesThenSucceeds(t *testing.T) {
	p := &mockProvider{name: "ollama", errs: []error{down("ollama"), down("ollama")}, resp: &Response{Content: "ok"}}
	r := NewRouter("ollama", WithMaxRetries(2), WithRetryDelay(time.Millisecond))
	r.RegisterProvider(p)

	if _, err := r.Chat(context.Background(), nil, nil); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if p.calls != 3 {
		t.Errorf("calls: got %d, want 3", p.calls)
	}
}

func TestRouterFallback(t *testing.T) {
	primary := &mockProvider{name: "ollama"}
	backup := &mockProvider{name: "openai", resp: &Response{Content: "from backup", Provider: "openai"}}
	r := NewRouter("ollama", WithFallbacks("openai"), WithMaxRetries(1), WithRetryDelay(time.Millisecond))
	r.RegisterProvider(primary)
	r.RegisterProvider(backup)

	resp, err := r.Chat(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Provider != "openai" {
		t.Errorf("provider: got %s", resp.Provider)
	}
	if primary.calls != 2 {
		t.Errorf("primary calls: got %d, want 2", primary.calls)
	}
}

func TestRouterStats(t *testing.T) {
	primary := &mockProvider{name: "ollama"}
	backup := &mockProvider{name: "openai", resp: &Response{Content: "ok", Provider: "openai", Usage: Usage{TotalTokens: 42}}}
	r := NewRouter("ollama", WithFallbacks("openai"), WithMaxRetries(0))
	r.RegisterProvider(primary)
	r.RegisterProvider(backup)

	for i := 0; i < 2; i++ {
		if _, err := r.Chat(context.Background(), nil, nil); err != nil {
			t.Fatalf("Chat: %v", err)
		}
	}
	stats := r.Stats()
	if got := stats["ollama"]; got.Calls != 2 || got.Failures != 2 {
		t.Errorf("ollama stats = %+v", got)
	}
	if got := stats["openai"]; got.Calls != 2 || got.Fallbacks != 2 || got.Tokens != 84 {
		t.Errorf("openai stats = %+v", got)
	}
}

func TestRouterAllFail(t *testing.T) {
	r := NewRouter("ollama", WithFallbacks("openai"), WithMaxRetries(0))
	r.RegisterProvider(&mockProvider{name: "ollama"})
	r.RegisterProvider(&mockProvider{name: "openai"})

	_, err := r.Chat(context.Background(), nil, nil)
	var ge *GenerationError
	if !errors.As(err, &ge) || ge.Provider != "openai" {
		t.Fatalf("expected the last provider's GenerationError, got %v", err)
	}
}

func TestRouterNonRetryableError(t *testing.T) {
	p := &mockProvider{name: "ollama", errs: []error{newGenError("ollama", KindModelNotFound, errors.New("pull it"))}, resp: &Response{Content: "never"}}
	r := NewRouter("ollama", WithMaxRetries(3), WithRetryDelay(time.Millisecond))
	r.RegisterProvider(p)

	if _, err := r.Chat(context.Background(), nil, nil); !errors.Is(err, ErrModelNotFound) {
		t.Fatalf("expected ErrModelNotFound, got %v", err)
	}
	if p.calls != 1 {
		t.Errorf("calls: got %d, want 1", p.calls)
	}
}

func TestRouterNoProviders(t *testing.T) {
	r := NewRouter("ollama")
	if _, err := r.Chat(context.Background(), nil, nil); !errors.Is(err, ErrNoProviders) {
		t.Fatalf("expected ErrNoProviders, got %v", err)
	}
	if err := r.Ping(context.Background()); !errors.Is(err, ErrNoProviders) {
		t.Fatalf("Ping: expected ErrNoProviders, got %v", err)
	}
}

func TestRouterHealthCheck(t *testing.T) {
	r := NewRouter("ollama")
	r.RegisterProvider(&mockProvider{name: "ollama"})
	r.RegisterProvider(&mockProvider{name: "openai", pingErr: ErrProviderDown})

	res := r.HealthCheck(context.Background())
	if res["ollama"] != nil || res["openai"] == nil {
		t.Fatalf("HealthCheck: %v", res)
	}
	if len(r.Models()) != 2 {
		t.Errorf("Models: %v", r.Models())
	}
}

func TestNewRouterFromConfig(t *testing.T) {
	cfg := &config.Config{LLM: config.LLMConfig{
		Primary:    ProviderOllama,
		Fallbacks:  []string{ProviderOpenAI},
		OllamaURL:  "http://localhost:11434",
		OpenAIURL:  "http://localhost:1234/v1",
		Model:      "deepseek-r1:8b",
		Timeout:    time.Minute,
		MaxRetries: 1,
	}}
	r, err := NewRouterFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewRouterFromConfig: %v", err)
	}
	if _, ok := r.GetProvider(ProviderOpenAI); !ok {
		t.Error("fallback provider not registered")
	}
	if r.Name() != "router/ollama" {
		t.Errorf("Name: %s", r.Name())
	}
}
