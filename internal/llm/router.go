package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/stockpilot/internal/config"
	"github.com/seenimoa/stockpilot/internal/infra"
)

// Router routes LLM requests to the primary provider and falls back
// through the configured chain. It satisfies LLMProvider.
type Router struct {
	mu         sync.RWMutex
	providers  map[string]LLMProvider
	primary    string
	fallbacks  []string
	maxRetries int
	retryDelay time.Duration
	limiter    *infra.RateLimiter

	statsMu sync.Mutex
	stats   map[string]*ProviderStats
}

// ProviderStats counts the router's traffic to one provider.
type ProviderStats struct {
	Calls     int `json:"calls"`
	Failures  int `json:"failures"`
	Fallbacks int `json:"fallbacks"` // requests this provider served after an earlier one failed
	Tokens    int `json:"tokens"`
}

// RouterOption configures the router.
type RouterOption func(*Router)

// WithFallbacks sets the fallback provider chain.
func WithFallbacks(providers ...string) RouterOption {
	return func(r *Router) { r.fallbacks = providers }
}

// WithMaxRetries sets the maximum number of retry attempts per provider.
func WithMaxRetries(n int) RouterOption {
	return func(r *Router) { r.maxRetries = n }
}

// WithRetryDelay sets the base delay between retries.
func WithRetryDelay(d time.Duration) RouterOption {
	return func(r *Router) { r.retryDelay = d }
}

// WithRateLimiter shares one request budget across all providers.
func WithRateLimiter(l *infra.RateLimiter) RouterOption {
	return func(r *Router) { r.limiter = l }
}

// NewRouter creates a new LLM router with the given primary provider.
func NewRouter(primary string, opts ...RouterOption) *Router {
	r := &Router{
		providers:  make(map[string]LLMProvider),
		stats:      make(map[string]*ProviderStats),
		primary:    primary,
		maxRetries: 2,
		retryDelay: 1 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterProvider adds a provider to the router.
func (r *Router) RegisterProvider(provider LLMProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.Name()] = provider
}

// GetProvider returns a registered provider by name.
func (r *Router) GetProvider(name string) (LLMProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Primary returns the primary provider.
func (r *Router) Primary() (LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[r.primary]
	if !ok {
		return nil, fmt.Errorf("%w: primary provider %q not registered", ErrNoProviders, r.primary)
	}
	return p, nil
}

// Chat routes a chat request through the provider chain with fallback.
// It tries the primary provider first, then falls back in order. The
// returned error is the last provider's *GenerationError.
func (r *Router) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	chain := r.providerChain()
	if len(chain) == 0 {
		return nil, ErrNoProviders
	}

	var lastErr error
	tried := 0
	for _, providerName := range chain {
		provider, ok := r.GetProvider(providerName)
		if !ok {
			continue
		}
		tried++

		resp, err := r.chatWithRetry(ctx, provider, messages, opts)
		r.record(providerName, resp, err, tried > 1)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, classifyTransport(providerName, ctx, ctx.Err())
		}
		log.Warn().Str("provider", providerName).Err(err).Msg("llm provider failed, trying next")
	}
	if tried == 0 {
		return nil, ErrNoProviders
	}
	return nil, lastErr
}

// HealthCheck pings all registered providers concurrently. A nil entry
// means the provider answered.
func (r *Router) HealthCheck(ctx context.Context) map[string]error {
	r.mu.RLock()
	names := make([]string, 0, len(r.providers))
	providers := make([]LLMProvider, 0, len(r.providers))
	for name, p := range r.providers {
		names = append(names, name)
		providers = append(providers, p)
	}
	r.mu.RUnlock()

	errs := make([]error, len(providers))
	var g errgroup.Group
	for i, p := range providers {
		g.Go(func() error {
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			errs[i] = p.Ping(pingCtx)
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[string]error, len(names))
	for i, name := range names {
		results[name] = errs[i]
	}
	return results
}

// Stats returns a snapshot of per-provider usage since the router was built.
func (r *Router) Stats() map[string]ProviderStats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	out := make(map[string]ProviderStats, len(r.stats))
	for name, st := range r.stats {
		out[name] = *st
	}
	return out
}

func (r *Router) record(provider string, resp *Response, err error, fallback bool) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	st, ok := r.stats[provider]
	if !ok {
		st = &ProviderStats{}
		r.stats[provider] = st
	}
	st.Calls++
	if err != nil {
		st.Failures++
		return
	}
	if fallback {
		st.Fallbacks++
	}
	if resp != nil {
		st.Tokens += resp.Usage.TotalTokens
	}
}

// Name returns the name of the primary provider (satisfies LLMProvider).
func (r *Router) Name() string {
	return "router/" + r.primary
}

// Models returns the union of models from all registered providers (satisfies LLMProvider).
func (r *Router) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []string
	seen := make(map[string]bool)
	for _, p := range r.providers {
		for _, m := range p.Models() {
			if !seen[m] {
				seen[m] = true
				all = append(all, m)
			}
		}
	}
	return all
}

// Ping checks the primary provider's health (satisfies LLMProvider).
func (r *Router) Ping(ctx context.Context) error {
	p, err := r.Primary()
	if err != nil {
		return err
	}
	return p.Ping(ctx)
}

// ── Internal Helpers ──

func (r *Router) providerChain() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain := []string{r.primary}
	for _, fb := range r.fallbacks {
		if fb != r.primary {
			chain = append(chain, fb)
		}
	}
	return chain
}

func (r *Router) chatWithRetry(ctx context.Context, provider LLMProvider,
	messages []Message, opts *ChatOptions) (*Response, error) {

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := r.retryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return nil, classifyTransport(provider.Name(), ctx, ctx.Err())
			case <-time.After(delay):
			}
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, classifyTransport(provider.Name(), ctx, err)
		}

		resp, err := provider.Chat(ctx, messages, opts)
		if err == nil {
			log.Debug().Str("provider", resp.Provider).Str("model", resp.Model).
				Int("tokens", resp.Usage.TotalTokens).Dur("latency", resp.Latency).Msg("llm response")
			return resp, nil
		}
		lastErr = err

		if isNonRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		log.Debug().Str("provider", provider.Name()).Int("attempt", attempt+1).Err(err).Msg("llm call failed")
	}
	return nil, lastErr
}

// isNonRetryable reports errors that repeating the same request cannot fix.
// Timeouts are not retried either: the caller's deadline is already spent
// or nearly so.
func isNonRetryable(err error) bool {
	return errors.Is(err, ErrNoAPIKey) ||
		errors.Is(err, ErrModelNotFound) ||
		errors.Is(err, ErrContextLength) ||
		errors.Is(err, ErrTimeout)
}

// NewRouterFromConfig creates a fully configured Router from the application config.
func NewRouterFromConfig(cfg *config.Config) (*Router, error) {
	opts := []RouterOption{
		WithFallbacks(cfg.LLM.Fallbacks...),
		WithMaxRetries(cfg.LLM.MaxRetries),
		WithRetryDelay(cfg.LLM.RetryDelay),
	}
	if cfg.LLM.RequestsPerMinute > 0 {
		opts = append(opts, WithRateLimiter(infra.NewRateLimiter(cfg.LLM.RequestsPerMinute, time.Minute)))
	}
	router := NewRouter(cfg.LLM.Primary, opts...)

	wanted := map[string]bool{cfg.LLM.Primary: true}
	for _, fb := range cfg.LLM.Fallbacks {
		wanted[fb] = true
	}

	if wanted[ProviderOllama] {
		model := cfg.LLM.Model
		if cfg.LLM.Primary != ProviderOllama && cfg.LLM.FallbackModel != "" {
			model = cfg.LLM.FallbackModel
		}
		p, err := NewOllamaProvider(cfg.LLM.OllamaURL, WithOllamaModel(model), WithOllamaTimeout(cfg.LLM.Timeout))
		if err != nil {
			return nil, err
		}
		router.RegisterProvider(p)
	}
	if wanted[ProviderOpenAI] {
		model := cfg.LLM.Model
		if cfg.LLM.Primary != ProviderOpenAI && cfg.LLM.FallbackModel != "" {
			model = cfg.LLM.FallbackModel
		}
		p, err := NewOpenAIProvider(cfg.LLM.OpenAIKey, WithOpenAIBaseURL(cfg.LLM.OpenAIURL), WithOpenAIModel(model))
		if err != nil {
			return nil, err
		}
		router.RegisterProvider(p)
	}

	if _, err := router.Primary(); err != nil {
		return nil, err
	}
	return router, nil
}
