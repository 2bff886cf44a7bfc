// Package agent implements the StockPilot analysts and the investment
// synthesizer. Each analyst is one independent text-generation call over
// the slice of fetched data it is allowed to see; the synthesizer combines
// the analysts that succeeded into a BUY/HOLD/SELL recommendation.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/seenimoa/stockpilot/internal/llm"
	"github.com/seenimoa/stockpilot/pkg/models"
)

// ── Inputs ──

// Inputs carries everything fetched and computed for one symbol. Roles read
// only their own fields.
type Inputs struct {
	Symbol      string
	CompanyName string

	News []models.NewsItem // news role

	Prices     models.PriceSeries      // statistical role
	Statistics *models.PriceStatistics // statistical role
	Forecast   *models.EnsembleForecast // statistical role

	Profile *models.CompanyProfile // fundamentals role
}

// ── Role Interface ──

// Role is one analyst. Prompt must be a pure function of the role's own
// inputs; Extract must never fail, only omit fields.
type Role interface {
	// Name returns the role identifier.
	Name() models.AnalystRole

	// Prompt returns the system prompt and the user task.
	Prompt(in Inputs) (system, user string)

	// Extract returns the structured fields found in the generated text.
	Extract(text string) map[string]string
}

// ── AgentResult ──

// AgentResult holds the output of one generation call.
type AgentResult struct {
	AgentName string        `json:"agent_name"`
	Content   string        `json:"content"`
	Reasoning string        `json:"reasoning,omitempty"`
	Model     string        `json:"model,omitempty"`
	Tokens    int           `json:"tokens"`
	Duration  time.Duration `json:"duration"`
	Truncated bool          `json:"truncated,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// ── BaseAgent ──

// BaseAgent sends a single system + user exchange to a provider. It keeps
// no conversation state, so one BaseAgent may serve concurrent calls.
type BaseAgent struct {
	name     string
	provider llm.LLMProvider
	opts     llm.ChatOptions
}

// BaseAgentConfig configures a BaseAgent.
type BaseAgentConfig struct {
	Name        string
	Provider    llm.LLMProvider
	ChatOptions llm.ChatOptions
}

// NewBaseAgent creates a new BaseAgent from the given configuration.
func NewBaseAgent(cfg BaseAgentConfig) *BaseAgent {
	return &BaseAgent{name: cfg.Name, provider: cfg.Provider, opts: cfg.ChatOptions}
}

// Name returns the agent's identifier.
func (a *BaseAgent) Name() string { return a.name }

// Process runs one exchange. maxTokens > 0 overrides the configured cap.
// On error the returned result still carries the duration and message.
func (a *BaseAgent) Process(ctx context.Context, system, task string, maxTokens int) (*AgentResult, error) {
	start := time.Now()
	opts := a.opts
	if maxTokens > 0 {
		opts.MaxTokens = maxTokens
	}

	messages := []llm.Message{llm.SystemMessage(system), llm.UserMessage(task)}
	resp, err := a.provider.Chat(ctx, messages, &opts)
	if err != nil {
		return &AgentResult{
			AgentName: a.name,
			Error:     err.Error(),
			Duration:  time.Since(start),
		}, fmt.Errorf("%s: %w", a.name, err)
	}

	return &AgentResult{
		AgentName: a.name,
		Content:   resp.Content,
		Reasoning: resp.Reasoning,
		Model:     resp.Model,
		Tokens:    resp.Usage.TotalTokens,
		Duration:  time.Since(start),
		Truncated: resp.FinishReason == llm.FinishLength,
	}, nil
}
