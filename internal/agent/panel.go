package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/phuslu/log"

	"github.com/seenimoa/stockpilot/internal/config"
	"github.com/seenimoa/stockpilot/internal/llm"
	"github.com/seenimoa/stockpilot/pkg/models"
)

// DefaultRoleTimeout bounds a role without explicit settings.
const DefaultRoleTimeout = 3 * time.Minute

// RoleSettings bounds one analyst role.
type RoleSettings struct {
	Enabled   bool
	Timeout   time.Duration
	MaxTokens int
}

// Panel runs the analyst roles for one symbol. Roles share a stateless
// BaseAgent and never see each other's output.
type Panel struct {
	agent    *BaseAgent
	roles    []Role
	settings map[models.AnalystRole]RoleSettings
	now      func() time.Time
}

// NewPanel creates a panel. Roles missing from settings run with
// DefaultRoleTimeout and the agent's token cap.
func NewPanel(provider llm.LLMProvider, opts llm.ChatOptions, roles []Role, settings map[models.AnalystRole]RoleSettings) *Panel {
	if settings == nil {
		settings = make(map[models.AnalystRole]RoleSettings)
	}
	return &Panel{
		agent: NewBaseAgent(BaseAgentConfig{
			Name:        "analyst_panel",
			Provider:    provider,
			ChatOptions: opts,
		}),
		roles:    roles,
		settings: settings,
		now:      time.Now,
	}
}

// NewPanelFromConfig creates the default three-role panel.
func NewPanelFromConfig(provider llm.LLMProvider, cfg *config.Config) *Panel {
	toSettings := func(rc config.RoleConfig) RoleSettings {
		return RoleSettings{Enabled: rc.Enabled, Timeout: rc.Timeout, MaxTokens: rc.MaxTokens}
	}
	return NewPanel(provider,
		llm.ChatOptions{Temperature: cfg.LLM.Temperature, MaxTokens: cfg.LLM.MaxTokens},
		DefaultRoles(),
		map[models.AnalystRole]RoleSettings{
			models.RoleNews:         toSettings(cfg.Analysts.News),
			models.RoleStatistical:  toSettings(cfg.Analysts.Statistical),
			models.RoleFundamentals: toSettings(cfg.Analysts.Fundamentals),
		})
}

// Enabled returns the roles that Run will execute.
func (p *Panel) Enabled() []models.AnalystRole {
	var out []models.AnalystRole
	for _, r := range p.roles {
		if p.settingsFor(r.Name()).Enabled {
			out = append(out, r.Name())
		}
	}
	return out
}

func (p *Panel) settingsFor(name models.AnalystRole) RoleSettings {
	s, ok := p.settings[name]
	if !ok {
		return RoleSettings{Enabled: true, Timeout: DefaultRoleTimeout}
	}
	if s.Timeout <= 0 {
		s.Timeout = DefaultRoleTimeout
	}
	return s
}

// Run executes every enabled role concurrently and waits for all of them.
// A failed role is returned with Err set; Run itself never fails. Outputs
// are in role order.
func (p *Panel) Run(ctx context.Context, in Inputs) []models.AnalystOutput {
	var enabled []Role
	for _, r := range p.roles {
		if p.settingsFor(r.Name()).Enabled {
			enabled = append(enabled, r)
		} else {
			log.Debug().Str("symbol", in.Symbol).Str("role", string(r.Name())).Msg("analyst disabled")
		}
	}

	outputs := make([]models.AnalystOutput, len(enabled))
	var wg sync.WaitGroup
	for i, r := range enabled {
		wg.Add(1)
		go func(i int, r Role) {
			defer wg.Done()
			outputs[i] = p.runRole(ctx, r, in)
		}(i, r)
	}
	wg.Wait()
	return outputs
}

func (p *Panel) runRole(ctx context.Context, r Role, in Inputs) (out models.AnalystOutput) {
	name := r.Name()
	s := p.settingsFor(name)
	start := time.Now()
	out.Role = name

	defer func() {
		if rec := recover(); rec != nil {
			out.Text = ""
			out.Fields = nil
			out.Err = fmt.Sprintf("panic: %v", rec)
		}
		out.Duration = time.Since(start)
		out.CompletedAt = p.now().UTC()
		if out.Err != "" {
			log.Warn().Str("symbol", in.Symbol).Str("role", string(name)).Str("error", out.Err).
				Dur("duration", out.Duration).Msg("analyst failed")
		} else {
			log.Info().Str("symbol", in.Symbol).Str("role", string(name)).Int("tokens", out.Tokens).
				Dur("duration", out.Duration).Msg("analyst complete")
		}
	}()

	cctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	system, task := r.Prompt(in)
	res, err := p.agent.Process(cctx, system, task, s.MaxTokens)
	if err != nil {
		out.Err = err.Error()
		return out
	}
	if strings.TrimSpace(res.Content) == "" {
		out.Err = "empty response"
		return out
	}

	out.Text = res.Content
	out.Fields = r.Extract(res.Content)
	out.Model = res.Model
	out.Tokens = res.Tokens
	if res.Truncated {
		log.Debug().Str("symbol", in.Symbol).Str("role", string(name)).Msg("analyst output hit the token cap")
	}
	return out
}

// Successful filters outputs that can feed synthesis.
func Successful(outputs []models.AnalystOutput) []models.AnalystOutput {
	var ok []models.AnalystOutput
	for _, o := range outputs {
		if o.Succeeded() {
			ok = append(ok, o)
		}
	}
	return ok
}
