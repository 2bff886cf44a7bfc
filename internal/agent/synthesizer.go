package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phuslu/log"

	"github.com/seenimoa/stockpilot/internal/agent/prompts"
	"github.com/seenimoa/stockpilot/internal/config"
	"github.com/seenimoa/stockpilot/internal/llm"
	"github.com/seenimoa/stockpilot/pkg/models"
)

// ErrNoInputs means every analyst failed, so there is nothing to synthesize.
var ErrNoInputs = errors.New("no successful analyst outputs")

// SynthesisError reports why a symbol has no recommendation.
type SynthesisError struct {
	Symbol string
	Err    error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis %s: %v", e.Symbol, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// DefaultSynthesisTemperature is the sampling temperature of the synthesis call.
const DefaultSynthesisTemperature = 0.5

// Synthesizer turns the successful analyst outputs into a recommendation.
type Synthesizer struct {
	agent   *BaseAgent
	timeout time.Duration
}

// NewSynthesizer creates a synthesizer. A zero timeout means the caller's
// context alone bounds the call.
func NewSynthesizer(provider llm.LLMProvider, opts llm.ChatOptions, timeout time.Duration) *Synthesizer {
	return &Synthesizer{
		agent: NewBaseAgent(BaseAgentConfig{
			Name:        prompts.AgentSynthesizer,
			Provider:    provider,
			ChatOptions: opts,
		}),
		timeout: timeout,
	}
}

// NewSynthesizerFromConfig applies the synthesis section of cfg.
func NewSynthesizerFromConfig(provider llm.LLMProvider, cfg *config.Config) *Synthesizer {
	temp := cfg.Synthesis.Temperature
	if temp == 0 {
		temp = DefaultSynthesisTemperature
	}
	return NewSynthesizer(provider,
		llm.ChatOptions{Temperature: temp, MaxTokens: cfg.Synthesis.MaxTokens},
		cfg.Synthesis.Timeout)
}

// Synthesize produces a recommendation from the outputs that succeeded.
// The only error is a *SynthesisError wrapping ErrNoInputs. A failed or
// unparseable generation still yields a HOLD/Low recommendation marked as
// a fallback, so the action is always BUY, HOLD or SELL.
func (s *Synthesizer) Synthesize(ctx context.Context, symbol, company string, fc *models.EnsembleForecast, outputs []models.AnalystOutput) (*models.Recommendation, error) {
	used := Successful(outputs)
	if len(used) == 0 {
		return nil, &SynthesisError{Symbol: symbol, Err: ErrNoInputs}
	}

	rec := &models.Recommendation{
		Action:     models.ActionHold,
		Confidence: models.ConfidenceLow,
	}
	for _, o := range used {
		rec.Inputs = append(rec.Inputs, o.Role)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	task := prompts.SynthesisTask(symbol, company, fc, used)
	res, err := s.agent.Process(ctx, prompts.SynthesizerSystemPrompt, task, 0)
	if err != nil || strings.TrimSpace(res.Content) == "" {
		if err == nil {
			err = errors.New("empty response")
		}
		log.Warn().Str("symbol", symbol).Err(err).Msg("synthesis failed, using fallback recommendation")
		rec.Fallback = true
		rec.Rationale = fallbackRationale(err, used)
		return rec, nil
	}

	parsed := parseRecommendation(res.Content)
	if parsed.ActionOK {
		rec.Action = parsed.Action
	} else {
		rec.Fallback = true
	}
	// A HOLD chosen by default is never reported above Low.
	if parsed.ActionOK && parsed.ConfidenceOK {
		rec.Confidence = parsed.Confidence
	} else {
		rec.Fallback = true
	}
	rec.TimeHorizon = parsed.TimeHorizon
	rec.Rationale = withDisclaimer(strings.TrimSpace(res.Content))

	log.Info().Str("symbol", symbol).Str("action", string(rec.Action)).Str("confidence", rec.Confidence).
		Bool("fallback", rec.Fallback).Int("inputs", len(used)).Msg("synthesis complete")
	return rec, nil
}

// fallbackRationale lists the analyst conclusions that were available when
// the synthesis call itself failed.
func fallbackRationale(err error, used []models.AnalystOutput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Synthesis unavailable (%v). Defaulting to HOLD.\n\nAnalyst conclusions:\n", err)
	for _, o := range used {
		fmt.Fprintf(&sb, "- %s", prompts.RoleTitle(o.Role))
		if len(o.Fields) > 0 {
			for _, k := range []string{models.FieldSentiment, models.FieldTrend, models.FieldValuation} {
				if v, ok := o.Fields[k]; ok {
					fmt.Fprintf(&sb, ": %s %s", k, v)
				}
			}
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("\n")
	sb.WriteString(prompts.Disclaimer)
	return sb.String()
}

func withDisclaimer(text string) string {
	if strings.Contains(strings.ToLower(text), "educational purposes") {
		return text
	}
	return text + "\n\n" + prompts.Disclaimer
}
