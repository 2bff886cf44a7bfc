package agent

import (
	"github.com/seenimoa/stockpilot/internal/agent/prompts"
	"github.com/seenimoa/stockpilot/pkg/models"
)

// NewsAnalyst assesses recent headlines. It sees Inputs.News only.
type NewsAnalyst struct{}

func (NewsAnalyst) Name() models.AnalystRole { return models.RoleNews }

func (NewsAnalyst) Prompt(in Inputs) (string, string) {
	return prompts.NewsSystemPrompt, prompts.NewsTask(in.Symbol, in.CompanyName, in.News)
}

func (NewsAnalyst) Extract(text string) map[string]string {
	return collect(map[string]func(string) (string, bool){
		models.FieldSentiment: ExtractSentiment,
	}, text)
}

// StatisticalAnalyst interprets the price history and the ensemble forecast.
type StatisticalAnalyst struct{}

func (StatisticalAnalyst) Name() models.AnalystRole { return models.RoleStatistical }

func (StatisticalAnalyst) Prompt(in Inputs) (string, string) {
	prices := in.Prices
	if prices.Symbol == "" {
		prices.Symbol = in.Symbol
	}
	return prompts.StatisticalSystemPrompt, prompts.StatisticalTask(prices, in.Statistics, in.Forecast)
}

func (StatisticalAnalyst) Extract(text string) map[string]string {
	return collect(map[string]func(string) (string, bool){
		models.FieldTrend: ExtractTrend,
	}, text)
}

// FundamentalsAnalyst evaluates company metadata. It sees Inputs.Profile only.
type FundamentalsAnalyst struct{}

func (FundamentalsAnalyst) Name() models.AnalystRole { return models.RoleFundamentals }

func (FundamentalsAnalyst) Prompt(in Inputs) (string, string) {
	return prompts.FundamentalsSystemPrompt, prompts.FundamentalsTask(in.Symbol, in.Profile)
}

func (FundamentalsAnalyst) Extract(text string) map[string]string {
	return collect(map[string]func(string) (string, bool){
		models.FieldValuation: ExtractValuation,
	}, text)
}

// DefaultRoles returns the three analysts in display order.
func DefaultRoles() []Role {
	return []Role{NewsAnalyst{}, StatisticalAnalyst{}, FundamentalsAnalyst{}}
}

// RoleByName looks up one of the default roles.
func RoleByName(name models.AnalystRole) (Role, bool) {
	for _, r := range DefaultRoles() {
		if r.Name() == name {
			return r, true
		}
	}
	return nil, false
}

func collect(extractors map[string]func(string) (string, bool), text string) map[string]string {
	out := make(map[string]string)
	for key, fn := range extractors {
		if v, ok := fn(text); ok {
			out[key] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
