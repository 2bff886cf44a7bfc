package models

import (
	"sort"
	"time"
)

// Stage is a step of the per-symbol state machine.
type Stage string

const (
	StageFetching     Stage = "FETCHING"
	StageForecasting  Stage = "FORECASTING"
	StageAnalyzing    Stage = "ANALYZING"
	StageSynthesizing Stage = "SYNTHESIZING"
	StageComplete     Stage = "COMPLETE"
	StageFailed       Stage = "FAILED"
)

// Terminal reports whether no further transitions are possible.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageFailed
}

// AnalysisRun aggregates everything produced for one symbol at one point
// in time. It is not modified once its stage is terminal.
type AnalysisRun struct {
	ID             string            `json:"id"`
	BatchID        string            `json:"batch_id,omitempty"`
	Symbol         string            `json:"symbol"`
	CompanyName    string            `json:"company_name,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	CompletedAt    time.Time         `json:"completed_at"`
	Stage          Stage             `json:"stage"`
	FailedStage    Stage             `json:"failed_stage,omitempty"`
	Error          string            `json:"error,omitempty"`
	Prices         PriceSeries       `json:"prices"`
	News           []NewsItem        `json:"news"`
	Profile        *CompanyProfile   `json:"profile,omitempty"`
	Statistics     *PriceStatistics  `json:"statistics,omitempty"`
	Forecast       *EnsembleForecast `json:"forecast,omitempty"`
	Analysts       []AnalystOutput   `json:"analysts"`
	Recommendation *Recommendation   `json:"recommendation,omitempty"`
}

// Analyst returns the output of a role, if present.
func (r *AnalysisRun) Analyst(role AnalystRole) (AnalystOutput, bool) {
	for _, a := range r.Analysts {
		if a.Role == role {
			return a, true
		}
	}
	return AnalystOutput{}, false
}

// DisplayName returns the company name or the symbol.
func (r *AnalysisRun) DisplayName() string {
	if r.CompanyName != "" {
		return r.CompanyName
	}
	return r.Symbol
}

// SymbolStatus is the batch-level outcome for one symbol.
type SymbolStatus struct {
	Symbol string        `json:"symbol"`
	Stage  Stage         `json:"stage"`
	Error  string        `json:"error,omitempty"`
	Action Action        `json:"action,omitempty"`
	Took   time.Duration `json:"took"`
}

// BatchResult is the best-effort result of running many symbols.
type BatchResult struct {
	ID          string                  `json:"id"`
	StartedAt   time.Time               `json:"started_at"`
	CompletedAt time.Time               `json:"completed_at"`
	Runs        map[string]*AnalysisRun `json:"runs"`
	Status      map[string]SymbolStatus `json:"status"`
}

// Symbols returns the batch symbols in sorted order.
func (b *BatchResult) Symbols() []string {
	out := make([]string, 0, len(b.Status))
	for s := range b.Status {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Failed returns the statuses of symbols that did not complete.
func (b *BatchResult) Failed() []SymbolStatus {
	var out []SymbolStatus
	for _, s := range b.Symbols() {
		if st := b.Status[s]; st.Stage != StageComplete {
			out = append(out, st)
		}
	}
	return out
}

// Succeeded returns the completed runs in symbol order.
func (b *BatchResult) Succeeded() []*AnalysisRun {
	var out []*AnalysisRun
	for _, s := range b.Symbols() {
		if r, ok := b.Runs[s]; ok && r.Stage == StageComplete {
			out = append(out, r)
		}
	}
	return out
}
