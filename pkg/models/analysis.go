package models

import (
	"strings"
	"time"
)

// NewsItem is a single news article about a symbol.
type NewsItem struct {
	Headline    string    `json:"headline"`
	Source      string    `json:"source"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Summary     string    `json:"summary,omitempty"`
}

// AnalystRole identifies one independent analyst.
type AnalystRole string

const (
	RoleNews         AnalystRole = "news"
	RoleStatistical  AnalystRole = "statistical"
	RoleFundamentals AnalystRole = "fundamentals"
)

// AllRoles returns the analyst roles in display order.
func AllRoles() []AnalystRole {
	return []AnalystRole{RoleNews, RoleStatistical, RoleFundamentals}
}

// Keys of AnalystOutput.Fields.
const (
	FieldSentiment = "sentiment"
	FieldTrend     = "trend"
	FieldValuation = "valuation"
)

// AnalystOutput is the result of one analyst role for one run.
// Text is always the raw generated text; Fields holds whatever could be
// extracted from it and may be empty.
type AnalystOutput struct {
	Role        AnalystRole       `json:"role"`
	Text        string            `json:"text"`
	Fields      map[string]string `json:"fields,omitempty"`
	Err         string            `json:"error,omitempty"`
	Model       string            `json:"model,omitempty"`
	Tokens      int               `json:"tokens,omitempty"`
	Duration    time.Duration     `json:"duration"`
	CompletedAt time.Time         `json:"completed_at"`
}

// Succeeded reports whether the role produced usable text.
func (o AnalystOutput) Succeeded() bool {
	return o.Err == "" && strings.TrimSpace(o.Text) != ""
}

// Field returns an extracted field and whether it was present.
func (o AnalystOutput) Field(key string) (string, bool) {
	v, ok := o.Fields[key]
	return v, ok
}

// Action is the final categorical recommendation.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionHold Action = "HOLD"
	ActionSell Action = "SELL"
)

// ParseAction finds the single action word in free text, so "Strong Buy"
// and "We rate it a BUY" both resolve. Text naming no action, or more than
// one (an echoed "[BUY / HOLD / SELL]"), returns ok=false.
func ParseAction(s string) (Action, bool) {
	w := upperWords(s)
	var found []Action
	for _, a := range []Action{ActionBuy, ActionHold, ActionSell} {
		if w[string(a)] {
			found = append(found, a)
		}
	}
	if len(found) != 1 {
		return "", false
	}
	return found[0], true
}

// Confidence labels.
const (
	ConfidenceHigh   = "High"
	ConfidenceMedium = "Medium"
	ConfidenceLow    = "Low"
)

// ParseConfidence finds the single confidence label in free text.
// "Moderate" reads as Medium.
func ParseConfidence(s string) (string, bool) {
	w := upperWords(s)
	var found []string
	if w["HIGH"] {
		found = append(found, ConfidenceHigh)
	}
	if w["MEDIUM"] || w["MODERATE"] {
		found = append(found, ConfidenceMedium)
	}
	if w["LOW"] {
		found = append(found, ConfidenceLow)
	}
	if len(found) != 1 {
		return "", false
	}
	return found[0], true
}

// upperWords splits s into its upper-cased ASCII letter runs.
func upperWords(s string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.FieldsFunc(strings.ToUpper(s), func(r rune) bool {
		return r < 'A' || r > 'Z'
	}) {
		out[f] = true
	}
	return out
}

// Recommendation is the terminal artifact of one symbol's pipeline.
type Recommendation struct {
	Action      Action        `json:"action"`
	Confidence  string        `json:"confidence"`
	TimeHorizon string        `json:"time_horizon,omitempty"`
	Rationale   string        `json:"rationale"`
	Inputs      []AnalystRole `json:"inputs"`
	Fallback    bool          `json:"fallback,omitempty"` // action or confidence could not be parsed
}
