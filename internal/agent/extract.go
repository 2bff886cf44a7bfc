package agent

import (
	"strings"

	"github.com/seenimoa/stockpilot/pkg/models"
)

// ── Field Extraction ──
//
// Extractors read a "MARKER: value" line from generated text. Matching is
// case-insensitive and ignores markdown bold, headings and bullets around
// the marker. When the marker line has no inline value the following lines
// up to the next section header are used. Extractors return ok=false rather
// than guess.

// ExtractSentiment returns Bullish, Bearish or Neutral.
func ExtractSentiment(text string) (string, bool) {
	return classifySection(text, []string{"SENTIMENT", "OVERALL SENTIMENT"}, []category{
		{"Bullish", []string{"bullish", "positive"}},
		{"Bearish", []string{"bearish", "negative"}},
		{"Neutral", []string{"neutral", "mixed"}},
	})
}

// ExtractTrend returns Upward, Downward or Sideways.
func ExtractTrend(text string) (string, bool) {
	return classifySection(text, []string{"TREND ANALYSIS", "TREND"}, []category{
		{"Upward", []string{"upward", "uptrend", "bullish", "rising"}},
		{"Downward", []string{"downward", "downtrend", "bearish", "declining", "falling"}},
		{"Sideways", []string{"sideways", "flat", "range-bound", "rangebound", "neutral"}},
	})
}

// ExtractValuation returns Undervalued, Fairly valued or Overvalued.
func ExtractValuation(text string) (string, bool) {
	return classifySection(text, []string{"VALUATION ANALYSIS", "VALUATION"}, []category{
		{"Undervalued", []string{"undervalued", "under-valued"}},
		{"Overvalued", []string{"overvalued", "over-valued"}},
		{"Fairly valued", []string{"fairly valued", "fairly-valued", "fair value", "fairly priced"}},
	})
}

// Recommendation fields parsed from synthesizer output.
type parsedRecommendation struct {
	Action       models.Action
	ActionOK     bool
	Confidence   string
	ConfidenceOK bool
	TimeHorizon  string
}

// parseRecommendation reads the RECOMMENDATION, CONFIDENCE LEVEL and TIME
// HORIZON lines. An echoed template such as "[BUY / HOLD / SELL]" does not
// resolve.
func parseRecommendation(text string) parsedRecommendation {
	var out parsedRecommendation

	if v, ok := inlineValue(text, "RECOMMENDATION", "FINAL RECOMMENDATION"); ok {
		out.Action, out.ActionOK = models.ParseAction(v)
	}
	if v, ok := inlineValue(text, "CONFIDENCE LEVEL", "CONFIDENCE"); ok {
		out.Confidence, out.ConfidenceOK = models.ParseConfidence(v)
	}
	if v, ok := inlineValue(text, "TIME HORIZON"); ok && !strings.Contains(v, "/") {
		out.TimeHorizon = strings.Trim(v, "[]* ")
	}
	return out
}

// ── internals ──

type category struct {
	label    string
	keywords []string
}

func classifySection(text string, names []string, cats []category) (string, bool) {
	inline, body, ok := section(text, names...)
	if !ok {
		return "", false
	}
	if inline != "" {
		// The marker line must name exactly one category.
		var found []string
		lower := strings.ToLower(inline)
		for _, c := range cats {
			if containsAny(lower, c.keywords) {
				found = append(found, c.label)
			}
		}
		if len(found) == 1 {
			return found[0], true
		}
		return "", false
	}
	// Otherwise the earliest mention in the section body wins.
	lower := strings.ToLower(body)
	best, bestAt := "", -1
	for _, c := range cats {
		for _, kw := range c.keywords {
			if i := strings.Index(lower, kw); i >= 0 && (bestAt < 0 || i < bestAt) {
				best, bestAt = c.label, i
			}
		}
	}
	return best, bestAt >= 0
}

// inlineValue returns the text after "NAME:" on the first marker line.
func inlineValue(text string, names ...string) (string, bool) {
	inline, _, ok := section(text, names...)
	if !ok || inline == "" {
		return "", false
	}
	return inline, true
}

// section finds the first line starting with one of the names followed by a
// colon. It returns the inline value and, when that is empty, the body up to
// the next header or blank line after content.
func section(text string, names ...string) (inline, body string, ok bool) {
	lines := strings.Split(text, "\n")
	for _, name := range names {
		for i, line := range lines {
			v, hit := matchMarker(line, name)
			if !hit {
				continue
			}
			if v != "" {
				return v, "", true
			}
			var sb strings.Builder
			for _, next := range lines[i+1:] {
				clean := stripDecoration(next)
				if clean == "" {
					if sb.Len() > 0 {
						break
					}
					continue
				}
				if isHeader(clean) {
					break
				}
				sb.WriteString(clean)
				sb.WriteByte('\n')
			}
			return "", strings.TrimSpace(sb.String()), true
		}
	}
	return "", "", false
}

// matchMarker reports whether line starts with "name:" (after decoration is
// removed) and returns the rest of the line.
func matchMarker(line, name string) (string, bool) {
	clean := stripDecoration(line)
	if len(clean) < len(name) || !strings.EqualFold(clean[:len(name)], name) {
		return "", false
	}
	rest := strings.TrimSpace(clean[len(name):])
	if !strings.HasPrefix(rest, ":") {
		return "", false
	}
	return strings.TrimSpace(strings.Trim(rest[1:], " *_")), true
}

var decoration = strings.NewReplacer("**", "", "__", "", "*", "")

func stripDecoration(line string) string {
	s := decoration.Replace(strings.TrimSpace(line))
	s = strings.TrimLeft(s, "#>-•· \t")
	// Numbered headings such as "1. SENTIMENT:".
	if i := strings.Index(s, ". "); i > 0 && i <= 3 && isDigits(s[:i]) {
		s = s[i+2:]
	}
	return strings.TrimSpace(s)
}

// isHeader matches lines like "KEY RISK FACTORS:".
func isHeader(s string) bool {
	i := strings.Index(s, ":")
	if i <= 0 {
		return false
	}
	head := s[:i]
	return head == strings.ToUpper(head) && strings.ToUpper(head) != strings.ToLower(head)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func containsAny(s string, kws []string) bool {
	for _, kw := range kws {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
