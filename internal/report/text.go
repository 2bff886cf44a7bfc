package report

import (
	"fmt"
	"strings"

	"github.com/seenimoa/stockpilot/internal/agent/prompts"
	"github.com/seenimoa/stockpilot/pkg/models"
)

// GenerateText renders a plain-text report (terminal / CLI friendly).
func GenerateText(run *models.AnalysisRun) (string, error) {
	if run == nil {
		return "", ErrNilRun
	}
	var sb strings.Builder
	line := strings.Repeat("═", 60)
	thinLine := strings.Repeat("─", 60)

	sb.WriteString("\n" + line + "\n")
	fmt.Fprintf(&sb, "  %s (%s)\n", run.DisplayName(), run.Symbol)
	fmt.Fprintf(&sb, "  Generated: %s | Run: %s\n", timestamp(run.CompletedAt), run.ID)
	sb.WriteString(line + "\n")

	if last, ok := run.Prices.Last(); ok {
		fmt.Fprintf(&sb, "  Last close: %s (%s)\n", formatUSD(last.Close), last.Timestamp.UTC().Format("2006-01-02"))
		sb.WriteString(thinLine + "\n")
	}

	if run.Stage == models.StageFailed {
		fmt.Fprintf(&sb, "\n  ✗ FAILED during %s\n  %s\n", run.FailedStage, run.Error)
		sb.WriteString(thinLine + "\n")
	}

	if rec := run.Recommendation; rec != nil {
		sb.WriteString("\n  ★ RECOMMENDATION\n")
		fmt.Fprintf(&sb, "  %s (Confidence: %s)", rec.Action, rec.Confidence)
		if rec.TimeHorizon != "" {
			fmt.Fprintf(&sb, " | Horizon: %s", rec.TimeHorizon)
		}
		sb.WriteString("\n")
		if rec.Fallback {
			sb.WriteString("  (default applied: the synthesis could not be fully parsed)\n")
		}
		fmt.Fprintf(&sb, "\n%s\n", indent(rec.Rationale, "  "))
		sb.WriteString(thinLine + "\n")
	}

	if fc := run.Forecast; fc != nil {
		sb.WriteString("\n  ■ FORECAST\n")
		fmt.Fprintf(&sb, "  Next: %s [%s, %s]\n", formatUSD(fc.NextStep.Value), formatUSD(fc.NextStep.Lower), formatUSD(fc.NextStep.Upper))
		fmt.Fprintf(&sb, "  Step %d: %s [%s, %s] (%s)\n", fc.Horizon, formatUSD(fc.FinalStep.Value),
			formatUSD(fc.FinalStep.Lower), formatUSD(fc.FinalStep.Upper), formatSignedPct(fc.FinalStep.ExpectedReturnPct))
		fmt.Fprintf(&sb, "  Models: %s | Confidence: %s\n", strings.Join(fc.Models, ", "), fc.Confidence)
		for _, f := range fc.Failures {
			fmt.Fprintf(&sb, "    excluded %s: %s\n", f.Model, f.Reason)
		}
		sb.WriteString(thinLine + "\n")
	}

	for _, a := range run.Analysts {
		fmt.Fprintf(&sb, "\n  ■ %s\n", strings.ToUpper(prompts.RoleTitle(a.Role)))
		if a.Err != "" {
			fmt.Fprintf(&sb, "  unavailable: %s\n", a.Err)
		} else {
			for _, key := range []string{models.FieldSentiment, models.FieldTrend, models.FieldValuation} {
				if v, ok := a.Field(key); ok {
					fmt.Fprintf(&sb, "  %s: %s\n", key, v)
				}
			}
			fmt.Fprintf(&sb, "%s\n", indent(a.Text, "  "))
		}
		sb.WriteString(thinLine + "\n")
	}

	sb.WriteString("\n" + line + "\n")
	fmt.Fprintf(&sb, "%s\n", indent(prompts.Disclaimer, "  "))
	sb.WriteString(line + "\n")
	return sb.String(), nil
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
