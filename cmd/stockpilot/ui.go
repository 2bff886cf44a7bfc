package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/seenimoa/stockpilot/internal/report"
	"github.com/seenimoa/stockpilot/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#3B82F6"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#6B7280"))

	tableStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#10B981")).
			Padding(0, 1)

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))

	actionStyles = map[models.Action]lipgloss.Style{
		models.ActionBuy:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#10B981")),
		models.ActionHold: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F59E0B")),
		models.ActionSell: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444")),
	}
)

// column widths of the batch table
const (
	colSymbol = 10
	colResult = 12
	colTook   = 9
)

// renderBatch draws one row per symbol: the action for completed runs and
// the failing stage for the rest.
func renderBatch(b *models.BatchResult) string {
	var sb strings.Builder
	sb.WriteString(headerStyle.Render(pad("SYMBOL", colSymbol) + pad("RESULT", colResult) + pad("TOOK", colTook) + "DETAIL"))
	for _, sym := range b.Symbols() {
		st := b.Status[sym]
		sb.WriteByte('\n')
		sb.WriteString(pad(sym, colSymbol))

		result, detail := resultCell(b.Runs[sym], st)
		sb.WriteString(result)
		sb.WriteString(pad(report.FormatDuration(st.Took), colTook))
		sb.WriteString(detail)
	}

	done, failed := len(b.Status)-len(b.Failed()), len(b.Failed())
	summary := fmt.Sprintf("%d complete, %d failed", done, failed)
	if failed > 0 {
		summary = failStyle.Render(summary)
	} else {
		summary = okStyle.Render(summary)
	}
	sb.WriteString("\n\n" + summary)
	return tableStyle.Render(sb.String())
}

func resultCell(run *models.AnalysisRun, st models.SymbolStatus) (string, string) {
	if st.Stage != models.StageComplete {
		stage := ""
		if run != nil && run.FailedStage != "" {
			stage = string(run.FailedStage) + ": "
		}
		return failStyle.Render(pad("FAILED", colResult)), truncate(stage+st.Error, 60)
	}
	if run == nil || run.Recommendation == nil {
		return pad(string(st.Action), colResult), ""
	}
	rec := run.Recommendation
	style, ok := actionStyles[rec.Action]
	if !ok {
		style = lipgloss.NewStyle()
	}
	detail := string(rec.Confidence) + " confidence"
	if rec.Fallback {
		detail += " (default)"
	}
	return style.Render(pad(string(rec.Action), colResult)), detail
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s[:width-1] + " "
	}
	return s + strings.Repeat(" ", width-len(s))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
