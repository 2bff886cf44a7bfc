package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// formatUSD renders a price as $1,234.56.
func formatUSD(v float64) string {
	s := decimal.NewFromFloat(v).Round(2).StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")

	var sb strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	out := "$" + sb.String() + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}

// formatPct renders a signed percentage with two decimals.
func formatPct(v float64) string {
	return decimal.NewFromFloat(v).Round(2).StringFixed(2) + "%"
}

// formatSignedPct is formatPct with an explicit plus sign.
func formatSignedPct(v float64) string {
	if v > 0 {
		return "+" + formatPct(v)
	}
	return formatPct(v)
}

// formatLargeUSD abbreviates market capitalizations.
func formatLargeUSD(v float64) string {
	switch {
	case v >= 1e12:
		return fmt.Sprintf("$%.2fT", v/1e12)
	case v >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	case v > 0:
		return formatUSD(v)
	}
	return "N/A"
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

// timestamp formats report times in UTC.
func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("02 Jan 2006, 15:04 MST")
}
