package prompts

import (
	"fmt"
	"strings"

	"github.com/seenimoa/stockpilot/pkg/models"
)

// ── Task Templates ──
//
// Each builder takes only the data its analyst is allowed to see.

// NoNewsText is used in place of a news task when nothing was fetched.
const NoNewsText = "No recent news articles were found for this company."

// NewsTask formats the headlines for the News Analyst.
func NewsTask(symbol, company string, items []models.NewsItem) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze the following recent news about %s (%s):\n\n", displayName(symbol, company), symbol)
	if len(items) == 0 {
		sb.WriteString(NoNewsText + "\n")
	}
	for i, it := range items {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, it.Headline)
		date := "unknown date"
		if !it.PublishedAt.IsZero() {
			date = it.PublishedAt.Format("2006-01-02 15:04 MST")
		}
		fmt.Fprintf(&sb, "   Source: %s, Date: %s\n", orNA(it.Source), date)
		if it.Summary != "" && !strings.EqualFold(it.Summary, it.Headline) {
			fmt.Fprintf(&sb, "   Summary: %s\n", truncate(it.Summary, 300))
		}
	}
	sb.WriteString("\nProvide your analysis in the required format, starting with the SENTIMENT: line.")
	return sb.String()
}

// StatisticalTask formats prices, statistics and the forecast for the
// Statistical Expert.
func StatisticalTask(prices models.PriceSeries, stats *models.PriceStatistics, fc *models.EnsembleForecast) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze the following statistical data for %s:\n\n", prices.Symbol)

	if stats != nil {
		sb.WriteString("STATISTICAL METRICS:\n")
		fmt.Fprintf(&sb, "- Current Price: $%.2f\n", stats.CurrentPrice)
		fmt.Fprintf(&sb, "- 7-Day Moving Average: $%.2f\n", stats.MA7)
		fmt.Fprintf(&sb, "- 30-Day Moving Average: $%.2f\n", stats.MA30)
		fmt.Fprintf(&sb, "- Volatility (Std Dev of Returns): %.2f%%\n", stats.Volatility)
		fmt.Fprintf(&sb, "- Average Daily Return: %.2f%%\n", stats.AvgReturn)
		fmt.Fprintf(&sb, "- Max Daily Return: %.2f%%\n", stats.MaxReturn)
		fmt.Fprintf(&sb, "- Min Daily Return: %.2f%%\n", stats.MinReturn)
		fmt.Fprintf(&sb, "- Trend: %s (slope: %.4f)\n", stats.Trend, stats.TrendSlope)
		fmt.Fprintf(&sb, "- Price Range: $%.2f - $%.2f\n", stats.PeriodLow, stats.PeriodHigh)
		fmt.Fprintf(&sb, "- Observations: %d\n\n", stats.Observations)
	}

	sb.WriteString("RECENT CLOSES (last 10 sessions):\n")
	for _, p := range prices.Tail(10).Points {
		fmt.Fprintf(&sb, "%s  $%.2f\n", p.Timestamp.Format("2006-01-02"), p.Close)
	}
	sb.WriteString("\n")

	sb.WriteString(ForecastSummary(fc))
	sb.WriteString("\nProvide your analysis in the required format, starting with the TREND ANALYSIS: line.")
	return sb.String()
}

// FundamentalsTask formats company metadata for the Financial Expert.
func FundamentalsTask(symbol string, p *models.CompanyProfile) string {
	var sb strings.Builder
	if p == nil {
		fmt.Fprintf(&sb, "Provide a fundamental analysis for %s.\n\n", symbol)
		sb.WriteString("No company metadata could be retrieved. State which conclusions cannot be drawn without it.\n")
		return sb.String()
	}

	fmt.Fprintf(&sb, "Provide a fundamental analysis for %s based on the following data:\n\n", symbol)
	fmt.Fprintf(&sb, "Company: %s\n", orNA(p.Name))
	fmt.Fprintf(&sb, "Ticker: %s\n", symbol)
	fmt.Fprintf(&sb, "Exchange: %s\n", orNA(p.Exchange))
	fmt.Fprintf(&sb, "Sector: %s\n", orNA(p.Sector))
	fmt.Fprintf(&sb, "Industry: %s\n\n", orNA(p.Industry))

	sb.WriteString("Financial Metrics:\n")
	fmt.Fprintf(&sb, "- Current Price: %s\n", money(p.CurrentPrice))
	fmt.Fprintf(&sb, "- Market Cap: %s\n", bigMoney(p.MarketCap))
	fmt.Fprintf(&sb, "- Trailing P/E: %s\n", ratio(p.TrailingPE))
	fmt.Fprintf(&sb, "- Forward P/E: %s\n", ratio(p.ForwardPE))
	fmt.Fprintf(&sb, "- Price to Book: %s\n", ratio(p.PriceToBook))
	fmt.Fprintf(&sb, "- EPS (TTM): %s\n", money(p.EPS))
	if p.DividendYield > 0 {
		fmt.Fprintf(&sb, "- Dividend Yield: %.2f%%\n", p.DividendYield*100)
	} else {
		sb.WriteString("- Dividend Yield: N/A\n")
	}
	fmt.Fprintf(&sb, "- 52-Week High: %s\n", money(p.FiftyTwoWeekHigh))
	fmt.Fprintf(&sb, "- 52-Week Low: %s\n", money(p.FiftyTwoWeekLow))

	if p.Description != "" {
		fmt.Fprintf(&sb, "\nBusiness Description:\n%s\n", truncate(p.Description, 500))
	}
	sb.WriteString("\nProvide your analysis in the required format, including the VALUATION ANALYSIS: line.")
	return sb.String()
}

// ForecastSummary renders the ensemble forecast as plain text.
func ForecastSummary(fc *models.EnsembleForecast) string {
	if fc == nil {
		return "STATISTICAL FORECAST: unavailable\n"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "STATISTICAL FORECAST (%d-day horizon, %s confidence):\n", fc.Horizon, fc.Confidence)
	fmt.Fprintf(&sb, "- Models: %s\n", strings.Join(fc.Models, ", "))
	for _, f := range fc.Failures {
		fmt.Fprintf(&sb, "- Excluded: %s (%s)\n", f.Model, f.Reason)
	}
	fmt.Fprintf(&sb, "- Last close: $%.2f\n", fc.LastPrice)
	fmt.Fprintf(&sb, "- Next day: $%.2f (range $%.2f - $%.2f, %+.2f%%)\n",
		fc.NextStep.Value, fc.NextStep.Lower, fc.NextStep.Upper, fc.NextStep.ExpectedReturnPct)
	fmt.Fprintf(&sb, "- Day %d: $%.2f (range $%.2f - $%.2f, %+.2f%%)\n",
		fc.FinalStep.Step, fc.FinalStep.Value, fc.FinalStep.Lower, fc.FinalStep.Upper, fc.FinalStep.ExpectedReturnPct)
	if fc.NewsVolatility > 0 {
		fmt.Fprintf(&sb, "- Bounds widened for news volatility %.2f\n", fc.NewsVolatility)
	}
	return sb.String()
}

// SynthesisTask presents every successful analyst's raw text and the
// forecast summary to the synthesizer.
func SynthesisTask(symbol, company string, fc *models.EnsembleForecast, outputs []models.AnalystOutput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are evaluating whether to BUY, HOLD, or SELL %s (%s).\n", displayName(symbol, company), symbol)
	if fc != nil {
		fmt.Fprintf(&sb, "Current Price: $%.2f\n", fc.LastPrice)
	}
	sb.WriteString("\nHere are the expert analyses:\n\n")

	for _, o := range outputs {
		fmt.Fprintf(&sb, "=== %s ===\n%s\n\n", strings.ToUpper(RoleTitle(o.Role)), strings.TrimSpace(o.Text))
	}
	sb.WriteString("=== " + "MODEL FORECAST" + " ===\n")
	sb.WriteString(ForecastSummary(fc))
	sb.WriteString("\n======================\n")
	fmt.Fprintf(&sb, "Based on these %d expert opinion(s), provide your synthesis in the required format.\n", len(outputs))
	sb.WriteString("End with:\nDISCLAIMER:\n" + Disclaimer)
	return sb.String()
}

// RoleTitle returns the display title of an analyst role.
func RoleTitle(r models.AnalystRole) string {
	switch r {
	case models.RoleNews:
		return "News Analyst"
	case models.RoleStatistical:
		return "Statistical Expert"
	case models.RoleFundamentals:
		return "Financial Expert"
	}
	return string(r)
}

// ── helpers ──

func displayName(symbol, company string) string {
	if company == "" {
		return symbol
	}
	return company
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

func money(v float64) string {
	if v == 0 {
		return "N/A"
	}
	return fmt.Sprintf("$%.2f", v)
}

func ratio(v float64) string {
	if v == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.2f", v)
}

// bigMoney formats large dollar amounts with a T/B/M suffix.
func bigMoney(v float64) string {
	switch {
	case v <= 0:
		return "N/A"
	case v >= 1e12:
		return fmt.Sprintf("$%.2fT", v/1e12)
	case v >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	}
	return fmt.Sprintf("$%.0f", v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
