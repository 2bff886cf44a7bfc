package prompts

import (
	"strings"
	"testing"
	"time"

	"github.com/seenimoa/stockpilot/pkg/models"
)

// ── Agent Name Constants ──

func TestAgentNameConstants(t *testing.T) {
	names := map[string]string{
		"AgentNews":         AgentNews,
		"AgentStatistical":  AgentStatistical,
		"AgentFundamentals": AgentFundamentals,
		"AgentSynthesizer":  AgentSynthesizer,
	}
	for label, name := range names {
		if name == "" {
			t.Errorf("%s should not be empty", label)
		}
		if strings.Contains(name, " ") {
			t.Errorf("%s should not contain spaces: %q", label, name)
		}
	}
}

// ── System Prompts ──

func TestSystemPromptsContainMarkers(t *testing.T) {
	tests := []struct {
		name    string
		prompt  string
		markers []string
	}{
		{"News", NewsSystemPrompt, []string{MarkerSentiment, "Bullish", "Bearish", "Neutral"}},
		{"Statistical", StatisticalSystemPrompt, []string{MarkerTrend, "forecast", "volatility"}},
		{"Fundamentals", FundamentalsSystemPrompt, []string{MarkerValuation, "P/E", "market cap"}},
		{"Synthesizer", SynthesizerSystemPrompt, []string{MarkerRecommendation, MarkerConfidence, MarkerTimeHorizon, "BUY", "HOLD", "SELL", "disclaimer"}},
	}
	for _, tc := range tests {
		if len(tc.prompt) < 200 {
			t.Errorf("%s prompt is too short (%d chars)", tc.name, len(tc.prompt))
		}
		for _, m := range tc.markers {
			if !strings.Contains(strings.ToLower(tc.prompt), strings.ToLower(m)) {
				t.Errorf("%s prompt should contain %q", tc.name, m)
			}
		}
	}
}

// ── Task Templates ──

func TestNewsTask(t *testing.T) {
	items := []models.NewsItem{
		{Headline: "Apple unveils new iPhone", Source: "Reuters", PublishedAt: time.Date(2025, 9, 9, 17, 0, 0, 0, time.UTC), Summary: "Launch event recap"},
		{Headline: "Apple faces EU fine", Source: ""},
	}
	got := NewsTask("AAPL", "Apple Inc.", items)
	for _, want := range []string{"Apple Inc. (AAPL)", "1. Apple unveils new iPhone", "Source: Reuters, Date: 2025-09-09", "Summary: Launch event recap", "Source: N/A, Date: unknown date", MarkerSentiment} {
		if !strings.Contains(got, want) {
			t.Errorf("NewsTask missing %q\n%s", want, got)
		}
	}

	empty := NewsTask("AAPL", "", nil)
	if !strings.Contains(empty, NoNewsText) || !strings.Contains(empty, "AAPL (AAPL)") {
		t.Errorf("empty NewsTask = %q", empty)
	}
}

func sampleForecast() *models.EnsembleForecast {
	return &models.EnsembleForecast{
		Horizon:    10,
		LastPrice:  100,
		Models:     []string{"ARIMA(5,1,0)", "Holt(damped additive trend)"},
		Failures:   []models.ModelFailure{{Model: "Decomposition", Reason: "too short"}},
		NextStep:   models.ForecastBand{Step: 1, Value: 101, Lower: 98, Upper: 104, ExpectedReturnPct: 1},
		FinalStep:  models.ForecastBand{Step: 10, Value: 105, Lower: 95, Upper: 115, ExpectedReturnPct: 5},
		Confidence: models.ConfidenceMedium,
	}
}

func TestStatisticalTask(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	pts := make([]models.PricePoint, 15)
	for i := range pts {
		pts[i] = models.PricePoint{Timestamp: base.AddDate(0, 0, i), Close: 90 + float64(i)}
	}
	series, _ := models.NewPriceSeries("MSFT", pts)
	stats := &models.PriceStatistics{CurrentPrice: 104, MA7: 101, MA30: 97, Trend: "Upward", Observations: 15}

	got := StatisticalTask(series, stats, sampleForecast())
	for _, want := range []string{"for MSFT", "Current Price: $104.00", "Trend: Upward", "2025-01-15  $104.00", "Models: ARIMA(5,1,0), Holt(damped additive trend)", "Excluded: Decomposition (too short)", "Day 10: $105.00", MarkerTrend} {
		if !strings.Contains(got, want) {
			t.Errorf("StatisticalTask missing %q", want)
		}
	}
	// Only the last 10 closes are shown.
	if strings.Contains(got, "2025-01-05") {
		t.Error("StatisticalTask should only include the last 10 sessions")
	}
}

func TestFundamentalsTask(t *testing.T) {
	p := &models.CompanyProfile{Name: "NVIDIA Corporation", MarketCap: 4.2e12, TrailingPE: 55.1, DividendYield: 0.0003, FiftyTwoWeekHigh: 180}
	got := FundamentalsTask("NVDA", p)
	for _, want := range []string{"Company: NVIDIA Corporation", "Market Cap: $4.20T", "Trailing P/E: 55.10", "Forward P/E: N/A", "Dividend Yield: 0.03%", "52-Week High: $180.00", MarkerValuation} {
		if !strings.Contains(got, want) {
			t.Errorf("FundamentalsTask missing %q\n%s", want, got)
		}
	}
	if got := FundamentalsTask("NVDA", nil); !strings.Contains(got, "No company metadata") {
		t.Errorf("nil profile: %q", got)
	}
}

func TestSynthesisTask(t *testing.T) {
	outputs := []models.AnalystOutput{
		{Role: models.RoleNews, Text: "SENTIMENT: Bullish"},
		{Role: models.RoleFundamentals, Text: "VALUATION ANALYSIS: Fairly valued"},
	}
	got := SynthesisTask("GOOGL", "Alphabet Inc.", sampleForecast(), outputs)
	for _, want := range []string{"Alphabet Inc. (GOOGL)", "Current Price: $100.00", "=== NEWS ANALYST ===\nSENTIMENT: Bullish", "=== FINANCIAL EXPERT ===", "MODEL FORECAST", "2 expert opinion(s)", Disclaimer} {
		if !strings.Contains(got, want) {
			t.Errorf("SynthesisTask missing %q", want)
		}
	}
	if strings.Contains(got, "STATISTICAL EXPERT ===") {
		t.Error("absent analysts must not appear")
	}
}

func TestBigMoney(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "N/A"},
		{2.5e12, "$2.50T"},
		{3.1e9, "$3.10B"},
		{4e6, "$4.00M"},
		{1234, "$1234"},
	}
	for _, tt := range tests {
		if got := bigMoney(tt.in); got != tt.want {
			t.Errorf("bigMoney(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestForecastSummaryNil(t *testing.T) {
	if got := ForecastSummary(nil); !strings.Contains(got, "unavailable") {
		t.Errorf("ForecastSummary(nil) = %q", got)
	}
}
