package report

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/seenimoa/stockpilot/internal/config"
	"github.com/seenimoa/stockpilot/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Test Helpers
// ════════════════════════════════════════════════════════════════════

func sampleSeries(t *testing.T, n int) models.PriceSeries {
	t.Helper()
	base := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	pts := make([]models.PricePoint, n)
	for i := range pts {
		pts[i] = models.PricePoint{Timestamp: base.AddDate(0, 0, i), Close: 180 + float64(i)*0.5 + float64(i%3)}
	}
	s, err := models.NewPriceSeries("ACME", pts)
	if err != nil {
		t.Fatalf("NewPriceSeries: %v", err)
	}
	return s
}

func sampleForecast() *models.EnsembleForecast {
	steps := make([]models.PointForecast, 5)
	arima := make([]models.PointForecast, 5)
	holt := make([]models.PointForecast, 5)
	for i := range steps {
		v := 210 + float64(i)
		steps[i] = models.PointForecast{Step: i + 1, Value: v, Lower: v - 4 - float64(i), Upper: v + 4 + float64(i)}
		arima[i] = models.PointForecast{Step: i + 1, Value: v - 1, Lower: v - 5, Upper: v + 3}
		holt[i] = models.PointForecast{Step: i + 1, Value: v + 1, Lower: v - 3, Upper: v + 5}
	}
	return &models.EnsembleForecast{
		Horizon:   5,
		LastPrice: 209,
		Steps:     steps,
		NextStep:  models.ForecastBand{Step: 1, Value: 210, Lower: 206, Upper: 214, ExpectedReturnPct: 0.48},
		FinalStep: models.ForecastBand{Step: 5, Value: 214, Lower: 206, Upper: 222, ExpectedReturnPct: 2.39},
		Models:    []string{"ARIMA(5,1,0)", "Holt(damped)"},
		Members: []models.ModelForecast{
			{Model: "ARIMA(5,1,0)", Points: arima},
			{Model: "Holt(damped)", Points: holt},
		},
		Failures:   []models.ModelFailure{{Model: "Decomposition", Reason: "insufficient data"}},
		Confidence: models.ConfidenceMedium,
	}
}

func sampleRun(t *testing.T) *models.AnalysisRun {
	t.Helper()
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return &models.AnalysisRun{
		ID:          "run-1",
		Symbol:      "ACME",
		CompanyName: "Acme & Sons",
		StartedAt:   start,
		CompletedAt: start.Add(2 * time.Minute),
		Stage:       models.StageComplete,
		Prices:      sampleSeries(t, 120),
		News: []models.NewsItem{
			{Headline: "Acme lands record contract", Source: "Wire", URL: "https://example.com/a", PublishedAt: start},
			{Headline: "<script>x</script> quarterly note", Source: "Blog", PublishedAt: start},
		},
		Profile: &models.CompanyProfile{
			Symbol: "ACME", Name: "Acme & Sons", Exchange: "NYSE", Sector: "Industrials",
			MarketCap: 2.5e12, TrailingPE: 17.77, FiftyTwoWeekHigh: 230, FiftyTwoWeekLow: 150,
		},
		Statistics: &models.PriceStatistics{CurrentPrice: 209, MA7: 207, MA30: 200, Volatility: 1.2, AvgReturn: 0.1, Trend: "Upward", PeriodHigh: 211, PeriodLow: 180},
		Forecast:   sampleForecast(),
		Analysts: []models.AnalystOutput{
			{
				Role:     models.RoleNews,
				Text:     "SENTIMENT: Bullish\n\n**Strong** contract momentum.\n\n<script>alert(1)</script>",
				Fields:   map[string]string{models.FieldSentiment: "Bullish"},
				Model:    "llama3",
				Tokens:   321,
				Duration: 1500 * time.Millisecond,
			},
			{Role: models.RoleStatistical, Err: "context deadline exceeded"},
		},
		Recommendation: &models.Recommendation{
			Action:      models.ActionBuy,
			Confidence:  models.ConfidenceMedium,
			TimeHorizon: "1-3 months",
			Rationale:   "Momentum and contracts support upside.\n\n- contract wins\n- upward trend",
			Inputs:      []models.AnalystRole{models.RoleNews},
		},
	}
}

// ════════════════════════════════════════════════════════════════════
// Chart Tests
// ════════════════════════════════════════════════════════════════════

func TestLineChart_Basic(t *testing.T) {
	series := []LineChartSeries{
		{Name: "ACME", Values: []float64{100, 105, 102, 110, 108}, Color: "#2196f3"},
		{Name: "Index", Values: []float64{100, 103, 101, 106, 104}},
	}
	cfg := DefaultChartConfig()
	cfg.Title = "Performance Comparison"

	svg := LineChart(series, []string{"Mon", "Tue", "Wed", "Thu", "Fri"}, cfg)
	for _, want := range []string{"Performance Comparison", "ACME", "Index", "Mon", "<path"} {
		if !strings.Contains(svg, want) {
			t.Errorf("expected %q in line chart", want)
		}
	}
}

func TestLineChart_Empty(t *testing.T) {
	if svg := LineChart(nil, nil, DefaultChartConfig()); !strings.Contains(svg, "No data") {
		t.Error("expected empty message")
	}
	allNaN := []LineChartSeries{{Name: "A", Values: []float64{math.NaN(), math.NaN()}}}
	if svg := LineChart(allNaN, nil, DefaultChartConfig()); !strings.Contains(svg, "No data points") {
		t.Error("expected empty message for all-NaN series")
	}
}

func TestLineChart_NaNGap(t *testing.T) {
	series := []LineChartSeries{{Name: "Test", Values: []float64{10, math.NaN(), 20, math.NaN(), 30}}}
	svg := LineChart(series, nil, DefaultChartConfig())
	if !strings.Contains(svg, "<path") {
		t.Error("expected path even with NaN values")
	}
	if strings.Contains(svg, "NaN") {
		t.Error("NaN leaked into SVG coordinates")
	}
}

func TestForecastChart(t *testing.T) {
	svg := ForecastChart(sampleSeries(t, 120), sampleForecast(), DefaultChartConfig())
	for _, want := range []string{"<polygon", "Ensemble", "Close", "ARIMA(5,1,0)", "Holt(damped)", "+1", "stroke-dasharray=\"5,3\""} {
		if !strings.Contains(svg, want) {
			t.Errorf("expected %q in forecast chart", want)
		}
	}
	if strings.Contains(svg, "NaN") || strings.Contains(svg, "Inf") {
		t.Error("non-finite coordinate in SVG")
	}
}

func TestForecastChart_HistoryOnly(t *testing.T) {
	svg := ForecastChart(sampleSeries(t, 30), nil, ChartConfig{})
	if strings.Contains(svg, "<polygon") {
		t.Error("band drawn without a forecast")
	}
	if !strings.Contains(svg, "Close") {
		t.Error("expected close legend")
	}
}

func TestForecastChart_Empty(t *testing.T) {
	svg := ForecastChart(models.PriceSeries{}, sampleForecast(), DefaultChartConfig())
	if !strings.Contains(svg, "No price data") {
		t.Error("expected empty message")
	}
}

func TestHorizontalBarChart(t *testing.T) {
	items := []BarItem{
		{Label: "ARIMA", Value: 2.5},
		{Label: "Holt", Value: -1.25},
	}
	cfg := DefaultChartConfig()
	cfg.Title = "Expected return"

	svg := HorizontalBarChart(items, cfg)
	for _, want := range []string{"Expected return", "ARIMA", "Holt", "+2.50%", "-1.25%", "#ef5350"} {
		if !strings.Contains(svg, want) {
			t.Errorf("expected %q in bar chart", want)
		}
	}
	if svg := HorizontalBarChart(nil, cfg); !strings.Contains(svg, "No data") {
		t.Error("expected empty message")
	}
}

func TestGaugeChart(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		color string
	}{
		{"low", 15, "#ef5350"},
		{"medium low", 40, "#ff9800"},
		{"medium", 55, "#ffc107"},
		{"high", 85, "#4caf50"},
		{"clamped zero", -10, "#ef5350"},
		{"clamped max", 150, "#4caf50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svg := GaugeChart(tt.value, tt.name, 200)
			if !strings.Contains(svg, tt.name) {
				t.Errorf("expected label %q", tt.name)
			}
			if !strings.Contains(svg, tt.color) {
				t.Errorf("expected color %s", tt.color)
			}
		})
	}
	if svg := GaugeChart(50, "x", 0); !strings.Contains(svg, `width="200"`) {
		t.Error("expected default width")
	}
}

func TestConfidenceScore(t *testing.T) {
	if !(confidenceScore(models.ConfidenceHigh) > confidenceScore(models.ConfidenceMedium) &&
		confidenceScore(models.ConfidenceMedium) > confidenceScore(models.ConfidenceLow) &&
		confidenceScore(models.ConfidenceLow) > confidenceScore("")) {
		t.Error("confidence scores not ordered")
	}
}

func TestPlotArea(t *testing.T) {
	cfg := DefaultChartConfig()
	x, y, w, h := cfg.plotArea()
	if x != cfg.MarginLeft || y != cfg.MarginTop {
		t.Errorf("origin = (%d,%d)", x, y)
	}
	if w != cfg.Width-cfg.MarginLeft-cfg.MarginRight {
		t.Errorf("w = %d", w)
	}
	if h != cfg.Height-cfg.MarginTop-cfg.MarginBottom {
		t.Errorf("h = %d", h)
	}
}

func TestEscapeXML(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello", "hello"},
		{"a & b", "a &amp; b"},
		{"<b>test</b>", "&lt;b&gt;test&lt;/b&gt;"},
		{`"quoted"`, "&quot;quoted&quot;"},
	}
	for _, tt := range tests {
		if got := escapeXML(tt.input); got != tt.expected {
			t.Errorf("escapeXML(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

// ════════════════════════════════════════════════════════════════════
// Formatting
// ════════════════════════════════════════════════════════════════════

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "$0.00"},
		{100, "$100.00"},
		{1234.5, "$1,234.50"},
		{1234567.891, "$1,234,567.89"},
		{-5.5, "-$5.50"},
		{999.999, "$1,000.00"},
	}
	for _, tt := range tests {
		if got := formatUSD(tt.in); got != tt.want {
			t.Errorf("formatUSD(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatPct(t *testing.T) {
	if got := formatSignedPct(2.391); got != "+2.39%" {
		t.Errorf("formatSignedPct = %q", got)
	}
	if got := formatSignedPct(-1.5); got != "-1.50%" {
		t.Errorf("formatSignedPct = %q", got)
	}
	if got := formatLargeUSD(2.5e12); got != "$2.50T" {
		t.Errorf("formatLargeUSD = %q", got)
	}
	if got := formatLargeUSD(0); got != "N/A" {
		t.Errorf("formatLargeUSD(0) = %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{5 * time.Second, "5.0s"},
		{3 * time.Minute, "3.0m"},
		{2 * time.Hour, "2.0h"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFileName(t *testing.T) {
	tests := map[string]string{
		"ACME":  "ACME.html",
		"brk.b": "BRK.B.html",
		"^GSPC": "_GSPC.html",
		"a/b":   "A_B.html",
	}
	for in, want := range tests {
		if got := FileName(in); got != want {
			t.Errorf("FileName(%q) = %q, want %q", in, got, want)
		}
	}
}

// ════════════════════════════════════════════════════════════════════
// Report Generator Tests
// ════════════════════════════════════════════════════════════════════

func TestGenerateHTML_Complete(t *testing.T) {
	page, err := GenerateHTML(sampleRun(t), DefaultReportConfig())
	if err != nil {
		t.Fatalf("GenerateHTML: %v", err)
	}

	checks := []struct {
		name   string
		substr string
	}{
		{"doctype", "<!DOCTYPE html>"},
		{"ticker", `<span class="ticker-badge">ACME</span>`},
		{"escaped company", "Acme &amp; Sons"},
		{"sector", "Industrials"},
		{"badge", `rec-box buy`},
		{"action", "BUY"},
		{"confidence", "Confidence: Medium"},
		{"horizon", "1-3 months"},
		{"inputs", "Based on: News Analyst"},
		{"rationale list", "<li>contract wins</li>"},
		{"forecast table", "$214.00"},
		{"band polygon", "<polygon"},
		{"model path chart", "Forecast path by model"},
		{"model list", "ARIMA(5,1,0), Holt(damped)"},
		{"failed model", "Excluded Decomposition: insufficient data"},
		{"statistics", "30-day MA"},
		{"analyst markdown", "<strong>Strong</strong>"},
		{"analyst field", "sentiment: Bullish"},
		{"analyst meta", "321 tokens"},
		{"failed analyst", "Unavailable: context deadline exceeded"},
		{"market cap", "$2.50T"},
		{"headline link", `href="https://example.com/a"`},
		{"disclaimer", "educational purposes"},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			if !strings.Contains(page, c.substr) {
				t.Errorf("expected %q in HTML output", c.substr)
			}
		})
	}

	if strings.Contains(page, "<script>") {
		t.Error("unescaped script tag in output")
	}
	if n := strings.Count(page, "<svg"); n < 4 {
		t.Errorf("expected forecast, return, path and gauge charts, found %d svg", n)
	}
	if strings.Contains(page, "index.html") {
		t.Error("index link rendered without IndexLink")
	}
}

func TestGenerateHTML_FailedRun(t *testing.T) {
	run := &models.AnalysisRun{
		ID:          "run-2",
		Symbol:      "BUST",
		Stage:       models.StageFailed,
		FailedStage: models.StageFetching,
		Error:       "fetch: no price data",
	}
	page, err := GenerateHTML(run, DefaultReportConfig())
	if err != nil {
		t.Fatalf("GenerateHTML: %v", err)
	}
	if !strings.Contains(page, "Analysis failed during FETCHING") {
		t.Error("expected failure box")
	}
	if !strings.Contains(page, "fetch: no price data") {
		t.Error("expected failure reason")
	}
	if strings.Contains(page, `class="rec-box`) {
		t.Error("failed run rendered a recommendation")
	}
}

func TestGenerateHTML_Nil(t *testing.T) {
	if _, err := GenerateHTML(nil, DefaultReportConfig()); !errors.Is(err, ErrNilRun) {
		t.Errorf("err = %v, want ErrNilRun", err)
	}
	if _, err := GenerateText(nil); !errors.Is(err, ErrNilRun) {
		t.Errorf("err = %v, want ErrNilRun", err)
	}
}

func TestGenerateText(t *testing.T) {
	text, err := GenerateText(sampleRun(t))
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	for _, want := range []string{
		"Acme & Sons (ACME)",
		"RECOMMENDATION",
		"BUY (Confidence: Medium) | Horizon: 1-3 months",
		"Step 5: $214.00 [$206.00, $222.00] (+2.39%)",
		"excluded Decomposition",
		"NEWS ANALYST",
		"sentiment: Bullish",
		"STATISTICAL EXPERT",
		"unavailable: context deadline exceeded",
		"educational purposes",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in text report", want)
		}
	}
}

func TestGenerateText_Fallback(t *testing.T) {
	run := sampleRun(t)
	run.Recommendation.Fallback = true
	run.Recommendation.Action = models.ActionHold
	text, _ := GenerateText(run)
	if !strings.Contains(text, "default applied") {
		t.Error("expected fallback note")
	}
}

func TestGenerateIndex(t *testing.T) {
	ok := sampleRun(t)
	failed := &models.AnalysisRun{Symbol: "BUST", Stage: models.StageFailed, FailedStage: models.StageFetching, Error: "fetch: boom"}

	page, err := GenerateIndex([]*models.AnalysisRun{ok, failed, nil}, DefaultReportConfig())
	if err != nil {
		t.Fatalf("GenerateIndex: %v", err)
	}
	for _, want := range []string{
		"StockPilot Daily Analysis",
		"1 complete · 1 failed",
		`href="ACME.html"`,
		`href="BUST.html"`,
		`signal-badge buy`,
		"FAILED: fetch: boom",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("expected %q in index", want)
		}
	}
}

func TestFromConfig(t *testing.T) {
	rc := FromConfig(config.ReportConfig{Title: "Morning Run"})
	if rc.Title != "Morning Run" || !rc.IndexLink {
		t.Errorf("FromConfig = %+v", rc)
	}
	if rc := FromConfig(config.ReportConfig{}); rc.Title != DefaultReportConfig().Title {
		t.Errorf("default title not applied: %q", rc.Title)
	}
}

// ════════════════════════════════════════════════════════════════════
// Integration: write to disk
// ════════════════════════════════════════════════════════════════════

func TestWriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	batch := &models.BatchResult{
		ID: "batch-1",
		Runs: map[string]*models.AnalysisRun{
			"ACME": sampleRun(t),
			"BUST": {Symbol: "BUST", Stage: models.StageFailed, FailedStage: models.StageFetching, Error: "fetch: boom"},
		},
		Status: map[string]models.SymbolStatus{
			"ACME": {Symbol: "ACME", Stage: models.StageComplete},
			"BUST": {Symbol: "BUST", Stage: models.StageFailed},
		},
	}
	cfg := FromConfig(config.ReportConfig{})

	paths, err := WriteAll(dir, batch, cfg)
	if err != nil {
		t.Fatalf("WriteAll: %v", err)
	}
	if len(paths) != 3 || filepath.Base(paths[2]) != "index.html" {
		t.Fatalf("paths = %v", paths)
	}
	for _, name := range []string{"ACME.html", "BUST.html", "index.html"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("stat %s: %v", name, err)
		}
		if info.Size() < 500 {
			t.Errorf("%s suspiciously small: %d bytes", name, info.Size())
		}
	}
	page, _ := os.ReadFile(filepath.Join(dir, "ACME.html"))
	if !strings.Contains(string(page), `href="index.html"`) {
		t.Error("run page missing index link")
	}
}

func TestWriteAll_NilBatch(t *testing.T) {
	if _, err := WriteAll(t.TempDir(), nil, DefaultReportConfig()); err == nil {
		t.Error("expected error for nil batch")
	}
}
