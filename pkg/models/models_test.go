package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// ── PriceSeries ──

func TestNewPriceSeriesSortsAscending(t *testing.T) {
	base := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	s, err := NewPriceSeries("MSFT", []PricePoint{
		{Timestamp: base.AddDate(0, 0, 2), Close: 3},
		{Timestamp: base, Close: 1},
		{Timestamp: base.AddDate(0, 0, 1), Close: 2},
	})
	if err != nil {
		t.Fatalf("NewPriceSeries: %v", err)
	}
	closes := s.Closes()
	for i, want := range []float64{1, 2, 3} {
		if closes[i] != want {
			t.Errorf("closes[%d] = %v, want %v", i, closes[i], want)
		}
	}
	last, ok := s.Last()
	if !ok || last.Close != 3 {
		t.Errorf("Last() = %+v, %v", last, ok)
	}
}

func TestNewPriceSeriesRejectsDuplicates(t *testing.T) {
	ts := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	_, err := NewPriceSeries("MSFT", []PricePoint{{Timestamp: ts, Close: 1}, {Timestamp: ts, Close: 2}})
	if !errors.Is(err, ErrDuplicateTimestamp) {
		t.Fatalf("expected ErrDuplicateTimestamp, got %v", err)
	}
	if _, err := NewPriceSeries("MSFT", nil); !errors.Is(err, ErrEmptySeries) {
		t.Fatalf("expected ErrEmptySeries, got %v", err)
	}
}

func TestPriceSeriesTail(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	pts := make([]PricePoint, 10)
	for i := range pts {
		pts[i] = PricePoint{Timestamp: base.AddDate(0, 0, i), Close: float64(i)}
	}
	s, _ := NewPriceSeries("X", pts)
	if got := s.Tail(3).Len(); got != 3 {
		t.Fatalf("Tail(3).Len() = %d", got)
	}
	if got := s.Tail(50).Len(); got != 10 {
		t.Fatalf("Tail(50).Len() = %d", got)
	}
}

// ── Parsing ──

func TestParseAction(t *testing.T) {
	tests := []struct {
		in   string
		want Action
		ok   bool
	}{
		{"BUY", ActionBuy, true},
		{" **Sell** ", ActionSell, true},
		{"[HOLD]", ActionHold, true},
		{"Strong Buy", ActionBuy, true},
		{"We rate it a BUY", ActionBuy, true},
		{"shareholders should hold", ActionHold, true},
		{"BUY / HOLD / SELL", "", false},
		{"accumulate", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseAction(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseAction(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseConfidence(t *testing.T) {
	tests := map[string]string{"high": ConfidenceHigh, "[Medium]": ConfidenceMedium, "LOW ": ConfidenceLow}
	for in, want := range tests {
		got, ok := ParseConfidence(in)
		if !ok || got != want {
			t.Errorf("ParseConfidence(%q) = %q, %v", in, got, ok)
		}
	}
	if _, ok := ParseConfidence("certain"); ok {
		t.Error("expected no match for unknown label")
	}
	if got, ok := ParseConfidence("we have high conviction"); !ok || got != ConfidenceHigh {
		t.Errorf("mid-sentence label = %q, %v", got, ok)
	}
	if _, ok := ParseConfidence("High / Medium / Low"); ok {
		t.Error("echoed template should not resolve")
	}
}

func TestAnalystOutputSucceeded(t *testing.T) {
	if (AnalystOutput{Text: "  "}).Succeeded() {
		t.Error("blank text should not count as success")
	}
	if (AnalystOutput{Text: "ok", Err: "timeout"}).Succeeded() {
		t.Error("errored output should not count as success")
	}
	if !(AnalystOutput{Text: "ok"}).Succeeded() {
		t.Error("expected success")
	}
}

// ── AnalysisRun ──

func TestAnalysisRunJSONRoundtrip(t *testing.T) {
	base := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	series, err := NewPriceSeries("GOOGL", []PricePoint{
		{Timestamp: base, Close: 170.25},
		{Timestamp: base.AddDate(0, 0, 1), Close: 171.5},
	})
	if err != nil {
		t.Fatal(err)
	}
	run := AnalysisRun{
		ID:        "run-1",
		Symbol:    "GOOGL",
		StartedAt: base,
		Stage:     StageComplete,
		Prices:    series,
		News:      []NewsItem{{Headline: "Alphabet beats estimates", Source: "Reuters", PublishedAt: base}},
		Forecast: &EnsembleForecast{
			Horizon:   2,
			LastPrice: 171.5,
			Steps: []PointForecast{
				{Step: 1, Value: 172.1, Lower: 168.03125, Upper: 175.9},
				{Step: 2, Value: 172.7, Lower: 166.5, Upper: 178.123456789},
			},
			NextStep:  ForecastBand{Step: 1, Value: 172.1, Lower: 168.03125, Upper: 175.9},
			FinalStep: ForecastBand{Step: 2, Value: 172.7, Lower: 166.5, Upper: 178.123456789},
			Models:    []string{"ARIMA(5,1,0)", "Holt (damped additive trend)"},
		},
		Analysts: []AnalystOutput{
			{Role: RoleNews, Text: "SENTIMENT: Bullish\nstrong cloud growth", Fields: map[string]string{FieldSentiment: "Bullish"}},
			{Role: RoleStatistical, Text: "TREND ANALYSIS: upward ✓ 📈"},
			{Role: RoleFundamentals, Err: "llm: request timed out"},
		},
		Recommendation: &Recommendation{
			Action:     ActionBuy,
			Confidence: ConfidenceMedium,
			Rationale:  "RECOMMENDATION: BUY",
			Inputs:     []AnalystRole{RoleNews, RoleStatistical},
		},
	}

	data, err := json.Marshal(run)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got AnalysisRun
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Symbol != run.Symbol {
		t.Errorf("Symbol: got %q, want %q", got.Symbol, run.Symbol)
	}
	for i, st := range run.Forecast.Steps {
		g := got.Forecast.Steps[i]
		if g.Lower != st.Lower || g.Upper != st.Upper || g.Value != st.Value {
			t.Errorf("step %d: got %+v, want %+v", i, g, st)
		}
	}
	if got.Forecast.NextStep != run.Forecast.NextStep || got.Forecast.FinalStep != run.Forecast.FinalStep {
		t.Errorf("bands differ: %+v vs %+v", got.Forecast.NextStep, run.Forecast.NextStep)
	}
	if len(got.Analysts) != len(run.Analysts) {
		t.Fatalf("analysts: got %d, want %d", len(got.Analysts), len(run.Analysts))
	}
	for i := range run.Analysts {
		if got.Analysts[i].Text != run.Analysts[i].Text {
			t.Errorf("analyst %d text: got %q, want %q", i, got.Analysts[i].Text, run.Analysts[i].Text)
		}
	}
	if got.Recommendation.Action != ActionBuy {
		t.Errorf("Action: got %q", got.Recommendation.Action)
	}
	if !got.Prices.Points[0].Timestamp.Equal(base) {
		t.Errorf("timestamp drift: %v", got.Prices.Points[0].Timestamp)
	}
}

func TestBatchResultPartition(t *testing.T) {
	b := &BatchResult{
		Runs: map[string]*AnalysisRun{
			"AAPL": {Symbol: "AAPL", Stage: StageComplete},
			"BAD":  {Symbol: "BAD", Stage: StageFailed, Error: "symbol not found"},
		},
		Status: map[string]SymbolStatus{
			"AAPL": {Symbol: "AAPL", Stage: StageComplete},
			"BAD":  {Symbol: "BAD", Stage: StageFailed, Error: "symbol not found"},
		},
	}
	if f := b.Failed(); len(f) != 1 || f[0].Symbol != "BAD" {
		t.Fatalf("Failed() = %+v", f)
	}
	if s := b.Succeeded(); len(s) != 1 || s[0].Symbol != "AAPL" {
		t.Fatalf("Succeeded() = %+v", s)
	}
}
