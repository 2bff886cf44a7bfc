package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/seenimoa/stockpilot/internal/config"
	"github.com/seenimoa/stockpilot/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Fixtures
// ════════════════════════════════════════════════════════════════════

func sampleRun(symbol string, started time.Time, action models.Action) *models.AnalysisRun {
	series, _ := models.NewPriceSeries(symbol, []models.PricePoint{
		{Timestamp: started.AddDate(0, 0, -2), Close: 101.25},
		{Timestamp: started.AddDate(0, 0, -1), Close: 102.5},
	})
	return &models.AnalysisRun{
		ID:          symbol + "-" + started.Format("150405"),
		Symbol:      symbol,
		StartedAt:   started,
		CompletedAt: started.Add(90 * time.Second),
		Stage:       models.StageComplete,
		Prices:      series,
		Forecast: &models.EnsembleForecast{
			Horizon:   10,
			LastPrice: 102.5,
			Models:    []string{"ARIMA(5,1,0)"},
			NextStep:  models.ForecastBand{Step: 1, Value: 103.125, Lower: 99.875, Upper: 106.375},
		},
		Analysts: []models.AnalystOutput{
			{Role: models.RoleNews, Text: "SENTIMENT: Bullish\n\nLine **two**", Fields: map[string]string{"sentiment": "Bullish"}},
			{Role: models.RoleStatistical, Err: "timeout"},
		},
		Recommendation: &models.Recommendation{Action: action, Confidence: models.ConfidenceMedium, Inputs: []models.AnalystRole{models.RoleNews}},
	}
}

func assertRoundTrip(t *testing.T, got, want *models.AnalysisRun) {
	t.Helper()
	if got.ID != want.ID || got.Symbol != want.Symbol || got.Stage != want.Stage {
		t.Errorf("identity: got %s/%s/%s, want %s/%s/%s", got.ID, got.Symbol, got.Stage, want.ID, want.Symbol, want.Stage)
	}
	if !got.StartedAt.Equal(want.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, want.StartedAt)
	}
	if got.Forecast == nil || got.Forecast.NextStep != want.Forecast.NextStep {
		t.Errorf("Forecast = %+v", got.Forecast)
	}
	if len(got.Analysts) != len(want.Analysts) || got.Analysts[0].Text != want.Analysts[0].Text || got.Analysts[1].Err != "timeout" {
		t.Errorf("Analysts = %+v", got.Analysts)
	}
	if got.Recommendation == nil || got.Recommendation.Action != want.Recommendation.Action {
		t.Errorf("Recommendation = %+v", got.Recommendation)
	}
	if got.Prices.Len() != 2 || got.Prices.Points[1].Close != 102.5 {
		t.Errorf("Prices = %+v", got.Prices)
	}
}

var t0 = time.Date(2025, 6, 2, 13, 30, 5, 0, time.UTC)

// ════════════════════════════════════════════════════════════════════
// JSONStore
// ════════════════════════════════════════════════════════════════════

func TestFileName(t *testing.T) {
	run := &models.AnalysisRun{Symbol: "msft", StartedAt: t0}
	if got := FileName(run); got != "MSFT_analysis_20250602_133005.json" {
		t.Errorf("FileName = %q", got)
	}
}

func TestJSONStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONStore(dir)
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	ctx := context.Background()

	want := sampleRun("AAPL", t0, models.ActionBuy)
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "AAPL_analysis_20250602_133005.json")); err != nil {
		t.Fatalf("expected run file: %v", err)
	}

	got, err := s.Latest(ctx, "aapl")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	assertRoundTrip(t, got, want)
}

func TestJSONStoreSameSecond(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewJSONStore(dir)
	ctx := context.Background()

	first := sampleRun("AAPL", t0, models.ActionBuy)
	second := sampleRun("AAPL", t0.Add(400*time.Millisecond), models.ActionSell)
	second.ID = "second-run"
	for _, r := range []*models.AnalysisRun{first, second, first} {
		if err := s.Save(ctx, r); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Fatalf("files = %d, want 2 (re-saving a run overwrites its own file)", len(entries))
	}
	if _, err := os.Stat(filepath.Join(dir, "AAPL_analysis_20250602_133005_secondru.json")); err != nil {
		t.Errorf("expected suffixed file: %v", err)
	}

	runs, err := s.List(ctx, "AAPL", 0)
	if err != nil || len(runs) != 2 {
		t.Fatalf("List = %d runs, %v", len(runs), err)
	}
	if runs[0].ID != "second-run" || runs[1].ID != first.ID {
		t.Errorf("order = %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestJSONStoreOrdering(t *testing.T) {
	s, _ := NewJSONStore(t.TempDir())
	ctx := context.Background()

	for i, sym := range []string{"MSFT", "GOOGL", "MSFT", "MSFT"} {
		if err := s.Save(ctx, sampleRun(sym, t0.Add(time.Duration(i)*time.Hour), models.ActionHold)); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	runs, err := s.List(ctx, "MSFT", 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 || !runs[0].StartedAt.Equal(t0.Add(3*time.Hour)) || !runs[1].StartedAt.Equal(t0.Add(2*time.Hour)) {
		t.Errorf("List(MSFT, 2) returned %d runs in the wrong order", len(runs))
	}

	all, _ := s.List(ctx, "", 0)
	if len(all) != 4 {
		t.Fatalf("List(all) = %d runs, want 4", len(all))
	}
	if all[2].Symbol != "GOOGL" {
		t.Errorf("List(all)[2] = %s, want GOOGL", all[2].Symbol)
	}
}

func TestJSONStoreErrors(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewJSONStore(dir)
	ctx := context.Background()

	if _, err := s.Latest(ctx, "NVDA"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest(missing) err = %v, want ErrNotFound", err)
	}

	inflight := sampleRun("NVDA", t0, models.ActionBuy)
	inflight.Stage = models.StageAnalyzing
	if err := s.Save(ctx, inflight); err == nil {
		t.Error("saving a non-terminal run should fail")
	}

	// Corrupt files are skipped, not fatal.
	if err := os.WriteFile(filepath.Join(dir, "NVDA_analysis_20990101_000000.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, sampleRun("NVDA", t0, models.ActionSell)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Latest(ctx, "NVDA")
	if err != nil || got.Recommendation.Action != models.ActionSell {
		t.Errorf("Latest = %+v, %v", got, err)
	}
}

// ════════════════════════════════════════════════════════════════════
// SQLiteStore
// ════════════════════════════════════════════════════════════════════

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "runs.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	want := sampleRun("GOOGL", t0, models.ActionBuy)
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Latest(ctx, "GOOGL")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	assertRoundTrip(t, got, want)

	// Same ID replaces.
	want.Recommendation.Action = models.ActionSell
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save again: %v", err)
	}
	runs, _ := s.List(ctx, "GOOGL", 0)
	if len(runs) != 1 || runs[0].Recommendation.Action != models.ActionSell {
		t.Errorf("List after replace = %d runs", len(runs))
	}
}

func TestSQLiteStoreListAndCount(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	actions := []models.Action{models.ActionBuy, models.ActionHold, models.ActionBuy}
	for i, a := range actions {
		if err := s.Save(ctx, sampleRun("AAPL", t0.Add(time.Duration(i)*time.Minute), a)); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	failed := sampleRun("MSFT", t0.Add(time.Hour), "")
	failed.Stage = models.StageFailed
	failed.Recommendation = nil
	failed.Error = "fetch: symbol not found"
	if err := s.Save(ctx, failed); err != nil {
		t.Fatalf("Save failed run: %v", err)
	}

	runs, err := s.List(ctx, "AAPL", 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 || !runs[0].StartedAt.Equal(t0.Add(2*time.Minute)) {
		t.Errorf("List(AAPL, 2) = %d runs", len(runs))
	}
	all, _ := s.List(ctx, "", 0)
	if len(all) != 4 || all[0].Symbol != "MSFT" {
		t.Errorf("List(all) = %d runs, first %v", len(all), all[0].Symbol)
	}

	counts, err := s.CountByAction(ctx)
	if err != nil {
		t.Fatalf("CountByAction: %v", err)
	}
	if counts[models.ActionBuy] != 2 || counts[models.ActionHold] != 1 || len(counts) != 2 {
		t.Errorf("counts = %v", counts)
	}

	if _, err := s.Latest(ctx, "TSLA"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest(missing) err = %v", err)
	}
}

func TestSQLiteMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := s.Save(context.Background(), sampleRun("AAPL", t0, models.ActionHold)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	v, err := s.Version()
	if err != nil || v != len(migrations) {
		t.Errorf("Version = %d, %v; want %d", v, err, len(migrations))
	}
	if _, err := s.Latest(context.Background(), "AAPL"); err != nil {
		t.Errorf("data lost across reopen: %v", err)
	}
}

// ════════════════════════════════════════════════════════════════════
// New / NoopStore
// ════════════════════════════════════════════════════════════════════

func TestNewBackends(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		backend string
		wantErr bool
		check   func(Store) bool
	}{
		{"json", false, func(s Store) bool { _, ok := s.(*JSONStore); return ok }},
		{"sqlite", false, func(s Store) bool { _, ok := s.(*SQLiteStore); return ok }},
		{"none", false, func(s Store) bool { _, ok := s.(NoopStore); return ok }},
		{"redis", true, nil},
	}
	for _, tt := range tests {
		s, err := New(config.StoreConfig{Backend: tt.backend, Dir: filepath.Join(dir, "json"), SQLitePath: filepath.Join(dir, "s.db")})
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%s) err = %v", tt.backend, err)
			continue
		}
		if err == nil {
			if !tt.check(s) {
				t.Errorf("New(%s) returned %T", tt.backend, s)
			}
			s.Close()
		} else if !strings.Contains(err.Error(), tt.backend) {
			t.Errorf("error should name the backend: %v", err)
		}
	}
}

func TestNoopStore(t *testing.T) {
	var s Store = NoopStore{}
	ctx := context.Background()
	if err := s.Save(ctx, sampleRun("AAPL", t0, models.ActionBuy)); err != nil {
		t.Errorf("Save: %v", err)
	}
	if _, err := s.Latest(ctx, "AAPL"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest err = %v", err)
	}
}
