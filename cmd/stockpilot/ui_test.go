package main

import (
	"strings"
	"testing"
	"time"

	"github.com/seenimoa/stockpilot/pkg/models"
)

func batchFixture() *models.BatchResult {
	return &models.BatchResult{
		ID: "b1",
		Runs: map[string]*models.AnalysisRun{
			"AAPL": {Symbol: "AAPL", Stage: models.StageComplete,
				Recommendation: &models.Recommendation{Action: models.ActionBuy, Confidence: models.ConfidenceMedium}},
			"ZZZZ": {Symbol: "ZZZZ", Stage: models.StageFailed, FailedStage: models.StageFetching, Error: "no price data"},
		},
		Status: map[string]models.SymbolStatus{
			"AAPL": {Symbol: "AAPL", Stage: models.StageComplete, Action: models.ActionBuy, Took: 3 * time.Second},
			"ZZZZ": {Symbol: "ZZZZ", Stage: models.StageFailed, Error: "no price data", Took: 200 * time.Millisecond},
		},
	}
}

func TestRenderBatch(t *testing.T) {
	out := renderBatch(batchFixture())
	for _, want := range []string{"AAPL", "BUY", "Medium confidence", "ZZZZ", "FAILED", "FETCHING: no price data", "1 complete, 1 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
	if strings.Index(out, "AAPL") > strings.Index(out, "ZZZZ") {
		t.Error("rows not in symbol order")
	}
}

func TestBatchError(t *testing.T) {
	b := batchFixture()
	if err := batchError(b); err != nil {
		t.Errorf("partial failure should not error: %v", err)
	}

	b.Status["AAPL"] = models.SymbolStatus{Symbol: "AAPL", Stage: models.StageFailed}
	if err := batchError(b); err == nil || !strings.Contains(err.Error(), "all 2 symbols failed") {
		t.Errorf("err = %v", err)
	}

	if err := batchError(&models.BatchResult{}); err == nil {
		t.Error("empty batch should error")
	}
}

func TestPadAndTruncate(t *testing.T) {
	if got := pad("AB", 5); got != "AB   " {
		t.Errorf("pad = %q", got)
	}
	if got := pad("ABCDEFGH", 5); got != "ABCD " {
		t.Errorf("pad overflow = %q", got)
	}
	if got := truncate("abcdef", 4); got != "abc…" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abc", 4); got != "abc" {
		t.Errorf("truncate short = %q", got)
	}
}
