package stats

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/seenimoa/stockpilot/pkg/models"
)

// makeSeries builds a daily series from closes.
func makeSeries(t *testing.T, closes []float64) models.PriceSeries {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	pts := make([]models.PricePoint, len(closes))
	for i, c := range closes {
		pts[i] = models.PricePoint{Timestamp: base.AddDate(0, 0, i), Close: c}
	}
	s, err := models.NewPriceSeries("TEST", pts)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSMA(t *testing.T) {
	got := SMA([]float64{1, 2, 3, 4, 5}, 3)
	want := []float64{0, 0, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SMA[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if SMA([]float64{1}, 3) != nil {
		t.Error("expected nil for short data")
	}
}

func TestTrailingMeanShortSeries(t *testing.T) {
	if got := TrailingMean([]float64{2, 4}, 7); got != 3 {
		t.Errorf("TrailingMean = %v, want 3", got)
	}
}

func TestComputeUpwardTrend(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	ps, err := Compute(makeSeries(t, closes))
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if ps.CurrentPrice != 139 {
		t.Errorf("CurrentPrice = %v", ps.CurrentPrice)
	}
	if ps.MA7 != 136 {
		t.Errorf("MA7 = %v, want 136", ps.MA7)
	}
	if ps.MA30 != 124.5 {
		t.Errorf("MA30 = %v, want 124.5", ps.MA30)
	}
	if ps.Trend != TrendUp || math.Abs(ps.TrendSlope-1) > 1e-9 {
		t.Errorf("trend = %s slope %v", ps.Trend, ps.TrendSlope)
	}
	if ps.PeriodHigh != 139 || ps.PeriodLow != 100 {
		t.Errorf("range = [%v, %v]", ps.PeriodLow, ps.PeriodHigh)
	}
	if ps.MaxReturn != 1 || ps.Volatility <= 0 {
		t.Errorf("returns: max %v vol %v", ps.MaxReturn, ps.Volatility)
	}
}

func TestComputeFlat(t *testing.T) {
	ps, err := Compute(makeSeries(t, []float64{50, 50, 50, 50}))
	if err != nil {
		t.Fatal(err)
	}
	if ps.Trend != TrendFlat || ps.Volatility != 0 {
		t.Errorf("flat series: trend %s vol %v", ps.Trend, ps.Volatility)
	}
}

func TestComputeSinglePoint(t *testing.T) {
	ps, err := Compute(makeSeries(t, []float64{10}))
	if err != nil {
		t.Fatal(err)
	}
	if ps.Trend != TrendFlat || ps.AvgReturn != 0 {
		t.Errorf("single point: %+v", ps)
	}
	if _, err := Compute(models.PriceSeries{}); !errors.Is(err, ErrNoPrices) {
		t.Errorf("expected ErrNoPrices, got %v", err)
	}
}
