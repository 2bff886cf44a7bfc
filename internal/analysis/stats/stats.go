// Package stats computes descriptive price statistics for the statistical
// analyst.
package stats

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/seenimoa/stockpilot/pkg/models"
)

// Trend labels derived from the regression slope.
const (
	TrendUp   = "Upward"
	TrendDown = "Downward"
	TrendFlat = "Flat"
)

// ErrNoPrices is returned for an empty series.
var ErrNoPrices = errors.New("stats: no prices")

// SMA calculates the Simple Moving Average for the given period.
// Entries before the first full window are zero.
func SMA(data []float64, period int) []float64 {
	n := len(data)
	if n < period || period <= 0 {
		return nil
	}

	result := make([]float64, n)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += data[i]
	}
	result[period-1] = sum / float64(period)

	for i := period; i < n; i++ {
		sum += data[i] - data[i-period]
		result[i] = sum / float64(period)
	}
	return result
}

// TrailingMean averages the last period values, or all of them when the
// series is shorter.
func TrailingMean(data []float64, period int) float64 {
	if len(data) == 0 {
		return 0
	}
	if len(data) < period {
		return stat.Mean(data, nil)
	}
	vals := SMA(data, period)
	return vals[len(vals)-1]
}

// Returns gives simple percentage returns between consecutive closes.
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		out = append(out, (closes[i]-closes[i-1])/closes[i-1]*100)
	}
	return out
}

// Compute derives PriceStatistics from a series.
func Compute(series models.PriceSeries) (*models.PriceStatistics, error) {
	closes := series.Closes()
	if len(closes) == 0 {
		return nil, ErrNoPrices
	}

	ps := &models.PriceStatistics{
		CurrentPrice: closes[len(closes)-1],
		MA7:          TrailingMean(closes, 7),
		MA30:         TrailingMean(closes, 30),
		PeriodHigh:   floats.Max(closes),
		PeriodLow:    floats.Min(closes),
		Observations: len(closes),
		Trend:        TrendFlat,
	}

	if rets := Returns(closes); len(rets) > 0 {
		ps.AvgReturn = stat.Mean(rets, nil)
		ps.Volatility = stat.PopStdDev(rets, nil)
		ps.MaxReturn = floats.Max(rets)
		ps.MinReturn = floats.Min(rets)
	}

	if len(closes) > 1 {
		xs := make([]float64, len(closes))
		for i := range xs {
			xs[i] = float64(i)
		}
		_, slope := stat.LinearRegression(xs, closes, nil, false)
		if math.IsNaN(slope) {
			slope = 0
		}
		ps.TrendSlope = slope
		ps.Trend = TrendLabel(slope)
	}
	return ps, nil
}

// TrendLabel maps a slope to Upward, Downward or Flat.
func TrendLabel(slope float64) string {
	switch {
	case slope > 1e-9:
		return TrendUp
	case slope < -1e-9:
		return TrendDown
	default:
		return TrendFlat
	}
}
