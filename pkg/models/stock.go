// Package models defines the core data structures used throughout StockPilot.
package models

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrDuplicateTimestamp is returned when a price series contains two points
// with the same timestamp.
var ErrDuplicateTimestamp = errors.New("models: duplicate timestamp in price series")

// ErrEmptySeries is returned when a price series has no points.
var ErrEmptySeries = errors.New("models: empty price series")

// PricePoint is a single daily close.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Close     float64   `json:"close"`
}

// PriceSeries is an ordered sequence of closes for one symbol, ascending by
// time with no duplicate timestamps. Treat it as read-only once built.
type PriceSeries struct {
	Symbol string       `json:"symbol"`
	Points []PricePoint `json:"points"`
}

// NewPriceSeries sorts points ascending and rejects duplicate timestamps.
// The input slice is copied.
func NewPriceSeries(symbol string, points []PricePoint) (PriceSeries, error) {
	if len(points) == 0 {
		return PriceSeries{}, fmt.Errorf("%s: %w", symbol, ErrEmptySeries)
	}
	pts := make([]PricePoint, len(points))
	copy(pts, points)
	sort.SliceStable(pts, func(i, j int) bool {
		return pts[i].Timestamp.Before(pts[j].Timestamp)
	})
	for i := 1; i < len(pts); i++ {
		if pts[i].Timestamp.Equal(pts[i-1].Timestamp) {
			return PriceSeries{}, fmt.Errorf("%s at %s: %w",
				symbol, pts[i].Timestamp.Format(time.RFC3339), ErrDuplicateTimestamp)
		}
	}
	return PriceSeries{Symbol: symbol, Points: pts}, nil
}

// Len returns the number of points.
func (s PriceSeries) Len() int { return len(s.Points) }

// Closes returns a copy of the close prices in time order.
func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Close
	}
	return out
}

// Dates returns the timestamps formatted as YYYY-MM-DD.
func (s PriceSeries) Dates() []string {
	out := make([]string, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Timestamp.Format("2006-01-02")
	}
	return out
}

// Last returns the most recent point. ok is false for an empty series.
func (s PriceSeries) Last() (PricePoint, bool) {
	if len(s.Points) == 0 {
		return PricePoint{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// Tail returns the last n points as a new series.
func (s PriceSeries) Tail(n int) PriceSeries {
	if n >= len(s.Points) || n < 0 {
		return s
	}
	return PriceSeries{Symbol: s.Symbol, Points: s.Points[len(s.Points)-n:]}
}

// CompanyProfile holds company metadata used by the fundamentals analyst.
type CompanyProfile struct {
	Symbol           string  `json:"symbol"`
	Name             string  `json:"name"`
	Exchange         string  `json:"exchange,omitempty"`
	Currency         string  `json:"currency,omitempty"`
	Sector           string  `json:"sector,omitempty"`
	Industry         string  `json:"industry,omitempty"`
	Description      string  `json:"description,omitempty"`
	CurrentPrice     float64 `json:"current_price,omitempty"`
	MarketCap        float64 `json:"market_cap,omitempty"`
	TrailingPE       float64 `json:"trailing_pe,omitempty"`
	ForwardPE        float64 `json:"forward_pe,omitempty"`
	PriceToBook      float64 `json:"price_to_book,omitempty"`
	EPS              float64 `json:"eps,omitempty"`
	DividendYield    float64 `json:"dividend_yield,omitempty"`
	FiftyTwoWeekHigh float64 `json:"fifty_two_week_high,omitempty"`
	FiftyTwoWeekLow  float64 `json:"fifty_two_week_low,omitempty"`
}

// PriceStatistics summarizes a price history for the statistical analyst.
type PriceStatistics struct {
	CurrentPrice float64 `json:"current_price"`
	MA7          float64 `json:"ma_7"`
	MA30         float64 `json:"ma_30"`
	Volatility   float64 `json:"volatility"` // std dev of daily returns, percent
	AvgReturn    float64 `json:"avg_return"` // percent
	MaxReturn    float64 `json:"max_return"` // percent
	MinReturn    float64 `json:"min_return"` // percent
	TrendSlope   float64 `json:"trend_slope"`
	Trend        string  `json:"trend"` // Upward, Downward, Flat
	PeriodHigh   float64 `json:"period_high"`
	PeriodLow    float64 `json:"period_low"`
	Observations int     `json:"observations"`
}
