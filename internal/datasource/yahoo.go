package datasource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/equity"
	"github.com/shopspring/decimal"

	"github.com/seenimoa/stockpilot/internal/infra"
	"github.com/seenimoa/stockpilot/pkg/models"
)

const yahooSource = "yahoo"

// Bar is one daily bar from the chart endpoint.
type Bar struct {
	Timestamp time.Time
	Close     decimal.Decimal
}

// HistoryFunc loads daily bars between two instants.
type HistoryFunc func(symbol string, from, to time.Time) ([]Bar, error)

// EquityFunc loads the equity quote of a symbol. A nil quote with a nil
// error means the symbol is unknown.
type EquityFunc func(symbol string) (*finance.Equity, error)

// Yahoo implements PriceSource and ProfileSource on top of the Yahoo Finance
// chart and quote endpoints.
type Yahoo struct {
	history  HistoryFunc
	equity   EquityFunc
	prices   *infra.Cache[models.PriceSeries]
	profiles *infra.Cache[*models.CompanyProfile]
	limiter  *infra.RateLimiter
	now      func() time.Time
}

// YahooOption configures a Yahoo source.
type YahooOption func(*Yahoo)

// WithHistoryFunc replaces the chart client.
func WithHistoryFunc(fn HistoryFunc) YahooOption {
	return func(y *Yahoo) { y.history = fn }
}

// WithEquityFunc replaces the quote client.
func WithEquityFunc(fn EquityFunc) YahooOption {
	return func(y *Yahoo) { y.equity = fn }
}

// WithYahooCacheTTL sets how long prices and profiles are reused.
func WithYahooCacheTTL(ttl time.Duration) YahooOption {
	return func(y *Yahoo) {
		y.prices = infra.NewCache[models.PriceSeries](ttl)
		y.profiles = infra.NewCache[*models.CompanyProfile](ttl)
	}
}

// WithYahooRateLimit caps requests per minute. Zero disables the limit.
func WithYahooRateLimit(perMinute int) YahooOption {
	return func(y *Yahoo) { y.limiter = infra.NewRateLimiter(perMinute, time.Minute) }
}

// NewYahoo creates a Yahoo Finance source.
func NewYahoo(opts ...YahooOption) *Yahoo {
	y := &Yahoo{
		history:  chartHistory,
		equity:   equity.Get,
		prices:   infra.NewCache[models.PriceSeries](15 * time.Minute),
		profiles: infra.NewCache[*models.CompanyProfile](15 * time.Minute),
		limiter:  infra.NewRateLimiter(60, time.Minute),
		now:      time.Now,
	}
	for _, o := range opts {
		o(y)
	}
	return y
}

// Name returns the source name.
func (y *Yahoo) Name() string { return yahooSource }

// History returns daily closes for the last lookbackDays calendar days.
func (y *Yahoo) History(ctx context.Context, symbol string, lookbackDays int) (models.PriceSeries, error) {
	symbol = NormalizeSymbol(symbol)
	key := fmt.Sprintf("%s:%d", symbol, lookbackDays)
	if cached, ok := y.prices.Get(key); ok {
		return cached, nil
	}
	if err := y.limiter.Wait(ctx); err != nil {
		return models.PriceSeries{}, unavailable(yahooSource, symbol, err)
	}

	to := y.now()
	from := to.AddDate(0, 0, -lookbackDays)
	bars, err := await(ctx, func() ([]Bar, error) { return y.history(symbol, from, to) })
	if err != nil {
		if ctx.Err() != nil || !looksNotFound(err) {
			return models.PriceSeries{}, unavailable(yahooSource, symbol, err)
		}
		return models.PriceSeries{}, notFound(yahooSource, symbol, err)
	}

	series, err := barsToSeries(symbol, bars)
	if err != nil {
		return models.PriceSeries{}, err
	}
	y.prices.Set(key, series)
	return series, nil
}

// Profile returns company metadata. Sector, industry and description are
// not exposed by the quote endpoint and stay empty.
func (y *Yahoo) Profile(ctx context.Context, symbol string) (*models.CompanyProfile, error) {
	symbol = NormalizeSymbol(symbol)
	if cached, ok := y.profiles.Get(symbol); ok {
		return cached, nil
	}
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, unavailable(yahooSource, symbol, err)
	}

	q, err := await(ctx, func() (*finance.Equity, error) { return y.equity(symbol) })
	if err != nil {
		if ctx.Err() != nil || !looksNotFound(err) {
			return nil, unavailable(yahooSource, symbol, err)
		}
		return nil, notFound(yahooSource, symbol, err)
	}
	if q == nil {
		return nil, notFound(yahooSource, symbol, nil)
	}

	p := equityToProfile(symbol, q)
	y.profiles.Set(symbol, p)
	return p, nil
}

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// barsToSeries drops bars without a close and rejects an empty result.
func barsToSeries(symbol string, bars []Bar) (models.PriceSeries, error) {
	points := make([]models.PricePoint, 0, len(bars))
	byDay := make(map[time.Time]int, len(bars))
	for _, b := range bars {
		if b.Close.IsZero() || b.Close.IsNegative() {
			continue
		}
		closeF, _ := b.Close.Round(4).Float64()
		p := models.PricePoint{Timestamp: b.Timestamp.UTC(), Close: closeF}
		day := p.Timestamp.Truncate(24 * time.Hour)
		// Intraday refreshes of the current session repeat the day; the
		// latest one carries the freshest close.
		if i, ok := byDay[day]; ok {
			if !p.Timestamp.Before(points[i].Timestamp) {
				points[i] = p
			}
			continue
		}
		byDay[day] = len(points)
		points = append(points, p)
	}
	if len(points) == 0 {
		return models.PriceSeries{}, notFound(yahooSource, symbol, errors.New("no price data"))
	}
	series, err := models.NewPriceSeries(symbol, points)
	if err != nil {
		return models.PriceSeries{}, unavailable(yahooSource, symbol, err)
	}
	return series, nil
}

func equityToProfile(symbol string, q *finance.Equity) *models.CompanyProfile {
	name := q.LongName
	if name == "" {
		name = q.ShortName
	}
	return &models.CompanyProfile{
		Symbol:           symbol,
		Name:             name,
		Exchange:         q.FullExchangeName,
		Currency:         q.CurrencyID,
		CurrentPrice:     q.RegularMarketPrice,
		MarketCap:        float64(q.MarketCap),
		TrailingPE:       q.TrailingPE,
		ForwardPE:        q.ForwardPE,
		PriceToBook:      q.PriceToBook,
		EPS:              q.EpsTrailingTwelveMonths,
		DividendYield:    q.TrailingAnnualDividendYield,
		FiftyTwoWeekHigh: q.FiftyTwoWeekHigh,
		FiftyTwoWeekLow:  q.FiftyTwoWeekLow,
	}
}

// chartHistory is the default HistoryFunc.
func chartHistory(symbol string, from, to time.Time) ([]Bar, error) {
	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&from),
		End:      datetime.New(&to),
		Interval: datetime.OneDay,
	}
	iter := chart.Get(params)

	var bars []Bar
	for iter.Next() {
		b := iter.Bar()
		bars = append(bars, Bar{
			Timestamp: time.Unix(int64(b.Timestamp), 0),
			Close:     b.Close,
		})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return bars, nil
}

func looksNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "no data found") ||
		strings.Contains(msg, "delisted")
}
