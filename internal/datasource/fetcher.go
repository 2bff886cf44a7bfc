package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/stockpilot/internal/config"
	"github.com/seenimoa/stockpilot/pkg/models"
)

// Snapshot is everything fetched for one symbol. News and Profile may be
// empty when their sources failed; Warnings records why.
type Snapshot struct {
	Symbol    string
	Prices    models.PriceSeries
	News      []models.NewsItem
	Profile   *models.CompanyProfile
	Warnings  []error
	FetchedAt time.Time
}

// FetcherConfig bounds one Fetch call.
type FetcherConfig struct {
	LookbackDays int
	MaxNews      int
	Timeout      time.Duration // per external call

	// CompanyName maps a symbol to the news search query.
	CompanyName func(symbol string) string
}

// Fetcher gathers prices, news and profile for a symbol concurrently.
// Prices are required; news and profile failures are logged and absorbed.
type Fetcher struct {
	prices   PriceSource
	profiles ProfileSource
	news     NewsSource
	cfg      FetcherConfig
}

// NewFetcher creates a fetcher. profiles and news may be nil to disable them.
func NewFetcher(prices PriceSource, profiles ProfileSource, news NewsSource, cfg FetcherConfig) *Fetcher {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 365
	}
	if cfg.MaxNews <= 0 {
		cfg.MaxNews = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Fetcher{prices: prices, profiles: profiles, news: news, cfg: cfg}
}

// NewFetcherFromConfig wires the Yahoo and news sources from configuration.
func NewFetcherFromConfig(cfg *config.Config) *Fetcher {
	yahoo := NewYahoo(
		WithYahooCacheTTL(cfg.Data.CacheTTL),
		WithYahooRateLimit(cfg.Data.RequestsPerMinute),
	)

	var news NewsSource
	if cfg.News.Enabled {
		news = NewNews(
			WithFeedURL(cfg.News.FeedURL),
			WithUserAgent(cfg.News.UserAgent),
			WithLookback(time.Duration(cfg.News.LookbackDays)*24*time.Hour),
			WithNewsTimeout(cfg.Data.FetchTimeout),
			WithNewsCacheTTL(cfg.Data.CacheTTL),
		)
	}

	return NewFetcher(yahoo, yahoo, news, FetcherConfig{
		LookbackDays: cfg.Data.LookbackDays,
		MaxNews:      cfg.News.MaxArticles,
		Timeout:      cfg.Data.FetchTimeout,
		CompanyName: func(symbol string) string {
			name, _ := cfg.CompanyName(symbol)
			return name
		},
	})
}

// Fetch returns a snapshot or the price error. The returned error is a
// *FetchError unless ctx itself was cancelled.
func (f *Fetcher) Fetch(ctx context.Context, symbol string) (*Snapshot, error) {
	symbol = NormalizeSymbol(symbol)
	snap := &Snapshot{Symbol: symbol, FetchedAt: time.Now().UTC()}

	var mu sync.Mutex
	warn := func(what string, err error) {
		log.Warn().Str("symbol", symbol).Str("source", what).Err(err).Msg("optional data unavailable")
		mu.Lock()
		snap.Warnings = append(snap.Warnings, fmt.Errorf("%s: %w", what, err))
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)

	// 1. Prices: the only required input.
	g.Go(func() error {
		cctx, cancel := context.WithTimeout(gctx, f.cfg.Timeout)
		defer cancel()
		series, err := f.prices.History(cctx, symbol, f.cfg.LookbackDays)
		if err != nil {
			return err
		}
		snap.Prices = series
		return nil
	})

	// 2. News (non-fatal).
	if f.news != nil {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, f.cfg.Timeout)
			defer cancel()
			query := ""
			if f.cfg.CompanyName != nil {
				query = f.cfg.CompanyName(symbol)
			}
			items, err := f.news.Latest(cctx, symbol, query, f.cfg.MaxNews)
			if err != nil {
				warn("news", err)
				return nil
			}
			mu.Lock()
			snap.News = items
			mu.Unlock()
			return nil
		})
	}

	// 3. Profile (non-fatal).
	if f.profiles != nil {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, f.cfg.Timeout)
			defer cancel()
			p, err := f.profiles.Profile(cctx, symbol)
			if err != nil {
				warn("profile", err)
				return nil
			}
			mu.Lock()
			snap.Profile = p
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	log.Debug().Str("symbol", symbol).Int("prices", snap.Prices.Len()).Int("news", len(snap.News)).
		Bool("profile", snap.Profile != nil).Msg("fetch complete")
	return snap, nil
}
