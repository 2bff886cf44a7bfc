// Package datasource fetches the raw inputs of an analysis run: daily closing
// prices and company metadata from Yahoo Finance and recent headlines from a
// news RSS search feed.
package datasource

import (
	"context"
	"errors"
	"fmt"

	"github.com/seenimoa/stockpilot/pkg/models"
)

// PriceSource returns the daily closing history of a symbol.
type PriceSource interface {
	History(ctx context.Context, symbol string, lookbackDays int) (models.PriceSeries, error)
}

// ProfileSource returns company metadata for a symbol.
type ProfileSource interface {
	Profile(ctx context.Context, symbol string) (*models.CompanyProfile, error)
}

// NewsSource returns recent headlines for a symbol. query is the search text
// (usually the company name); an empty query falls back to the symbol.
type NewsSource interface {
	Latest(ctx context.Context, symbol, query string, limit int) ([]models.NewsItem, error)
}

// --- Errors ---

// ErrorKind classifies a fetch failure.
type ErrorKind string

const (
	KindSymbolNotFound  ErrorKind = "symbol_not_found"
	KindFeedUnavailable ErrorKind = "feed_unavailable"
)

var (
	// ErrSymbolNotFound is returned when a source has no data for a symbol.
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrFeedUnavailable is returned when a source cannot be reached or
	// returns something unusable.
	ErrFeedUnavailable = errors.New("feed unavailable")
)

// FetchError is the error returned by every source in this package.
type FetchError struct {
	Symbol string
	Source string
	Kind   ErrorKind
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Source, e.Symbol, e.Kind)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Source, e.Symbol, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrSymbolNotFound:
		return e.Kind == KindSymbolNotFound
	case ErrFeedUnavailable:
		return e.Kind == KindFeedUnavailable
	}
	return false
}

func notFound(source, symbol string, err error) *FetchError {
	return &FetchError{Symbol: symbol, Source: source, Kind: KindSymbolNotFound, Err: err}
}

func unavailable(source, symbol string, err error) *FetchError {
	return &FetchError{Symbol: symbol, Source: source, Kind: KindFeedUnavailable, Err: err}
}

// DefaultUserAgent is sent with feed requests.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// await runs fn on its own goroutine and returns early if ctx is done first.
// For client libraries that take no context.
func await[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}
