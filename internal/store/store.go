// Package store persists completed analysis runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seenimoa/stockpilot/internal/config"
	"github.com/seenimoa/stockpilot/pkg/models"
)

// ErrNotFound is returned by Latest when no run exists for the symbol.
var ErrNotFound = errors.New("store: run not found")

// Store keeps analysis runs keyed by symbol and start time.
type Store interface {
	// Save writes a terminal run. Saving a run with the same ID again
	// replaces it.
	Save(ctx context.Context, run *models.AnalysisRun) error

	// Latest returns the most recent run for symbol.
	Latest(ctx context.Context, symbol string) (*models.AnalysisRun, error)

	// List returns up to limit runs, newest first. An empty symbol lists
	// every symbol; limit <= 0 means no limit.
	List(ctx context.Context, symbol string, limit int) ([]*models.AnalysisRun, error)

	Close() error
}

// Backend names accepted by New.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendNone   = "none"
)

// New opens the backend selected by cfg.
func New(cfg config.StoreConfig) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendJSON, "":
		return NewJSONStore(cfg.Dir)
	case BackendSQLite:
		return OpenSQLite(cfg.SQLitePath)
	case BackendNone:
		return NoopStore{}, nil
	}
	return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
}

// runTime is the timestamp a run is keyed by.
func runTime(run *models.AnalysisRun) time.Time {
	if !run.StartedAt.IsZero() {
		return run.StartedAt.UTC()
	}
	return run.CompletedAt.UTC()
}

func validate(run *models.AnalysisRun) error {
	if run == nil {
		return errors.New("store: nil run")
	}
	if run.Symbol == "" {
		return errors.New("store: run has no symbol")
	}
	if !run.Stage.Terminal() {
		return fmt.Errorf("store: run %s is still %s", run.Symbol, run.Stage)
	}
	return nil
}

// NoopStore discards every run.
type NoopStore struct{}

func (NoopStore) Save(context.Context, *models.AnalysisRun) error { return nil }

func (NoopStore) Latest(context.Context, string) (*models.AnalysisRun, error) {
	return nil, ErrNotFound
}

func (NoopStore) List(context.Context, string, int) ([]*models.AnalysisRun, error) {
	return nil, nil
}

func (NoopStore) Close() error { return nil }
