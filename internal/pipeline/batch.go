package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/stockpilot/pkg/models"
)

// RunBatch analyzes every symbol with at most Options.Concurrency symbols in
// flight. A failing or panicking symbol never affects the others; the
// result always has one status per distinct symbol.
func (p *Pipeline) RunBatch(ctx context.Context, symbols []string) *models.BatchResult {
	symbols = normalizeSymbols(symbols)
	batch := &models.BatchResult{
		ID:        uuid.NewString(),
		StartedAt: p.now().UTC(),
		Runs:      make(map[string]*models.AnalysisRun, len(symbols)),
		Status:    make(map[string]models.SymbolStatus, len(symbols)),
	}
	log.Info().Str("batch", batch.ID).Strs("symbols", symbols).Int("concurrency", p.opts.Concurrency).Msg("batch started")

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(p.opts.Concurrency)
	for _, symbol := range symbols {
		g.Go(func() error {
			run := p.run(ctx, batch.ID, symbol)
			mu.Lock()
			batch.Runs[run.Symbol] = run
			batch.Status[run.Symbol] = statusOf(run)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	batch.CompletedAt = p.now().UTC()

	failed := batch.Failed()
	log.Info().Str("batch", batch.ID).Int("complete", len(symbols)-len(failed)).Int("failed", len(failed)).
		Dur("duration", batch.CompletedAt.Sub(batch.StartedAt)).Msg("batch finished")
	return batch
}
