// Package scheduler triggers the analysis batch on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/robfig/cron/v3"

	"github.com/seenimoa/stockpilot/internal/config"
	"github.com/seenimoa/stockpilot/internal/report"
	"github.com/seenimoa/stockpilot/pkg/models"
)

// ErrBusy is returned by RunNow while a batch is in progress.
var ErrBusy = errors.New("scheduler: a batch is already running")

// BatchRunner runs one batch. *pipeline.Pipeline satisfies it.
type BatchRunner interface {
	RunBatch(ctx context.Context, symbols []string) *models.BatchResult
}

// Options configure a Scheduler.
type Options struct {
	Spec     string // standard 5-field cron expression or @descriptor
	Timezone string // IANA name; empty means local time

	// ReportDir receives HTML reports after each batch; empty disables them.
	ReportDir    string
	ReportConfig report.ReportConfig

	// OnBatch is called after every batch, scheduled or manual.
	OnBatch func(*models.BatchResult)
}

// OptionsFromConfig derives scheduler options from the application config.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		Spec:         cfg.Schedule.Cron,
		Timezone:     cfg.Schedule.Timezone,
		ReportConfig: report.FromConfig(cfg.Report),
	}
	if cfg.Report.Enabled {
		opts.ReportDir = cfg.Report.OutputDir
	}
	return opts
}

// Scheduler runs the batch for a fixed symbol list. A trigger that fires
// while the previous batch is still running is skipped.
type Scheduler struct {
	cron    *cron.Cron
	runner  BatchRunner
	symbols []string
	opts    Options
	entry   cron.EntryID

	mu       sync.Mutex
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
	last     *models.BatchResult
	lastErr  error
	skipped  int
	finished int
}

// New validates the schedule and builds a stopped scheduler.
func New(runner BatchRunner, symbols []string, opts Options) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("scheduler: nil runner")
	}
	if len(symbols) == 0 {
		return nil, errors.New("scheduler: no symbols")
	}
	loc := time.Local
	if opts.Timezone != "" {
		l, err := time.LoadLocation(opts.Timezone)
		if err != nil {
			return nil, fmt.Errorf("scheduler: timezone %q: %w", opts.Timezone, err)
		}
		loc = l
	}

	s := &Scheduler{
		runner:  runner,
		symbols: symbols,
		opts:    opts,
	}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cronLogger{})),
	)
	id, err := s.cron.AddFunc(opts.Spec, s.trigger)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid cron expression %q: %w", opts.Spec, err)
	}
	s.entry = id
	return s, nil
}

// Start begins firing triggers. Batches run under ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	s.cron.Start()
	log.Info().Str("cron", s.opts.Spec).Strs("symbols", s.symbols).Str("next", s.Next().Format(time.RFC3339)).Msg("scheduler started")
}

// Stop stops new triggers, cancels a running batch and waits for it.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-done.Done()
	log.Info().Msg("scheduler stopped")
}

// Next returns the next trigger time, zero before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// RunNow runs a batch immediately on the caller's goroutine.
func (s *Scheduler) RunNow(ctx context.Context) (*models.BatchResult, error) {
	if !s.acquire() {
		return nil, ErrBusy
	}
	defer s.release()
	return s.execute(ctx)
}

// Stats reports how many batches finished and how many triggers were skipped.
func (s *Scheduler) Stats() (finished, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished, s.skipped
}

// Last returns the most recent batch and its report error, if any.
func (s *Scheduler) Last() (*models.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.lastErr
}

func (s *Scheduler) trigger() {
	if !s.acquire() {
		s.mu.Lock()
		s.skipped++
		s.mu.Unlock()
		log.Warn().Msg("previous batch still running, trigger skipped")
		return
	}
	defer s.release()

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := s.execute(ctx); err != nil {
		log.Error().Err(err).Msg("scheduled batch finished with errors")
	}
}

func (s *Scheduler) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Scheduler) release() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// execute runs the batch and writes reports. The error covers reports
// only; symbol failures live in the batch result.
func (s *Scheduler) execute(ctx context.Context) (*models.BatchResult, error) {
	start := time.Now()
	batch := s.runner.RunBatch(ctx, s.symbols)

	var err error
	if s.opts.ReportDir != "" {
		if _, werr := report.WriteAll(s.opts.ReportDir, batch, s.opts.ReportConfig); werr != nil {
			err = fmt.Errorf("writing reports: %w", werr)
		}
	}

	s.mu.Lock()
	s.last, s.lastErr = batch, err
	s.finished++
	s.mu.Unlock()

	if s.opts.OnBatch != nil {
		s.opts.OnBatch(batch)
	}
	log.Info().Str("batch", batch.ID).Int("failed", len(batch.Failed())).Dur("duration", time.Since(start)).Msg("batch done")
	return batch, err
}

// cronLogger routes cron's internal messages to the structured log.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug().Str("details", fmt.Sprint(keysAndValues...)).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error().Err(err).Str("details", fmt.Sprint(keysAndValues...)).Msg(msg)
}
