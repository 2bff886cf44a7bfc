// Package pipeline drives one analysis run per symbol through
// FETCHING → FORECASTING → ANALYZING → SYNTHESIZING → COMPLETE and runs
// batches of symbols with per-symbol failure isolation.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"github.com/seenimoa/stockpilot/internal/agent"
	"github.com/seenimoa/stockpilot/internal/analysis/sentiment"
	"github.com/seenimoa/stockpilot/internal/analysis/stats"
	"github.com/seenimoa/stockpilot/internal/config"
	"github.com/seenimoa/stockpilot/internal/datasource"
	"github.com/seenimoa/stockpilot/internal/forecast"
	"github.com/seenimoa/stockpilot/internal/llm"
	"github.com/seenimoa/stockpilot/pkg/models"
)

// ── Collaborators ──

// Fetcher gathers the inputs for one symbol.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string) (*datasource.Snapshot, error)
}

// Forecaster builds the ensemble forecast.
type Forecaster interface {
	Build(ctx context.Context, series models.PriceSeries, newsVolatility *float64, horizon int) (*models.EnsembleForecast, error)
}

// Analysts runs the analyst roles.
type Analysts interface {
	Run(ctx context.Context, in agent.Inputs) []models.AnalystOutput
}

// Synthesizer produces the recommendation.
type Synthesizer interface {
	Synthesize(ctx context.Context, symbol, company string, fc *models.EnsembleForecast, outputs []models.AnalystOutput) (*models.Recommendation, error)
}

// Saver persists terminal runs. store.Store satisfies it.
type Saver interface {
	Save(ctx context.Context, run *models.AnalysisRun) error
}

// Deps are the collaborators of a Pipeline. Store and Observer may be nil.
type Deps struct {
	Fetcher     Fetcher
	Forecaster  Forecaster
	Analysts    Analysts
	Synthesizer Synthesizer
	Store       Saver
	Observer    Observer
}

// Options tune a Pipeline.
type Options struct {
	Horizon       int
	Concurrency   int
	SymbolTimeout time.Duration

	// NewsVolatility widens forecast bounds by headline dispersion.
	NewsVolatility bool

	// CompanyName resolves display names configured for symbols.
	CompanyName func(symbol string) (string, bool)
}

// Pipeline runs symbols through the analysis stages.
type Pipeline struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// New creates a pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if opts.Horizon <= 0 {
		opts.Horizon = 10
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Pipeline{deps: deps, opts: opts, now: time.Now}
}

// NewFromConfig wires the production collaborators.
func NewFromConfig(cfg *config.Config, provider llm.LLMProvider, st Saver, obs Observer) *Pipeline {
	period := 0
	if cfg.Forecast.Decomposition.Enabled {
		period = cfg.Forecast.Decomposition.Period
	}
	ensemble := forecast.NewEnsemble(
		forecast.DefaultAdapters(cfg.Forecast.ConfidenceLevel, period),
		forecast.WithNewsVolatilityWeight(cfg.Forecast.NewsVolatilityWeight),
	)
	return New(Deps{
		Fetcher:     datasource.NewFetcherFromConfig(cfg),
		Forecaster:  ensemble,
		Analysts:    agent.NewPanelFromConfig(provider, cfg),
		Synthesizer: agent.NewSynthesizerFromConfig(provider, cfg),
		Store:       st,
		Observer:    obs,
	}, Options{
		Horizon:        cfg.Forecast.Horizon,
		Concurrency:    cfg.Pipeline.Concurrency,
		SymbolTimeout:  cfg.Pipeline.SymbolTimeout,
		NewsVolatility: cfg.Forecast.NewsVolatilityWeight > 0,
		CompanyName:    cfg.CompanyName,
	})
}

// ── Run ──

// Run analyzes one symbol. It always returns a run in a terminal stage;
// failures are recorded on the run, never returned.
func (p *Pipeline) Run(ctx context.Context, symbol string) *models.AnalysisRun {
	return p.run(ctx, "", symbol)
}

func (p *Pipeline) run(ctx context.Context, batchID, symbol string) (run *models.AnalysisRun) {
	run = &models.AnalysisRun{
		ID:        uuid.NewString(),
		BatchID:   batchID,
		Symbol:    datasource.NormalizeSymbol(symbol),
		StartedAt: p.now().UTC(),
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("symbol", run.Symbol).Str("panic", fmt.Sprint(r)).Msg("run panicked")
			p.fail(run, fmt.Errorf("panic: %v", r))
		}
		p.save(ctx, run)
	}()

	if p.opts.SymbolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.SymbolTimeout)
		defer cancel()
	}

	// 1. Fetch
	p.enter(run, models.StageFetching)
	snap, err := p.deps.Fetcher.Fetch(ctx, run.Symbol)
	if err != nil {
		p.fail(run, fmt.Errorf("fetch: %w", err))
		return run
	}
	run.Prices = snap.Prices
	run.News = snap.News
	run.Profile = snap.Profile
	run.CompanyName = p.companyName(run.Symbol, snap.Profile)

	// 2. Forecast
	p.enter(run, models.StageForecasting)
	if st, err := stats.Compute(run.Prices); err != nil {
		log.Warn().Str("symbol", run.Symbol).Err(err).Msg("statistics unavailable")
	} else {
		run.Statistics = st
	}
	var newsVol *float64
	if p.opts.NewsVolatility {
		if v, ok := sentiment.Volatility(run.News); ok {
			newsVol = &v
		}
	}
	fc, err := p.deps.Forecaster.Build(ctx, run.Prices, newsVol, p.opts.Horizon)
	if err != nil {
		p.fail(run, fmt.Errorf("forecast: %w", err))
		return run
	}
	run.Forecast = fc

	// 3. Analysts; individual failures are recorded, not fatal.
	p.enter(run, models.StageAnalyzing)
	run.Analysts = p.deps.Analysts.Run(ctx, agent.Inputs{
		Symbol:      run.Symbol,
		CompanyName: run.CompanyName,
		News:        run.News,
		Prices:      run.Prices,
		Statistics:  run.Statistics,
		Forecast:    run.Forecast,
		Profile:     run.Profile,
	})

	// 4. Synthesis
	p.enter(run, models.StageSynthesizing)
	rec, err := p.deps.Synthesizer.Synthesize(ctx, run.Symbol, run.CompanyName, run.Forecast, run.Analysts)
	if err != nil {
		p.fail(run, err)
		return run
	}
	run.Recommendation = rec

	p.enter(run, models.StageComplete)
	return run
}

func (p *Pipeline) companyName(symbol string, profile *models.CompanyProfile) string {
	if p.opts.CompanyName != nil {
		if name, ok := p.opts.CompanyName(symbol); ok {
			return name
		}
	}
	if profile != nil && profile.Name != "" {
		return profile.Name
	}
	return ""
}

func (p *Pipeline) enter(run *models.AnalysisRun, stage models.Stage) {
	if err := advance(run, stage); err != nil {
		panic(err)
	}
	if stage.Terminal() {
		run.CompletedAt = p.now().UTC()
	}
	p.emit(run)
}

func (p *Pipeline) fail(run *models.AnalysisRun, err error) {
	if run.Stage.Terminal() {
		return
	}
	_ = advance(run, models.StageFailed)
	run.Error = err.Error()
	run.CompletedAt = p.now().UTC()
	p.emit(run)
}

func (p *Pipeline) emit(run *models.AnalysisRun) {
	if p.deps.Observer == nil {
		return
	}
	e := Event{
		RunID:       run.ID,
		BatchID:     run.BatchID,
		Symbol:      run.Symbol,
		Stage:       run.Stage,
		FailedStage: run.FailedStage,
		Error:       run.Error,
		At:          p.now().UTC(),
	}
	if run.Recommendation != nil {
		e.Action = run.Recommendation.Action
	}
	p.deps.Observer.OnStage(e)
}

// save persists a terminal run. It outlives the symbol deadline.
func (p *Pipeline) save(ctx context.Context, run *models.AnalysisRun) {
	if p.deps.Store == nil || !run.Stage.Terminal() {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := p.deps.Store.Save(sctx, run); err != nil {
		log.Error().Str("symbol", run.Symbol).Err(err).Msg("failed to save run")
	}
}

// normalizeSymbols upper-cases, trims and de-duplicates, keeping order.
func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	var out []string
	for _, s := range symbols {
		s = datasource.NormalizeSymbol(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// statusOf summarizes a terminal run for the batch status map.
func statusOf(run *models.AnalysisRun) models.SymbolStatus {
	st := models.SymbolStatus{
		Symbol: run.Symbol,
		Stage:  run.Stage,
		Error:  run.Error,
		Took:   run.CompletedAt.Sub(run.StartedAt),
	}
	if run.Recommendation != nil {
		st.Action = run.Recommendation.Action
	}
	return st
}
