package forecast

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/stockpilot/pkg/models"
)

// DefaultNewsVolatilityWeight scales news-derived volatility into bound widening.
const DefaultNewsVolatilityWeight = 0.5

// Ensemble runs a set of adapters and combines whichever succeed.
type Ensemble struct {
	adapters   []Adapter
	newsWeight float64
}

// EnsembleOption configures an Ensemble.
type EnsembleOption func(*Ensemble)

// WithNewsVolatilityWeight sets how strongly news volatility widens bounds.
func WithNewsVolatilityWeight(w float64) EnsembleOption {
	return func(e *Ensemble) {
		if w >= 0 {
			e.newsWeight = w
		}
	}
}

// NewEnsemble creates an ensemble over the given adapters.
func NewEnsemble(adapters []Adapter, opts ...EnsembleOption) *Ensemble {
	e := &Ensemble{adapters: adapters, newsWeight: DefaultNewsVolatilityWeight}
	for _, o := range opts {
		o(e)
	}
	return e
}

// DefaultAdapters returns ARIMA and Holt, plus the decomposition model when
// period > 0.
func DefaultAdapters(confidence float64, period int) []Adapter {
	out := []Adapter{NewARIMA(confidence), NewHolt(confidence)}
	if period > 0 {
		out = append(out, NewDecomposition(period, confidence))
	}
	return out
}

// Build fits every adapter concurrently on the closing prices and combines
// the successful forecasts. newsVolatility is optional.
func (e *Ensemble) Build(ctx context.Context, series models.PriceSeries, newsVolatility *float64, horizon int) (*models.EnsembleForecast, error) {
	if horizon <= 0 {
		return nil, ErrInvalidHorizon
	}
	closes := series.Closes()

	results := make([]*models.ModelForecast, len(e.adapters))
	failures := make([]*models.ModelFailure, len(e.adapters))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range e.adapters {
		i, a := i, a
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			pts, err := a.FitPredict(closes, horizon)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn().Str("symbol", series.Symbol).Str("model", a.Name()).Err(err).Msg("forecast model excluded")
				failures[i] = &models.ModelFailure{Model: a.Name(), Reason: err.Error()}
				return nil
			}
			log.Debug().Str("symbol", series.Symbol).Str("model", a.Name()).Dur("took", time.Since(start)).Msg("forecast model fitted")
			results[i] = &models.ModelForecast{Model: a.Name(), Points: pts}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var members []models.ModelForecast
	var failed []models.ModelFailure
	for i := range e.adapters {
		if results[i] != nil {
			members = append(members, *results[i])
		}
		if failures[i] != nil {
			failed = append(failed, *failures[i])
		}
	}
	if len(members) == 0 {
		return nil, &EnsembleError{Failures: failed}
	}

	steps := Combine(members)
	vol := 0.0
	if newsVolatility != nil && *newsVolatility > 0 {
		vol = *newsVolatility
		WidenBounds(steps, vol*e.newsWeight)
	}

	last := 0.0
	if p, ok := series.Last(); ok {
		last = p.Close
	}

	fc := &models.EnsembleForecast{
		Horizon:        horizon,
		LastPrice:      last,
		Steps:          steps,
		NextStep:       band(steps[0], last),
		FinalStep:      band(steps[len(steps)-1], last),
		Members:        members,
		Failures:       failed,
		Confidence:     models.ConfidenceLow,
		NewsVolatility: vol,
	}
	for _, m := range members {
		fc.Models = append(fc.Models, m.Model)
	}
	if len(members) >= 2 {
		fc.Confidence = models.ConfidenceMedium
	}
	return fc, nil
}

// Combine merges successful model forecasts: the value at each step is the
// arithmetic mean, the bounds are the lowest lower and highest upper. Steps
// beyond the shortest member are dropped. Combine returns nil for no members.
func Combine(members []models.ModelForecast) []models.PointForecast {
	if len(members) == 0 {
		return nil
	}
	n := len(members[0].Points)
	for _, m := range members[1:] {
		if len(m.Points) < n {
			n = len(m.Points)
		}
	}

	out := make([]models.PointForecast, n)
	for s := 0; s < n; s++ {
		sum := 0.0
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, m := range members {
			p := m.Points[s]
			sum += p.Value
			lo = math.Min(lo, math.Min(p.Lower, p.Value))
			hi = math.Max(hi, math.Max(p.Upper, p.Value))
		}
		out[s] = models.PointForecast{Step: s + 1, Value: sum / float64(len(members)), Lower: lo, Upper: hi}
	}
	return out
}

// WidenBounds pushes each bound outward by factor·|value|.
func WidenBounds(steps []models.PointForecast, factor float64) {
	if factor <= 0 {
		return
	}
	for i := range steps {
		w := factor * math.Abs(steps[i].Value)
		steps[i].Lower -= w
		steps[i].Upper += w
	}
}

func band(p models.PointForecast, last float64) models.ForecastBand {
	b := models.ForecastBand{Step: p.Step, Value: p.Value, Lower: p.Lower, Upper: p.Upper}
	if last != 0 {
		b.ExpectedReturnPct = (p.Value - last) / last * 100
	}
	return b
}
