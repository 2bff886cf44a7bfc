package forecast

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/seenimoa/stockpilot/pkg/models"
)

// DefaultSeasonalPeriod is one trading week of daily closes.
const DefaultSeasonalPeriod = 5

// Decomposition is an additive trend + seasonality model: a linear trend,
// per-position seasonal indices over a fixed period, and a remainder whose
// spread sets the bounds.
type Decomposition struct {
	period     int
	confidence float64
}

// NewDecomposition returns an additive decomposition model.
func NewDecomposition(period int, confidence float64) *Decomposition {
	if period < 2 {
		period = DefaultSeasonalPeriod
	}
	return &Decomposition{period: period, confidence: confidence}
}

func (d *Decomposition) Name() string { return fmt.Sprintf("Decomposition(additive, period=%d)", d.period) }

// MinObservations requires two full seasonal cycles.
func (d *Decomposition) MinObservations() int { return 2 * d.period }

func (d *Decomposition) FitPredict(series []float64, horizon int) (out []models.PointForecast, err error) {
	defer recoverFit(d.Name(), &err)
	if err := checkInput(d, series, horizon); err != nil {
		return nil, err
	}

	n := len(series)
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	intercept, slope := stat.LinearRegression(xs, series, nil, false)

	detrended := make([]float64, n)
	for i, y := range series {
		detrended[i] = y - (intercept + slope*xs[i])
	}

	seasonal := make([]float64, d.period)
	counts := make([]float64, d.period)
	for i, v := range detrended {
		seasonal[i%d.period] += v
		counts[i%d.period]++
	}
	for k := range seasonal {
		seasonal[k] /= counts[k]
	}
	center := stat.Mean(seasonal, nil)
	for k := range seasonal {
		seasonal[k] -= center
	}

	remainder := make([]float64, n)
	for i, v := range detrended {
		remainder[i] = v - seasonal[i%d.period]
	}
	half := zScore(d.confidence) * stat.PopStdDev(remainder, nil)

	out = make([]models.PointForecast, horizon)
	for h := 1; h <= horizon; h++ {
		t := n - 1 + h
		v := intercept + slope*float64(t) + seasonal[t%d.period]
		out[h-1] = models.PointForecast{Step: h, Value: v, Lower: v - half, Upper: v + half}
	}
	return finalize(d.Name(), out)
}
