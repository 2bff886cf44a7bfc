package forecast

import (
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/seenimoa/stockpilot/pkg/models"
)

// Damping factor range for the fitted trend.
const (
	minDamping = 0.80
	maxDamping = 0.995
)

// Holt is additive-trend exponential smoothing with a damped trend, so the
// forecast flattens over the horizon instead of extrapolating without bound.
// Smoothing parameters are chosen by minimizing the one-step SSE.
type Holt struct {
	confidence float64
}

// NewHolt returns a damped Holt model.
func NewHolt(confidence float64) *Holt {
	return &Holt{confidence: confidence}
}

func (h *Holt) Name() string { return "Holt(damped additive trend)" }

func (h *Holt) MinObservations() int { return 10 }

// HoltParams are the fitted smoothing parameters in error-correction form.
type HoltParams struct {
	Alpha float64 // level
	Beta  float64 // trend, Beta <= Alpha
	Phi   float64 // damping
}

func (h *Holt) FitPredict(series []float64, horizon int) (out []models.PointForecast, err error) {
	defer recoverFit(h.Name(), &err)
	if err := checkInput(h, series, horizon); err != nil {
		return nil, err
	}
	if stat.Variance(series, nil) < 1e-12 {
		return nil, &ModelFitError{Model: h.Name(), Err: errZeroVariance}
	}

	params, err := h.Fit(series)
	if err != nil {
		return nil, err
	}

	level, trend, resid := holtFilter(series, params)
	sd := stat.PopStdDev(resid, nil)
	half := zScore(h.confidence) * sd

	out = make([]models.PointForecast, horizon)
	damp := 0.0
	pow := 1.0
	for step := 1; step <= horizon; step++ {
		pow *= params.Phi
		damp += pow
		v := level + damp*trend
		out[step-1] = models.PointForecast{Step: step, Value: v, Lower: v - half, Upper: v + half}
	}
	return finalize(h.Name(), out)
}

// Fit estimates the smoothing parameters with Nelder-Mead over an
// unconstrained logistic parameterization.
func (h *Holt) Fit(series []float64) (HoltParams, error) {
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			_, _, resid := holtFilter(series, decodeHolt(x))
			var sse float64
			for _, e := range resid {
				sse += e * e
			}
			return sse
		},
	}
	init := []float64{0.5, 0.0, 1.5}
	res, err := optimize.Minimize(problem, init, &optimize.Settings{MajorIterations: 600}, &optimize.NelderMead{})
	if res == nil || math.IsNaN(res.F) || math.IsInf(res.F, 0) {
		if err == nil {
			err = errNonFinite
		}
		return HoltParams{}, &ModelFitError{Model: h.Name(), Err: err}
	}
	// Iteration limits still leave a usable best point.
	return decodeHolt(res.X), nil
}

func decodeHolt(x []float64) HoltParams {
	alpha := clamp(logistic(x[0]), 1e-4, 0.9999)
	return HoltParams{
		Alpha: alpha,
		Beta:  alpha * clamp(logistic(x[1]), 1e-4, 0.9999),
		Phi:   minDamping + (maxDamping-minDamping)*logistic(x[2]),
	}
}

// holtFilter runs the recursions and returns the final level, trend and the
// one-step-ahead residuals.
func holtFilter(y []float64, p HoltParams) (level, trend float64, resid []float64) {
	level = y[0]
	trend = y[1] - y[0]
	resid = make([]float64, 0, len(y)-1)
	for t := 1; t < len(y); t++ {
		fc := level + p.Phi*trend
		e := y[t] - fc
		resid = append(resid, e)
		level = fc + p.Alpha*e
		trend = p.Phi*trend + p.Beta*e
	}
	return level, trend, resid
}

func logistic(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func clamp(v, lo, hi float64) float64 { return math.Max(lo, math.Min(hi, v)) }
