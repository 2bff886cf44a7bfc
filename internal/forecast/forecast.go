// Package forecast fits standard univariate time-series models to a price
// history and combines them into an ensemble forecast with bounds.
//
// Every model sits behind the Adapter interface. Adapters fail independently
// with typed errors; the Ensemble keeps whichever models succeed.
package forecast

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/seenimoa/stockpilot/pkg/models"
)

// Adapter is a uniform wrapper around one forecasting model.
type Adapter interface {
	// Name identifies the model in ensemble output, e.g. "ARIMA(5,1,0)".
	Name() string

	// MinObservations is the shortest series the model will fit.
	MinObservations() int

	// FitPredict fits the model to series (oldest first) and predicts
	// horizon steps ahead. Errors are *InsufficientDataError or *ModelFitError.
	FitPredict(series []float64, horizon int) ([]models.PointForecast, error)
}

// Sentinel errors matched with errors.Is.
var (
	ErrInsufficientData  = errors.New("forecast: insufficient data")
	ErrModelFit          = errors.New("forecast: model fit failed")
	ErrNoModelsSucceeded = errors.New("forecast: no models succeeded")
	ErrInvalidHorizon    = errors.New("forecast: horizon must be positive")

	errZeroVariance = errors.New("zero-variance series")
	errNonFinite    = errors.New("non-finite value in output")
)

// InsufficientDataError is returned when a series is shorter than a model's minimum.
type InsufficientDataError struct {
	Model string
	Have  int
	Need  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("forecast: %s needs at least %d observations, got %d", e.Model, e.Need, e.Have)
}

// Is makes errors.Is(err, ErrInsufficientData) true.
func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// ModelFitError wraps a numerical failure inside one model.
type ModelFitError struct {
	Model string
	Err   error
}

func (e *ModelFitError) Error() string {
	return fmt.Sprintf("forecast: %s fit failed: %v", e.Model, e.Err)
}

func (e *ModelFitError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrModelFit) true.
func (e *ModelFitError) Is(target error) bool { return target == ErrModelFit }

// EnsembleError is returned when no adapter produced a forecast.
type EnsembleError struct {
	Failures []models.ModelFailure
}

func (e *EnsembleError) Error() string {
	return fmt.Sprintf("forecast: no models succeeded (%d failed)", len(e.Failures))
}

// Is makes errors.Is(err, ErrNoModelsSucceeded) true.
func (e *EnsembleError) Is(target error) bool { return target == ErrNoModelsSucceeded }

// DefaultConfidenceLevel is the two-sided coverage used for model bounds.
const DefaultConfidenceLevel = 0.95

// zScore returns the two-sided normal quantile for a confidence level.
func zScore(level float64) float64 {
	if level <= 0 || level >= 1 {
		level = DefaultConfidenceLevel
	}
	return distuv.UnitNormal.Quantile(0.5 + level/2)
}

// checkInput validates common preconditions for an adapter.
func checkInput(a Adapter, series []float64, horizon int) error {
	if horizon <= 0 {
		return &ModelFitError{Model: a.Name(), Err: ErrInvalidHorizon}
	}
	if len(series) < a.MinObservations() {
		return &InsufficientDataError{Model: a.Name(), Have: len(series), Need: a.MinObservations()}
	}
	for _, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ModelFitError{Model: a.Name(), Err: fmt.Errorf("input: %w", errNonFinite)}
		}
	}
	return nil
}

// recoverFit converts a panic from numeric code into a ModelFitError.
func recoverFit(model string, err *error) {
	if r := recover(); r != nil {
		*err = &ModelFitError{Model: model, Err: fmt.Errorf("panic: %v", r)}
	}
}

// finalize checks the output for NaN/Inf and keeps Lower <= Value <= Upper.
func finalize(model string, pts []models.PointForecast) ([]models.PointForecast, error) {
	for i := range pts {
		p := &pts[i]
		for _, v := range []float64{p.Value, p.Lower, p.Upper} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &ModelFitError{Model: model, Err: fmt.Errorf("step %d: %w", p.Step, errNonFinite)}
			}
		}
		p.Lower = math.Min(p.Lower, p.Value)
		p.Upper = math.Max(p.Upper, p.Value)
	}
	return pts, nil
}
