package forecast

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/seenimoa/stockpilot/pkg/models"
)

// ARIMA is an ARIMA(p,1,0) model without a constant. The AR coefficients are
// the minimum-norm least-squares solution on the differenced series, so a
// rank-deficient design (e.g. a perfectly linear trend) still fits.
type ARIMA struct {
	p          int
	confidence float64
}

// NewARIMA returns the fixed ARIMA(5,1,0) configuration.
func NewARIMA(confidence float64) *ARIMA {
	return &ARIMA{p: 5, confidence: confidence}
}

func (a *ARIMA) Name() string { return fmt.Sprintf("ARIMA(%d,1,0)", a.p) }

// MinObservations leaves at least p+10 regression rows after differencing.
func (a *ARIMA) MinObservations() int { return 2*a.p + 11 }

func (a *ARIMA) FitPredict(series []float64, horizon int) (out []models.PointForecast, err error) {
	defer recoverFit(a.Name(), &err)
	if err := checkInput(a, series, horizon); err != nil {
		return nil, err
	}

	d := difference(series)
	phi, sigma2, err := a.fitAR(d)
	if err != nil {
		return nil, &ModelFitError{Model: a.Name(), Err: err}
	}

	// Forecast the differences recursively, then integrate.
	hist := append([]float64(nil), d...)
	level := series[len(series)-1]
	psi := integratedPsi(phi, horizon)
	z := zScore(a.confidence)

	out = make([]models.PointForecast, horizon)
	var cumPsi2 float64
	for h := 1; h <= horizon; h++ {
		next := 0.0
		for i := 1; i <= a.p; i++ {
			next += phi[i-1] * hist[len(hist)-i]
		}
		hist = append(hist, next)
		level += next

		cumPsi2 += psi[h-1] * psi[h-1]
		half := z * math.Sqrt(sigma2*cumPsi2)
		out[h-1] = models.PointForecast{Step: h, Value: level, Lower: level - half, Upper: level + half}
	}
	return finalize(a.Name(), out)
}

// fitAR regresses d[t] on d[t-1..t-p] and returns the coefficients and the
// residual variance.
func (a *ARIMA) fitAR(d []float64) ([]float64, float64, error) {
	rows := len(d) - a.p
	if rows <= a.p {
		return nil, 0, errors.New("too few rows for AR regression")
	}

	x := mat.NewDense(rows, a.p, nil)
	y := mat.NewVecDense(rows, nil)
	for t := a.p; t < len(d); t++ {
		for i := 1; i <= a.p; i++ {
			x.Set(t-a.p, i-1, d[t-i])
		}
		y.SetVec(t-a.p, d[t])
	}

	phi := make([]float64, a.p)
	rank := 0
	// An all-zero design is a flat series: random walk with no drift.
	if floats.Norm(d, 2) > 1e-12 {
		var svd mat.SVD
		if !svd.Factorize(x, mat.SVDThin) {
			return nil, 0, errors.New("svd did not converge")
		}
		rank = svd.Rank(1e-10)
		if rank > 0 {
			var coef mat.VecDense
			svd.SolveVecTo(&coef, y, rank)
			for i := range phi {
				phi[i] = coef.AtVec(i)
			}
		}
	}

	var sse float64
	for t := a.p; t < len(d); t++ {
		fitted := 0.0
		for i := 1; i <= a.p; i++ {
			fitted += phi[i-1] * d[t-i]
		}
		e := d[t] - fitted
		sse += e * e
	}
	dof := rows - rank
	if dof <= 0 {
		dof = rows
	}
	return phi, sse / float64(dof), nil
}

// integratedPsi returns the first n psi-weights of (1-B)·phi(B)·y = e.
func integratedPsi(phi []float64, n int) []float64 {
	p := len(phi)
	coef := make([]float64, p+1) // level-form AR coefficients
	coef[0] = 1 + phi[0]
	for j := 1; j < p; j++ {
		coef[j] = phi[j] - phi[j-1]
	}
	coef[p] = -phi[p-1]

	psi := make([]float64, n)
	psi[0] = 1
	for j := 1; j < n; j++ {
		for i := 1; i <= j && i <= len(coef); i++ {
			psi[j] += coef[i-1] * psi[j-i]
		}
	}
	return psi
}

func difference(series []float64) []float64 {
	d := make([]float64, len(series)-1)
	for i := 1; i < len(series); i++ {
		d[i-1] = series[i] - series[i-1]
	}
	return d
}
