package models

// PointForecast is one future step of one forecast.
type PointForecast struct {
	Step  int     `json:"step"` // 1-based
	Value float64 `json:"value"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// ModelForecast is the output of one successfully fitted model.
type ModelForecast struct {
	Model  string          `json:"model"`
	Points []PointForecast `json:"points"`
}

// ModelFailure records a model excluded from an ensemble.
type ModelFailure struct {
	Model  string `json:"model"`
	Reason string `json:"reason"`
}

// ForecastBand is a prediction with bounds and the return it implies.
type ForecastBand struct {
	Step              int     `json:"step"`
	Value             float64 `json:"value"`
	Lower             float64 `json:"lower"`
	Upper             float64 `json:"upper"`
	ExpectedReturnPct float64 `json:"expected_return_pct"`
}

// EnsembleForecast combines every model that fit successfully.
// Models never lists a model that failed.
type EnsembleForecast struct {
	Horizon        int             `json:"horizon"`
	LastPrice      float64         `json:"last_price"`
	Steps          []PointForecast `json:"steps"`
	NextStep       ForecastBand    `json:"next_step"`
	FinalStep      ForecastBand    `json:"final_step"`
	Models         []string        `json:"models"`
	Members        []ModelForecast `json:"members,omitempty"`
	Failures       []ModelFailure  `json:"failures,omitempty"`
	Confidence     string          `json:"confidence"`
	NewsVolatility float64         `json:"news_volatility,omitempty"`
}

// Member returns the forecast of a named model.
func (e *EnsembleForecast) Member(name string) (ModelForecast, bool) {
	for _, m := range e.Members {
		if m.Model == name {
			return m, true
		}
	}
	return ModelForecast{}, false
}
