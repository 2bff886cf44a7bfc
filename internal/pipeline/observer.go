package pipeline

import (
	"time"

	"github.com/phuslu/log"

	"github.com/seenimoa/stockpilot/pkg/models"
)

// Event is one stage transition of one symbol's run.
type Event struct {
	RunID       string        `json:"run_id"`
	BatchID     string        `json:"batch_id,omitempty"`
	Symbol      string        `json:"symbol"`
	Stage       models.Stage  `json:"stage"`
	FailedStage models.Stage  `json:"failed_stage,omitempty"`
	Error       string        `json:"error,omitempty"`
	Action      models.Action `json:"action,omitempty"`
	At          time.Time     `json:"at"`
}

// Observer receives stage transitions. OnStage is called synchronously from
// the symbol's goroutine and must not block.
type Observer interface {
	OnStage(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnStage(e Event) { f(e) }

// Observers fans an event out to several observers.
type Observers []Observer

func (o Observers) OnStage(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.OnStage(e)
		}
	}
}

// LogObserver writes every transition to the structured log.
type LogObserver struct{}

func (LogObserver) OnStage(e Event) {
	switch e.Stage {
	case models.StageFailed:
		log.Error().Str("symbol", e.Symbol).Str("stage", string(e.FailedStage)).Str("run", e.RunID).
			Str("error", e.Error).Msg("run failed")
	case models.StageComplete:
		log.Info().Str("symbol", e.Symbol).Str("action", string(e.Action)).Str("run", e.RunID).Msg("run complete")
	default:
		log.Info().Str("symbol", e.Symbol).Str("stage", string(e.Stage)).Msg("stage")
	}
}
