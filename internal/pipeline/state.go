package pipeline

import (
	"fmt"

	"github.com/seenimoa/stockpilot/pkg/models"
)

// transitions lists the legal successors of each stage. FAILED is reachable
// from every non-terminal stage.
var transitions = map[models.Stage]models.Stage{
	"":                       models.StageFetching,
	models.StageFetching:     models.StageForecasting,
	models.StageForecasting:  models.StageAnalyzing,
	models.StageAnalyzing:    models.StageSynthesizing,
	models.StageSynthesizing: models.StageComplete,
}

// advance moves run to stage `to`, recording FailedStage when failing.
func advance(run *models.AnalysisRun, to models.Stage) error {
	from := run.Stage
	if from.Terminal() {
		return fmt.Errorf("pipeline: %s run is already %s", run.Symbol, from)
	}
	if to == models.StageFailed {
		run.FailedStage = from
		if from == "" {
			run.FailedStage = models.StageFetching
		}
		run.Stage = to
		return nil
	}
	if next, ok := transitions[from]; !ok || next != to {
		return fmt.Errorf("pipeline: illegal transition %q -> %q for %s", from, to, run.Symbol)
	}
	run.Stage = to
	return nil
}
