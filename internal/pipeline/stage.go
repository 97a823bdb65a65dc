package pipeline

import (
	"time"

	"github.com/sells-group/mobiodiv/internal/model"
)

// StageResult is the outcome of one stage of a run.
type StageResult struct {
	Stage     model.Stage
	Status    model.StageStatus
	Artifacts []string
	Count     int
	Err       error
	Duration  time.Duration
}

func succeeded(stage model.Stage, count int, artifacts ...string) StageResult {
	return StageResult{Stage: stage, Status: model.StageStatusSucceeded, Count: count, Artifacts: artifacts}
}

func empty(stage model.Stage) StageResult {
	return StageResult{Stage: stage, Status: model.StageStatusEmpty}
}

func failed(stage model.Stage, err error, artifacts ...string) StageResult {
	return StageResult{Stage: stage, Status: model.StageStatusFailed, Err: err, Artifacts: artifacts}
}

// Record converts r into its ledger form.
func (r StageResult) Record() model.StageRecord {
	rec := model.StageRecord{
		Stage:      r.Stage,
		Status:     r.Status,
		Artifacts:  r.Artifacts,
		Count:      r.Count,
		DurationMs: r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

// runStatus derives the run status from the stages that ran. A failed
// area of interest fails the run; any other failure makes it partial.
func runStatus(stages []StageResult) model.RunStatus {
	status := model.RunStatusComplete
	for _, s := range stages {
		if s.Status != model.StageStatusFailed {
			continue
		}
		if s.Stage == model.StageResolveAOI {
			return model.RunStatusFailed
		}
		status = model.RunStatusPartial
	}
	return status
}
