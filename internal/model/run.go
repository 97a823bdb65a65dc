package model

import "time"

// RunStatus represents the current state of an acquisition run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial"
	RunStatusFailed   RunStatus = "failed"
)

// Stage names one step of an acquisition run, in execution order.
type Stage string

const (
	StageResolveAOI       Stage = "resolve_aoi"
	StageFetchRaster      Stage = "fetch_raster"
	StageFetchRoads       Stage = "fetch_roads"
	StageFetchOccurrences Stage = "fetch_occurrences"
	StageDone             Stage = "done"
)

// Stages lists the working stages in the order they run.
var Stages = []Stage{StageResolveAOI, StageFetchRaster, StageFetchRoads, StageFetchOccurrences}

// Next returns the stage that follows s. Done is terminal.
func (s Stage) Next() Stage {
	switch s {
	case StageResolveAOI:
		return StageFetchRaster
	case StageFetchRaster:
		return StageFetchRoads
	case StageFetchRoads:
		return StageFetchOccurrences
	default:
		return StageDone
	}
}

// StageStatus is the outcome of a single stage.
type StageStatus string

const (
	StageStatusSucceeded StageStatus = "succeeded"
	StageStatusEmpty     StageStatus = "empty"
	StageStatusFailed    StageStatus = "failed"
)

// Run is one invocation of the acquisition pipeline for a place.
type Run struct {
	ID        string        `json:"id"`
	Place     string        `json:"place"`
	BufferKM  float64       `json:"buffer_km"`
	Status    RunStatus     `json:"status"`
	BBox      *BBox         `json:"bbox,omitempty"`
	Stages    []StageRecord `json:"stages,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// StageRecord is the persisted outcome of one stage of a run.
type StageRecord struct {
	ID         string      `json:"id"`
	RunID      string      `json:"run_id"`
	Stage      Stage       `json:"stage"`
	Status     StageStatus `json:"status"`
	Artifacts  []string    `json:"artifacts,omitempty"`
	Count      int         `json:"count"`
	Error      string      `json:"error,omitempty"`
	DurationMs int64       `json:"duration_ms"`
	CreatedAt  time.Time   `json:"created_at"`
}
