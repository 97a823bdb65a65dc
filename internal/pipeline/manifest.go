package pipeline

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/mobiodiv/internal/model"
)

// Manifest is the YAML summary written next to the processed artifacts.
type Manifest struct {
	RunID       string          `yaml:"run_id"`
	Place       string          `yaml:"place"`
	Slug        string          `yaml:"slug"`
	BufferKM    float64         `yaml:"buffer_km"`
	Status      model.RunStatus `yaml:"status"`
	Source      string          `yaml:"aoi_source,omitempty"`
	BBox        *model.BBox     `yaml:"bbox,omitempty"`
	RoadDensity float64         `yaml:"road_density_km_per_km2,omitempty"`
	StartedAt   time.Time       `yaml:"started_at"`
	FinishedAt  time.Time       `yaml:"finished_at"`
	Stages      []ManifestStage `yaml:"stages"`
}

// ManifestStage is one stage entry of a Manifest.
type ManifestStage struct {
	Stage      model.Stage       `yaml:"stage"`
	Status     model.StageStatus `yaml:"status"`
	Count      int               `yaml:"count"`
	Artifacts  []string          `yaml:"artifacts,omitempty"`
	Error      string            `yaml:"error,omitempty"`
	DurationMs int64             `yaml:"duration_ms"`
}

// NewManifest builds the manifest of a report.
func NewManifest(r *Report) Manifest {
	m := Manifest{
		RunID:       r.RunID,
		Place:       r.Place,
		Slug:        r.Slug,
		BufferKM:    r.BufferKM,
		Status:      r.Status,
		RoadDensity: r.RoadDensity,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Stages:      make([]ManifestStage, 0, len(r.Stages)),
	}
	if r.AOI != nil {
		b := r.AOI.BBox
		m.BBox = &b
		m.Source = r.AOI.Source
	}
	for _, s := range r.Stages {
		rec := s.Record()
		m.Stages = append(m.Stages, ManifestStage{
			Stage:      rec.Stage,
			Status:     rec.Status,
			Count:      rec.Count,
			Artifacts:  rec.Artifacts,
			Error:      rec.Error,
			DurationMs: rec.DurationMs,
		})
	}
	return m
}

// WriteManifest writes the manifest of r to path, replacing any earlier one.
func WriteManifest(path string, r *Report) error {
	data, err := yaml.Marshal(NewManifest(r))
	if err != nil {
		return eris.Wrap(err, "pipeline: marshal manifest")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "pipeline: write manifest %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "pipeline: rename manifest %s", path)
	}
	return nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read manifest %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "pipeline: parse manifest %s", path)
	}
	return &m, nil
}
