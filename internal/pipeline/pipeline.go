// Package pipeline sequences one acquisition run: resolve the area of
// interest, then fetch the land-cover clip, the road network and the
// occurrence records, persisting each artifact as soon as it exists.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mobiodiv/internal/aoi"
	"github.com/sells-group/mobiodiv/internal/config"
	"github.com/sells-group/mobiodiv/internal/model"
	"github.com/sells-group/mobiodiv/internal/occurrence"
	"github.com/sells-group/mobiodiv/internal/osm"
	"github.com/sells-group/mobiodiv/internal/store"
)

// AreaResolver builds the area of interest.
type AreaResolver interface {
	Resolve(ctx context.Context, place string, bufferKM float64) (*model.AreaOfInterest, error)
	ResolveFile(ctx context.Context, path, name string, bufferKM float64) (*model.AreaOfInterest, error)
}

// TileCatalog discovers raster tiles intersecting a bbox. It never fails.
type TileCatalog interface {
	Discover(ctx context.Context, bbox model.BBox) []model.TileReference
}

// RasterFetcher clips tiles to a bbox and returns the written paths.
type RasterFetcher interface {
	Fetch(ctx context.Context, tiles []model.TileReference, bbox model.BBox, outDir string) ([]string, error)
}

// RoadFetcher downloads the drivable road network of an area.
type RoadFetcher interface {
	Fetch(ctx context.Context, area *model.AreaOfInterest) ([]model.RoadEdge, error)
}

// OccurrenceFetcher downloads occurrence records inside an area.
type OccurrenceFetcher interface {
	Fetch(ctx context.Context, area *model.AreaOfInterest, taxon string, limit int) ([]model.OccurrenceRecord, error)
}

// Options controls where artifacts go and what is fetched.
type Options struct {
	RawDir          string
	InterimDir      string
	ProcessedDir    string
	BoundaryFile    string
	Taxon           string
	OccurrenceLimit int
	ExportShapefile bool
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		RawDir:          cfg.Data.Raw(),
		InterimDir:      cfg.Data.Interim(),
		ProcessedDir:    cfg.Data.Processed(),
		BoundaryFile:    cfg.AOI.BoundaryFile,
		Taxon:           cfg.Occurrence.Taxon,
		OccurrenceLimit: cfg.Occurrence.Limit,
		ExportShapefile: cfg.Roads.ExportShapefile,
	}
}

// Deps are the collaborators of an Orchestrator. A nil Store records nothing.
type Deps struct {
	Resolver    AreaResolver
	Catalog     TileCatalog
	Raster      RasterFetcher
	Roads       RoadFetcher
	Occurrences OccurrenceFetcher
	Store       store.Store
}

// Report summarises one run.
type Report struct {
	RunID       string
	Place       string
	Slug        string
	BufferKM    float64
	Status      model.RunStatus
	AOI         *model.AreaOfInterest
	RoadDensity float64
	Stages      []StageResult
	Manifest    string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Orchestrator runs the acquisition stages in order.
type Orchestrator struct {
	deps Deps
	opts Options
}

// New creates an Orchestrator.
func New(opts Options, deps Deps) *Orchestrator {
	if deps.Store == nil {
		deps.Store = store.NewNop()
	}
	return &Orchestrator{deps: deps, opts: opts}
}

// File names inside the data directories.
const (
	AOIFile      = "aoi.gpkg"
	ManifestFile = "acquisition_manifest.yaml"
)

func (o *Orchestrator) roadsPath(slug string) string {
	return filepath.Join(o.opts.RawDir, "osm_roads_"+slug+".gpkg")
}

func (o *Orchestrator) roadsShapefilePath(slug string) string {
	return filepath.Join(o.opts.InterimDir, "osm_roads_"+slug+".shp")
}

func (o *Orchestrator) occurrencesPath(slug string) string {
	return filepath.Join(o.opts.RawDir, "gbif_occ_"+slug+".parquet")
}

// Run executes one acquisition for place. Only a failure to resolve and
// persist the area of interest returns an error; every later stage failure
// is recorded in the report and the run advances.
func (o *Orchestrator) Run(ctx context.Context, place string, bufferKM float64) (*Report, error) {
	log := zap.L().With(zap.String("place", place), zap.Float64("buffer_km", bufferKM))
	log.Info("pipeline: starting acquisition")

	for _, dir := range []string{o.opts.RawDir, o.opts.InterimDir, o.opts.ProcessedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "pipeline: create %s", dir)
		}
	}

	report := &Report{
		Place:     place,
		Slug:      Slug(place),
		BufferKM:  bufferKM,
		StartedAt: time.Now().UTC(),
	}

	// The ledger outlives cancellation so an interrupted run is still closed.
	lctx := context.WithoutCancel(ctx)
	ledger := o.deps.Store
	run, err := ledger.CreateRun(lctx, place, bufferKM)
	if err != nil {
		log.Warn("pipeline: ledger unavailable, run is not recorded", zap.Error(err))
		ledger = store.NewNop()
		run, _ = ledger.CreateRun(lctx, place, bufferKM)
	}
	report.RunID = run.ID
	log = log.With(zap.String("run_id", run.ID))

	track := func(stage model.Stage, fn func() StageResult) StageResult {
		start := time.Now()
		res := fn()
		res.Stage = stage
		res.Duration = time.Since(start)

		switch res.Status {
		case model.StageStatusSucceeded:
			log.Info("pipeline: stage succeeded",
				zap.String("stage", string(stage)),
				zap.Int("count", res.Count),
				zap.Strings("artifacts", res.Artifacts),
				zap.Duration("duration", res.Duration),
			)
		case model.StageStatusEmpty:
			log.Info("pipeline: stage produced no data",
				zap.String("stage", string(stage)),
				zap.Duration("duration", res.Duration),
			)
		case model.StageStatusFailed:
			log.Error("pipeline: stage failed",
				zap.String("stage", string(stage)),
				zap.Duration("duration", res.Duration),
				zap.Error(res.Err),
			)
		}

		if _, err := ledger.RecordStage(lctx, run.ID, res.Record()); err != nil {
			log.Warn("pipeline: failed to record stage", zap.String("stage", string(stage)), zap.Error(err))
		}
		report.Stages = append(report.Stages, res)
		return res
	}

	var area *model.AreaOfInterest
	res := track(model.StageResolveAOI, func() StageResult {
		var err error
		area, err = o.resolve(ctx, place, bufferKM)
		if err != nil {
			return failed(model.StageResolveAOI, err)
		}
		path := filepath.Join(o.opts.ProcessedDir, AOIFile)
		if err := aoi.WriteGeoPackage(ctx, path, area); err != nil {
			return failed(model.StageResolveAOI, err)
		}
		return succeeded(model.StageResolveAOI, 1, path)
	})
	if res.Status == model.StageStatusFailed {
		o.finish(lctx, ledger, report)
		return report, res.Err
	}
	report.AOI = area

	track(model.StageFetchRaster, func() StageResult {
		return o.fetchRaster(ctx, area)
	})
	track(model.StageFetchRoads, func() StageResult {
		res, density := o.fetchRoads(ctx, area, report.Slug)
		report.RoadDensity = density
		return res
	})
	track(model.StageFetchOccurrences, func() StageResult {
		return o.fetchOccurrences(ctx, area, report.Slug)
	})

	o.finish(lctx, ledger, report)
	log.Info("pipeline: acquisition done", zap.String("status", string(report.Status)))
	return report, nil
}

func (o *Orchestrator) resolve(ctx context.Context, place string, bufferKM float64) (*model.AreaOfInterest, error) {
	if o.opts.BoundaryFile != "" {
		return o.deps.Resolver.ResolveFile(ctx, o.opts.BoundaryFile, place, bufferKM)
	}
	return o.deps.Resolver.Resolve(ctx, place, bufferKM)
}

func (o *Orchestrator) fetchRaster(ctx context.Context, area *model.AreaOfInterest) StageResult {
	tiles := o.deps.Catalog.Discover(ctx, area.BBox)
	paths, err := o.deps.Raster.Fetch(ctx, tiles, area.BBox, o.opts.RawDir)
	if err != nil {
		return failed(model.StageFetchRaster, err, paths...)
	}
	if len(paths) == 0 {
		return empty(model.StageFetchRaster)
	}
	return succeeded(model.StageFetchRaster, len(paths), paths...)
}

func (o *Orchestrator) fetchRoads(ctx context.Context, area *model.AreaOfInterest, slug string) (StageResult, float64) {
	edges, err := o.deps.Roads.Fetch(ctx, area)
	if err != nil {
		return failed(model.StageFetchRoads, err), 0
	}
	if len(edges) == 0 {
		return empty(model.StageFetchRoads), 0
	}

	path := o.roadsPath(slug)
	if err := osm.WriteGeoPackage(ctx, path, edges); err != nil {
		return failed(model.StageFetchRoads, err), 0
	}
	artifacts := []string{path}

	if o.opts.ExportShapefile {
		shpPath := o.roadsShapefilePath(slug)
		if err := osm.WriteShapefile(shpPath, edges); err != nil {
			return failed(model.StageFetchRoads, err, artifacts...), 0
		}
		artifacts = append(artifacts, shpPath)
	}
	return succeeded(model.StageFetchRoads, len(edges), artifacts...), osm.Density(edges, area)
}

func (o *Orchestrator) fetchOccurrences(ctx context.Context, area *model.AreaOfInterest, slug string) StageResult {
	records, err := o.deps.Occurrences.Fetch(ctx, area, o.opts.Taxon, o.opts.OccurrenceLimit)
	if err != nil {
		return failed(model.StageFetchOccurrences, err)
	}
	if len(records) == 0 {
		return empty(model.StageFetchOccurrences)
	}

	path := o.occurrencesPath(slug)
	if err := occurrence.WriteParquet(path, records); err != nil {
		return failed(model.StageFetchOccurrences, err)
	}
	return succeeded(model.StageFetchOccurrences, len(records), path)
}

// finish settles the run status, closes the ledger entry and writes the
// manifest. Neither failure changes the outcome of the run.
func (o *Orchestrator) finish(ctx context.Context, ledger store.Store, report *Report) {
	report.Status = runStatus(report.Stages)
	report.FinishedAt = time.Now().UTC()

	var bbox *model.BBox
	if report.AOI != nil {
		b := report.AOI.BBox
		bbox = &b
	}
	if err := ledger.FinishRun(ctx, report.RunID, report.Status, bbox); err != nil {
		zap.L().Warn("pipeline: failed to finish run", zap.String("run_id", report.RunID), zap.Error(err))
	}

	path := filepath.Join(o.opts.ProcessedDir, ManifestFile)
	if err := WriteManifest(path, report); err != nil {
		zap.L().Warn("pipeline: failed to write manifest", zap.String("path", path), zap.Error(err))
		return
	}
	report.Manifest = path
}
