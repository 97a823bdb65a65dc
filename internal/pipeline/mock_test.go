package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/mobiodiv/internal/model"
)

// --- AreaResolver Mock ---

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, place string, bufferKM float64) (*model.AreaOfInterest, error) {
	args := m.Called(ctx, place, bufferKM)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AreaOfInterest), args.Error(1)
}

func (m *mockResolver) ResolveFile(ctx context.Context, path, name string, bufferKM float64) (*model.AreaOfInterest, error) {
	args := m.Called(ctx, path, name, bufferKM)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AreaOfInterest), args.Error(1)
}

// --- TileCatalog Mock ---

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) Discover(ctx context.Context, bbox model.BBox) []model.TileReference {
	args := m.Called(ctx, bbox)
	tiles, _ := args.Get(0).([]model.TileReference)
	return tiles
}

// --- RasterFetcher Mock ---

type mockRaster struct {
	mock.Mock
}

func (m *mockRaster) Fetch(ctx context.Context, tiles []model.TileReference, bbox model.BBox, outDir string) ([]string, error) {
	args := m.Called(ctx, tiles, bbox, outDir)
	paths, _ := args.Get(0).([]string)
	return paths, args.Error(1)
}

// --- RoadFetcher Mock ---

type mockRoads struct {
	mock.Mock
}

func (m *mockRoads) Fetch(ctx context.Context, area *model.AreaOfInterest) ([]model.RoadEdge, error) {
	args := m.Called(ctx, area)
	edges, _ := args.Get(0).([]model.RoadEdge)
	return edges, args.Error(1)
}

// --- OccurrenceFetcher Mock ---

type mockOccurrences struct {
	mock.Mock
}

func (m *mockOccurrences) Fetch(ctx context.Context, area *model.AreaOfInterest, taxon string, limit int) ([]model.OccurrenceRecord, error) {
	args := m.Called(ctx, area, taxon, limit)
	records, _ := args.Get(0).([]model.OccurrenceRecord)
	return records, args.Error(1)
}
