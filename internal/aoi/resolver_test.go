package aoi

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/mobiodiv/internal/geo"
	"github.com/sells-group/mobiodiv/pkg/geocode"
)

type fakeGeocoder struct {
	place *geocode.Place
	err   error
	calls int
}

func (f *fakeGeocoder) Boundary(_ context.Context, query string) (*geocode.Place, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p := *f.place
	p.Query = query
	return &p, nil
}

func singapore() *geocode.Place {
	return &geocode.Place{
		DisplayName: "Singapore",
		OSMType:     "relation",
		OSMID:       536780,
		Geometry: geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
			{103.6, 1.16}, {104.09, 1.16}, {104.09, 1.47}, {103.6, 1.47}, {103.6, 1.16},
		}}),
	}
}

func TestResolve_Unbuffered(t *testing.T) {
	r := NewResolver(&fakeGeocoder{place: singapore()}, 0)
	a, err := r.Resolve(context.Background(), "Singapore", 0)
	require.NoError(t, err)

	assert.Equal(t, "Singapore", a.Name)
	assert.Equal(t, "nominatim", a.Source)
	assert.InDelta(t, 103.6, a.BBox.MinX, 1e-12)
	assert.InDelta(t, 1.47, a.BBox.MaxY, 1e-12)
	assert.Zero(t, a.BufferKM)
}

func TestResolve_BufferContainsAndIsMonotonic(t *testing.T) {
	r := NewResolver(&fakeGeocoder{place: singapore()}, 32)

	base, err := r.Resolve(context.Background(), "Singapore", 0)
	require.NoError(t, err)

	prev := base
	for _, km := range []float64{1, 5, 20, 40} {
		a, err := r.Resolve(context.Background(), "Singapore", km)
		require.NoError(t, err)

		assert.True(t, a.BBox.Contains(base.BBox), "buffer %g km must contain the unbuffered bbox", km)
		assert.True(t, a.BBox.Contains(prev.BBox), "buffer %g km must contain the smaller buffer", km)
		assert.GreaterOrEqual(t, a.BBox.Area(), prev.BBox.Area())
		assert.GreaterOrEqual(t, area(a.Geometry), area(prev.Geometry))
		_, ok := a.Geometry.(*geom.Polygon)
		assert.True(t, ok)
		prev = a
	}

	// A 20 km buffer around Singapore lands near [103.4, 0.98, 104.27, 1.65].
	a, err := r.Resolve(context.Background(), "Singapore", 20)
	require.NoError(t, err)
	assert.InDelta(t, 103.42, a.BBox.MinX, 0.01)
	assert.InDelta(t, 104.27, a.BBox.MaxX, 0.01)
}

func area(g geom.T) float64 {
	switch t := g.(type) {
	case *geom.Polygon:
		return t.Area()
	case *geom.MultiPolygon:
		return t.Area()
	}
	return 0
}

func TestResolve_NegativeBuffer(t *testing.T) {
	gc := &fakeGeocoder{place: singapore()}
	r := NewResolver(gc, 32)
	for _, km := range []float64{-1, math.NaN(), math.Inf(1)} {
		_, err := r.Resolve(context.Background(), "Singapore", km)
		var re *ResolutionError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, "Singapore", re.Place)
	}
	assert.Zero(t, gc.calls, "invalid buffer must be rejected before geocoding")
}

func TestResolve_GeocoderFailure(t *testing.T) {
	r := NewResolver(&fakeGeocoder{err: geocode.ErrNoMatch}, 32)
	_, err := r.Resolve(context.Background(), "Atlantis", 20)

	var re *ResolutionError
	require.True(t, errors.As(err, &re))
	assert.True(t, errors.Is(err, geocode.ErrNoMatch))
	assert.Contains(t, err.Error(), `"Atlantis"`)
}

func TestResolve_InvalidGeometry(t *testing.T) {
	place := singapore()
	place.Geometry = geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{{0, 0}, {1, 0}, {1, 1}, {0, 1}}})
	r := NewResolver(&fakeGeocoder{place: place}, 32)

	_, err := r.Resolve(context.Background(), "Open ring", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not closed")
}

func TestResolveFile_GeoJSONFeatureCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "study_area.geojson")
	doc := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{"name":"a"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
	  {"type":"Feature","properties":{"name":"b"},"geometry":{"type":"Polygon","coordinates":[[[2,2],[3,2],[3,3],[2,3],[2,2]]]}},
	  {"type":"Feature","properties":{"name":"pt"},"geometry":{"type":"Point","coordinates":[9,9]}}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	r := NewResolver(nil, 32)
	a, err := r.ResolveFile(context.Background(), path, "", 0)
	require.NoError(t, err)

	assert.Equal(t, "study_area", a.Name)
	assert.Equal(t, path, a.Source)
	mp, ok := a.Geometry.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 2, mp.NumPolygons())
	assert.InDelta(t, 3.0, a.BBox.MaxX, 1e-12)
}

func TestResolveFile_BufferedPartsStaySeparate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "islands.geojson")
	doc := `{"type":"MultiPolygon","coordinates":[
	  [[[0,0],[0.1,0],[0.1,0.1],[0,0.1],[0,0]]],
	  [[[2,2],[2.1,2],[2.1,2.1],[2,2.1],[2,2]]]
	]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	r := NewResolver(nil, 32)
	a, err := r.ResolveFile(context.Background(), path, "islands", 5)
	require.NoError(t, err)

	mp, ok := a.Geometry.(*geom.MultiPolygon)
	require.True(t, ok, "got %T", a.Geometry)
	assert.Equal(t, 2, mp.NumPolygons())
	assert.False(t, geo.ContainsPoint(a.Geometry, 1, 1), "gap between islands is not part of the area")
	assert.True(t, geo.ContainsPoint(a.Geometry, 0.13, 0.05), "within 5 km of the first island")
	assert.Less(t, a.BBox.MinX, 0.0)
	assert.Greater(t, a.BBox.MaxX, 2.1)
}

func TestResolveFile_GeoJSONGeometryBuffered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "box.json")
	require.NoError(t, os.WriteFile(path,
		[]byte(`{"type":"Polygon","coordinates":[[[10,10],[10.1,10],[10.1,10.1],[10,10.1],[10,10]]]}`), 0o644))

	r := NewResolver(nil, 32)
	a, err := r.ResolveFile(context.Background(), path, "box", 2)
	require.NoError(t, err)
	assert.Less(t, a.BBox.MinX, 10.0)
	assert.Greater(t, a.BBox.MaxY, 10.1)
	assert.InDelta(t, 2.0, a.BufferKM, 0)
}

func TestResolveFile_Shapefile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boundary.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	// Outer ring clockwise, hole counter-clockwise, as the format requires.
	poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{
		{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}},
		{{X: 4, Y: 4}, {X: 6, Y: 4}, {X: 6, Y: 6}, {X: 4, Y: 6}, {X: 4, Y: 4}},
	}))
	w.Write(&poly)
	w.Close()

	r := NewResolver(nil, 32)
	a, err := r.ResolveFile(context.Background(), path, "Boundary", 0)
	require.NoError(t, err)

	p, ok := a.Geometry.(*geom.Polygon)
	require.True(t, ok)
	assert.Equal(t, 2, p.NumLinearRings())
	assert.InDelta(t, 96.0, p.Area(), 1e-9)
	assert.InDelta(t, 10.0, a.BBox.MaxX, 1e-12)
}

func TestResolveFile_Errors(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver(nil, 32)

	_, err := r.ResolveFile(context.Background(), filepath.Join(dir, "area.kml"), "", 0)
	var re *ResolutionError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "area", re.Place)

	_, err = r.ResolveFile(context.Background(), filepath.Join(dir, "missing.geojson"), "", 0)
	require.Error(t, err)

	pt := filepath.Join(dir, "point.geojson")
	require.NoError(t, os.WriteFile(pt, []byte(`{"type":"Point","coordinates":[1,2]}`), 0o644))
	_, err = r.ResolveFile(context.Background(), pt, "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want Polygon or MultiPolygon")

	_, err = r.ResolveFile(context.Background(), pt, "", -5)
	require.Error(t, err)
}
