package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func square(minX, minY, maxX, maxY float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}})
}

func TestWebMercatorRoundTrip(t *testing.T) {
	for _, c := range [][2]float64{{0, 0}, {103.8, 1.35}, {-70.6, -33.4}, {179.9, 80}} {
		x, y := ToWebMercator(c[0], c[1])
		lon, lat := FromWebMercator(x, y)
		assert.InDelta(t, c[0], lon, 1e-9)
		assert.InDelta(t, c[1], lat, 1e-9)
	}

	x, y := ToWebMercator(180, 0)
	assert.InDelta(t, 20037508.342789244, x, 1e-6)
	assert.InDelta(t, 0, y, 1e-6)

	_, y = ToWebMercator(0, 90)
	_, yMax := ToWebMercator(0, MaxMercatorLat)
	assert.InDelta(t, yMax, y, 1e-6)
}

func TestHaversine(t *testing.T) {
	// One degree of latitude is ~111.2 km on the 6371 km sphere.
	assert.InDelta(t, 111195, Haversine(0, 0, 1, 0), 1)
	assert.InDelta(t, 0, Haversine(1.3, 103.8, 1.3, 103.8), 1e-9)

	ls := geom.NewLineString(geom.XY).MustSetCoords([]geom.Coord{{0, 0}, {0, 1}, {0, 2}})
	assert.InDelta(t, 2*111195, LineLengthM(ls), 2)
}

func TestPolygonAreaM2(t *testing.T) {
	// 1 degree cells shrink with cos(latitude); Mercator would grow them instead.
	eq := PolygonAreaM2(square(0, 0, 1, 1))
	north := PolygonAreaM2(square(0, 59.5, 1, 60.5))
	assert.InDelta(t, 12363.6e6, eq, 1e6)
	assert.InDelta(t, 0.5, north/eq, 0.005)

	withHole := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}},
		{{0.25, 0.25}, {0.25, 0.75}, {0.75, 0.75}, {0.75, 0.25}, {0.25, 0.25}},
	})
	assert.InDelta(t, 0.75*eq, PolygonAreaM2(withHole), 0.001*eq)
}

func TestConvexHull(t *testing.T) {
	pts := []geom.Coord{{0, 0}, {2, 0}, {1, 1}, {2, 2}, {0, 2}, {1, 0}, {0, 0}}
	hull := ConvexHull(pts)
	require.Len(t, hull, 4)
	assert.Greater(t, SignedArea(hull), 0.0, "hull should be counter-clockwise")
	assert.InDelta(t, 4.0, SignedArea(hull), 1e-12)
}

func TestBufferZeroDistanceKeepsBoundary(t *testing.T) {
	p := square(103.6, 1.2, 104.0, 1.45)
	b, err := Buffer(p, 0, 32)
	require.NoError(t, err)
	got := b.Bounds()
	assert.InDelta(t, 103.6, got.Min(0), 1e-9)
	assert.InDelta(t, 1.45, got.Max(1), 1e-9)
	assert.InDelta(t, p.Area(), area(b), 1e-9)
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

func TestBufferContainsAndMonotonic(t *testing.T) {
	p := square(103.6, 1.2, 104.0, 1.45)
	prevArea := p.Area()
	prevBounds := p.Bounds()
	for _, km := range []float64{0.5, 1, 5, 20, 50} {
		b, err := Buffer(p, km*1000, 32)
		require.NoError(t, err)

		bb := b.Bounds()
		assert.LessOrEqual(t, bb.Min(0), prevBounds.Min(0))
		assert.LessOrEqual(t, bb.Min(1), prevBounds.Min(1))
		assert.GreaterOrEqual(t, bb.Max(0), prevBounds.Max(0))
		assert.GreaterOrEqual(t, bb.Max(1), prevBounds.Max(1))
		assert.GreaterOrEqual(t, area(b), prevArea)

		for _, c := range p.LinearRing(0).Coords() {
			assert.True(t, ContainsPoint(b, c.X(), c.Y()), "vertex %v outside buffer", c)
		}

		prevArea = area(b)
		prevBounds = bb
	}
}

func TestBufferGrowsBBoxByDistance(t *testing.T) {
	p := square(0, 0, 0.1, 0.1)
	b, err := Buffer(p, 1000, 32)
	require.NoError(t, err)

	x0, _ := ToWebMercator(0, 0)
	xMin, _ := ToWebMercator(b.Bounds().Min(0), 0)
	assert.InDelta(t, 1000, x0-xMin, 1e-3)
}

func TestBufferKeepsDistantPartsSeparate(t *testing.T) {
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(square(100, 1, 100.01, 1.01)))
	require.NoError(t, mp.Push(square(104, 1, 104.01, 1.01)))

	b, err := Buffer(mp, 1000, 32)
	require.NoError(t, err)

	out, ok := b.(*geom.MultiPolygon)
	require.True(t, ok, "got %T", b)
	assert.Equal(t, 2, out.NumPolygons())
	assert.False(t, ContainsPoint(b, 102, 1.005), "midpoint is ~220 km from either part")
	assert.True(t, ContainsPoint(b, 100.005, 1.005))
	assert.True(t, ContainsPoint(b, 104.015, 1.005), "within 1 km of the eastern part")
}

func TestBufferMergesNearbyParts(t *testing.T) {
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(square(0, 0, 0.01, 0.01)))
	require.NoError(t, mp.Push(square(0.015, 0, 0.025, 0.01)))

	b, err := Buffer(mp, 1000, 32)
	require.NoError(t, err)

	_, ok := b.(*geom.Polygon)
	assert.True(t, ok, "parts 550 m apart merge under a 1 km buffer, got %T", b)
	assert.True(t, ContainsPoint(b, 0.0125, 0.005))
}

func TestBufferFollowsConcaveBoundary(t *testing.T) {
	// L shape: the notch at (1, 1) is ~100 km from the nearest edge.
	l := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{0, 0}, {2, 0}, {2, 0.1}, {0.1, 0.1}, {0.1, 2}, {0, 2}, {0, 0},
	}})

	b, err := Buffer(l, 1000, 32)
	require.NoError(t, err)

	assert.False(t, ContainsPoint(b, 1, 1))
	assert.True(t, ContainsPoint(b, 1, 0.105), "within 1 km of the inner edge")
	assert.False(t, ContainsPoint(b, 1, 0.12), "beyond 1 km of the inner edge")
	assert.InDelta(t, -0.009, b.Bounds().Min(0), 0.0005)
}

func TestBufferInvalid(t *testing.T) {
	p := square(0, 0, 1, 1)
	_, err := Buffer(p, -1, 32)
	assert.Error(t, err)
	_, err = Buffer(p, 10, 30)
	assert.Error(t, err)
	_, err = Buffer(geom.NewPolygon(geom.XY), 10, 32)
	assert.Error(t, err)
}

func TestContainsPointWithHole(t *testing.T) {
	p := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}},
	})
	assert.True(t, ContainsPoint(p, 1, 1))
	assert.False(t, ContainsPoint(p, 5, 5))
	assert.False(t, ContainsPoint(p, 11, 5))
	assert.False(t, ContainsPoint(geom.NewPoint(geom.XY), 0, 0))
}

func TestDecimate(t *testing.T) {
	ring := make([]geom.Coord, 0, 101)
	for i := range 100 {
		ring = append(ring, geom.Coord{float64(i), float64(i % 7)})
	}
	ring = append(ring, ring[0])

	out := Decimate(ring, 10)
	require.Len(t, out, 10)
	assert.Equal(t, ring[0], out[0])
	assert.Equal(t, out[0], out[len(out)-1])

	assert.Equal(t, ring, Decimate(ring, 500))
}
