package geo

import (
	"math"

	sf "github.com/peterstace/simplefeatures/geom"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// Buffer grows g outward by distanceM metres measured in EPSG:3857 and
// returns the result in EPSG:4326 as a Polygon or MultiPolygon.
//
// The result is the union of g with one capsule per ring edge, where a
// capsule is the convex hull of the regular polygons (with the given number
// of segments) centred on the edge's endpoints. Parts further apart than
// twice the distance stay separate and concave boundaries keep their shape.
// With segments a multiple of four the bounding box grows by exactly
// distanceM on each side.
func Buffer(g geom.T, distanceM float64, segments int) (geom.T, error) {
	if distanceM < 0 || math.IsNaN(distanceM) || math.IsInf(distanceM, 0) {
		return nil, eris.Errorf("geo: invalid buffer distance %g", distanceM)
	}
	if segments < 4 || segments%4 != 0 {
		return nil, eris.Errorf("geo: buffer segments must be a positive multiple of 4, got %d", segments)
	}

	offsets := circleOffsets(distanceM, segments)

	var parts []sf.Geometry
	for _, p := range Polygons(g) {
		rings := make([]sf.LineString, 0, p.NumLinearRings())
		for i := 0; i < p.NumLinearRings(); i++ {
			ring := projectRing(p.LinearRing(i).Coords())
			if len(ring) < 4 {
				continue
			}
			rings = append(rings, lineString(ring))
			if distanceM == 0 {
				continue
			}
			for j := 1; j < len(ring); j++ {
				parts = append(parts, capsule(ring[j-1], ring[j], offsets))
			}
		}
		if len(rings) > 0 {
			parts = append(parts, sf.NewPolygon(rings).AsGeometry())
		}
	}
	if len(parts) == 0 {
		return nil, eris.New("geo: cannot buffer an empty geometry")
	}

	union, err := sf.UnionMany(parts)
	if err != nil {
		return nil, eris.Wrap(err, "geo: union buffer parts")
	}
	out, err := wkb.Unmarshal(union.AsBinary())
	if err != nil {
		return nil, eris.Wrap(err, "geo: decode buffer")
	}

	switch t := out.(type) {
	case *geom.Polygon:
		unproject(t.FlatCoords(), t.Stride())
		return t.SetSRID(4326), nil
	case *geom.MultiPolygon:
		unproject(t.FlatCoords(), t.Stride())
		return t.SetSRID(4326), nil
	default:
		return nil, eris.Errorf("geo: buffer produced %T", out)
	}
}

// circleOffsets returns the vertex offsets of a regular polygon of radius r.
// The axis-aligned offsets are exact so the bbox grows by exactly r.
func circleOffsets(r float64, segments int) []geom.Coord {
	offsets := make([]geom.Coord, segments)
	for k := range segments {
		switch {
		case k == 0:
			offsets[k] = geom.Coord{r, 0}
		case 4*k == segments:
			offsets[k] = geom.Coord{0, r}
		case 2*k == segments:
			offsets[k] = geom.Coord{-r, 0}
		case 4*k == 3*segments:
			offsets[k] = geom.Coord{0, -r}
		default:
			theta := 2 * math.Pi * float64(k) / float64(segments)
			offsets[k] = geom.Coord{r * math.Cos(theta), r * math.Sin(theta)}
		}
	}
	return offsets
}

// capsule is the convex hull of the offset polygons around a and b.
func capsule(a, b geom.Coord, offsets []geom.Coord) sf.Geometry {
	pts := make([]geom.Coord, 0, 2*len(offsets))
	for _, o := range offsets {
		pts = append(pts,
			geom.Coord{a.X() + o.X(), a.Y() + o.Y()},
			geom.Coord{b.X() + o.X(), b.Y() + o.Y()},
		)
	}
	hull := ConvexHull(pts)
	hull = append(hull, hull[0])
	return sf.NewPolygon([]sf.LineString{lineString(hull)}).AsGeometry()
}

// projectRing projects a ring to EPSG:3857 and closes it if needed.
func projectRing(ring []geom.Coord) []geom.Coord {
	out := make([]geom.Coord, 0, len(ring)+1)
	for _, c := range ring {
		x, y := ToWebMercator(c.X(), c.Y())
		out = append(out, geom.Coord{x, y})
	}
	if n := len(out); n > 0 && !out[0].Equal(geom.XY, out[n-1]) {
		out = append(out, geom.Coord{out[0].X(), out[0].Y()})
	}
	return out
}

func lineString(ring []geom.Coord) sf.LineString {
	flat := make([]float64, 0, 2*len(ring))
	for _, c := range ring {
		flat = append(flat, c.X(), c.Y())
	}
	return sf.NewLineString(sf.NewSequence(flat, sf.DimXY))
}

func unproject(flat []float64, stride int) {
	for i := 0; i+1 < len(flat); i += stride {
		flat[i], flat[i+1] = FromWebMercator(flat[i], flat[i+1])
	}
}

// Polygons returns the polygon parts of a Polygon or MultiPolygon. Other
// geometry types yield nil.
func Polygons(g geom.T) []*geom.Polygon {
	switch t := g.(type) {
	case *geom.Polygon:
		return []*geom.Polygon{t}
	case *geom.MultiPolygon:
		out := make([]*geom.Polygon, 0, t.NumPolygons())
		for i := 0; i < t.NumPolygons(); i++ {
			out = append(out, t.Polygon(i))
		}
		return out
	}
	return nil
}
