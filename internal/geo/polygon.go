package geo

import (
	"github.com/twpayne/go-geom"
)

// ContainsPoint reports whether (x, y) lies inside a Polygon or MultiPolygon,
// honouring holes. Points exactly on an edge may land on either side.
func ContainsPoint(g geom.T, x, y float64) bool {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonContains(t, x, y)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if polygonContains(t.Polygon(i), x, y) {
				return true
			}
		}
	}
	return false
}

func polygonContains(p *geom.Polygon, x, y float64) bool {
	if p.NumLinearRings() == 0 || !ringContains(p.LinearRing(0).Coords(), x, y) {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if ringContains(p.LinearRing(i).Coords(), x, y) {
			return false
		}
	}
	return true
}

// ringContains is the even-odd ray casting test.
func ringContains(ring []geom.Coord, x, y float64) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].X(), ring[i].Y()
		xj, yj := ring[j].X(), ring[j].Y()
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// SignedArea returns the shoelace area of a ring; positive when the ring is
// counter-clockwise.
func SignedArea(ring []geom.Coord) float64 {
	var sum float64
	n := len(ring)
	for i := range n {
		a, b := ring[i], ring[(i+1)%n]
		sum += a.X()*b.Y() - b.X()*a.Y()
	}
	return sum / 2
}

// Decimate keeps at most maxVertices points of a closed ring, evenly spaced,
// always keeping the first point and closing the result.
func Decimate(ring []geom.Coord, maxVertices int) []geom.Coord {
	if len(ring) <= maxVertices || maxVertices < 4 {
		return ring
	}
	open := ring
	if n := len(ring); n > 1 && ring[0].Equal(geom.XY, ring[n-1]) {
		open = ring[:n-1]
	}
	keep := maxVertices - 1
	out := make([]geom.Coord, 0, maxVertices)
	step := float64(len(open)) / float64(keep)
	for k := range keep {
		out = append(out, open[int(float64(k)*step)])
	}
	return append(out, open[0])
}
