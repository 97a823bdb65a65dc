package geo

import (
	"sort"

	"github.com/twpayne/go-geom"
)

// ConvexHull returns the convex hull of pts as a counter-clockwise ring
// without the closing point. Collinear points on the hull are dropped.
func ConvexHull(pts []geom.Coord) []geom.Coord {
	sorted := make([]geom.Coord, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X() != sorted[j].X() {
			return sorted[i].X() < sorted[j].X()
		}
		return sorted[i].Y() < sorted[j].Y()
	})
	sorted = dedupe(sorted)
	if len(sorted) < 3 {
		return sorted
	}

	hull := make([]geom.Coord, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

func cross(o, a, b geom.Coord) float64 {
	return (a.X()-o.X())*(b.Y()-o.Y()) - (a.Y()-o.Y())*(b.X()-o.X())
}

func dedupe(sorted []geom.Coord) []geom.Coord {
	out := sorted[:0]
	for _, p := range sorted {
		if n := len(out); n > 0 && p.X() == out[n-1].X() && p.Y() == out[n-1].Y() {
			continue
		}
		out = append(out, p)
	}
	return out
}
