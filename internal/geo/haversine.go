package geo

import (
	"math"

	"github.com/twpayne/go-geom"
)

const earthRadiusKm = 6371.0

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000
}

// LineLengthM sums the great-circle length of a lon/lat linestring in meters.
func LineLengthM(ls *geom.LineString) float64 {
	var total float64
	n := ls.NumCoords()
	for i := 1; i < n; i++ {
		a, b := ls.Coord(i-1), ls.Coord(i)
		total += Haversine(a.Y(), a.X(), b.Y(), b.X())
	}
	return total
}

// meanRadiusM is the IUGG mean Earth radius used for spherical areas.
const meanRadiusM = 6371008.8

// RingAreaM2 returns the area enclosed by a lon/lat ring on the sphere in
// square metres, regardless of winding.
func RingAreaM2(ring []geom.Coord) float64 {
	n := len(ring)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := range n {
		a, b := ring[i], ring[(i+1)%n]
		sum += toRad(b.X()-a.X()) * (2 + math.Sin(toRad(a.Y())) + math.Sin(toRad(b.Y())))
	}
	return math.Abs(sum * meanRadiusM * meanRadiusM / 2)
}

// PolygonAreaM2 is the spherical area of p minus its holes.
func PolygonAreaM2(p *geom.Polygon) float64 {
	var total float64
	for i := 0; i < p.NumLinearRings(); i++ {
		a := RingAreaM2(p.LinearRing(i).Coords())
		if i == 0 {
			total += a
		} else {
			total -= a
		}
	}
	return total
}
