// Package geo holds the small amount of planar and spherical geometry the
// acquisition pipeline needs: Web Mercator projection, polygon buffering,
// great-circle lengths and point-in-polygon tests.
package geo

import "math"

const (
	// EarthRadiusM is the spherical radius used by EPSG:3857.
	EarthRadiusM = 6378137.0

	// MaxMercatorLat is the latitude at which EPSG:3857 becomes square.
	MaxMercatorLat = 85.05112877980659
)

// ToWebMercator projects EPSG:4326 degrees to EPSG:3857 metres. Latitudes
// beyond the Mercator limit are clamped.
func ToWebMercator(lon, lat float64) (x, y float64) {
	lat = math.Max(-MaxMercatorLat, math.Min(MaxMercatorLat, lat))
	x = EarthRadiusM * toRad(lon)
	y = EarthRadiusM * math.Log(math.Tan(math.Pi/4+toRad(lat)/2))
	return x, y
}

// FromWebMercator is the inverse of ToWebMercator.
func FromWebMercator(x, y float64) (lon, lat float64) {
	lon = toDeg(x / EarthRadiusM)
	lat = toDeg(2*math.Atan(math.Exp(y/EarthRadiusM)) - math.Pi/2)
	return lon, lat
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
