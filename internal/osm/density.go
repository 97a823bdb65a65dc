package osm

import (
	"github.com/sells-group/mobiodiv/internal/geo"
	"github.com/sells-group/mobiodiv/internal/model"
)

// Density returns kilometres of road per square kilometre of aoi. Each road
// segment is counted once regardless of direction. Lengths and area are both
// measured on the sphere.
func Density(edges []model.RoadEdge, aoi *model.AreaOfInterest) float64 {
	if aoi == nil {
		return 0
	}
	var areaM2 float64
	for _, p := range aoi.Polygons() {
		areaM2 += geo.PolygonAreaM2(p)
	}
	if areaM2 <= 0 {
		return 0
	}

	var lengthM float64
	for _, e := range edges {
		if !e.Reversed {
			lengthM += e.LengthM
		}
	}
	return (lengthM / 1000) / (areaM2 / 1e6)
}
