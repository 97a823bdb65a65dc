package aoi

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mobiodiv/internal/gpkg"
	"github.com/sells-group/mobiodiv/internal/model"
)

// Layer is the GeoPackage layer name for the area of interest.
const Layer = "aoi"

// WriteGeoPackage stores the area as a single-feature layer at path.
func WriteGeoPackage(ctx context.Context, path string, area *model.AreaOfInterest) error {
	if area == nil || area.Geometry == nil {
		return eris.New("aoi: nothing to write")
	}
	return gpkg.WriteFeatures(ctx, path, gpkg.Layer{
		Name:  Layer,
		SRSID: gpkg.SRSWGS84,
		Columns: []gpkg.Column{
			{Name: "name", Type: "TEXT"},
			{Name: "source", Type: "TEXT"},
			{Name: "buffer_km", Type: "REAL"},
		},
	}, []gpkg.Feature{{
		Geometry: area.Geometry,
		Properties: map[string]any{
			"name":      area.Name,
			"source":    area.Source,
			"buffer_km": area.BufferKM,
		},
	}})
}
