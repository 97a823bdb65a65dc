package osm

import (
	"context"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/mobiodiv/internal/gpkg"
	"github.com/sells-group/mobiodiv/internal/model"
)

// EdgesLayer is the GeoPackage layer name for road edges.
const EdgesLayer = "edges"

var edgeColumns = []gpkg.Column{
	{Name: "u", Type: "INTEGER"},
	{Name: "v", Type: "INTEGER"},
	{Name: "osmid", Type: "INTEGER"},
	{Name: "highway", Type: "TEXT"},
	{Name: "name", Type: "TEXT"},
	{Name: "maxspeed", Type: "TEXT"},
	{Name: "lanes", Type: "TEXT"},
	{Name: "oneway", Type: "BOOLEAN"},
	{Name: "reversed", Type: "BOOLEAN"},
	{Name: "length", Type: "REAL"},
}

// WriteGeoPackage stores edges as a LINESTRING layer at path.
func WriteGeoPackage(ctx context.Context, path string, edges []model.RoadEdge) error {
	features := make([]gpkg.Feature, 0, len(edges))
	for _, e := range edges {
		var g geom.T = e.Geometry
		if e.Geometry == nil {
			g = geom.NewLineString(geom.XY).SetSRID(gpkg.SRSWGS84)
		}
		features = append(features, gpkg.Feature{
			Geometry: g,
			Properties: map[string]any{
				"u":        e.U,
				"v":        e.V,
				"osmid":    e.OSMID,
				"highway":  e.Highway,
				"name":     e.Name,
				"maxspeed": e.MaxSpeed,
				"lanes":    e.Lanes,
				"oneway":   e.Oneway,
				"reversed": e.Reversed,
				"length":   e.LengthM,
			},
		})
	}
	return gpkg.WriteFeatures(ctx, path, gpkg.Layer{
		Name:         EdgesLayer,
		GeometryType: "LINESTRING",
		SRSID:        gpkg.SRSWGS84,
		Columns:      edgeColumns,
	}, features)
}
