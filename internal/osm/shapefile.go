package osm

import (
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/mobiodiv/internal/model"
)

// WriteShapefile exports edges as a polyline shapefile (.shp/.shx/.dbf).
func WriteShapefile(path string, edges []model.RoadEdge) error {
	w, err := shp.Create(path, shp.POLYLINE)
	if err != nil {
		return eris.Wrapf(err, "osm: create shapefile %s", path)
	}
	defer w.Close()

	// dBase field names are limited to 10 characters.
	fields := []shp.Field{
		shp.NumberField("u", 20),
		shp.NumberField("v", 20),
		shp.NumberField("osmid", 20),
		shp.StringField("highway", 32),
		shp.StringField("name", 80),
		shp.StringField("maxspeed", 16),
		shp.StringField("lanes", 8),
		shp.NumberField("oneway", 1),
		shp.NumberField("reversed", 1),
		shp.FloatField("length", 16, 3),
	}
	if err := w.SetFields(fields); err != nil {
		return eris.Wrap(err, "osm: set shapefile fields")
	}

	for _, e := range edges {
		if e.Geometry == nil || e.Geometry.NumCoords() < 2 {
			continue
		}
		pts := make([]shp.Point, 0, e.Geometry.NumCoords())
		for _, c := range e.Geometry.Coords() {
			pts = append(pts, shp.Point{X: c.X(), Y: c.Y()})
		}
		row := int(w.Write(shp.NewPolyLine([][]shp.Point{pts})))

		values := []any{
			int(e.U), int(e.V), int(e.OSMID),
			fit(e.Highway, 32), fit(e.Name, 80), fit(e.MaxSpeed, 16), fit(e.Lanes, 8),
			flag(e.Oneway), flag(e.Reversed),
			e.LengthM,
		}
		for i, v := range values {
			if err := w.WriteAttribute(row, i, v); err != nil {
				return eris.Wrapf(err, "osm: write attribute %d of edge %d-%d", i, e.U, e.V)
			}
		}
	}
	return nil
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// fit truncates s to at most n bytes without splitting a UTF-8 sequence.
func fit(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
