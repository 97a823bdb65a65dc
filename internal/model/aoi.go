package model

import (
	"github.com/twpayne/go-geom"
)

// AreaOfInterest is the study region of a single run: a polygon or
// multipolygon in EPSG:4326 plus its bounding box. It is built once by the
// aoi resolver and treated as read-only afterwards.
type AreaOfInterest struct {
	Name     string
	Source   string // "nominatim" or the boundary file path
	Geometry geom.T
	BBox     BBox
	BufferKM float64
}

// Polygons returns the polygon parts of the geometry.
func (a *AreaOfInterest) Polygons() []*geom.Polygon {
	switch g := a.Geometry.(type) {
	case *geom.Polygon:
		return []*geom.Polygon{g}
	case *geom.MultiPolygon:
		out := make([]*geom.Polygon, 0, g.NumPolygons())
		for i := 0; i < g.NumPolygons(); i++ {
			out = append(out, g.Polygon(i))
		}
		return out
	default:
		return nil
	}
}

// BBoxOf returns the bounding box of any go-geom geometry.
func BBoxOf(g geom.T) BBox {
	b := g.Bounds()
	return BBox{MinX: b.Min(0), MinY: b.Min(1), MaxX: b.Max(0), MaxY: b.Max(1)}
}

// TileReference locates one remote raster asset. Bounds is nil when the
// catalog did not advertise a footprint.
type TileReference struct {
	ID     string `json:"id" yaml:"id"`
	URI    string `json:"uri" yaml:"uri"`
	Bounds *BBox  `json:"bounds,omitempty" yaml:"bounds,omitempty"`
}
