package model

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// BBox is an axis-aligned bounding box in EPSG:4326 degrees.
type BBox struct {
	MinX float64 `json:"min_x" yaml:"min_x"`
	MinY float64 `json:"min_y" yaml:"min_y"`
	MaxX float64 `json:"max_x" yaml:"max_x"`
	MaxY float64 `json:"max_y" yaml:"max_y"`
}

// Valid reports whether all edges are finite and min <= max on both axes.
func (b BBox) Valid() bool {
	for _, v := range []float64{b.MinX, b.MinY, b.MaxX, b.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.MinX <= b.MaxX && b.MinY <= b.MaxY
}

// Intersects reports whether b and o overlap. Boxes that only touch along an
// edge count as intersecting; boxes disjoint on either axis do not.
func (b BBox) Intersects(o BBox) bool {
	if b.MaxX < o.MinX || o.MaxX < b.MinX {
		return false
	}
	if b.MaxY < o.MinY || o.MaxY < b.MinY {
		return false
	}
	return true
}

// Contains reports whether o lies entirely inside b.
func (b BBox) Contains(o BBox) bool {
	return o.MinX >= b.MinX && o.MaxX <= b.MaxX && o.MinY >= b.MinY && o.MaxY <= b.MaxY
}

// ContainsPoint reports whether (x, y) lies inside b, expanded by tol on every side.
func (b BBox) ContainsPoint(x, y, tol float64) bool {
	return x >= b.MinX-tol && x <= b.MaxX+tol && y >= b.MinY-tol && y <= b.MaxY+tol
}

// Intersection returns the overlap of b and o. ok is false when they are disjoint.
func (b BBox) Intersection(o BBox) (BBox, bool) {
	if !b.Intersects(o) {
		return BBox{}, false
	}
	return BBox{
		MinX: math.Max(b.MinX, o.MinX),
		MinY: math.Max(b.MinY, o.MinY),
		MaxX: math.Min(b.MaxX, o.MaxX),
		MaxY: math.Min(b.MaxY, o.MaxY),
	}, true
}

// Width is the extent along the x axis.
func (b BBox) Width() float64 { return b.MaxX - b.MinX }

// Height is the extent along the y axis.
func (b BBox) Height() float64 { return b.MaxY - b.MinY }

// Area is the planar area in square degrees.
func (b BBox) Area() float64 {
	return b.Width() * b.Height()
}

// Slice returns the box in [minx, miny, maxx, maxy] order, as used by STAC and GeoJSON.
func (b BBox) Slice() []float64 {
	return []float64{b.MinX, b.MinY, b.MaxX, b.MaxY}
}

// String formats the box with three decimals, underscore separated.
// This is the form embedded in raster clip file names.
func (b BBox) String() string {
	return fmt.Sprintf("%.3f_%.3f_%.3f_%.3f", b.MinX, b.MinY, b.MaxX, b.MaxY)
}

// BBoxFromSlice builds a box from a [minx, miny, maxx, maxy] slice. A
// six-element 3D box ([minx, miny, minz, maxx, maxy, maxz]) is also accepted.
func BBoxFromSlice(s []float64) (BBox, error) {
	switch len(s) {
	case 4:
		return BBox{MinX: s[0], MinY: s[1], MaxX: s[2], MaxY: s[3]}, nil
	case 6:
		return BBox{MinX: s[0], MinY: s[1], MaxX: s[3], MaxY: s[4]}, nil
	default:
		return BBox{}, eris.Errorf("bbox: expected 4 or 6 values, got %d", len(s))
	}
}
