package geotiff

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mobiodiv/internal/model"
)

// Affine maps pixel (col, row) to model space:
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// Apply returns the model coordinates of pixel corner (col, row).
func (a Affine) Apply(col, row float64) (x, y float64) {
	return a.A*col + a.B*row + a.C, a.D*col + a.E*row + a.F
}

// NorthUp reports whether the transform has no rotation and rows run
// from north to south.
func (a Affine) NorthUp() bool {
	return a.B == 0 && a.D == 0 && a.A > 0 && a.E < 0
}

// Offset returns the transform of a window starting at (col, row).
func (a Affine) Offset(col, row int) Affine {
	x, y := a.Apply(float64(col), float64(row))
	out := a
	out.C, out.F = x, y
	return out
}

// Bounds returns the bbox covered by a width x height grid.
func (a Affine) Bounds(width, height int) model.BBox {
	xs := make([]float64, 0, 4)
	ys := make([]float64, 0, 4)
	for _, c := range [][2]float64{{0, 0}, {float64(width), 0}, {0, float64(height)}, {float64(width), float64(height)}} {
		x, y := a.Apply(c[0], c[1])
		xs = append(xs, x)
		ys = append(ys, y)
	}
	return model.BBox{
		MinX: min(xs[0], xs[1], xs[2], xs[3]),
		MinY: min(ys[0], ys[1], ys[2], ys[3]),
		MaxX: max(xs[0], xs[1], xs[2], xs[3]),
		MaxY: max(ys[0], ys[1], ys[2], ys[3]),
	}
}

// Window is a pixel rectangle [Col, Col+Width) x [Row, Row+Height).
type Window struct {
	Col, Row      int
	Width, Height int
}

// Empty reports whether the window has no pixels.
func (w Window) Empty() bool { return w.Width <= 0 || w.Height <= 0 }

// pixelTolerance absorbs floating point noise when a bbox edge falls on a
// pixel edge.
const pixelTolerance = 1e-6

// WindowFor returns the largest window of a width x height grid whose
// pixels lie entirely inside b. The window is clamped to the grid. When b
// overlaps the grid but no whole pixel fits on an axis, that axis falls back
// to the pixels b touches, so a sub-pixel bbox still yields one pixel. The
// window is empty only when b misses the grid interior.
func WindowFor(a Affine, width, height int, b model.BBox) (Window, error) {
	if !a.NorthUp() {
		return Window{}, eris.New("geotiff: rotated or south-up transforms are not supported")
	}

	c0, cw := span((b.MinX-a.C)/a.A, (b.MaxX-a.C)/a.A, width)
	r0, rh := span((a.F-b.MaxY)/-a.E, (a.F-b.MinY)/-a.E, height)

	w := Window{Col: c0, Row: r0, Width: cw, Height: rh}
	if w.Empty() {
		return Window{Col: c0, Row: r0}, nil
	}
	return w, nil
}

// span maps the pixel interval [lo, hi] onto a grid axis of n pixels and
// returns the first pixel and the pixel count.
func span(lo, hi float64, n int) (int, int) {
	start := clamp(math.Ceil(lo-pixelTolerance), n)
	end := clamp(math.Floor(hi+pixelTolerance), n)
	if end > start {
		return start, end - start
	}

	lo, hi = math.Max(lo, 0), math.Min(hi, float64(n))
	if !(hi-lo > pixelTolerance) {
		return start, 0
	}
	start = clamp(math.Floor(lo), n)
	end = clamp(math.Ceil(hi), n)
	return start, end - start
}

func clamp(v float64, hi int) int {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > float64(hi):
		return hi
	default:
		return int(v)
	}
}
