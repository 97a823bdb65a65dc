package geotiff

import (
	"github.com/sells-group/mobiodiv/internal/model"
)

// Raster is a decoded pixel block with the georeferencing needed to write it
// back out. Pix is row-major, chunky (pixel interleaved) and little-endian.
type Raster struct {
	Width           int
	Height          int
	SamplesPerPixel int
	BitsPerSample   int
	SampleFormat    uint16
	Photometric     uint16
	Pix             []byte
	Transform       Affine

	GeoKeys    []uint16
	GeoDoubles []float64
	GeoASCII   string
	NoData     string
	ColorMap   []uint16
}

// PixelBytes returns the size of one pixel in bytes.
func (r *Raster) PixelBytes() int {
	return r.SamplesPerPixel * r.BitsPerSample / 8
}

// At returns the bytes of pixel (col, row).
func (r *Raster) At(col, row int) []byte {
	pb := r.PixelBytes()
	i := (row*r.Width + col) * pb
	return r.Pix[i : i+pb]
}

// Bounds returns the model-space extent of the raster.
func (r *Raster) Bounds() model.BBox {
	return r.Transform.Bounds(r.Width, r.Height)
}

// GeoKeys4326 is a GeoKey directory for geographic WGS 84 with
// pixel-is-area raster space.
var GeoKeys4326 = []uint16{
	1, 1, 0, 3,
	1024, 0, 1, 2, // GTModelTypeGeoKey = geographic
	1025, 0, 1, 1, // GTRasterTypeGeoKey = pixel is area
	2048, 0, 1, 4326, // GeographicTypeGeoKey
}
