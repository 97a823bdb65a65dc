// Package geotiff reads windows out of classic (non-Big) GeoTIFF files,
// local or remote, and writes clipped rasters back as GeoTIFF.
package geotiff

import (
	"encoding/binary"
	"io"
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// TIFF tags used by the reader and writer.
const (
	tagImageWidth       = 256
	tagImageLength      = 257
	tagBitsPerSample    = 258
	tagCompression      = 259
	tagPhotometric      = 262
	tagStripOffsets     = 273
	tagSamplesPerPixel  = 277
	tagRowsPerStrip     = 278
	tagStripByteCounts  = 279
	tagPlanarConfig     = 284
	tagPredictor        = 317
	tagColorMap         = 320
	tagTileWidth        = 322
	tagTileLength       = 323
	tagTileOffsets      = 324
	tagTileByteCounts   = 325
	tagSampleFormat     = 339
	tagModelPixelScale  = 33550
	tagModelTiepoint    = 33922
	tagModelTransform   = 34264
	tagGeoKeyDirectory  = 34735
	tagGeoDoubleParams  = 34736
	tagGeoASCIIParams   = 34737
	tagGDALNoData       = 42113
)

// Compression schemes.
const (
	CompressionNone        uint16 = 1
	CompressionLZW         uint16 = 5
	CompressionDeflate     uint16 = 8
	CompressionDeflateOld  uint16 = 32946
	predictorNone          uint16 = 1
	predictorHorizontal    uint16 = 2
	planarChunky           uint16 = 1
	sampleFormatUint       uint16 = 1
	photometricBlackIsZero uint16 = 1
)

// Field types.
const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndefined = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
)

var typeSize = map[uint16]uint32{
	dtByte: 1, dtASCII: 1, dtShort: 2, dtLong: 4, dtRational: 8,
	dtSByte: 1, dtUndefined: 1, dtSShort: 2, dtSLong: 4, dtSRational: 8,
	dtFloat: 4, dtDouble: 8,
}

const maxIFDEntries = 4096

// field is one decoded IFD entry. Raw holds the value bytes in file order.
type field struct {
	Tag   uint16
	Type  uint16
	Count uint32
	Raw   []byte
}

// ifd holds the entries of an image file directory keyed by tag.
type ifd struct {
	order  binary.ByteOrder
	fields map[uint16]field
}

// readHeader validates the TIFF header and returns the byte order and the
// offset of the first IFD.
func readHeader(r io.ReaderAt) (binary.ByteOrder, uint32, error) {
	var hdr [8]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, 0, eris.Wrap(err, "geotiff: read header")
	}

	var order binary.ByteOrder
	switch string(hdr[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, 0, eris.New("geotiff: not a TIFF file")
	}

	switch order.Uint16(hdr[2:4]) {
	case 42:
	case 43:
		return nil, 0, eris.New("geotiff: BigTIFF is not supported")
	default:
		return nil, 0, eris.New("geotiff: bad TIFF magic number")
	}
	return order, order.Uint32(hdr[4:8]), nil
}

// readIFD reads the directory at off. Values stored out of line are fetched
// with one ReadAt each.
func readIFD(r io.ReaderAt, order binary.ByteOrder, off uint32) (*ifd, error) {
	var n [2]byte
	if _, err := r.ReadAt(n[:], int64(off)); err != nil {
		return nil, eris.Wrap(err, "geotiff: read IFD entry count")
	}
	count := int(order.Uint16(n[:]))
	if count == 0 || count > maxIFDEntries {
		return nil, eris.Errorf("geotiff: implausible IFD entry count %d", count)
	}

	buf := make([]byte, count*12)
	if _, err := r.ReadAt(buf, int64(off)+2); err != nil {
		return nil, eris.Wrap(err, "geotiff: read IFD entries")
	}

	d := &ifd{order: order, fields: make(map[uint16]field, count)}
	for i := 0; i < count; i++ {
		e := buf[i*12 : (i+1)*12]
		f := field{
			Tag:   order.Uint16(e[0:2]),
			Type:  order.Uint16(e[2:4]),
			Count: order.Uint32(e[4:8]),
		}
		size, ok := typeSize[f.Type]
		if !ok {
			// Unknown types are skipped per the TIFF 6.0 rules.
			continue
		}
		n := uint64(size) * uint64(f.Count)
		if n > 1<<28 {
			return nil, eris.Errorf("geotiff: tag %d value too large (%d bytes)", f.Tag, n)
		}
		if n <= 4 {
			f.Raw = append([]byte(nil), e[8:8+n]...)
		} else {
			f.Raw = make([]byte, n)
			if _, err := r.ReadAt(f.Raw, int64(order.Uint32(e[8:12]))); err != nil {
				return nil, eris.Wrapf(err, "geotiff: read value of tag %d", f.Tag)
			}
		}
		d.fields[f.Tag] = f
	}
	return d, nil
}

func (d *ifd) has(tag uint16) bool {
	_, ok := d.fields[tag]
	return ok
}

// uints returns an integer-typed field as uint64 values.
func (d *ifd) uints(tag uint16) ([]uint64, error) {
	f, ok := d.fields[tag]
	if !ok {
		return nil, nil
	}
	out := make([]uint64, f.Count)
	for i := range out {
		switch f.Type {
		case dtByte, dtUndefined:
			out[i] = uint64(f.Raw[i])
		case dtShort:
			out[i] = uint64(d.order.Uint16(f.Raw[i*2:]))
		case dtLong:
			out[i] = uint64(d.order.Uint32(f.Raw[i*4:]))
		default:
			return nil, eris.Errorf("geotiff: tag %d has non-integer type %d", tag, f.Type)
		}
	}
	return out, nil
}

// uint returns the first value of an integer field, or def when absent.
func (d *ifd) uint(tag uint16, def uint64) (uint64, error) {
	v, err := d.uints(tag)
	if err != nil {
		return 0, err
	}
	if len(v) == 0 {
		return def, nil
	}
	return v[0], nil
}

func (d *ifd) shorts(tag uint16) ([]uint16, error) {
	v, err := d.uints(tag)
	if err != nil || v == nil {
		return nil, err
	}
	out := make([]uint16, len(v))
	for i, x := range v {
		out[i] = uint16(x)
	}
	return out, nil
}

func (d *ifd) doubles(tag uint16) ([]float64, error) {
	f, ok := d.fields[tag]
	if !ok {
		return nil, nil
	}
	out := make([]float64, f.Count)
	for i := range out {
		switch f.Type {
		case dtDouble:
			out[i] = math.Float64frombits(d.order.Uint64(f.Raw[i*8:]))
		case dtFloat:
			out[i] = float64(math.Float32frombits(d.order.Uint32(f.Raw[i*4:])))
		default:
			return nil, eris.Errorf("geotiff: tag %d has non-float type %d", tag, f.Type)
		}
	}
	return out, nil
}

func (d *ifd) ascii(tag uint16) string {
	f, ok := d.fields[tag]
	if !ok || f.Type != dtASCII {
		return ""
	}
	return strings.TrimRight(string(f.Raw), "\x00")
}
