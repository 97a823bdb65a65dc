package geotiff

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zlib"
	"github.com/rotisserie/eris"
)

// EncodeOptions controls the on-disk layout of written files.
type EncodeOptions struct {
	// Compression is CompressionNone or CompressionDeflate.
	Compression uint16
	// Predictor enables horizontal differencing before compression.
	Predictor bool
	// TileSize writes square tiles of this size (a multiple of 16) instead
	// of strips when positive.
	TileSize int
}

// DefaultEncodeOptions writes deflate-compressed strips.
var DefaultEncodeOptions = EncodeOptions{Compression: CompressionDeflate}

const targetStripBytes = 64 << 10

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

func shortsEntry(tag uint16, v ...uint16) entry {
	b := make([]byte, 2*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint16(b[i*2:], x)
	}
	return entry{tag: tag, typ: dtShort, count: uint32(len(v)), data: b}
}

func longsEntry(tag uint16, v ...uint32) entry {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[i*4:], x)
	}
	return entry{tag: tag, typ: dtLong, count: uint32(len(v)), data: b}
}

func doublesEntry(tag uint16, v ...float64) entry {
	b := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(x))
	}
	return entry{tag: tag, typ: dtDouble, count: uint32(len(v)), data: b}
}

func asciiEntry(tag uint16, s string) entry {
	b := append([]byte(s), 0)
	return entry{tag: tag, typ: dtASCII, count: uint32(len(b)), data: b}
}

// Encode writes r as a little-endian classic GeoTIFF.
func Encode(w io.Writer, r *Raster, opts EncodeOptions) error {
	if r == nil || r.Width <= 0 || r.Height <= 0 {
		return eris.New("geotiff: refusing to encode an empty raster")
	}
	pb := r.PixelBytes()
	if pb <= 0 || r.BitsPerSample%8 != 0 {
		return eris.Errorf("geotiff: unsupported sample layout %d x %d bits", r.SamplesPerPixel, r.BitsPerSample)
	}
	if len(r.Pix) != r.Width*r.Height*pb {
		return eris.Errorf("geotiff: pixel buffer has %d bytes, want %d", len(r.Pix), r.Width*r.Height*pb)
	}
	switch opts.Compression {
	case 0:
		opts.Compression = CompressionNone
	case CompressionNone, CompressionDeflate:
	default:
		return eris.Errorf("geotiff: cannot encode compression %d", opts.Compression)
	}
	if opts.TileSize < 0 || opts.TileSize%16 != 0 {
		return eris.Errorf("geotiff: tile size %d is not a multiple of 16", opts.TileSize)
	}

	chunkW, chunkH := r.Width, min(r.Height, max(1, targetStripBytes/(r.Width*pb)))
	if opts.TileSize > 0 {
		chunkW, chunkH = opts.TileSize, opts.TileSize
	}
	across := (r.Width + chunkW - 1) / chunkW
	down := (r.Height + chunkH - 1) / chunkH

	var body bytes.Buffer
	body.Write(make([]byte, 8))
	offsets := make([]uint32, 0, across*down)
	counts := make([]uint32, 0, across*down)
	for cy := 0; cy < down; cy++ {
		for cx := 0; cx < across; cx++ {
			raw := extractChunk(r, cx, cy, chunkW, chunkH, opts.TileSize > 0)
			if opts.Predictor {
				applyPredictor(raw, chunkW, r.SamplesPerPixel, r.BitsPerSample/8)
			}
			data, err := compress(opts.Compression, raw)
			if err != nil {
				return err
			}
			pad(&body)
			offsets = append(offsets, uint32(body.Len()))
			counts = append(counts, uint32(len(data)))
			body.Write(data)
			if body.Len() > math.MaxUint32/2 {
				return eris.New("geotiff: output exceeds classic TIFF size")
			}
		}
	}

	bits := make([]uint16, r.SamplesPerPixel)
	formats := make([]uint16, r.SamplesPerPixel)
	for i := range bits {
		bits[i] = uint16(r.BitsPerSample)
		formats[i] = max(r.SampleFormat, sampleFormatUint)
	}
	photometric := r.Photometric
	if len(r.ColorMap) == 0 && photometric == 3 {
		photometric = photometricBlackIsZero
	}

	entries := []entry{
		longsEntry(tagImageWidth, uint32(r.Width)),
		longsEntry(tagImageLength, uint32(r.Height)),
		shortsEntry(tagBitsPerSample, bits...),
		shortsEntry(tagCompression, opts.Compression),
		shortsEntry(tagPhotometric, photometric),
		shortsEntry(tagSamplesPerPixel, uint16(r.SamplesPerPixel)),
		shortsEntry(tagPlanarConfig, planarChunky),
		shortsEntry(tagSampleFormat, formats...),
	}
	if opts.TileSize > 0 {
		entries = append(entries,
			longsEntry(tagTileWidth, uint32(chunkW)),
			longsEntry(tagTileLength, uint32(chunkH)),
			longsEntry(tagTileOffsets, offsets...),
			longsEntry(tagTileByteCounts, counts...),
		)
	} else {
		entries = append(entries,
			longsEntry(tagStripOffsets, offsets...),
			longsEntry(tagRowsPerStrip, uint32(chunkH)),
			longsEntry(tagStripByteCounts, counts...),
		)
	}
	if opts.Predictor {
		entries = append(entries, shortsEntry(tagPredictor, predictorHorizontal))
	}
	if len(r.ColorMap) > 0 {
		entries = append(entries, shortsEntry(tagColorMap, r.ColorMap...))
	}

	t := r.Transform
	if t.B == 0 && t.D == 0 {
		entries = append(entries,
			doublesEntry(tagModelPixelScale, t.A, -t.E, 0),
			doublesEntry(tagModelTiepoint, 0, 0, 0, t.C, t.F, 0),
		)
	} else {
		entries = append(entries, doublesEntry(tagModelTransform,
			t.A, t.B, 0, t.C,
			t.D, t.E, 0, t.F,
			0, 0, 0, 0,
			0, 0, 0, 1,
		))
	}

	keys := r.GeoKeys
	if len(keys) == 0 {
		keys = GeoKeys4326
	}
	entries = append(entries, shortsEntry(tagGeoKeyDirectory, keys...))
	if len(r.GeoDoubles) > 0 {
		entries = append(entries, doublesEntry(tagGeoDoubleParams, r.GeoDoubles...))
	}
	if r.GeoASCII != "" {
		entries = append(entries, asciiEntry(tagGeoASCIIParams, r.GeoASCII))
	}
	if r.NoData != "" {
		entries = append(entries, asciiEntry(tagGDALNoData, r.NoData))
	}

	pad(&body)
	ifdOffset := uint32(body.Len())
	copy(body.Bytes()[0:2], "II")
	binary.LittleEndian.PutUint16(body.Bytes()[2:], 42)
	binary.LittleEndian.PutUint32(body.Bytes()[4:], ifdOffset)

	writeIFD(&body, ifdOffset, entries)
	if _, err := w.Write(body.Bytes()); err != nil {
		return eris.Wrap(err, "geotiff: write")
	}
	return nil
}

func pad(b *bytes.Buffer) {
	if b.Len()%2 == 1 {
		b.WriteByte(0)
	}
}

// writeIFD appends the directory at ifdOffset followed by the out-of-line
// values it points to.
func writeIFD(b *bytes.Buffer, ifdOffset uint32, entries []entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	ext := ifdOffset + 2 + uint32(len(entries))*12 + 4
	var extra bytes.Buffer
	var rec [12]byte

	_ = binary.Write(b, binary.LittleEndian, uint16(len(entries)))
	for _, e := range entries {
		clear(rec[:])
		binary.LittleEndian.PutUint16(rec[0:], e.tag)
		binary.LittleEndian.PutUint16(rec[2:], e.typ)
		binary.LittleEndian.PutUint32(rec[4:], e.count)
		if len(e.data) <= 4 {
			copy(rec[8:], e.data)
		} else {
			binary.LittleEndian.PutUint32(rec[8:], ext+uint32(extra.Len()))
			extra.Write(e.data)
			pad(&extra)
		}
		b.Write(rec[:])
	}
	_ = binary.Write(b, binary.LittleEndian, uint32(0))
	b.Write(extra.Bytes())
}

// extractChunk copies a tile or strip out of r. Tiles on the right and
// bottom edges are zero padded to full size.
func extractChunk(r *Raster, cx, cy, chunkW, chunkH int, tiled bool) []byte {
	pb := r.PixelBytes()
	rows := chunkH
	if !tiled {
		rows = min(chunkH, r.Height-cy*chunkH)
	}
	buf := make([]byte, chunkW*rows*pb)

	x0 := cx * chunkW
	n := min(chunkW, r.Width-x0) * pb
	for y := 0; y < rows; y++ {
		sy := cy*chunkH + y
		if sy >= r.Height {
			break
		}
		src := (sy*r.Width + x0) * pb
		copy(buf[y*chunkW*pb:], r.Pix[src:src+n])
	}
	return buf
}

func applyPredictor(buf []byte, rowPixels, spp, bytesPerSample int) {
	rowBytes := rowPixels * spp * bytesPerSample
	stride := spp * bytesPerSample
	le := binary.LittleEndian
	for start := 0; start+rowBytes <= len(buf); start += rowBytes {
		row := buf[start : start+rowBytes]
		for i := len(row) - bytesPerSample; i >= stride; i -= bytesPerSample {
			switch bytesPerSample {
			case 1:
				row[i] -= row[i-stride]
			case 2:
				le.PutUint16(row[i:], le.Uint16(row[i:])-le.Uint16(row[i-stride:]))
			case 4:
				le.PutUint32(row[i:], le.Uint32(row[i:])-le.Uint32(row[i-stride:]))
			case 8:
				le.PutUint64(row[i:], le.Uint64(row[i:])-le.Uint64(row[i-stride:]))
			}
		}
	}
}

func compress(compression uint16, raw []byte) ([]byte, error) {
	if compression == CompressionNone {
		return raw, nil
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, eris.Wrap(err, "geotiff: deflate chunk")
	}
	if err := zw.Close(); err != nil {
		return nil, eris.Wrap(err, "geotiff: deflate chunk")
	}
	return buf.Bytes(), nil
}

// WriteFile encodes r to path with DefaultEncodeOptions. The file appears
// atomically.
func WriteFile(path string, r *Raster) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "geotiff: create temp file for %s", path)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := Encode(tmp, r, DefaultEncodeOptions); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "geotiff: close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "geotiff: rename to %s", path)
	}
	return nil
}
