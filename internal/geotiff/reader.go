package geotiff

import (
	"encoding/binary"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mobiodiv/internal/model"
)

// Reader decodes windows of the first (full resolution) image of a GeoTIFF.
// Only the chunks a window touches are read from the source.
type Reader struct {
	src   io.ReaderAt
	order binary.ByteOrder

	width, height  int
	spp            int
	bitsPerSample  int
	sampleFormat   uint16
	photometric    uint16
	compression    uint16
	predictor      uint16
	tiled          bool
	chunkW, chunkH int
	chunksAcross   int
	chunksDown     int
	offsets        []uint64
	counts         []uint64

	transform  Affine
	geoKeys    []uint16
	geoDoubles []float64
	geoASCII   string
	noData     string
	colorMap   []uint16
}

// Open parses the header and first IFD of src.
func Open(src io.ReaderAt) (*Reader, error) {
	order, off, err := readHeader(src)
	if err != nil {
		return nil, err
	}
	d, err := readIFD(src, order, off)
	if err != nil {
		return nil, err
	}

	r := &Reader{src: src, order: order}
	if err := r.parse(d); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) parse(d *ifd) error {
	w, err := d.uint(tagImageWidth, 0)
	if err != nil {
		return err
	}
	h, err := d.uint(tagImageLength, 0)
	if err != nil {
		return err
	}
	if w == 0 || h == 0 || w > 1<<20 || h > 1<<20 {
		return eris.Errorf("geotiff: bad image size %dx%d", w, h)
	}
	r.width, r.height = int(w), int(h)

	spp, err := d.uint(tagSamplesPerPixel, 1)
	if err != nil {
		return err
	}
	if spp == 0 || spp > 64 {
		return eris.Errorf("geotiff: bad samples per pixel %d", spp)
	}
	r.spp = int(spp)

	bits, err := d.uints(tagBitsPerSample)
	if err != nil {
		return err
	}
	if len(bits) == 0 {
		bits = []uint64{1}
	}
	for _, b := range bits {
		if b != bits[0] {
			return eris.New("geotiff: mixed bits per sample are not supported")
		}
	}
	switch bits[0] {
	case 8, 16, 32, 64:
	default:
		return eris.Errorf("geotiff: %d bits per sample is not supported", bits[0])
	}
	r.bitsPerSample = int(bits[0])

	planar, err := d.uint(tagPlanarConfig, uint64(planarChunky))
	if err != nil {
		return err
	}
	if uint16(planar) != planarChunky && r.spp > 1 {
		return eris.New("geotiff: planar (band sequential) layout is not supported")
	}

	comp, err := d.uint(tagCompression, uint64(CompressionNone))
	if err != nil {
		return err
	}
	r.compression = uint16(comp)
	switch r.compression {
	case CompressionNone, CompressionLZW, CompressionDeflate, CompressionDeflateOld:
	default:
		return eris.Errorf("geotiff: unsupported compression %d", r.compression)
	}

	pred, err := d.uint(tagPredictor, uint64(predictorNone))
	if err != nil {
		return err
	}
	r.predictor = uint16(pred)
	if r.predictor != predictorNone && r.predictor != predictorHorizontal {
		return eris.Errorf("geotiff: unsupported predictor %d", r.predictor)
	}

	sf, err := d.uint(tagSampleFormat, uint64(sampleFormatUint))
	if err != nil {
		return err
	}
	r.sampleFormat = uint16(sf)
	ph, err := d.uint(tagPhotometric, uint64(photometricBlackIsZero))
	if err != nil {
		return err
	}
	r.photometric = uint16(ph)

	if err := r.parseLayout(d); err != nil {
		return err
	}
	if err := r.parseGeo(d); err != nil {
		return err
	}

	if r.colorMap, err = d.shorts(tagColorMap); err != nil {
		return err
	}
	r.noData = d.ascii(tagGDALNoData)
	return nil
}

func (r *Reader) parseLayout(d *ifd) error {
	if d.has(tagTileWidth) {
		r.tiled = true
		tw, err := d.uint(tagTileWidth, 0)
		if err != nil {
			return err
		}
		th, err := d.uint(tagTileLength, 0)
		if err != nil {
			return err
		}
		if tw == 0 || th == 0 || tw > 1<<16 || th > 1<<16 {
			return eris.Errorf("geotiff: bad tile size %dx%d", tw, th)
		}
		r.chunkW, r.chunkH = int(tw), int(th)
		if r.offsets, err = d.uints(tagTileOffsets); err != nil {
			return err
		}
		if r.counts, err = d.uints(tagTileByteCounts); err != nil {
			return err
		}
	} else {
		rps, err := d.uint(tagRowsPerStrip, uint64(r.height))
		if err != nil {
			return err
		}
		if rps == 0 || rps > uint64(r.height) {
			rps = uint64(r.height)
		}
		r.chunkW, r.chunkH = r.width, int(rps)
		if r.offsets, err = d.uints(tagStripOffsets); err != nil {
			return err
		}
		if r.counts, err = d.uints(tagStripByteCounts); err != nil {
			return err
		}
	}

	r.chunksAcross = (r.width + r.chunkW - 1) / r.chunkW
	r.chunksDown = (r.height + r.chunkH - 1) / r.chunkH
	want := r.chunksAcross * r.chunksDown
	if len(r.offsets) < want || len(r.counts) < want {
		return eris.Errorf("geotiff: %d chunk offsets and %d byte counts, want %d",
			len(r.offsets), len(r.counts), want)
	}
	return nil
}

func (r *Reader) parseGeo(d *ifd) error {
	if m, err := d.doubles(tagModelTransform); err != nil {
		return err
	} else if len(m) >= 16 {
		r.transform = Affine{A: m[0], B: m[1], C: m[3], D: m[4], E: m[5], F: m[7]}
	} else {
		scale, err := d.doubles(tagModelPixelScale)
		if err != nil {
			return err
		}
		tie, err := d.doubles(tagModelTiepoint)
		if err != nil {
			return err
		}
		if len(scale) < 2 || len(tie) < 6 {
			return eris.New("geotiff: file is not georeferenced")
		}
		r.transform = Affine{
			A: scale[0], C: tie[3] - tie[0]*scale[0],
			E: -scale[1], F: tie[4] + tie[1]*scale[1],
		}
	}

	var err error
	if r.geoKeys, err = d.shorts(tagGeoKeyDirectory); err != nil {
		return err
	}
	if r.geoDoubles, err = d.doubles(tagGeoDoubleParams); err != nil {
		return err
	}
	r.geoASCII = d.ascii(tagGeoASCIIParams)
	return nil
}

// Width returns the image width in pixels.
func (r *Reader) Width() int { return r.width }

// Height returns the image height in pixels.
func (r *Reader) Height() int { return r.height }

// Transform returns the pixel to model transform.
func (r *Reader) Transform() Affine { return r.transform }

// Bounds returns the model-space extent of the image.
func (r *Reader) Bounds() model.BBox { return r.transform.Bounds(r.width, r.height) }

// NoData returns the GDAL nodata value as written in the file, or "".
func (r *Reader) NoData() string { return r.noData }

// Window returns the pixel window of b, clamped to the image.
func (r *Reader) Window(b model.BBox) (Window, error) {
	return WindowFor(r.transform, r.width, r.height, b)
}

// Clip reads the pixels of the image inside b. It returns nil when the
// window is empty.
func (r *Reader) Clip(b model.BBox) (*Raster, error) {
	w, err := r.Window(b)
	if err != nil {
		return nil, err
	}
	if w.Empty() {
		return nil, nil
	}
	return r.ReadWindow(w)
}

// ReadWindow decodes w. The returned raster's transform is offset to the
// window origin so its extent is exactly that of the window.
func (r *Reader) ReadWindow(w Window) (*Raster, error) {
	if w.Empty() || w.Col < 0 || w.Row < 0 || w.Col+w.Width > r.width || w.Row+w.Height > r.height {
		return nil, eris.Errorf("geotiff: window %+v outside %dx%d image", w, r.width, r.height)
	}

	pb := r.spp * r.bitsPerSample / 8
	out := &Raster{
		Width:           w.Width,
		Height:          w.Height,
		SamplesPerPixel: r.spp,
		BitsPerSample:   r.bitsPerSample,
		SampleFormat:    r.sampleFormat,
		Photometric:     r.photometric,
		Pix:             make([]byte, w.Width*w.Height*pb),
		Transform:       r.transform.Offset(w.Col, w.Row),
		GeoKeys:         r.geoKeys,
		GeoDoubles:      r.geoDoubles,
		GeoASCII:        r.geoASCII,
		NoData:          r.noData,
		ColorMap:        r.colorMap,
	}

	cx0, cx1 := w.Col/r.chunkW, (w.Col+w.Width-1)/r.chunkW
	cy0, cy1 := w.Row/r.chunkH, (w.Row+w.Height-1)/r.chunkH
	for cy := cy0; cy <= cy1; cy++ {
		for cx := cx0; cx <= cx1; cx++ {
			chunk, rows, err := r.readChunk(cx, cy)
			if err != nil {
				return nil, err
			}

			// Intersection of the chunk and the window in image pixels.
			x0 := max(cx*r.chunkW, w.Col)
			x1 := min((cx+1)*r.chunkW, w.Col+w.Width, r.width)
			y0 := max(cy*r.chunkH, w.Row)
			y1 := min(cy*r.chunkH+rows, w.Row+w.Height)

			n := (x1 - x0) * pb
			for y := y0; y < y1; y++ {
				src := ((y-cy*r.chunkH)*r.chunkW + (x0 - cx*r.chunkW)) * pb
				dst := ((y-w.Row)*w.Width + (x0 - w.Col)) * pb
				copy(out.Pix[dst:dst+n], chunk[src:src+n])
			}
		}
	}
	return out, nil
}

// readChunk returns the decoded tile or strip at (cx, cy) and the number of
// rows it holds.
func (r *Reader) readChunk(cx, cy int) ([]byte, int, error) {
	idx := cy*r.chunksAcross + cx
	rows := r.chunkH
	if !r.tiled && (cy+1)*r.chunkH > r.height {
		rows = r.height - cy*r.chunkH
	}

	bps := r.bitsPerSample / 8
	want := r.chunkW * rows * r.spp * bps

	off, n := r.offsets[idx], r.counts[idx]
	if n == 0 || off == 0 {
		// Sparse chunk.
		return make([]byte, want), rows, nil
	}

	data := make([]byte, n)
	read, err := r.src.ReadAt(data, int64(off))
	if err != nil && !(err == io.EOF && uint64(read) == n) {
		return nil, 0, eris.Wrapf(err, "geotiff: read chunk %d", idx)
	}

	buf, err := decompress(r.compression, data, want)
	if err != nil {
		return nil, 0, eris.Wrapf(err, "geotiff: chunk %d", idx)
	}
	if r.predictor == predictorHorizontal {
		if err := undoPredictor(buf, r.order, r.chunkW, r.spp, bps); err != nil {
			return nil, 0, err
		}
	}
	if r.order == binary.BigEndian {
		toLittleEndian(buf, bps)
	}
	return buf, rows, nil
}
