package geotiff

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/rotisserie/eris"
	"golang.org/x/image/tiff/lzw"
)

// decompress inflates one tile or strip. want is the decoded size; shorter
// output is an error, longer output is truncated.
func decompress(compression uint16, data []byte, want int) ([]byte, error) {
	var rc io.ReadCloser
	switch compression {
	case CompressionNone:
		if len(data) < want {
			return nil, eris.Errorf("geotiff: chunk has %d bytes, want %d", len(data), want)
		}
		return data[:want], nil
	case CompressionDeflate, CompressionDeflateOld:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, eris.Wrap(err, "geotiff: open deflate stream")
		}
		rc = zr
	case CompressionLZW:
		rc = lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
	default:
		return nil, eris.Errorf("geotiff: unsupported compression %d", compression)
	}
	defer rc.Close() //nolint:errcheck

	out := make([]byte, want)
	n, err := io.ReadFull(rc, out)
	if err != nil && !(err == io.ErrUnexpectedEOF && n == want) {
		return nil, eris.Wrapf(err, "geotiff: decompress chunk (%d of %d bytes)", n, want)
	}
	return out, nil
}

// undoPredictor reverses horizontal differencing in place. buf holds rows of
// rowPixels pixels with spp samples of bytesPerSample each, in file order.
func undoPredictor(buf []byte, order binary.ByteOrder, rowPixels, spp, bytesPerSample int) error {
	rowBytes := rowPixels * spp * bytesPerSample
	if rowBytes == 0 {
		return nil
	}
	for start := 0; start+rowBytes <= len(buf); start += rowBytes {
		row := buf[start : start+rowBytes]
		switch bytesPerSample {
		case 1:
			for i := spp; i < len(row); i++ {
				row[i] += row[i-spp]
			}
		case 2:
			stride := spp * 2
			for i := stride; i+2 <= len(row); i += 2 {
				order.PutUint16(row[i:], order.Uint16(row[i:])+order.Uint16(row[i-stride:]))
			}
		case 4:
			stride := spp * 4
			for i := stride; i+4 <= len(row); i += 4 {
				order.PutUint32(row[i:], order.Uint32(row[i:])+order.Uint32(row[i-stride:]))
			}
		case 8:
			stride := spp * 8
			for i := stride; i+8 <= len(row); i += 8 {
				order.PutUint64(row[i:], order.Uint64(row[i:])+order.Uint64(row[i-stride:]))
			}
		default:
			return eris.Errorf("geotiff: predictor on %d-byte samples", bytesPerSample)
		}
	}
	return nil
}

// toLittleEndian swaps multi-byte samples of a big-endian buffer in place.
func toLittleEndian(buf []byte, bytesPerSample int) {
	if bytesPerSample < 2 {
		return
	}
	for i := 0; i+bytesPerSample <= len(buf); i += bytesPerSample {
		s := buf[i : i+bytesPerSample]
		for a, b := 0, len(s)-1; a < b; a, b = a+1, b-1 {
			s[a], s[b] = s[b], s[a]
		}
	}
}
