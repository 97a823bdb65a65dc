package gpkg

import (
	"encoding/binary"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

const (
	flagLittleEndian = 0x01
	flagEnvelopeXY   = 0x02
	flagEmpty        = 0x10
)

// EncodeGeometry returns the GeoPackage binary encoding of g: the "GP"
// header with an XY envelope followed by little-endian WKB.
func EncodeGeometry(g geom.T, srsID int32) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	body, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: encode wkb")
	}

	empty := isEmpty(g)
	size := 8 + len(body)
	if !empty {
		size += 32
	}
	out := make([]byte, 8, size)
	out[0], out[1], out[2] = 'G', 'P', 0
	if empty {
		out[3] = flagLittleEndian | flagEmpty
	} else {
		out[3] = flagLittleEndian | flagEnvelopeXY
	}
	binary.LittleEndian.PutUint32(out[4:8], uint32(srsID))

	if !empty {
		b := g.Bounds()
		for _, v := range []float64{b.Min(0), b.Max(0), b.Min(1), b.Max(1)} {
			out = binary.LittleEndian.AppendUint64(out, math.Float64bits(v))
		}
	}
	return append(out, body...), nil
}

// DecodeGeometry parses a GeoPackage geometry blob.
func DecodeGeometry(blob []byte) (geom.T, int32, error) {
	if len(blob) < 8 || blob[0] != 'G' || blob[1] != 'P' {
		return nil, 0, eris.New("gpkg: not a geometry blob")
	}
	flags := blob[3]
	var order binary.ByteOrder = binary.BigEndian
	if flags&flagLittleEndian != 0 {
		order = binary.LittleEndian
	}
	srsID := int32(order.Uint32(blob[4:8]))

	var envLen int
	switch (flags >> 1) & 0x07 {
	case 0:
	case 1:
		envLen = 32
	case 2, 3:
		envLen = 48
	case 4:
		envLen = 64
	default:
		return nil, 0, eris.Errorf("gpkg: bad envelope code in flags %#x", flags)
	}
	if len(blob) < 8+envLen {
		return nil, 0, eris.New("gpkg: truncated geometry blob")
	}

	g, err := wkb.Unmarshal(blob[8+envLen:])
	if err != nil {
		return nil, 0, eris.Wrap(err, "gpkg: decode wkb")
	}
	return g, srsID, nil
}

func isEmpty(g geom.T) bool {
	return g == nil || len(g.FlatCoords()) == 0
}

// typeName returns the GeoPackage geometry type name of g.
func typeName(g geom.T) string {
	switch g.(type) {
	case *geom.Point:
		return "POINT"
	case *geom.LineString:
		return "LINESTRING"
	case *geom.Polygon:
		return "POLYGON"
	case *geom.MultiPoint:
		return "MULTIPOINT"
	case *geom.MultiLineString:
		return "MULTILINESTRING"
	case *geom.MultiPolygon:
		return "MULTIPOLYGON"
	default:
		return "GEOMETRY"
	}
}
