package aoi

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/mobiodiv/internal/geo"
	"github.com/sells-group/mobiodiv/internal/model"
)

// ResolveFile reads an explicit boundary from a shapefile or GeoJSON file in
// EPSG:4326 and buffers it by bufferKM kilometres. name labels the result;
// when empty the file's base name is used.
func (r *Resolver) ResolveFile(ctx context.Context, path, name string, bufferKM float64) (*model.AreaOfInterest, error) {
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := checkBuffer(bufferKM); err != nil {
		return nil, &ResolutionError{Place: name, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &ResolutionError{Place: name, Err: err}
	}

	var (
		g   geom.T
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		g, err = readShapefile(path)
	case ".geojson", ".json":
		g, err = readGeoJSON(path)
	default:
		err = eris.Errorf("unsupported boundary file %q (want .shp, .geojson or .json)", path)
	}
	if err != nil {
		return nil, &ResolutionError{Place: name, Err: err}
	}

	zap.L().Info("aoi: loaded boundary file",
		zap.String("component", "aoi"),
		zap.String("path", path),
		zap.String("type", strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")),
	)

	a, err := r.build(name, path, g, bufferKM)
	if err != nil {
		return nil, &ResolutionError{Place: name, Err: err}
	}
	return a, nil
}

// readShapefile merges every polygon record of a shapefile into one
// MultiPolygon. Clockwise rings start a new polygon; counter-clockwise
// rings are holes of the polygon before them.
func readShapefile(path string) (geom.T, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		p, ok := shape.(*shp.Polygon)
		if !ok || p == nil || p.NumParts == 0 {
			skipped++
			continue
		}
		for _, poly := range shpPolygons(p) {
			if err := mp.Push(poly); err != nil {
				skipped++
			}
		}
	}

	if skipped > 0 {
		zap.L().Debug("aoi: skipped shapefile records", zap.String("path", path), zap.Int("skipped", skipped))
	}
	if mp.NumPolygons() == 0 {
		return nil, eris.Errorf("shapefile %s has no polygon records", path)
	}
	if mp.NumPolygons() == 1 {
		return mp.Polygon(0), nil
	}
	return mp, nil
}

func shpPolygons(p *shp.Polygon) []*geom.Polygon {
	var rings [][][]geom.Coord
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start < 0 || end > int32(len(p.Points)) || end-start < 4 {
			continue
		}

		ring := make([]geom.Coord, 0, end-start)
		for j := start; j < end; j++ {
			ring = append(ring, geom.Coord{p.Points[j].X, p.Points[j].Y})
		}

		hole := geo.SignedArea(ring) > 0
		if hole && len(rings) > 0 {
			last := len(rings) - 1
			rings[last] = append(rings[last], ring)
			continue
		}
		rings = append(rings, [][]geom.Coord{ring})
	}

	out := make([]*geom.Polygon, 0, len(rings))
	for _, coords := range rings {
		poly, err := geom.NewPolygon(geom.XY).SetCoords(coords)
		if err != nil {
			continue
		}
		out = append(out, poly)
	}
	return out
}

// readGeoJSON accepts a bare geometry, a Feature or a FeatureCollection.
// Polygonal features of a collection are merged into a MultiPolygon.
func readGeoJSON(path string) (geom.T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, eris.Wrapf(err, "parse %s", path)
	}

	switch head.Type {
	case "FeatureCollection":
		var fc geojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, eris.Wrapf(err, "parse feature collection %s", path)
		}
		geoms := make([]geom.T, 0, len(fc.Features))
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
		return mergePolygons(geoms)
	case "Feature":
		var f geojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, eris.Wrapf(err, "parse feature %s", path)
		}
		return f.Geometry, nil
	default:
		var g geom.T
		if err := geojson.Unmarshal(data, &g); err != nil {
			return nil, eris.Wrapf(err, "parse geometry %s", path)
		}
		return g, nil
	}
}

func mergePolygons(geoms []geom.T) (geom.T, error) {
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for _, g := range geoms {
		switch t := g.(type) {
		case *geom.Polygon:
			if err := mp.Push(t); err != nil {
				return nil, eris.Wrap(err, "merge polygon")
			}
		case *geom.MultiPolygon:
			for i := 0; i < t.NumPolygons(); i++ {
				if err := mp.Push(t.Polygon(i)); err != nil {
					return nil, eris.Wrap(err, "merge polygon")
				}
			}
		}
	}
	switch mp.NumPolygons() {
	case 0:
		return nil, eris.New("feature collection has no polygon features")
	case 1:
		return mp.Polygon(0), nil
	default:
		return mp, nil
	}
}
