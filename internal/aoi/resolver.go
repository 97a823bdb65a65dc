// Package aoi builds the area of interest for a run from a place name or an
// explicit boundary file, optionally buffered outward.
package aoi

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/mobiodiv/internal/geo"
	"github.com/sells-group/mobiodiv/internal/model"
	"github.com/sells-group/mobiodiv/pkg/geocode"
)

// DefaultBufferSegments is the number of sides of the dilation polygon.
const DefaultBufferSegments = 32

// Resolver turns place names or boundary files into areas of interest.
type Resolver struct {
	geocoder geocode.Client
	segments int
}

// NewResolver creates a Resolver. segments <= 0 selects DefaultBufferSegments.
func NewResolver(gc geocode.Client, segments int) *Resolver {
	if segments <= 0 {
		segments = DefaultBufferSegments
	}
	return &Resolver{geocoder: gc, segments: segments}
}

// Resolve geocodes place and buffers the boundary by bufferKM kilometres.
func (r *Resolver) Resolve(ctx context.Context, place string, bufferKM float64) (*model.AreaOfInterest, error) {
	if err := checkBuffer(bufferKM); err != nil {
		return nil, &ResolutionError{Place: place, Err: err}
	}
	if r.geocoder == nil {
		return nil, &ResolutionError{Place: place, Err: eris.New("no geocoder configured")}
	}

	log := zap.L().With(zap.String("component", "aoi"), zap.String("place", place))

	found, err := r.geocoder.Boundary(ctx, place)
	if err != nil {
		return nil, &ResolutionError{Place: place, Err: err}
	}
	log.Info("aoi: geocoded boundary",
		zap.String("display_name", found.DisplayName),
		zap.String("osm_type", found.OSMType),
		zap.Int64("osm_id", found.OSMID),
	)

	a, err := r.build(place, "nominatim", found.Geometry, bufferKM)
	if err != nil {
		return nil, &ResolutionError{Place: place, Err: err}
	}
	return a, nil
}

func (r *Resolver) build(name, source string, g geom.T, bufferKM float64) (*model.AreaOfInterest, error) {
	if err := validate(g); err != nil {
		return nil, err
	}

	if bufferKM > 0 {
		buffered, err := geo.Buffer(g, bufferKM*1000, r.segments)
		if err != nil {
			return nil, eris.Wrap(err, "buffer boundary")
		}
		g = buffered
	}

	return &model.AreaOfInterest{
		Name:     name,
		Source:   source,
		Geometry: g,
		BBox:     model.BBoxOf(g),
		BufferKM: bufferKM,
	}, nil
}

func checkBuffer(km float64) error {
	if math.IsNaN(km) || math.IsInf(km, 0) || km < 0 {
		return eris.Errorf("buffer distance must be a finite non-negative number, got %g", km)
	}
	return nil
}

// validate checks that g is a non-empty Polygon or MultiPolygon whose rings
// are closed and have at least four vertices.
func validate(g geom.T) error {
	var polys []*geom.Polygon
	switch t := g.(type) {
	case *geom.Polygon:
		polys = []*geom.Polygon{t}
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			polys = append(polys, t.Polygon(i))
		}
	case nil:
		return eris.New("boundary has no geometry")
	default:
		return eris.Errorf("boundary geometry is %T, want Polygon or MultiPolygon", g)
	}

	if len(polys) == 0 {
		return eris.New("boundary geometry is empty")
	}
	for i, p := range polys {
		if p.NumLinearRings() == 0 {
			return eris.Errorf("polygon %d has no rings", i)
		}
		for j := 0; j < p.NumLinearRings(); j++ {
			ring := p.LinearRing(j).Coords()
			if len(ring) < 4 {
				return eris.Errorf("polygon %d ring %d has %d vertices", i, j, len(ring))
			}
			if !ring[0].Equal(geom.XY, ring[len(ring)-1]) {
				return eris.Errorf("polygon %d ring %d is not closed", i, j)
			}
		}
	}
	return nil
}
