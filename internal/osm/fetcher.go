// Package osm downloads the drivable OpenStreetMap road network of an area
// from an Overpass API endpoint and turns it into directed edges.
package osm

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mobiodiv/internal/fetcher"
	"github.com/sells-group/mobiodiv/internal/model"
)

// Options configures a Fetcher.
type Options struct {
	URL             string
	MaxPolyVertices int
	// TimeoutSecs is the server-side query timeout sent to Overpass.
	TimeoutSecs int
}

// Fetcher downloads road networks.
type Fetcher struct {
	fetcher fetcher.Fetcher
	opts    Options
}

// NewFetcher creates a road network fetcher.
func NewFetcher(f fetcher.Fetcher, opts Options) *Fetcher {
	if opts.MaxPolyVertices < 4 {
		opts.MaxPolyVertices = 500
	}
	if opts.TimeoutSecs <= 0 {
		opts.TimeoutSecs = 180
	}
	return &Fetcher{fetcher: f, opts: opts}
}

// Fetch returns the directed drivable edges of aoi. An area with no roads
// yields an empty slice. Download and decode failures are returned as
// *NetworkFetchError.
func (f *Fetcher) Fetch(ctx context.Context, aoi *model.AreaOfInterest) ([]model.RoadEdge, error) {
	if aoi == nil {
		return nil, &NetworkFetchError{Err: eris.New("no area of interest")}
	}
	polys := aoi.Polygons()
	if len(polys) == 0 {
		return nil, &NetworkFetchError{Err: eris.Errorf("area %q has no polygons", aoi.Name)}
	}

	log := zap.L().With(zap.String("component", "osm"), zap.String("area", aoi.Name))

	query := BuildQuery(polys, f.opts.MaxPolyVertices, f.opts.TimeoutSecs)
	form := url.Values{"data": {query}}.Encode()

	body, err := f.fetcher.Post(ctx, f.opts.URL, "application/x-www-form-urlencoded", []byte(form))
	if err != nil {
		return nil, &NetworkFetchError{Err: eris.Wrap(err, "overpass request")}
	}
	res, err := fetcher.DecodeJSONBody[response](body)
	if err != nil {
		return nil, &NetworkFetchError{Err: eris.Wrap(err, "decode overpass response")}
	}
	if strings.HasPrefix(res.Remark, "runtime error") {
		return nil, &NetworkFetchError{Err: eris.Errorf("overpass: %s", res.Remark)}
	}

	edges := buildEdges(res.Elements, aoi.Geometry)
	if edges == nil {
		edges = []model.RoadEdge{}
	}
	log.Info("osm: built road network",
		zap.Int("elements", len(res.Elements)),
		zap.Int("edges", len(edges)),
	)
	return edges, nil
}
