package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/mobiodiv/internal/resilience"
)

// nominatimResult is one element of a jsonv2 search response.
type nominatimResult struct {
	PlaceID     int64           `json:"place_id"`
	OSMType     string          `json:"osm_type"`
	OSMID       int64           `json:"osm_id"`
	Category    string          `json:"category"`
	Type        string          `json:"type"`
	DisplayName string          `json:"display_name"`
	GeoJSON     json.RawMessage `json:"geojson"`
}

// Boundary searches Nominatim and returns the first polygonal result.
func (g *geocoder) Boundary(ctx context.Context, query string) (*Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, eris.New("geocode: empty query")
	}

	results, err := resilience.DoVal(ctx, g.retry, func(ctx context.Context) ([]nominatimResult, error) {
		return g.search(ctx, query)
	})
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if len(r.GeoJSON) == 0 {
			continue
		}
		var gt geom.T
		if err := geojson.Unmarshal(r.GeoJSON, &gt); err != nil {
			zap.L().Debug("geocode: skipping undecodable geometry",
				zap.String("display_name", r.DisplayName),
				zap.Error(err),
			)
			continue
		}
		switch gt.(type) {
		case *geom.Polygon, *geom.MultiPolygon:
		default:
			continue
		}
		return &Place{
			Query:       query,
			DisplayName: r.DisplayName,
			OSMType:     r.OSMType,
			OSMID:       r.OSMID,
			Category:    r.Category,
			Type:        r.Type,
			Geometry:    gt,
		}, nil
	}

	return nil, eris.Wrapf(ErrNoMatch, "geocode: %q (%d results)", query, len(results))
}

func (g *geocoder) search(ctx context.Context, query string) ([]nominatimResult, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim rate limit")
	}

	params := url.Values{
		"q":               {query},
		"format":          {"jsonv2"},
		"polygon_geojson": {"1"},
		"limit":           {"10"},
	}
	if g.email != "" {
		params.Set("email", g.email)
	}

	reqURL := strings.TrimRight(g.baseURL, "/") + "/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim build request")
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("geocode: nominatim returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim read body")
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, eris.Wrap(err, "geocode: nominatim parse response")
	}
	return results, nil
}
