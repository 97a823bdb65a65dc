// Package geocode resolves place names to boundary polygons via Nominatim.
package geocode

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"golang.org/x/time/rate"

	"github.com/sells-group/mobiodiv/internal/resilience"
)

const defaultBaseURL = "https://nominatim.openstreetmap.org"

// ErrNoMatch is returned when no search result carries a polygon boundary.
var ErrNoMatch = eris.New("geocode: no polygon boundary found")

// Client resolves place names to boundaries.
type Client interface {
	// Boundary returns the first search result for query whose geometry is
	// a Polygon or MultiPolygon.
	Boundary(ctx context.Context, query string) (*Place, error)
}

// Place is a geocoded boundary in EPSG:4326.
type Place struct {
	Query       string
	DisplayName string
	OSMType     string
	OSMID       int64
	Category    string
	Type        string
	Geometry    geom.T
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithBaseURL points the client at a different Nominatim instance.
func WithBaseURL(u string) Option {
	return func(g *geocoder) {
		g.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit. The public Nominatim
// usage policy allows one request per second.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithUserAgent sets the User-Agent header. Nominatim rejects anonymous clients.
func WithUserAgent(ua string) Option {
	return func(g *geocoder) {
		g.userAgent = ua
	}
}

// WithEmail adds the contact email parameter recommended for bulk users.
func WithEmail(email string) Option {
	return func(g *geocoder) {
		g.email = email
	}
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(g *geocoder) {
		g.retry = cfg
	}
}

type geocoder struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
	email      string
	retry      resilience.RetryConfig
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(1, 1),
		userAgent:  "mobiodiv/1.0",
		retry:      resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}
