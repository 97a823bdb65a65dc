package geocode

import (
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/mobiodiv/internal/resilience"
)

// nominatimTransport sends requests addressed to the public Nominatim host
// to a local test server instead. Path and query are left untouched so the
// handler sees exactly what the client built.
type nominatimTransport struct {
	target *url.URL
}

func (t *nominatimTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Host != "nominatim.openstreetmap.org" {
		return http.DefaultTransport.RoundTrip(req)
	}
	out := req.Clone(req.Context())
	out.URL.Scheme = t.target.Scheme
	out.URL.Host = t.target.Host
	out.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(out)
}

// newTestClient builds a client on the default base URL, pointed at srvURL,
// with no rate limit and millisecond retries.
func newTestClient(srvURL string, opts ...Option) Client {
	target, err := url.Parse(srvURL)
	if err != nil {
		panic(err)
	}
	base := []Option{
		WithHTTPClient(&http.Client{Transport: &nominatimTransport{target: target}}),
		WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond}),
	}
	c := NewClient(append(base, opts...)...)
	c.(*geocoder).limiter = rate.NewLimiter(rate.Inf, 1)
	return c
}
