package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/mobiodiv/internal/aoi"
	"github.com/sells-group/mobiodiv/internal/catalog"
	"github.com/sells-group/mobiodiv/internal/config"
	"github.com/sells-group/mobiodiv/internal/fetcher"
	"github.com/sells-group/mobiodiv/internal/occurrence"
	"github.com/sells-group/mobiodiv/internal/osm"
	"github.com/sells-group/mobiodiv/internal/pipeline"
	"github.com/sells-group/mobiodiv/internal/raster"
	"github.com/sells-group/mobiodiv/internal/resilience"
	"github.com/sells-group/mobiodiv/internal/store"
	"github.com/sells-group/mobiodiv/pkg/geocode"
)

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// newHTTPFetcher builds the shared fetcher settings with a per-service timeout.
func newHTTPFetcher(c *config.Config, timeout time.Duration) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:        c.HTTP.UserAgent,
		Timeout:          timeout,
		MaxRetries:       c.HTTP.MaxRetries,
		BackoffBase:      time.Duration(c.HTTP.BackoffMs) * time.Millisecond,
		RateLimiters:     fetcher.DefaultRateLimiters(),
		AdaptiveLimiters: fetcher.DefaultAdaptiveLimiters(),
	})
}

// initStore opens the run ledger. An unusable ledger never blocks an
// acquisition: it is logged and replaced by one that records nothing.
func initStore(ctx context.Context, c *config.Config) store.Store {
	if c.Store.Driver == "sqlite" {
		if err := os.MkdirAll(c.Data.Dir, 0o755); err != nil {
			zap.L().Warn("ledger unavailable, runs will not be recorded", zap.Error(err))
			return store.NewNop()
		}
	}
	st, err := store.Open(ctx, c.Store, c.Data.Dir)
	if err != nil {
		zap.L().Warn("ledger unavailable, runs will not be recorded",
			zap.String("driver", c.Store.Driver),
			zap.Error(err),
		)
		return store.NewNop()
	}
	return st
}

// newOrchestrator wires every acquisition component from configuration.
func newOrchestrator(c *config.Config, st store.Store) *pipeline.Orchestrator {
	gc := geocode.NewClient(
		geocode.WithBaseURL(c.Geocode.BaseURL),
		geocode.WithUserAgent(c.HTTP.UserAgent),
		geocode.WithEmail(c.Geocode.Email),
		geocode.WithRateLimit(c.Geocode.RateLimit),
		geocode.WithRetry(resilience.FromRetryConfig(c.Geocode.MaxAttempts, c.HTTP.BackoffMs, "nominatim", "search")),
		geocode.WithHTTPClient(&http.Client{Timeout: seconds(c.Geocode.TimeoutSecs)}),
	)

	return pipeline.New(pipeline.OptionsFromConfig(c), pipeline.Deps{
		Resolver: aoi.NewResolver(gc, c.AOI.BufferSegments),
		Catalog: catalog.NewClient(newHTTPFetcher(c, seconds(c.Catalog.TimeoutSecs)), catalog.Options{
			URL:             c.Catalog.URL,
			CollectionHints: c.Catalog.CollectionHints,
			PageLimit:       c.Catalog.PageLimit,
			MaxPages:        c.Catalog.MaxPages,
		}),
		Raster: raster.NewClipFetcher(newHTTPFetcher(c, c.Raster.Timeout()), raster.Options{
			Endpoint:      c.Storage.Endpoint,
			Bucket:        c.Storage.Bucket,
			Prefix:        c.Storage.Prefix,
			Extension:     c.Storage.Extension,
			NamePrefilter: c.Storage.NamePrefilter,
			TileDegrees:   c.Storage.TileDegrees,
			BlockSize:     int64(c.Raster.BlockSizeKB) * 1024,
			Timeout:       c.Raster.Timeout(),
		}),
		Roads: osm.NewFetcher(newHTTPFetcher(c, seconds(c.Roads.TimeoutSecs+30)), osm.Options{
			URL:             c.Roads.OverpassURL,
			MaxPolyVertices: c.Roads.MaxPolyVertices,
			TimeoutSecs:     c.Roads.TimeoutSecs,
		}),
		Occurrences: occurrence.NewFetcher(newHTTPFetcher(c, seconds(c.Occurrence.TimeoutSecs)), occurrence.Options{
			BaseURL:   c.Occurrence.BaseURL,
			PageSize:  c.Occurrence.PageSize,
			Tolerance: c.Occurrence.BBoxToleranceDeg,
		}),
		Store: st,
	})
}
