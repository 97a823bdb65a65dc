// Package raster clips land-cover tiles to a bounding box, either from
// catalog tile references or by scanning an object-store bucket.
package raster

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mobiodiv/internal/fetcher"
	"github.com/sells-group/mobiodiv/internal/geotiff"
	"github.com/sells-group/mobiodiv/internal/model"
	"github.com/sells-group/mobiodiv/internal/objstore"
)

// Options configures a ClipFetcher.
type Options struct {
	// Endpoint and Bucket locate the fallback bucket; Endpoint also
	// resolves s3:// hrefs from the catalog.
	Endpoint string
	Bucket   string
	// Prefix and Extension select fallback candidates.
	Prefix    string
	Extension string
	// NamePrefilter skips candidates whose key encodes a tile origin whose
	// TileDegrees square is disjoint from the bbox.
	NamePrefilter bool
	TileDegrees   float64
	// BlockSize is the range request unit for remote reads.
	BlockSize int64
	// Timeout bounds each remote read.
	Timeout time.Duration
}

// ClipFetcher produces GeoTIFF clips of remote tiles.
type ClipFetcher struct {
	fetcher fetcher.Fetcher
	lister  *objstore.Lister
	opts    Options
}

// NewClipFetcher creates a ClipFetcher that reads through f.
func NewClipFetcher(f fetcher.Fetcher, opts Options) *ClipFetcher {
	if opts.Extension == "" {
		opts.Extension = ".tif"
	}
	if opts.TileDegrees <= 0 {
		opts.TileDegrees = 3
	}
	return &ClipFetcher{
		fetcher: f,
		lister:  objstore.NewLister(f, opts.Endpoint, opts.Bucket),
		opts:    opts,
	}
}

// Fetch clips tiles to bbox and writes the clips under outDir. With no tiles
// it scans the fallback bucket and stops at the first non-empty clip. An
// empty result with a nil error means nothing intersected bbox.
func (c *ClipFetcher) Fetch(ctx context.Context, tiles []model.TileReference, bbox model.BBox, outDir string) ([]string, error) {
	if !bbox.Valid() {
		return nil, eris.Errorf("raster: invalid bbox %v", bbox)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "raster: create %s", outDir)
	}
	if len(tiles) > 0 {
		return c.fetchTiles(ctx, tiles, bbox, outDir)
	}
	return c.fetchFallback(ctx, bbox, outDir)
}

func (c *ClipFetcher) fetchTiles(ctx context.Context, tiles []model.TileReference, bbox model.BBox, outDir string) ([]string, error) {
	log := zap.L().With(zap.String("component", "raster"), zap.String("mode", "catalog"))

	var paths []string
	for _, tile := range tiles {
		if err := ctx.Err(); err != nil {
			return paths, eris.Wrap(err, "raster: cancelled")
		}
		if tile.Bounds != nil && !tile.Bounds.Intersects(bbox) {
			log.Debug("raster: tile outside bbox", zap.String("tile", tile.ID))
			continue
		}

		url := objstore.ResolveHref(c.opts.Endpoint, tile.URI)
		clip, err := c.clip(ctx, url, bbox)
		if err != nil {
			log.Warn("raster: tile failed", zap.String("tile", tile.ID), zap.String("url", url), zap.Error(err))
			continue
		}
		if clip == nil {
			log.Debug("raster: empty clip", zap.String("tile", tile.ID))
			continue
		}

		suffix := ""
		if len(tiles) > 1 {
			suffix = tile.ID
		}
		path := filepath.Join(outDir, ClipName(bbox, suffix))
		if err := geotiff.WriteFile(path, clip); err != nil {
			log.Warn("raster: write clip failed", zap.String("tile", tile.ID), zap.Error(err))
			continue
		}
		log.Info("raster: wrote clip",
			zap.String("tile", tile.ID),
			zap.String("path", path),
			zap.Int("width", clip.Width),
			zap.Int("height", clip.Height),
		)
		paths = append(paths, path)
	}
	return paths, nil
}

// fetchFallback walks the bucket in listing order. The first candidate
// yielding a non-empty clip wins; the order is whatever the store returns.
func (c *ClipFetcher) fetchFallback(ctx context.Context, bbox model.BBox, outDir string) ([]string, error) {
	log := zap.L().With(zap.String("component", "raster"), zap.String("mode", "fallback"), zap.String("bucket", c.opts.Bucket))
	ext := strings.ToLower(c.opts.Extension)

	var (
		written    string
		candidates int
		skipped    int
	)
	err := c.lister.Walk(ctx, c.opts.Prefix, func(obj objstore.Object) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if !strings.HasSuffix(strings.ToLower(obj.Key), ext) {
			return true, nil
		}
		candidates++

		if c.opts.NamePrefilter {
			if tb, ok := TileBoundsFromKey(obj.Key, c.opts.TileDegrees); ok && !tb.Intersects(bbox) {
				skipped++
				return true, nil
			}
		}

		url := c.lister.ObjectURL(obj.Key)
		clip, err := c.clip(ctx, url, bbox)
		if err != nil {
			log.Warn("raster: candidate failed", zap.String("key", obj.Key), zap.Error(err))
			return true, nil
		}
		if clip == nil {
			return true, nil
		}

		path := filepath.Join(outDir, ClipName(bbox, ""))
		if err := geotiff.WriteFile(path, clip); err != nil {
			return false, err
		}
		log.Info("raster: wrote clip",
			zap.String("key", obj.Key),
			zap.String("path", path),
			zap.Int("width", clip.Width),
			zap.Int("height", clip.Height),
		)
		written = path
		return false, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "raster: fallback scan")
	}

	log.Info("raster: fallback scan finished",
		zap.Int("candidates", candidates),
		zap.Int("prefiltered", skipped),
		zap.Bool("found", written != ""),
	)
	if written == "" {
		return []string{}, nil
	}
	return []string{written}, nil
}

// clip opens url and reads the window covering bbox. A nil raster means the
// tile does not intersect bbox.
func (c *ClipFetcher) clip(ctx context.Context, url string, bbox model.BBox) (*geotiff.Raster, error) {
	rr := geotiff.NewRemoteReader(ctx, c.fetcher, url, geotiff.RemoteOptions{
		BlockSize: c.opts.BlockSize,
		Timeout:   c.opts.Timeout,
	})
	rd, err := geotiff.Open(rr)
	if err != nil {
		return nil, err
	}
	if !rd.Bounds().Intersects(bbox) {
		return nil, nil
	}
	return rd.Clip(bbox)
}

// ClipName returns the file name of a clip of bbox. A non-empty tileID is
// appended so clips of several tiles do not collide.
func ClipName(bbox model.BBox, tileID string) string {
	name := "worldcover_clip_" + bbox.String()
	if tileID != "" {
		name += "_" + strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(tileID)
	}
	return name + ".tif"
}

var tileOrigin = regexp.MustCompile(`([NS])(\d{2})([EW])(\d{3})`)

// TileBoundsFromKey parses a lower-left tile origin such as N00E102 from the
// base name of key and returns the deg-sized square it names.
func TileBoundsFromKey(key string, deg float64) (model.BBox, bool) {
	m := tileOrigin.FindStringSubmatch(key[strings.LastIndex(key, "/")+1:])
	if m == nil {
		return model.BBox{}, false
	}
	lat, _ := strconv.Atoi(m[2])
	lon, _ := strconv.Atoi(m[4])
	if m[1] == "S" {
		lat = -lat
	}
	if m[3] == "W" {
		lon = -lon
	}
	return model.BBox{
		MinX: float64(lon),
		MinY: float64(lat),
		MaxX: float64(lon) + deg,
		MaxY: float64(lat) + deg,
	}, true
}
