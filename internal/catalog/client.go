// Package catalog discovers land-cover tiles through a STAC API.
package catalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mobiodiv/internal/fetcher"
	"github.com/sells-group/mobiodiv/internal/model"
)

// Options configures a Client.
type Options struct {
	URL             string
	CollectionHints []string
	PageLimit       int
	MaxPages        int
}

// Client searches a STAC catalog for tiles intersecting a bbox.
type Client struct {
	fetcher fetcher.Fetcher
	opts    Options
}

// NewClient creates a catalog client.
func NewClient(f fetcher.Fetcher, opts Options) *Client {
	opts.URL = strings.TrimRight(opts.URL, "/")
	if opts.PageLimit <= 0 {
		opts.PageLimit = 100
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 10
	}
	return &Client{fetcher: f, opts: opts}
}

// Discover returns the tiles of the first matching collection that has
// items in bbox. It never fails: catalog errors are logged and yield an
// empty result so the caller can fall back to scanning storage.
func (c *Client) Discover(ctx context.Context, bbox model.BBox) []model.TileReference {
	log := zap.L().With(zap.String("component", "catalog"), zap.String("url", c.opts.URL))

	tiles, err := c.discover(ctx, bbox)
	if err != nil {
		log.Warn("catalog: query failed, falling back to storage listing", zap.Error(err))
		return []model.TileReference{}
	}
	log.Info("catalog: discovered tiles", zap.Int("tiles", len(tiles)))
	return tiles
}

func (c *Client) discover(ctx context.Context, bbox model.BBox) ([]model.TileReference, error) {
	body, err := c.fetcher.Download(ctx, c.opts.URL+"/collections")
	if err != nil {
		return nil, eris.Wrap(err, "catalog: list collections")
	}
	cols, err := fetcher.DecodeJSONBody[collectionsResponse](body)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: parse collections")
	}

	for _, col := range cols.Collections {
		if !c.matches(col.ID) {
			continue
		}
		tiles, err := c.search(ctx, col.ID, bbox)
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: search %s", col.ID)
		}
		if len(tiles) > 0 {
			zap.L().Debug("catalog: using collection", zap.String("collection", col.ID))
			return tiles, nil
		}
	}
	return []model.TileReference{}, nil
}

func (c *Client) matches(id string) bool {
	name := strings.ToLower(id)
	for _, h := range c.opts.CollectionHints {
		if h != "" && strings.Contains(name, strings.ToLower(h)) {
			return true
		}
	}
	return false
}

func (c *Client) search(ctx context.Context, collection string, bbox model.BBox) ([]model.TileReference, error) {
	req, err := json.Marshal(searchRequest{
		Collections: []string{collection},
		BBox:        bbox.Slice(),
		Limit:       c.opts.PageLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "encode search")
	}

	var (
		tiles  []model.TileReference
		seen   = map[string]bool{}
		method = http.MethodPost
		href   = c.opts.URL + "/search"
	)
	for page := 0; page < c.opts.MaxPages; page++ {
		res, err := c.page(ctx, method, href, req)
		if err != nil {
			return nil, err
		}
		for _, it := range res.Features {
			if seen[it.ID] {
				continue
			}
			seen[it.ID] = true
			if t, ok := tileFromItem(it); ok {
				tiles = append(tiles, t)
			}
		}

		next := nextLink(res.Links)
		if next == nil || len(res.Features) == 0 {
			return tiles, nil
		}
		href = next.Href
		method = http.MethodGet
		if strings.EqualFold(next.Method, http.MethodPost) {
			method = http.MethodPost
			if len(next.Body) > 0 {
				if req, err = nextBody(req, next); err != nil {
					return nil, err
				}
			}
		}
	}

	zap.L().Warn("catalog: stopped paging at page limit",
		zap.String("collection", collection),
		zap.Int("max_pages", c.opts.MaxPages),
		zap.Int("tiles", len(tiles)),
	)
	return tiles, nil
}

func (c *Client) page(ctx context.Context, method, href string, req []byte) (*itemCollection, error) {
	var (
		body io.ReadCloser
		err  error
	)
	if method == http.MethodPost {
		body, err = c.fetcher.Post(ctx, href, "application/json", req)
	} else {
		body, err = c.fetcher.Download(ctx, href)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "fetch %s", href)
	}
	res, err := fetcher.DecodeJSONBody[itemCollection](body)
	if err != nil {
		return nil, eris.Wrapf(err, "parse %s", href)
	}
	return res, nil
}

func nextLink(links []link) *link {
	for i := range links {
		if links[i].Rel == "next" && links[i].Href != "" {
			return &links[i]
		}
	}
	return nil
}

// nextBody builds the body of a POST next link, merging it over prev when
// the link asks for it.
func nextBody(prev []byte, l *link) ([]byte, error) {
	if !l.Merge {
		return l.Body, nil
	}
	var base map[string]json.RawMessage
	if err := json.Unmarshal(prev, &base); err != nil {
		return nil, eris.Wrap(err, "decode previous search body")
	}
	var over map[string]json.RawMessage
	if err := json.Unmarshal(l.Body, &over); err != nil {
		return nil, eris.Wrap(err, "decode next link body")
	}
	for k, v := range over {
		base[k] = v
	}
	out, err := json.Marshal(base)
	if err != nil {
		return nil, eris.Wrap(err, "encode merged search body")
	}
	return out, nil
}

func tileFromItem(it item) (model.TileReference, bool) {
	href, ok := pickAsset(it.Assets)
	if !ok {
		return model.TileReference{}, false
	}
	t := model.TileReference{ID: it.ID, URI: href}
	if b, err := model.BBoxFromSlice(it.BBox); err == nil {
		t.Bounds = &b
	}
	return t, true
}

// pickAsset prefers the "map" asset, then the first GeoTIFF asset by key,
// then the first asset by key.
func pickAsset(assets map[string]asset) (string, bool) {
	if a, ok := assets["map"]; ok && a.Href != "" {
		return a.Href, true
	}

	keys := make([]string, 0, len(assets))
	for k, a := range assets {
		if a.Href != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "", false
	}
	sort.Strings(keys)

	for _, k := range keys {
		if isTIFF(assets[k]) {
			return assets[k].Href, true
		}
	}
	return assets[keys[0]].Href, true
}

func isTIFF(a asset) bool {
	if strings.HasPrefix(strings.ToLower(a.Type), "image/tiff") {
		return true
	}
	href := strings.ToLower(a.Href)
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	return strings.HasSuffix(href, ".tif") || strings.HasSuffix(href, ".tiff")
}
