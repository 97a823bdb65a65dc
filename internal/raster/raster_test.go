package raster

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/mobiodiv/internal/fetcher"
	"github.com/sells-group/mobiodiv/internal/geotiff"
	"github.com/sells-group/mobiodiv/internal/model"
)

const prefix = "v200/2021/map"

// tileTIFF returns a 30x30 uint8 GeoTIFF covering the 3 degree square
// whose lower-left corner is (lon, lat).
func tileTIFF(t *testing.T, lon, lat float64, fill byte) []byte {
	t.Helper()
	r := &geotiff.Raster{
		Width: 30, Height: 30, SamplesPerPixel: 1, BitsPerSample: 8, SampleFormat: 1,
		Pix:       bytes.Repeat([]byte{fill}, 900),
		Transform: geotiff.Affine{A: 0.1, C: lon, E: -0.1, F: lat + 3},
		NoData:    "0",
	}
	var buf bytes.Buffer
	require.NoError(t, geotiff.Encode(&buf, r, geotiff.EncodeOptions{Compression: geotiff.CompressionDeflate, TileSize: 16}))
	return buf.Bytes()
}

func key(name string) string {
	return prefix + "/ESA_WorldCover_10m_2021_v200_" + name + "_Map.tif"
}

// bucket is a fake S3 endpoint that lists keys in insertion order and
// serves object bytes with range support. It counts requests per key.
type bucket struct {
	mu        sync.Mutex
	keys      []string
	objects   map[string][]byte
	hits      map[string]int
	noRange   map[string]bool
	listFails bool
}

func newBucket() *bucket {
	return &bucket{objects: map[string][]byte{}, hits: map[string]int{}, noRange: map[string]bool{}}
}

func (b *bucket) put(k string, data []byte) {
	b.keys = append(b.keys, k)
	b.objects[k] = data
}

func (b *bucket) count(k string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[k]
}

func (b *bucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/esa-worldcover" {
		if b.listFails {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var sb strings.Builder
		sb.WriteString(`<ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range b.keys {
			fmt.Fprintf(&sb, `<Contents><Key>%s</Key><Size>%d</Size></Contents>`, k, len(b.objects[k]))
		}
		sb.WriteString(`</ListBucketResult>`)
		fmt.Fprint(w, sb.String())
		return
	}

	k := strings.TrimPrefix(r.URL.Path, "/esa-worldcover/")
	b.mu.Lock()
	b.hits[k]++
	data, ok := b.objects[k]
	whole := b.noRange[k]
	b.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	if whole {
		_, _ = w.Write(data)
		return
	}
	http.ServeContent(w, r, k, time.Time{}, bytes.NewReader(data))
}

func newFetcher(t *testing.T, b *bucket, prefilter bool) (*ClipFetcher, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:          5 * time.Second,
		MaxRetries:       1,
		BackoffBase:      time.Millisecond,
		RateLimiters:     map[string]*rate.Limiter{},
		AdaptiveLimiters: map[string]*fetcher.AdaptiveLimiter{},
	})
	return NewClipFetcher(f, Options{
		Endpoint:      srv.URL,
		Bucket:        "esa-worldcover",
		Prefix:        prefix,
		Extension:     ".TIF",
		NamePrefilter: prefilter,
		TileDegrees:   3,
		BlockSize:     1024,
		Timeout:       5 * time.Second,
	}), srv
}

func within(outer, inner model.BBox) bool {
	const eps = 1e-9
	return inner.MinX >= outer.MinX-eps && inner.MinY >= outer.MinY-eps &&
		inner.MaxX <= outer.MaxX+eps && inner.MaxY <= outer.MaxY+eps
}

func openClip(t *testing.T, path string) *geotiff.Reader {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	rd, err := geotiff.Open(f)
	require.NoError(t, err)
	return rd
}

func TestFallback_StopsAfterFirstSuccess(t *testing.T) {
	b := newBucket()
	b.put(prefix+"/README.txt", []byte("hello"))
	b.put(key("N00E099"), tileTIFF(t, 99, 0, 1))
	b.put(key("N00E102"), tileTIFF(t, 102, 0, 2))
	b.put(key("N00E105"), tileTIFF(t, 105, 0, 3))
	cf, _ := newFetcher(t, b, true)

	bbox := model.BBox{MinX: 104.5, MinY: 1, MaxX: 105.5, MaxY: 2}
	out := t.TempDir()
	paths, err := cf.Fetch(context.Background(), nil, bbox, out)
	require.NoError(t, err)
	require.Len(t, paths, 1)

	assert.Equal(t, filepath.Join(out, "worldcover_clip_104.500_1.000_105.500_2.000.tif"), paths[0])
	assert.Zero(t, b.count(key("N00E099")), "disjoint tile must be skipped by name")
	assert.Positive(t, b.count(key("N00E102")))
	assert.Zero(t, b.count(key("N00E105")), "scan must stop after the first clip")
	assert.Zero(t, b.count(prefix+"/README.txt"))

	rd := openClip(t, paths[0])
	assert.Equal(t, 5, rd.Width())
	assert.Equal(t, 10, rd.Height())
	assert.True(t, within(bbox, rd.Bounds()))
	x, y := rd.Transform().Apply(float64(rd.Width()), float64(rd.Height()))
	assert.InDelta(t, rd.Bounds().MaxX, x, 1e-9)
	assert.InDelta(t, rd.Bounds().MinY, y, 1e-9)
}

func TestFallback_SkipsCandidateWithoutRangeSupport(t *testing.T) {
	b := newBucket()
	b.put(key("N00E102"), tileTIFF(t, 102, 0, 2))
	b.put(prefix+"/mirror/ESA_WorldCover_10m_2021_v200_N00E102_Map.tif", tileTIFF(t, 102, 0, 4))
	b.noRange[key("N00E102")] = true
	cf, _ := newFetcher(t, b, true)

	bbox := model.BBox{MinX: 103, MinY: 1, MaxX: 104, MaxY: 2}
	paths, err := cf.Fetch(context.Background(), nil, bbox, t.TempDir())
	require.NoError(t, err)
	require.Len(t, paths, 1)

	assert.Equal(t, 1, b.count(key("N00E102")), "one full-body answer is enough to give up on the object")
	assert.Positive(t, b.count(prefix+"/mirror/ESA_WorldCover_10m_2021_v200_N00E102_Map.tif"))

	rd := openClip(t, paths[0])
	px, err := rd.ReadWindow(geotiff.Window{Width: 1, Height: 1})
	require.NoError(t, err)
	assert.Equal(t, byte(4), px.Pix[0])
}

func TestFallback_PrefilterDisabledOpensEveryCandidate(t *testing.T) {
	b := newBucket()
	b.put(key("N00E099"), tileTIFF(t, 99, 0, 1))
	b.put(key("N00E102"), tileTIFF(t, 102, 0, 2))
	cf, _ := newFetcher(t, b, false)

	paths, err := cf.Fetch(context.Background(), nil, model.BBox{MinX: 103, MinY: 1, MaxX: 104, MaxY: 2}, t.TempDir())
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Positive(t, b.count(key("N00E099")), "without the prefilter the tile is opened and rejected by bounds")
}

func TestFallback_KeysWithoutOriginAreOpened(t *testing.T) {
	b := newBucket()
	b.put(prefix+"/mosaic.tif", tileTIFF(t, 102, 0, 7))
	cf, _ := newFetcher(t, b, true)

	paths, err := cf.Fetch(context.Background(), nil, model.BBox{MinX: 103, MinY: 1, MaxX: 104, MaxY: 2}, t.TempDir())
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Positive(t, b.count(prefix+"/mosaic.tif"))
}

func TestFallback_DisjointIsEmptyNotError(t *testing.T) {
	b := newBucket()
	b.put(key("N00E099"), tileTIFF(t, 99, 0, 1))
	b.put(key("N00E102"), tileTIFF(t, 102, 0, 2))
	cf, _ := newFetcher(t, b, false)

	paths, err := cf.Fetch(context.Background(), nil, model.BBox{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}, t.TempDir())
	require.NoError(t, err)
	assert.NotNil(t, paths)
	assert.Empty(t, paths)
}

func TestFallback_ListingErrorIsError(t *testing.T) {
	b := newBucket()
	b.listFails = true
	cf, _ := newFetcher(t, b, true)

	paths, err := cf.Fetch(context.Background(), nil, model.BBox{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}, t.TempDir())
	require.Error(t, err)
	assert.Nil(t, paths)
}

func TestFallback_CandidateErrorsAreSkipped(t *testing.T) {
	b := newBucket()
	b.put(key("N00E101"), []byte("garbage, not a tiff"))
	b.put(key("N00E102"), tileTIFF(t, 102, 0, 2))
	cf, _ := newFetcher(t, b, true)

	paths, err := cf.Fetch(context.Background(), nil, model.BBox{MinX: 103, MinY: 1, MaxX: 104, MaxY: 2}, t.TempDir())
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Positive(t, b.count(key("N00E101")))
}

func TestCatalog_ClipsEveryIntersectingTile(t *testing.T) {
	b := newBucket()
	b.put(key("N00E102"), tileTIFF(t, 102, 0, 2))
	b.put(key("N00E105"), tileTIFF(t, 105, 0, 3))
	b.put(key("N00E099"), tileTIFF(t, 99, 0, 1))
	cf, srv := newFetcher(t, b, true)

	far := model.BBox{MinX: 99, MinY: 0, MaxX: 102, MaxY: 3}
	e105 := model.BBox{MinX: 105, MinY: 0, MaxX: 108, MaxY: 3}
	tiles := []model.TileReference{
		{ID: "N00E102", URI: "s3://esa-worldcover/" + key("N00E102")},
		{ID: "N00E105", URI: srv.URL + "/esa-worldcover/" + key("N00E105"), Bounds: &e105},
		{ID: "N00E099", URI: "s3://esa-worldcover/" + key("N00E099"), Bounds: &far},
		{ID: "missing", URI: "s3://esa-worldcover/" + key("N09E009")},
	}

	bbox := model.BBox{MinX: 104.45, MinY: 1.05, MaxX: 105.55, MaxY: 2.05}
	out := t.TempDir()
	paths, err := cf.Fetch(context.Background(), tiles, bbox, out)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	assert.Equal(t, filepath.Join(out, "worldcover_clip_104.450_1.050_105.550_2.050_N00E102.tif"), paths[0])
	assert.Equal(t, filepath.Join(out, "worldcover_clip_104.450_1.050_105.550_2.050_N00E105.tif"), paths[1])
	assert.Zero(t, b.count(key("N00E099")), "tile with disjoint advertised bounds must not be read")

	tileBounds := []model.BBox{
		{MinX: 102, MinY: 0, MaxX: 105, MaxY: 3},
		e105,
	}
	for i, p := range paths {
		rd := openClip(t, p)
		got := rd.Bounds()
		assert.True(t, within(bbox, got), "clip %v outside bbox", got)
		assert.True(t, within(tileBounds[i], got), "clip %v outside tile", got)
		assert.Equal(t, 5, rd.Width())
		assert.Equal(t, 9, rd.Height())

		x, y := rd.Transform().Apply(float64(rd.Width()), float64(rd.Height()))
		assert.InDelta(t, got.MaxX, x, 1e-9)
		assert.InDelta(t, got.MinY, y, 1e-9)
	}
}

func TestCatalog_SingleTileHasNoSuffix(t *testing.T) {
	b := newBucket()
	b.put(key("N00E102"), tileTIFF(t, 102, 0, 2))
	cf, _ := newFetcher(t, b, true)

	bbox := model.BBox{MinX: 103, MinY: 1, MaxX: 104, MaxY: 2}
	paths, err := cf.Fetch(context.Background(),
		[]model.TileReference{{ID: "N00E102", URI: "s3://esa-worldcover/" + key("N00E102")}}, bbox, t.TempDir())
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, ClipName(bbox, ""), filepath.Base(paths[0]))
}

func TestCatalog_NoIntersectionIsEmpty(t *testing.T) {
	b := newBucket()
	b.put(key("N00E102"), tileTIFF(t, 102, 0, 2))
	cf, _ := newFetcher(t, b, true)

	paths, err := cf.Fetch(context.Background(),
		[]model.TileReference{{ID: "N00E102", URI: "s3://esa-worldcover/" + key("N00E102")}},
		model.BBox{MinX: 50, MinY: 50, MaxX: 51, MaxY: 51}, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestFetch_InvalidBBox(t *testing.T) {
	cf, _ := newFetcher(t, newBucket(), true)
	_, err := cf.Fetch(context.Background(), nil, model.BBox{MinX: 2, MaxX: 1}, t.TempDir())
	assert.Error(t, err)
}

func TestTileBoundsFromKey(t *testing.T) {
	tests := []struct {
		key  string
		want model.BBox
		ok   bool
	}{
		{key("N00E102"), model.BBox{MinX: 102, MinY: 0, MaxX: 105, MaxY: 3}, true},
		{key("S03W060"), model.BBox{MinX: -60, MinY: -3, MaxX: -57, MaxY: 0}, true},
		{"v200/2021/map/N00E102/mosaic.tif", model.BBox{}, false},
		{"whatever.tif", model.BBox{}, false},
	}
	for _, tt := range tests {
		got, ok := TileBoundsFromKey(tt.key, 3)
		assert.Equal(t, tt.ok, ok, tt.key)
		assert.Equal(t, tt.want, got, tt.key)
	}
}

func TestClipName(t *testing.T) {
	bbox := model.BBox{MinX: 103.41962, MinY: 0.98, MaxX: 104.27, MaxY: 1.65}
	assert.Equal(t, "worldcover_clip_103.420_0.980_104.270_1.650.tif", ClipName(bbox, ""))
	assert.Equal(t, "worldcover_clip_103.420_0.980_104.270_1.650_a_b.tif", ClipName(bbox, "a/b"))
}
