package objstore

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/mobiodiv/internal/fetcher"
)

func newTestFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:          5 * time.Second,
		MaxRetries:       1,
		BackoffBase:      time.Millisecond,
		AdaptiveLimiters: map[string]*fetcher.AdaptiveLimiter{},
		RateLimiters:     map[string]*rate.Limiter{},
	})
}

const page1 = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>esa-worldcover</Name><Prefix>v200/2021/map</Prefix><KeyCount>2</KeyCount>
  <IsTruncated>true</IsTruncated><NextContinuationToken>tok-2</NextContinuationToken>
  <Contents><Key>v200/2021/map/ESA_WorldCover_10m_2021_v200_N00E099_Map.tif</Key><LastModified>2022-10-21T10:00:00.000Z</LastModified><ETag>"abc"</ETag><Size>100</Size></Contents>
  <Contents><Key>v200/2021/map/ESA_WorldCover_10m_2021_v200_N00E102_Map.tif</Key><Size>200</Size></Contents>
</ListBucketResult>`

const page2 = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>esa-worldcover</Name><KeyCount>1</KeyCount><IsTruncated>false</IsTruncated>
  <Contents><Key>v200/2021/map/README.txt</Key><Size>5</Size></Contents>
</ListBucketResult>`

func listingServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/esa-worldcover", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("list-type"))
		assert.Equal(t, "v200/2021/map", r.URL.Query().Get("prefix"))
		switch r.URL.Query().Get("continuation-token") {
		case "":
			fmt.Fprint(w, page1)
		case "tok-2":
			fmt.Fprint(w, page2)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
}

func TestList_FollowsContinuationToken(t *testing.T) {
	var calls atomic.Int32
	srv := listingServer(t, &calls)
	defer srv.Close()

	l := NewLister(newTestFetcher(), srv.URL+"/", "esa-worldcover")
	objs, err := l.List(context.Background(), "v200/2021/map")
	require.NoError(t, err)

	require.Len(t, objs, 3)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "v200/2021/map/ESA_WorldCover_10m_2021_v200_N00E099_Map.tif", objs[0].Key)
	assert.Equal(t, "abc", objs[0].ETag)
	assert.Equal(t, int64(100), objs[0].Size)
	assert.Equal(t, 2022, objs[0].LastModified.Year())
	assert.True(t, objs[1].LastModified.IsZero())
	assert.Equal(t, "v200/2021/map/README.txt", objs[2].Key)
}

func TestWalk_StopsEarly(t *testing.T) {
	var calls atomic.Int32
	srv := listingServer(t, &calls)
	defer srv.Close()

	l := NewLister(newTestFetcher(), srv.URL, "esa-worldcover")
	var seen []string
	err := l.Walk(context.Background(), "v200/2021/map", func(o Object) (bool, error) {
		seen = append(seen, o.Key)
		return false, nil
	})
	require.NoError(t, err)
	assert.Len(t, seen, 1)
	assert.Equal(t, int32(1), calls.Load(), "second page must not be requested")
}

func TestWalk_VisitError(t *testing.T) {
	var calls atomic.Int32
	srv := listingServer(t, &calls)
	defer srv.Close()

	boom := eris.New("boom")
	l := NewLister(newTestFetcher(), srv.URL, "esa-worldcover")
	err := l.Walk(context.Background(), "v200/2021/map", func(Object) (bool, error) {
		return true, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestList_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewLister(newTestFetcher(), srv.URL, "private").List(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestList_MalformedXML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<ListBucketResult><Contents>")
	}))
	defer srv.Close()

	_, err := NewLister(newTestFetcher(), srv.URL, "b").List(context.Background(), "")
	require.Error(t, err)
}

func TestList_TruncatedWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<ListBucketResult><IsTruncated>true</IsTruncated></ListBucketResult>`)
	}))
	defer srv.Close()

	_, err := NewLister(newTestFetcher(), srv.URL, "b").List(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "continuation token")
}

func TestObjectURL(t *testing.T) {
	l := NewLister(nil, "https://s3.eu-central-1.amazonaws.com/", "/esa-worldcover/")
	assert.Equal(t,
		"https://s3.eu-central-1.amazonaws.com/esa-worldcover/v200/2021/map/a%20b.tif",
		l.ObjectURL("v200/2021/map/a b.tif"))
	assert.Equal(t, "esa-worldcover", l.Bucket())
}

func TestResolveHref(t *testing.T) {
	ep := "https://s3.eu-central-1.amazonaws.com"
	assert.Equal(t, ep+"/esa-worldcover/v200/x.tif", ResolveHref(ep, "s3://esa-worldcover/v200/x.tif"))
	assert.Equal(t, "https://example.org/x.tif", ResolveHref(ep, "https://example.org/x.tif"))
}
