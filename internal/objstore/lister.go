// Package objstore lists and addresses objects in an anonymous,
// S3-compatible bucket over plain HTTPS.
package objstore

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mobiodiv/internal/fetcher"
)

// Object is one entry of a bucket listing.
type Object struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type listBucketResult struct {
	Name                  string `xml:"Name"`
	Prefix                string `xml:"Prefix"`
	KeyCount              int    `xml:"KeyCount"`
	IsTruncated           bool   `xml:"IsTruncated"`
	NextContinuationToken string `xml:"NextContinuationToken"`
	Contents              []struct {
		Key          string `xml:"Key"`
		LastModified string `xml:"LastModified"`
		ETag         string `xml:"ETag"`
		Size         int64  `xml:"Size"`
	} `xml:"Contents"`
}

// Lister pages through a bucket with ListObjectsV2 using path-style URLs.
type Lister struct {
	fetcher  fetcher.Fetcher
	endpoint string
	bucket   string
	maxPages int
}

// NewLister creates a Lister for bucket at endpoint, e.g.
// https://s3.eu-central-1.amazonaws.com and esa-worldcover.
func NewLister(f fetcher.Fetcher, endpoint, bucket string) *Lister {
	return &Lister{
		fetcher:  f,
		endpoint: strings.TrimRight(endpoint, "/"),
		bucket:   strings.Trim(bucket, "/"),
		maxPages: 1000,
	}
}

// Bucket returns the bucket name.
func (l *Lister) Bucket() string { return l.bucket }

// ObjectURL returns the anonymous HTTPS URL of key.
func (l *Lister) ObjectURL(key string) string {
	return l.endpoint + "/" + l.bucket + "/" + escapeKey(key)
}

// Walk lists every key under prefix in the order the store returns them and
// calls visit for each. Listing stops early when visit returns false or an
// error; the error is returned unchanged.
func (l *Lister) Walk(ctx context.Context, prefix string, visit func(Object) (bool, error)) error {
	log := zap.L().With(zap.String("component", "objstore"), zap.String("bucket", l.bucket))

	token := ""
	for page := 0; page < l.maxPages; page++ {
		res, err := l.listPage(ctx, prefix, token)
		if err != nil {
			return err
		}
		log.Debug("objstore: listed page",
			zap.Int("page", page),
			zap.Int("keys", len(res.Contents)),
			zap.Bool("truncated", res.IsTruncated),
		)

		for _, c := range res.Contents {
			obj := Object{Key: c.Key, Size: c.Size, ETag: strings.Trim(c.ETag, `"`)}
			if ts, err := time.Parse(time.RFC3339, c.LastModified); err == nil {
				obj.LastModified = ts
			}
			more, err := visit(obj)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}

		if !res.IsTruncated {
			return nil
		}
		if res.NextContinuationToken == "" {
			return eris.Errorf("objstore: truncated listing of %s without continuation token", l.bucket)
		}
		token = res.NextContinuationToken
	}
	return eris.Errorf("objstore: listing of %s/%s exceeded %d pages", l.bucket, prefix, l.maxPages)
}

// List collects every object under prefix.
func (l *Lister) List(ctx context.Context, prefix string) ([]Object, error) {
	var out []Object
	err := l.Walk(ctx, prefix, func(o Object) (bool, error) {
		out = append(out, o)
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Lister) listPage(ctx context.Context, prefix, token string) (*listBucketResult, error) {
	q := url.Values{}
	q.Set("list-type", "2")
	if prefix != "" {
		q.Set("prefix", prefix)
	}
	if token != "" {
		q.Set("continuation-token", token)
	}
	u := l.endpoint + "/" + l.bucket + "?" + q.Encode()

	body, err := l.fetcher.Download(ctx, u)
	if err != nil {
		return nil, eris.Wrapf(err, "objstore: list %s", l.bucket)
	}
	defer body.Close() //nolint:errcheck

	res, err := fetcher.DecodeXMLObject[listBucketResult](body)
	if err != nil {
		return nil, eris.Wrapf(err, "objstore: parse listing of %s", l.bucket)
	}
	return res, nil
}

// ResolveHref turns s3://bucket/key references into path-style HTTPS URLs on
// endpoint. Other hrefs are returned unchanged.
func ResolveHref(endpoint, href string) string {
	rest, ok := strings.CutPrefix(href, "s3://")
	if !ok {
		return href
	}
	bucket, key, _ := strings.Cut(rest, "/")
	return strings.TrimRight(endpoint, "/") + "/" + bucket + "/" + escapeKey(key)
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
