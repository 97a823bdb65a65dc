package fetcher

import (
	"context"
	"fmt"
	"io"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadRange fetches length bytes starting at offset using an HTTP
	// Range request. A short read at the end of the object is not an error.
	DownloadRange(ctx context.Context, url string, offset, length int64) ([]byte, error)

	// Post sends body with the given content type and returns the response body.
	Post(ctx context.Context, url string, contentType string, body []byte) (io.ReadCloser, error)
}

// StatusError reports a non-success HTTP status that was not retried, or
// that remained after all retries.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}
