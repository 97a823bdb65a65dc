package geotiff

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mobiodiv/internal/fetcher"
)

// RangeFetcher reads byte ranges of a remote object.
type RangeFetcher interface {
	DownloadRange(ctx context.Context, url string, offset, length int64) ([]byte, error)
}

// RemoteOptions configures a RemoteReader.
type RemoteOptions struct {
	// BlockSize is the unit of range requests and caching.
	BlockSize int64
	// MaxBlocks bounds the block cache.
	MaxBlocks int
	// Timeout bounds each range request. Zero means no extra timeout.
	Timeout time.Duration
}

// RemoteReader is an io.ReaderAt over HTTP range requests. Small reads are
// served from a cache of aligned blocks so that walking an IFD and its
// out-of-line values costs few round trips. The context given at
// construction governs every request.
type RemoteReader struct {
	ctx     context.Context
	fetcher RangeFetcher
	url     string
	opts    RemoteOptions

	mu       sync.Mutex
	blocks   map[int64][]byte
	fifo     []int64
	requests int
}

// NewRemoteReader creates a reader for url.
func NewRemoteReader(ctx context.Context, f RangeFetcher, url string, opts RemoteOptions) *RemoteReader {
	if opts.BlockSize <= 0 {
		opts.BlockSize = 256 << 10
	}
	if opts.MaxBlocks <= 0 {
		opts.MaxBlocks = 64
	}
	return &RemoteReader{
		ctx:     ctx,
		fetcher: f,
		url:     url,
		opts:    opts,
		blocks:  make(map[int64][]byte),
	}
}

// Requests returns the number of range requests issued so far.
func (r *RemoteReader) Requests() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests
}

// ReadAt implements io.ReaderAt.
func (r *RemoteReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, eris.New("geotiff: negative offset")
	}
	if len(p) == 0 {
		return 0, nil
	}

	if int64(len(p)) >= r.opts.BlockSize {
		data, err := r.fetch(off, int64(len(p)))
		if err != nil {
			return 0, err
		}
		n := copy(p, data)
		if n < len(p) {
			return n, io.EOF
		}
		return n, nil
	}

	n := 0
	for n < len(p) {
		pos := off + int64(n)
		idx := pos / r.opts.BlockSize
		block, err := r.block(idx)
		if err != nil {
			return n, err
		}
		within := pos - idx*r.opts.BlockSize
		if within >= int64(len(block)) {
			return n, io.EOF
		}
		n += copy(p[n:], block[within:])
		if int64(len(block)) < r.opts.BlockSize && n < len(p) {
			return n, io.EOF
		}
	}
	return n, nil
}

func (r *RemoteReader) block(idx int64) ([]byte, error) {
	r.mu.Lock()
	if b, ok := r.blocks[idx]; ok {
		r.mu.Unlock()
		return b, nil
	}
	r.mu.Unlock()

	b, err := r.fetch(idx*r.opts.BlockSize, r.opts.BlockSize)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.fifo) >= r.opts.MaxBlocks {
		delete(r.blocks, r.fifo[0])
		r.fifo = r.fifo[1:]
	}
	r.blocks[idx] = b
	r.fifo = append(r.fifo, idx)
	return b, nil
}

func (r *RemoteReader) fetch(off, n int64) ([]byte, error) {
	ctx := r.ctx
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	r.mu.Lock()
	r.requests++
	r.mu.Unlock()

	data, err := r.fetcher.DownloadRange(ctx, r.url, off, n)
	if errors.Is(err, fetcher.ErrRangeNotSatisfiable) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "geotiff: range %d+%d of %s", off, n, r.url)
	}
	return data, nil
}
