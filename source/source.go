// Package source provides byte-range access to the original HDF5 bytes:
// local files, S3 objects and HTTP URLs. The read path of h5zarr only
// ever asks a source for explicit ranges, so a consolidated document plus
// a source is enough to serve any read.
package source

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/robert-malhotra/h5zarr/internal/metrics"
)

// DefaultTimeout is the default per-fetch timeout.
const DefaultTimeout = 30 * time.Second

var (
	// ErrTimeout is returned when a fetch exceeds its timeout.
	ErrTimeout = errors.New("range fetch timed out")

	// ErrOutOfBounds is returned for ranges past the end of the source.
	ErrOutOfBounds = errors.New("range outside source")
)

// RangeSource reads byte ranges of one immutable object.
type RangeSource interface {
	// ReadRange returns exactly length bytes starting at offset.
	ReadRange(ctx context.Context, offset, length int64) ([]byte, error)

	// Size returns the total size of the object.
	Size(ctx context.Context) (int64, error)

	// URI identifies the object, as recorded in chunk manifests.
	URI() string

	Close() error
}

// Options configures sources built by Open.
type Options struct {
	// Timeout bounds every fetch. Zero selects DefaultTimeout; a negative
	// value disables the timeout.
	Timeout time.Duration

	// Retry, when set, retries failed fetches. Without it failures are
	// returned at once.
	Retry *Retry

	// S3 is the client used for s3:// URIs. When nil a client is built
	// from the default AWS configuration.
	S3 S3API
}

// Open returns the source for uri: a local path, s3://bucket/key or an
// http(s) URL. The source is wrapped with the timeout, retry policy and
// fetch counters from opts.
func Open(ctx context.Context, uri string, opts Options) (RangeSource, error) {
	var (
		src  RangeSource
		kind string
		err  error
	)
	switch {
	case strings.HasPrefix(uri, "s3://"):
		kind = "s3"
		client := opts.S3
		if client == nil {
			if client, err = newS3Client(ctx); err != nil {
				return nil, err
			}
		}
		src, err = NewS3(client, uri)
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		kind = "http"
		src, err = NewHTTP(uri, opts.Retry)
	default:
		kind = "file"
		src, err = OpenFile(strings.TrimPrefix(uri, "file://"))
	}
	if err != nil {
		return nil, err
	}
	return Wrap(src, kind, opts), nil
}

// Wrap applies the options of Open to an existing source. kind labels
// the fetch counters.
func Wrap(src RangeSource, kind string, opts Options) RangeSource {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if timeout > 0 {
		src = WithTimeout(src, timeout)
	}
	// HTTP sources retry inside the client.
	if opts.Retry != nil && kind != "http" {
		src = WithRetry(src, *opts.Retry)
	}
	return &instrumented{RangeSource: src, kind: kind}
}

// checkRange validates a request against a known size.
func checkRange(offset, length, size int64) error {
	if offset < 0 || length < 0 || offset > size || length > size-offset {
		return errors.Wrapf(ErrOutOfBounds, "[%d, %d) of %d bytes", offset, offset+length, size)
	}
	return nil
}

// WithTimeout bounds every ReadRange call of src by d. A fetch that runs
// out of time fails with ErrTimeout and returns no data.
func WithTimeout(src RangeSource, d time.Duration) RangeSource {
	return &timeoutSource{RangeSource: src, timeout: d}
}

type timeoutSource struct {
	RangeSource
	timeout time.Duration
}

func (t *timeoutSource) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := t.RangeSource.ReadRange(fetchCtx, offset, length)
		done <- result{data, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(fetchCtx.Err(), context.DeadlineExceeded) {
			return nil, errors.Wrapf(ErrTimeout, "%s [%d, %d) after %s", t.URI(), offset, offset+length, t.timeout)
		}
		return r.data, r.err
	case <-fetchCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrapf(ErrTimeout, "%s [%d, %d) after %s", t.URI(), offset, offset+length, t.timeout)
	}
}

type instrumented struct {
	RangeSource
	kind string
}

func (s *instrumented) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	metrics.CounterRangeFetches.WithLabelValues(s.kind).Inc()
	data, err := s.RangeSource.ReadRange(ctx, offset, length)
	if err != nil {
		metrics.CounterRangeFetchErrors.WithLabelValues(s.kind).Inc()
		return nil, err
	}
	metrics.CounterRangeFetchBytes.WithLabelValues(s.kind).Add(float64(len(data)))
	return data, nil
}

// ReaderAt adapts a source to io.ReaderAt so the hdf5 package can parse
// remote files. Every ReadAt becomes one range fetch under ctx.
func ReaderAt(ctx context.Context, src RangeSource) io.ReaderAt {
	return &readerAt{ctx: ctx, src: src}
}

type readerAt struct {
	ctx context.Context
	src RangeSource

	once    sync.Once
	size    int64
	sizeErr error
}

func (r *readerAt) ReadAt(p []byte, off int64) (int, error) {
	r.once.Do(func() { r.size, r.sizeErr = r.src.Size(r.ctx) })
	if r.sizeErr != nil {
		return 0, r.sizeErr
	}
	if off >= r.size {
		return 0, io.EOF
	}
	n := int64(len(p))
	short := false
	if n > r.size-off {
		n = r.size - off
		short = true
	}
	data, err := r.src.ReadRange(r.ctx, off, n)
	if err != nil {
		return 0, err
	}
	copied := copy(p, data)
	if short {
		return copied, io.EOF
	}
	return copied, nil
}
