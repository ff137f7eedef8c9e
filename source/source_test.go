package source

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/h5zarr/internal/metrics"
	"github.com/robert-malhotra/h5zarr/internal/s3fake"
)

func payload() []byte {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i * 7)
	}
	return data
}

func checkSource(t *testing.T, src RangeSource) {
	t.Helper()
	ctx := context.Background()
	data := payload()

	size, err := src.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), size)

	got, err := src.ReadRange(ctx, 100, 50)
	require.NoError(t, err)
	assert.Equal(t, data[100:150], got)

	got, err = src.ReadRange(ctx, int64(len(data))-10, 10)
	require.NoError(t, err)
	assert.Equal(t, data[len(data)-10:], got)

	got, err = src.ReadRange(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	r := ReaderAt(ctx, src)
	buf := make([]byte, 20)
	n, err := r.ReadAt(buf, int64(len(data))-5)
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, data[len(data)-5:], buf[:5])

	_, err = r.ReadAt(buf, int64(len(data)))
	assert.Equal(t, io.EOF, err)

	n, err = r.ReadAt(buf, 8)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, data[8:28], buf)
}

func writePayload(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(p, payload(), 0o644))
	return p
}

func TestFileSource(t *testing.T) {
	p := writePayload(t)
	src, err := OpenFile(p)
	require.NoError(t, err)
	defer src.Close()

	checkSource(t, src)
	assert.Equal(t, p, src.URI())

	_, err = src.ReadRange(context.Background(), 4090, 10)
	assert.True(t, errors.Is(err, ErrOutOfBounds))

	_, err = OpenFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestHTTPSource(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.ServeContent(w, r, "data.bin", time.Time{}, bytes.NewReader(payload()))
	}))
	defer srv.Close()

	src, err := NewHTTP(srv.URL+"/data.bin", nil)
	require.NoError(t, err)
	defer src.Close()

	checkSource(t, src)

	atomic.StoreInt32(&requests, 0)
	_, err = src.ReadRange(context.Background(), 10, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))

	_, err = NewHTTP("ftp://example.com/x", nil)
	assert.Error(t, err)
}

func TestHTTPSourceIgnoredRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "4096")
			return
		}
		w.Write(payload())
	}))
	defer srv.Close()

	src, err := NewHTTP(srv.URL, nil)
	require.NoError(t, err)
	got, err := src.ReadRange(context.Background(), 1000, 24)
	require.NoError(t, err)
	assert.Equal(t, payload()[1000:1024], got)
}

func TestHTTPSourceRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		http.ServeContent(w, r, "data.bin", time.Time{}, bytes.NewReader(payload()))
	}))
	defer srv.Close()

	plain, err := NewHTTP(srv.URL, nil)
	require.NoError(t, err)
	_, err = plain.ReadRange(context.Background(), 0, 10)
	assert.Error(t, err)

	atomic.StoreInt32(&calls, 0)
	retrying, err := NewHTTP(srv.URL, &Retry{Attempts: 3, Min: time.Millisecond, Max: 2 * time.Millisecond})
	require.NoError(t, err)
	got, err := retrying.ReadRange(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, payload()[:10], got)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestS3Source(t *testing.T) {
	client := s3fake.New()
	client.Put("bucket", "path/data.bin", payload())

	src, err := NewS3(client, "s3://bucket/path/data.bin")
	require.NoError(t, err)
	checkSource(t, src)
	assert.Equal(t, "s3://bucket/path/data.bin", src.URI())

	for _, bad := range []string{"s3://bucket", "s3:///key", "http://bucket/key"} {
		_, err := NewS3(client, bad)
		assert.Error(t, err, bad)
	}

	missing, err := NewS3(client, "s3://bucket/nope")
	require.NoError(t, err)
	_, err = missing.ReadRange(context.Background(), 0, 1)
	assert.Error(t, err)
	_, err = missing.Size(context.Background())
	assert.Error(t, err)
}

func TestOpenWrapsSource(t *testing.T) {
	ctx := context.Background()
	p := writePayload(t)

	before := testutil.ToFloat64(metrics.CounterRangeFetches.WithLabelValues("file"))
	src, err := Open(ctx, p, Options{})
	require.NoError(t, err)
	defer src.Close()

	_, err = src.ReadRange(ctx, 0, 16)
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.CounterRangeFetches.WithLabelValues("file")))
	assert.Equal(t, p, src.URI())

	client := s3fake.New()
	client.Put("b", "k", payload())
	src, err = Open(ctx, "s3://b/k", Options{S3: client})
	require.NoError(t, err)
	got, err := src.ReadRange(ctx, 4000, 96)
	require.NoError(t, err)
	assert.Equal(t, payload()[4000:], got)
}

// slowSource blocks every fetch until the context ends or release closes.
type slowSource struct {
	release chan struct{}
	calls   int32
}

func (s *slowSource) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	atomic.AddInt32(&s.calls, 1)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.release:
		return make([]byte, length), nil
	}
}

func (s *slowSource) Size(context.Context) (int64, error) { return 1 << 20, nil }
func (s *slowSource) URI() string                         { return "slow" }
func (s *slowSource) Close() error                        { return nil }

func TestTimeout(t *testing.T) {
	src := WithTimeout(&slowSource{release: make(chan struct{})}, 20*time.Millisecond)
	data, err := src.ReadRange(context.Background(), 0, 10)
	assert.Nil(t, data)
	assert.True(t, errors.Is(err, ErrTimeout))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.ReadRange(ctx, 0, 10)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrTimeout))

	fast := &slowSource{release: make(chan struct{})}
	close(fast.release)
	data, err = WithTimeout(fast, time.Second).ReadRange(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, data, 10)
}

// flakySource fails the first failures fetches.
type flakySource struct {
	RangeSource
	failures int32
	calls    int32
}

func (s *flakySource) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	if atomic.AddInt32(&s.calls, 1) <= s.failures {
		return nil, errors.New("connection reset")
	}
	return s.RangeSource.ReadRange(ctx, offset, length)
}

func TestRetry(t *testing.T) {
	file, err := OpenFile(writePayload(t))
	require.NoError(t, err)
	defer file.Close()

	policy := Retry{Attempts: 3, Min: time.Millisecond, Max: time.Millisecond}

	flaky := &flakySource{RangeSource: file, failures: 2}
	got, err := WithRetry(flaky, policy).ReadRange(context.Background(), 0, 8)
	require.NoError(t, err)
	assert.Equal(t, payload()[:8], got)
	assert.Equal(t, int32(3), flaky.calls)

	flaky = &flakySource{RangeSource: file, failures: 5}
	_, err = WithRetry(flaky, policy).ReadRange(context.Background(), 0, 8)
	assert.EqualError(t, err, "connection reset")
	assert.Equal(t, int32(3), flaky.calls)

	flaky = &flakySource{RangeSource: file}
	_, err = WithRetry(flaky, policy).ReadRange(context.Background(), 4096, 8)
	assert.True(t, errors.Is(err, ErrOutOfBounds))
	assert.Equal(t, int32(1), flaky.calls)

	assert.Equal(t, 4, DefaultRetry().Attempts)
	assert.Equal(t, 1, Retry{}.attempts())
}

var _ S3API = (*s3.Client)(nil)
