package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

// HTTP reads ranges of a URL with Range requests.
type HTTP struct {
	client *retryablehttp.Client
	url    string

	once    sync.Once
	size    int64
	sizeErr error
}

// NewHTTP returns a source for url. Without a retry policy every request
// is tried once.
func NewHTTP(url string, retry *Retry) (*HTTP, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, errors.Errorf("%q is not an http(s) URL", url)
	}
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = 0
	if retry != nil {
		b := retry.backoff()
		client.RetryMax = retry.attempts() - 1
		client.RetryWaitMin = retry.Min
		client.RetryWaitMax = retry.Max
		client.Backoff = func(_, _ time.Duration, attempt int, _ *http.Response) time.Duration {
			return b.ForAttempt(float64(attempt))
		}
	}
	return &HTTP{client: client, url: url}, nil
}

func (s *HTTP) get(ctx context.Context, method, rangeHeader string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, s.url, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building request for %s", s.url)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, s.url)
	}
	return resp, nil
}

func (s *HTTP) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}
	resp, err := s.get(ctx, http.MethodGet, fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		// The server ignored the range; skip to the requested bytes.
		if _, err := io.CopyN(io.Discard, resp.Body, offset); err != nil {
			return nil, errors.Wrapf(err, "reading %s", s.url)
		}
	case http.StatusRequestedRangeNotSatisfiable:
		return nil, errors.Wrapf(ErrOutOfBounds, "%s [%d, %d)", s.url, offset, offset+length)
	default:
		return nil, errors.Errorf("GET %s [%d, %d): %s", s.url, offset, offset+length, resp.Status)
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(resp.Body, buf); err != nil {
		return nil, errors.Wrapf(err, "reading %s [%d, %d)", s.url, offset, offset+length)
	}
	return buf, nil
}

// Size asks the server once, with HEAD and then with a one byte range
// request when HEAD carries no length.
func (s *HTTP) Size(ctx context.Context) (int64, error) {
	s.once.Do(func() { s.size, s.sizeErr = s.fetchSize(ctx) })
	return s.size, s.sizeErr
}

func (s *HTTP) fetchSize(ctx context.Context) (int64, error) {
	resp, err := s.get(ctx, http.MethodHead, "")
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK && resp.ContentLength >= 0 {
		return resp.ContentLength, nil
	}

	resp, err = s.get(ctx, http.MethodGet, "bytes=0-0")
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent {
		return 0, errors.Errorf("GET %s: %s", s.url, resp.Status)
	}
	cr := resp.Header.Get("Content-Range")
	i := strings.LastIndexByte(cr, '/')
	if i < 0 {
		return 0, errors.Errorf("GET %s: unusable Content-Range %q", s.url, cr)
	}
	size, err := strconv.ParseInt(cr[i+1:], 10, 64)
	return size, errors.Wrapf(err, "GET %s: Content-Range %q", s.url, cr)
}

func (s *HTTP) URI() string {
	return s.url
}

func (s *HTTP) Close() error {
	s.client.HTTPClient.CloseIdleConnections()
	return nil
}
