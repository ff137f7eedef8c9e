package source

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
)

// Retry is an opt-in retry policy for range fetches.
type Retry struct {
	// Attempts is the total number of tries, including the first.
	Attempts int

	// Min and Max bound the wait between tries.
	Min time.Duration
	Max time.Duration
}

// DefaultRetry returns the policy used when retries are enabled without
// further configuration.
func DefaultRetry() Retry {
	return Retry{Attempts: 4, Min: 100 * time.Millisecond, Max: 5 * time.Second}
}

func (r Retry) backoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    r.Min,
		Max:    r.Max,
		Factor: 2,
		Jitter: true,
	}
}

func (r Retry) attempts() int {
	if r.Attempts < 1 {
		return 1
	}
	return r.Attempts
}

// WithRetry retries failed fetches of src according to policy. Context
// cancellation and out-of-bounds requests are not retried.
func WithRetry(src RangeSource, policy Retry) RangeSource {
	return &retrySource{RangeSource: src, policy: policy}
}

type retrySource struct {
	RangeSource
	policy Retry
}

func (r *retrySource) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	b := r.policy.backoff()
	var lastErr error
	for attempt := 0; attempt < r.policy.attempts(); attempt++ {
		data, err := r.RangeSource.ReadRange(ctx, offset, length)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil || errors.Is(err, ErrOutOfBounds) {
			break
		}
		if attempt+1 == r.policy.attempts() {
			break
		}

		timer := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}
