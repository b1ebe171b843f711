// Package retry wraps outbound settlement-network calls in a bounded
// exponential backoff. Only transient errors are retried; validation and
// settlement failures surface immediately.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"milestone-escrow-backend/internal/apperr"
)

// Do runs op with up to maxRetries retries after the first attempt. Rate
// limits and upstream outages are both retried, so this is only safe for
// idempotent reads.
func Do(ctx context.Context, maxRetries uint64, op func() error) error {
	return run(ctx, maxRetries, op, func(err error) bool {
		return errors.Is(err, apperr.ErrRateLimited) || errors.Is(err, apperr.ErrUpstreamUnavailable)
	})
}

// Submit runs op for a non-idempotent submission. Only an explicit rejection
// (rate limit) is retried: an upstream failure with an unknown outcome must
// not be replayed, because the submission may already have taken effect.
func Submit(ctx context.Context, maxRetries uint64, op func() error) error {
	return run(ctx, maxRetries, op, func(err error) bool {
		return errors.Is(err, apperr.ErrRateLimited)
	})
}

func run(ctx context.Context, maxRetries uint64, op func() error, retryable func(error) bool) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
}
