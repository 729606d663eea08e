package indexer

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/cockroachdb/errors"

	"transferScope/internal/errs"
)

// withRetry runs fn once plus up to maxRetries more times with exponential
// backoff. Context errors and errors marked errs.PermanentFailure are never
// retried.
func withRetry(ctx context.Context, maxRetries int, baseDelay, maxDelay time.Duration, onRetry func(attempt uint, err error), fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	if onRetry == nil {
		onRetry = func(uint, error) {}
	}

	return retry.Do(
		func() error {
			return fn(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(uint(maxRetries)+1),
		retry.Delay(baseDelay),
		retry.MaxDelay(maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded) &&
				!errors.Is(err, errs.PermanentFailure)
		}),
		retry.OnRetry(onRetry),
	)
}
