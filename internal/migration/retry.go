package migration

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds the attempts made for one run.
type RetryPolicy struct {
	MaxRetries     int
	Delay          time.Duration
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy returns two retries five seconds apart, each attempt
// limited to 45 seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     2,
		Delay:          5 * time.Second,
		AttemptTimeout: 45 * time.Second,
	}
}

func (p RetryPolicy) backoff() retry.Backoff {
	delay := p.Delay
	if delay <= 0 {
		delay = time.Nanosecond
	}
	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return retry.WithMaxRetries(uint64(retries), retry.NewConstant(delay))
}

// do runs fn until it succeeds, fails with a non-transient error, or the
// retries are exhausted. Each attempt gets its own timeout; an attempt that
// times out counts as transient.
func (p RetryPolicy) do(ctx context.Context, log *slog.Logger, fn func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		attemptCtx := ctx
		if p.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
			defer cancel()
		}

		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() == nil && IsRetryable(err) {
			log.Warn("migration attempt failed, will retry",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return retry.RetryableError(err)
		}
		return err
	})
}
