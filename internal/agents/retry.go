package agents

import (
	"context"
	"time"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/logging"
)

// RetryPolicy bounds repeated stage attempts with linear backoff:
// the delay before attempt n+1 is BaseDelay*n.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy returns the standard stage retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second}
}

// Retry runs fn up to policy.MaxAttempts times. Intermediate failures log as
// warnings; the final failure logs as an error and is returned. Non-retryable
// domain errors stop immediately.
func Retry[T any](ctx context.Context, log *logging.Logger, policy RetryPolicy, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !core.IsRetryable(err) {
			break
		}
		if attempt == policy.MaxAttempts {
			break
		}

		delay := policy.BaseDelay * time.Duration(attempt)
		log.Warn("stage attempt failed, retrying",
			"stage", name, "attempt", attempt, "delay", delay.String(), "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	log.Error("stage failed after retries",
		"stage", name, "attempts", policy.MaxAttempts, "error", lastErr)
	return zero, lastErr
}
