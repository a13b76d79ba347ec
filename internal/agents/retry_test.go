package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
	"github.com/hugo-lorenzo-mato/claimpilot/internal/logging"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	result, err := Retry(context.Background(), logging.NewNop(), fastPolicy(), "stage",
		func(context.Context) (string, error) {
			attempts++
			if attempts < 3 {
				return "", errors.New("transient")
			}
			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestRetryExhaustsAndReturnsLastError(t *testing.T) {
	attempts := 0
	lastErr := errors.New("still broken")
	_, err := Retry(context.Background(), logging.NewNop(), fastPolicy(), "stage",
		func(context.Context) (int, error) {
			attempts++
			return 0, lastErr
		})

	require.ErrorIs(t, err, lastErr)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	_, err := Retry(context.Background(), logging.NewNop(), fastPolicy(), "stage",
		func(context.Context) (int, error) {
			attempts++
			return 0, core.ErrValidation(core.CodeSchemaInvalid, "bad shape")
		})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour}

	go cancel()
	_, err := Retry(ctx, logging.NewNop(), policy, "stage",
		func(context.Context) (int, error) {
			return 0, errors.New("transient")
		})

	require.ErrorIs(t, err, context.Canceled)
}
