package recallerr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SuccessOnFirstTry(t *testing.T) {
	// Given: a function that succeeds immediately
	attempts := 0
	fn := func() error {
		attempts++
		return nil
	}

	// When: I call Retry
	err := Retry(context.Background(), fastRetryConfig(), fn)

	// Then: no error and only one attempt
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_SuccessAfterTransientFailures(t *testing.T) {
	// Given: a function that fails twice with retryable errors then succeeds
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return NetworkError("temporary", nil)
		}
		return nil
	}

	err := Retry(context.Background(), fastRetryConfig(), fn)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ExhaustsOnPersistentTransientError(t *testing.T) {
	attempts := 0
	fn := func() error {
		attempts++
		return RateLimited("always throttled", nil)
	}

	err := Retry(context.Background(), fastRetryConfig(), fn)

	// Initial attempt + 3 retries
	require.Error(t, err)
	assert.Equal(t, 4, attempts)
	assert.Contains(t, err.Error(), "failed after")
	assert.True(t, errors.Is(err, RateLimited("", nil)))
}

func TestRetry_NonRetryableAbortsImmediately(t *testing.T) {
	attempts := 0
	fn := func() error {
		attempts++
		return AuthError("invalid key", nil)
	}

	err := Retry(context.Background(), fastRetryConfig(), fn)

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, ErrCodeAuth, GetCode(err))
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	fn := func() error {
		attempts++
		cancel() // cancel while waiting for the first retry
		return NetworkError("down", nil)
	}

	cfg := fastRetryConfig()
	cfg.InitialDelay = 50 * time.Millisecond

	err := Retry(ctx, cfg, fn)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	attempts := 0
	fn := func() ([]float32, error) {
		attempts++
		if attempts < 2 {
			return nil, NetworkError("blip", nil)
		}
		return []float32{1, 2, 3}, nil
	}

	vec, err := RetryWithResult(context.Background(), fastRetryConfig(), fn)

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
	assert.Equal(t, 2, attempts)
}

func TestRetryWithResult_NonRetryablePropagates(t *testing.T) {
	fn := func() (string, error) {
		return "", ValidationError("empty text", nil)
	}

	_, err := RetryWithResult(context.Background(), fastRetryConfig(), fn)

	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidInput, GetCode(err))
}
