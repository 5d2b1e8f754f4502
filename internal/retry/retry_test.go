package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithExponentialBackoffSucceedsAfterRetries(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(), func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, calls)
}

func TestWithExponentialBackoffExhaustsAttempts(t *testing.T) {
	permanent := errors.New("still broken")
	result := WithExponentialBackoff(context.Background(), fastConfig(), func(ctx context.Context, attempt int) error {
		return permanent
	})

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.ErrorIs(t, result.LastError, permanent)
}

func TestWithExponentialBackoffStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	cfg := fastConfig()
	cfg.Retryable = func(err error) bool { return !errors.Is(err, fatal) }

	calls := 0
	result := WithExponentialBackoff(context.Background(), cfg, func(ctx context.Context, attempt int) error {
		calls++
		return fatal
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls, "non-retryable errors get exactly one attempt")
}

func TestWithExponentialBackoffRespectsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig()
	cfg.InitialDelay = time.Hour

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	result := WithExponentialBackoff(ctx, cfg, func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("transient")
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, result.LastError, context.Canceled)
}

func TestCalculateDelayCapsAtMax(t *testing.T) {
	cfg := &RetryConfig{
		InitialDelay: time.Second,
		MaxDelay:     4 * time.Second,
		Multiplier:   2.0,
	}

	assert.Equal(t, time.Second, calculateDelay(cfg, 1))
	assert.Equal(t, 2*time.Second, calculateDelay(cfg, 2))
	assert.Equal(t, 4*time.Second, calculateDelay(cfg, 3))
	assert.Equal(t, 4*time.Second, calculateDelay(cfg, 10))
}

func TestWithRetryWrapsFailure(t *testing.T) {
	err := WithRetry(context.Background(), func(ctx context.Context, attempt int) error {
		return nil
	})
	require.NoError(t, err)
}
