package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestRetry(t *testing.T) {
	logger := zaptest.NewLogger(t)
	transient := errors.New("503 service unavailable")

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), fastPolicy(3), logger, func(context.Context) error {
			calls++
			if calls < 3 {
				return transient
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns last error when attempts are exhausted", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), fastPolicy(2), logger, func(context.Context) error {
			calls++
			return transient
		})
		assert.ErrorIs(t, err, transient)
		assert.Equal(t, 2, calls)
	})

	t.Run("permanent errors stop immediately", func(t *testing.T) {
		unauthorized := errors.New("401 unauthorized")
		calls := 0
		err := Retry(context.Background(), fastPolicy(5), logger, func(context.Context) error {
			calls++
			return Permanent(unauthorized)
		})
		assert.Equal(t, unauthorized, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := Retry(ctx, RetryPolicy{MaxAttempts: 5, BaseDelay: time.Hour}, logger, func(context.Context) error {
			calls++
			cancel()
			return transient
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("invalid policy", func(t *testing.T) {
		err := Retry(context.Background(), RetryPolicy{}, logger, func(context.Context) error { return nil })
		assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
	})
}

func TestRetryValue(t *testing.T) {
	calls := 0
	v, err := RetryValue(context.Background(), fastPolicy(3), nil, func(context.Context) ([]float32, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("timeout")
		}
		return []float32{1, 2}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, v)
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 10, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	for i := 0; i < 50; i++ {
		d1 := p.Delay(1)
		assert.GreaterOrEqual(t, d1, 50*time.Millisecond)
		assert.LessOrEqual(t, d1, 100*time.Millisecond)

		d3 := p.Delay(3)
		assert.GreaterOrEqual(t, d3, 200*time.Millisecond)
		assert.LessOrEqual(t, d3, 400*time.Millisecond)

		capped := p.Delay(9)
		assert.LessOrEqual(t, capped, time.Second)
		assert.GreaterOrEqual(t, capped, 500*time.Millisecond)
	}

	assert.Equal(t, time.Duration(0), RetryPolicy{MaxAttempts: 1}.Delay(1))
}

func TestBreaker(t *testing.T) {
	logger := zaptest.NewLogger(t)
	down := errors.New("connection refused")

	t.Run("disabled breaker passes through", func(t *testing.T) {
		b := NewBreaker("embeddings", BreakerSettings{Enabled: false}, logger)
		assert.Nil(t, b)
		assert.Equal(t, gobreaker.StateClosed, b.State())

		v, err := Execute(b, func() (int, error) { return 7, nil })
		require.NoError(t, err)
		assert.Equal(t, 7, v)
	})

	t.Run("opens after failure ratio and rejects calls", func(t *testing.T) {
		b := NewBreaker("entities-test", BreakerSettings{
			Enabled:          true,
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          time.Minute,
			ReadyToTripRatio: 0.5,
		}, logger)
		require.NotNil(t, b)

		for i := 0; i < 3; i++ {
			_, err := Execute(b, func() (string, error) { return "", down })
			assert.ErrorIs(t, err, down)
		}
		assert.Equal(t, gobreaker.StateOpen, b.State())

		called := false
		_, err := Execute(b, func() (string, error) {
			called = true
			return "ok", nil
		})
		assert.True(t, IsOpen(err))
		assert.False(t, called)
	})

	t.Run("cancellation does not trip", func(t *testing.T) {
		b := NewBreaker("cancel-test", BreakerSettings{Enabled: true, Timeout: time.Minute, ReadyToTripRatio: 0.5}, logger)
		for i := 0; i < 5; i++ {
			_, _ = Execute(b, func() (int, error) { return 0, context.Canceled })
		}
		assert.Equal(t, gobreaker.StateClosed, b.State())
	})
}
