package sdk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock records sleeps instead of waiting.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func TestRetryStrategies_ExponentialBackoff(t *testing.T) {
	strategy := DefaultExponentialBackoff()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{-1, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, strategy.NextInterval(tt.attempt), "attempt %d", tt.attempt)
	}

	capped := &ExponentialBackoffStrategy{InitialInterval: time.Second, Multiplier: 2, MaxInterval: 3 * time.Second}
	assert.Equal(t, 3*time.Second, capped.NextInterval(5))

	assert.True(t, strategy.ShouldRetry(NewError(ErrorTypeTimeout, "t", nil)))
	assert.True(t, strategy.ShouldRetry(NewError(ErrorTypeConnection, "c", nil)))
	assert.False(t, strategy.ShouldRetry(NewError(ErrorTypeHTTP, "h", nil)))
	assert.False(t, strategy.ShouldRetry(NewError(ErrorTypeDecode, "d", nil)))
	assert.False(t, strategy.ShouldRetry(NewError(ErrorTypeUnknown, "u", nil)))
}

func TestRetryState_Transitions(t *testing.T) {
	strategy := DefaultExponentialBackoff()
	timeout := NewError(ErrorTypeTimeout, "timeout", nil)
	rejected := NewError(ErrorTypeHTTP, "404", nil)

	t.Run("success ends the machine", func(t *testing.T) {
		s := NewRetryState(3).OnResult(nil, strategy)
		assert.Equal(t, PhaseSucceeded, s.Phase)
		assert.True(t, s.Terminal())
		assert.Equal(t, 1, s.Attempts())
	})

	t.Run("retryable error enters backoff", func(t *testing.T) {
		s := NewRetryState(3).OnResult(timeout, strategy)
		assert.Equal(t, PhaseBackoff, s.Phase)
		assert.Equal(t, time.Second, s.Delay)
		assert.False(t, s.Terminal())

		s = s.OnBackoffDone(nil)
		assert.Equal(t, PhaseAttempting, s.Phase)
		assert.Equal(t, 1, s.Attempt)
		assert.Zero(t, s.Delay)

		s = s.OnResult(timeout, strategy)
		assert.Equal(t, PhaseBackoff, s.Phase)
		assert.Equal(t, 2*time.Second, s.Delay)
	})

	t.Run("retryable error on last attempt fails", func(t *testing.T) {
		s := NewRetryState(1).OnResult(timeout, strategy)
		assert.Equal(t, PhaseFailed, s.Phase)
		assert.Same(t, timeout, s.Err)
	})

	t.Run("terminal error fails immediately", func(t *testing.T) {
		s := NewRetryState(3).OnResult(rejected, strategy)
		assert.Equal(t, PhaseFailed, s.Phase)
		assert.Equal(t, 1, s.Attempts())
	})

	t.Run("interrupted backoff fails with unknown", func(t *testing.T) {
		s := NewRetryState(3).OnResult(timeout, strategy).OnBackoffDone(context.Canceled)
		assert.Equal(t, PhaseFailed, s.Phase)
		assert.True(t, errors.Is(s.Err, ErrUnknown))
		assert.True(t, errors.Is(s.Err, context.Canceled))
	})

	t.Run("events in the wrong phase are ignored", func(t *testing.T) {
		s := NewRetryState(3)
		assert.Equal(t, s, s.OnBackoffDone(nil))

		done := s.OnResult(nil, strategy)
		assert.Equal(t, done, done.OnResult(timeout, strategy))
	})

	t.Run("max attempts below one is one", func(t *testing.T) {
		assert.Equal(t, 1, NewRetryState(0).MaxAttempts)
	})
}

func TestRetryExecutor_Detailed(t *testing.T) {
	t.Run("successful on first attempt", func(t *testing.T) {
		clock := newFakeClock()
		executor := newRetryExecutor(DefaultExponentialBackoff(), clock, 3, nil)

		attempts := 0
		state := executor.Execute(context.Background(), "GET", "/x", func(n int) error {
			attempts++
			return nil
		})

		assert.Equal(t, PhaseSucceeded, state.Phase)
		assert.Equal(t, 1, attempts)
		assert.Empty(t, clock.Sleeps())
	})

	t.Run("successful after retries", func(t *testing.T) {
		clock := newFakeClock()
		executor := newRetryExecutor(DefaultExponentialBackoff(), clock, 5, nil)

		var seen []int
		state := executor.Execute(context.Background(), "GET", "/x", func(n int) error {
			seen = append(seen, n)
			if n < 2 {
				return NewError(ErrorTypeConnection, "refused", nil)
			}
			return nil
		})

		assert.Equal(t, PhaseSucceeded, state.Phase)
		assert.Equal(t, []int{0, 1, 2}, seen)
		assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Sleeps())
		assert.Equal(t, 3, state.Attempts())
	})

	t.Run("always timing out makes exactly N attempts", func(t *testing.T) {
		for n := 1; n <= 5; n++ {
			clock := newFakeClock()
			executor := newRetryExecutor(DefaultExponentialBackoff(), clock, n, nil)

			attempts := 0
			state := executor.Execute(context.Background(), "GET", "/x", func(int) error {
				attempts++
				return NewError(ErrorTypeTimeout, "timeout", nil)
			})

			require.Equal(t, PhaseFailed, state.Phase)
			assert.Equal(t, n, attempts)
			assert.True(t, errors.Is(state.Err, ErrTimeout))

			var total time.Duration
			for _, d := range clock.Sleeps() {
				total += d
			}
			// 1 + 2 + ... + 2^(n-2) seconds
			want := time.Duration((1<<(n-1))-1) * time.Second
			assert.Equal(t, want, total, "n=%d", n)
			assert.Len(t, clock.Sleeps(), n-1)
		}
	})

	t.Run("non-retryable error", func(t *testing.T) {
		clock := newFakeClock()
		executor := newRetryExecutor(DefaultExponentialBackoff(), clock, 3, nil)

		attempts := 0
		state := executor.Execute(context.Background(), "GET", "/x", func(int) error {
			attempts++
			return NewError(ErrorTypeHTTP, "500", nil)
		})

		assert.Equal(t, PhaseFailed, state.Phase)
		assert.Equal(t, 1, attempts, "should not retry an HTTP status")
		assert.Empty(t, clock.Sleeps())
	})

	t.Run("context cancellation during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		clock := newFakeClock()
		executor := newRetryExecutor(DefaultExponentialBackoff(), clock, 3, nil)

		attempts := 0
		state := executor.Execute(ctx, "GET", "/x", func(int) error {
			attempts++
			cancel()
			return NewError(ErrorTypeTimeout, "timeout", nil)
		})

		assert.Equal(t, PhaseFailed, state.Phase)
		assert.Equal(t, 1, attempts)
		assert.True(t, errors.Is(state.Err, context.Canceled))
	})

	t.Run("observer sees each backoff", func(t *testing.T) {
		metrics := NewMetricsCollector()
		executor := newRetryExecutor(&ConstantBackoffStrategy{Interval: time.Millisecond}, newFakeClock(), 3, metrics)

		executor.Execute(context.Background(), "GET", "/x", func(int) error {
			return NewError(ErrorTypeConnection, "reset", nil)
		})

		snapshot := metrics.GetMetrics()
		assert.Equal(t, int64(2), snapshot["retries"].(map[string]int64)["GET /x"])
		assert.Equal(t, []time.Duration{time.Millisecond, time.Millisecond}, snapshot["retry_delays"])
	})
}

func TestSystemClock_SleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := SystemClock().Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, SystemClock().Sleep(context.Background(), time.Millisecond))
}
