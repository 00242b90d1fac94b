package sdk

import (
	"context"
	"fmt"
	"math"
	"time"
)

// RetryPhase is a state of the per-request retry machine.
//
//	Attempting --success-----------------------> Succeeded
//	Attempting --terminal error----------------> Failed
//	Attempting --retryable error, last attempt-> Failed
//	Attempting --retryable error---------------> Backoff
//	Backoff    --delay elapsed-----------------> Attempting (attempt+1)
//	Backoff    --context done------------------> Failed
type RetryPhase int

const (
	// PhaseAttempting means a request is about to be sent
	PhaseAttempting RetryPhase = iota
	// PhaseBackoff means the machine waits State.Delay before the next attempt
	PhaseBackoff
	// PhaseSucceeded is the terminal success state
	PhaseSucceeded
	// PhaseFailed is the terminal failure state, State.Err holds the cause
	PhaseFailed
)

// String returns the string representation of the phase
func (p RetryPhase) String() string {
	switch p {
	case PhaseAttempting:
		return "attempting"
	case PhaseBackoff:
		return "backoff"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// RetryState is the state of one Execute call. It is created per request
// and discarded afterwards.
type RetryState struct {
	Phase RetryPhase
	// Attempt is the zero-based index of the current attempt
	Attempt int
	// MaxAttempts is the total number of attempts allowed
	MaxAttempts int
	// Delay is the wait computed on entering PhaseBackoff
	Delay time.Duration
	// Err is the error of the most recent attempt
	Err error
}

// NewRetryState returns a machine in PhaseAttempting for attempt 0.
// maxAttempts below 1 is treated as 1.
func NewRetryState(maxAttempts int) RetryState {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return RetryState{Phase: PhaseAttempting, MaxAttempts: maxAttempts}
}

// Terminal reports whether the machine has stopped.
func (s RetryState) Terminal() bool {
	return s.Phase == PhaseSucceeded || s.Phase == PhaseFailed
}

// Attempts returns how many attempts have been made so far.
func (s RetryState) Attempts() int {
	if s.Phase == PhaseAttempting {
		return s.Attempt
	}
	return s.Attempt + 1
}

// OnResult applies the outcome of the current attempt. It is only valid
// in PhaseAttempting; other phases are returned unchanged.
func (s RetryState) OnResult(err error, strategy RetryStrategy) RetryState {
	if s.Phase != PhaseAttempting {
		return s
	}
	s.Err = err
	switch {
	case err == nil:
		s.Phase = PhaseSucceeded
	case !strategy.ShouldRetry(err), s.Attempt+1 >= s.MaxAttempts:
		s.Phase = PhaseFailed
	default:
		s.Phase = PhaseBackoff
		s.Delay = strategy.NextInterval(s.Attempt)
	}
	return s
}

// OnBackoffDone leaves PhaseBackoff. A nil err moves to the next attempt;
// a non-nil err (the wait was interrupted) fails the machine with it.
func (s RetryState) OnBackoffDone(err error) RetryState {
	if s.Phase != PhaseBackoff {
		return s
	}
	if err != nil {
		s.Phase = PhaseFailed
		s.Err = NewError(ErrorTypeUnknown, fmt.Sprintf("retry wait aborted: %v", err), err)
		return s
	}
	s.Phase = PhaseAttempting
	s.Attempt++
	s.Delay = 0
	return s
}

// RetryStrategy decides which failures are retried and how long to wait.
//
// You can implement custom strategies:
//
//	type linear struct{}
//
//	func (linear) NextInterval(attempt int) time.Duration {
//	    return time.Duration(attempt+1) * time.Second
//	}
//
//	func (linear) ShouldRetry(err error) bool { return sdk.IsRetryable(err) }
type RetryStrategy interface {
	// NextInterval returns the wait after the failed attempt with the
	// given zero-based index.
	NextInterval(attempt int) time.Duration

	// ShouldRetry reports whether err may be retried at all.
	ShouldRetry(err error) bool
}

// ExponentialBackoffStrategy waits InitialInterval * Multiplier^attempt
// after the failed attempt with the given zero-based index. With the
// defaults that is 1s, 2s, 4s, ...
type ExponentialBackoffStrategy struct {
	// InitialInterval is the wait after the first failed attempt
	InitialInterval time.Duration

	// Multiplier is the exponential growth factor
	Multiplier float64

	// MaxInterval caps the wait; zero means uncapped
	MaxInterval time.Duration
}

// DefaultExponentialBackoff returns the 2^attempt seconds policy.
func DefaultExponentialBackoff() *ExponentialBackoffStrategy {
	return &ExponentialBackoffStrategy{
		InitialInterval: time.Second,
		Multiplier:      2.0,
	}
}

// NextInterval calculates the next retry interval
func (s *ExponentialBackoffStrategy) NextInterval(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	interval := float64(s.InitialInterval) * math.Pow(s.Multiplier, float64(attempt))
	if s.MaxInterval > 0 && interval > float64(s.MaxInterval) {
		interval = float64(s.MaxInterval)
	}
	return time.Duration(interval)
}

// ShouldRetry retries timeouts and connection failures only
func (s *ExponentialBackoffStrategy) ShouldRetry(err error) bool {
	return IsRetryable(err)
}

// ConstantBackoffStrategy waits the same interval between attempts.
type ConstantBackoffStrategy struct {
	Interval time.Duration
}

// NextInterval returns the fixed interval
func (s *ConstantBackoffStrategy) NextInterval(attempt int) time.Duration {
	return s.Interval
}

// ShouldRetry retries timeouts and connection failures only
func (s *ConstantBackoffStrategy) ShouldRetry(err error) bool {
	return IsRetryable(err)
}

// retryExecutor drives a RetryState to a terminal phase.
type retryExecutor struct {
	strategy    RetryStrategy
	clock       Clock
	maxAttempts int
	observer    Observer
}

func newRetryExecutor(strategy RetryStrategy, clock Clock, maxAttempts int, observer Observer) *retryExecutor {
	if strategy == nil {
		strategy = DefaultExponentialBackoff()
	}
	if clock == nil {
		clock = SystemClock()
	}
	if observer == nil {
		observer = &NoopObserver{}
	}
	return &retryExecutor{
		strategy:    strategy,
		clock:       clock,
		maxAttempts: maxAttempts,
		observer:    observer,
	}
}

// Execute runs attempt until the machine is terminal and returns the
// final state. attempt receives the zero-based attempt index.
func (re *retryExecutor) Execute(ctx context.Context, method, path string, attempt func(n int) error) RetryState {
	state := NewRetryState(re.maxAttempts)
	for !state.Terminal() {
		switch state.Phase {
		case PhaseAttempting:
			state = state.OnResult(attempt(state.Attempt), re.strategy)
		case PhaseBackoff:
			re.observer.OnRetryAttempt(method, path, state.Attempt+1, state.Delay, state.Err)
			state = state.OnBackoffDone(re.clock.Sleep(ctx, state.Delay))
		}
	}
	return state
}
