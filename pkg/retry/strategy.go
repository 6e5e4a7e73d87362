package retry

import (
	"context"
	"errors"
	"time"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/retry/backoff"
)

// Strategy decides whether an action is attempted again. Strategies may
// sleep or cause other side effects.
type Strategy func(attempts uint, err error) bool

// Limit caps the total number of attempts, including the first.
func Limit(maxAttempts uint) Strategy {
	return func(attempts uint, _ error) bool {
		return attempts < maxAttempts
	}
}

// RetriableErrors only retries errors matching one of retriable.
func RetriableErrors(retriable ...error) Strategy {
	return func(_ uint, err error) bool {
		return isAny(err, retriable)
	}
}

// NonRetriableErrors retries everything except errors matching one of nonRetriable.
func NonRetriableErrors(nonRetriable ...error) Strategy {
	return func(_ uint, err error) bool {
		return !isAny(err, nonRetriable)
	}
}

// RetriableFunc defers the retry decision to fn.
func RetriableFunc(fn func(err error) bool) Strategy {
	return func(_ uint, err error) bool {
		return fn(err)
	}
}

// Context stops retrying once ctx is done. Place it ahead of any backoff so
// a canceled caller doesn't sleep.
func Context(ctx context.Context) Strategy {
	return func(uint, error) bool {
		return ctx.Err() == nil
	}
}

// Backoff sleeps for the strategy's delay, capped at maxBackoff, before the
// next attempt.
func Backoff(strategy backoff.Strategy, maxBackoff time.Duration) Strategy {
	return func(attempts uint, _ error) bool {
		sleeperImpl.Sleep(capDelay(strategy(attempts), maxBackoff))
		return true
	}
}

// BackoffContext is Backoff with a sleep that ends early when ctx is done,
// in which case no further attempts are made.
func BackoffContext(ctx context.Context, strategy backoff.Strategy, maxBackoff time.Duration) Strategy {
	return func(attempts uint, _ error) bool {
		return sleeperImpl.SleepContext(ctx, capDelay(strategy(attempts), maxBackoff))
	}
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func capDelay(delay, max time.Duration) time.Duration {
	if delay > max {
		return max
	}
	return delay
}

type sleeper interface {
	Sleep(time.Duration)
	SleepContext(context.Context, time.Duration) bool
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// SleepContext returns false if ctx finished before d elapsed.
func (realSleeper) SleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

var sleeperImpl sleeper = realSleeper{}
