// Package backoff provides delay schedules for retry.Backoff.
package backoff

import (
	"math"
	"time"
)

// Strategy maps an attempt count, starting at 1, to the delay before the
// next attempt.
type Strategy func(attempts uint) time.Duration

// Constant always waits interval.
func Constant(interval time.Duration) Strategy {
	return func(uint) time.Duration {
		return interval
	}
}

// BinaryExponential doubles the delay after every attempt, starting at
// baseDelay. Delays that overflow saturate at the maximum duration.
//
// Ex. BinaryExponential(500*time.Millisecond) = 500ms, 1s, 2s, 4s, ...
func BinaryExponential(baseDelay time.Duration) Strategy {
	return func(attempts uint) time.Duration {
		if attempts == 0 {
			attempts = 1
		}

		delay := float64(baseDelay) * math.Pow(2, float64(attempts-1))
		if delay >= math.MaxInt64 {
			return math.MaxInt64
		}
		return time.Duration(delay)
	}
}
