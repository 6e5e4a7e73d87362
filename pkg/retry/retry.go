// Package retry runs actions repeatedly under a chain of strategies. Each
// strategy sees the attempt count and error and may veto further attempts or
// sleep before the next one.
package retry

// Action is a function to be performed in a retriable manner.
type Action func() error

// Retry runs action until it succeeds or a strategy vetoes another attempt,
// returning the number of attempts made. Strategies run in order, so those
// that sleep belong at the end of the chain.
func Retry(action Action, strategies ...Strategy) (uint, error) {
	var attempts uint
	for {
		attempts++

		err := action()
		if err == nil {
			return attempts, nil
		}

		if !shouldRetry(strategies, attempts, err) {
			return attempts, err
		}
	}
}

// Loop runs action forever until a strategy vetoes a retry. A successful
// run resets the attempt count, so backoff restarts after every success.
func Loop(action Action, strategies ...Strategy) error {
	var failures uint
	for {
		err := action()
		if err == nil {
			failures = 0
			continue
		}

		failures++
		if !shouldRetry(strategies, failures, err) {
			return err
		}
	}
}

func shouldRetry(strategies []Strategy, attempts uint, err error) bool {
	for _, s := range strategies {
		if !s(attempts, err) {
			return false
		}
	}
	return true
}
