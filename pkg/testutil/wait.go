package testutil

import (
	"time"

	"github.com/pkg/errors"
)

// WaitFor polls condition every interval until it holds or timeout elapses.
func WaitFor(timeout, interval time.Duration, condition func() bool) error {
	if timeout < interval {
		return errors.New("timeout must be at least the poll interval")
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if condition() {
			return nil
		}

		select {
		case <-deadline.C:
			if condition() {
				return nil
			}
			return errors.Errorf("condition not met within %v", timeout)
		case <-ticker.C:
		}
	}
}
