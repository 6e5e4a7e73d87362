package backoff

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConstant(t *testing.T) {
	s := Constant(250 * time.Millisecond)
	for attempts := uint(1); attempts <= 5; attempts++ {
		assert.Equal(t, 250*time.Millisecond, s(attempts))
	}
}

func TestBinaryExponential(t *testing.T) {
	s := BinaryExponential(500 * time.Millisecond)

	for _, tc := range []struct {
		attempts uint
		expected time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
		{5, 8 * time.Second},
		{200, math.MaxInt64},
	} {
		assert.Equal(t, tc.expected, s(tc.attempts), "attempts=%d", tc.attempts)
	}
}
