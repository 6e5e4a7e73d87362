package sync

import (
	"crypto/ed25519"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_Consistency(t *testing.T) {
	r := newRing(64, replicasPerStripe)
	other := newRing(64, replicasPerStripe)

	for i := 0; i < 256; i++ {
		key, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)

		stripe := r.stripe(key)
		assert.True(t, stripe >= 0 && stripe < 64)
		for j := 0; j < 16; j++ {
			assert.Equal(t, stripe, r.stripe(key))
		}
		assert.Equal(t, stripe, other.stripe(key))
	}
}

func TestRing_Distribution(t *testing.T) {
	stripes := 5
	iterations := 100_000
	marginOfError := 0.1
	expected := float64(iterations / stripes)

	r := newRing(uint(stripes), replicasPerStripe)

	hits := make(map[int]int)
	key := make([]byte, 32)
	for i := 0; i < iterations; i++ {
		key[0], key[1], key[2] = byte(i), byte(i>>8), byte(i>>16)
		hits[r.stripe(key)]++
	}

	assert.Len(t, hits, stripes)
	for _, count := range hits {
		assert.True(t, math.Abs(float64(count)-expected) <= marginOfError*expected)
	}
}

func TestRing_SingleStripe(t *testing.T) {
	r := newRing(1, 1)
	for i := 0; i < 32; i++ {
		assert.Equal(t, 0, r.stripe([]byte{byte(i)}))
	}
}
