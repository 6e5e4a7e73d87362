package shortvec

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeLen(t *testing.T) {
	for _, tc := range []struct {
		length  int
		encoded []byte
	}{
		{0, []byte{0x00}},
		{3, []byte{0x03}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{255, []byte{0xff, 0x01}},
		{256, []byte{0x80, 0x02}},
		{16383, []byte{0xff, 0x7f}},
		{16384, []byte{0x80, 0x80, 0x01}},
		{math.MaxUint16, []byte{0xff, 0xff, 0x03}},
	} {
		var buf bytes.Buffer
		n, err := EncodeLen(&buf, tc.length)
		require.NoError(t, err)
		assert.Equal(t, len(tc.encoded), n, "length=%d", tc.length)
		assert.Equal(t, tc.encoded, buf.Bytes(), "length=%d", tc.length)

		decoded, err := DecodeLen(&buf)
		require.NoError(t, err)
		assert.Equal(t, tc.length, decoded)
	}
}

func TestDecodeLen_AllLengths(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i <= math.MaxUint16; i += 7 {
		buf.Reset()
		_, err := EncodeLen(&buf, i)
		require.NoError(t, err)

		actual, err := DecodeLen(&buf)
		require.NoError(t, err)
		require.Equal(t, i, actual)
	}
}

func TestInvalid(t *testing.T) {
	for _, length := range []int{-1, math.MaxUint16 + 1} {
		_, err := EncodeLen(&bytes.Buffer{}, length)
		assert.Error(t, err, "length=%d", length)
	}

	for _, encoded := range [][]byte{
		{},
		{0x80},
		{0x80, 0x80, 0x80, 0x01},
	} {
		_, err := DecodeLen(bytes.NewBuffer(encoded))
		assert.Error(t, err, "encoded=%x", encoded)
	}
}
