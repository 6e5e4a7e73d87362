// Package shortvec implements the compact-u16 length prefix used throughout
// the transaction wire format.
package shortvec

import (
	"io"
	"math"

	"github.com/pkg/errors"
)

const maxEncodedLen = 3

// EncodeLen encodes the specified len into the writer.
//
// If len > math.MaxUint16, an error is returned.
func EncodeLen(w io.Writer, len int) (n int, err error) {
	if len < 0 || len > math.MaxUint16 {
		return 0, errors.Errorf("len out of range [0, %d]: %d", math.MaxUint16, len)
	}

	var buf [maxEncodedLen]byte
	for {
		b := byte(len & 0x7f)
		len >>= 7
		if len != 0 {
			b |= 0x80
		}

		buf[n] = b
		n++

		if len == 0 {
			break
		}
	}

	return w.Write(buf[:n])
}

// DecodeLen decodes a shortvec encoded len from the reader.
func DecodeLen(r io.Reader) (val int, err error) {
	var b [1]byte
	for i := 0; ; i++ {
		if i == maxEncodedLen {
			return 0, errors.Errorf("invalid size: more than %d bytes", maxEncodedLen)
		}
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}

		val |= int(b[0]&0x7f) << (i * 7)
		if b[0]&0x80 == 0 {
			return val, nil
		}
	}
}
