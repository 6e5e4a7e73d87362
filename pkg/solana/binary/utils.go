// Package binary provides little endian cursors for the fixed layouts used by
// on-chain programs.
package binary

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/pkg/errors"
)

// COptionSize is the tag width of the SPL token program's COption.
const COptionSize = 4

var ErrShortBuffer = errors.New("buffer too short")

// Writer appends little endian values to a growing buffer.
type Writer struct {
	buf []byte
}

func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) PutBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// PutKey32 writes a 32 byte key. An empty key is written as zeros.
func (w *Writer) PutKey32(k ed25519.PublicKey) {
	var b [ed25519.PublicKeySize]byte
	copy(b[:], k)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) PutUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *Writer) PutUint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// PutCOptionKey32 writes a fixed width COption<Pubkey>.
func (w *Writer) PutCOptionKey32(k ed25519.PublicKey) {
	if len(k) > 0 {
		w.PutUint32(1)
	} else {
		w.PutUint32(0)
	}
	w.PutKey32(k)
}

// PutCOptionUint64 writes a fixed width COption<u64>.
func (w *Writer) PutCOptionUint64(v *uint64) {
	if v != nil {
		w.PutUint32(1)
		w.PutUint64(*v)
		return
	}
	w.PutUint32(0)
	w.PutUint64(0)
}

// PutOptionKey32 writes a borsh Option<Pubkey>, which only carries the key
// when present.
func (w *Writer) PutOptionKey32(k ed25519.PublicKey) {
	if len(k) == 0 {
		w.PutUint8(0)
		return
	}
	w.PutUint8(1)
	w.PutKey32(k)
}

// Reader consumes little endian values. The first out of bounds read sets
// Err, and every read after that returns zero values.
type Reader struct {
	b   []byte
	off int
	err error
}

func NewReader(b []byte) *Reader {
	return &Reader{b: b}
}

func (r *Reader) Err() error {
	return r.err
}

// Offset is the number of bytes consumed so far.
func (r *Reader) Offset() int {
	return r.off
}

func (r *Reader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.b) {
		r.err = errors.Wrapf(ErrShortBuffer, "need %d bytes at offset %d, have %d", n, r.off, len(r.b))
		return nil
	}
	v := r.b[r.off : r.off+n]
	r.off += n
	return v
}

func (r *Reader) Bytes(n int) []byte {
	v := r.next(n)
	if v == nil {
		return nil
	}
	return append([]byte{}, v...)
}

func (r *Reader) Key32() ed25519.PublicKey {
	v := r.next(ed25519.PublicKeySize)
	if v == nil {
		return nil
	}
	return append(ed25519.PublicKey{}, v...)
}

func (r *Reader) Uint8() uint8 {
	v := r.next(1)
	if v == nil {
		return 0
	}
	return v[0]
}

func (r *Reader) Uint32() uint32 {
	v := r.next(4)
	if v == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(v)
}

func (r *Reader) Uint64() uint64 {
	v := r.next(8)
	if v == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(v)
}

func (r *Reader) Int64() int64 {
	return int64(r.Uint64())
}

// COptionKey32 reads a fixed width COption<Pubkey>, returning nil if unset.
func (r *Reader) COptionKey32() ed25519.PublicKey {
	tag := r.Uint32()
	k := r.Key32()
	if tag == 0 {
		return nil
	}
	return k
}

// COptionUint64 reads a fixed width COption<u64>, returning nil if unset.
func (r *Reader) COptionUint64() *uint64 {
	tag := r.Uint32()
	v := r.Uint64()
	if tag == 0 || r.err != nil {
		return nil
	}
	return &v
}

// OptionKey32 reads a borsh Option<Pubkey>.
func (r *Reader) OptionKey32() ed25519.PublicKey {
	if r.Uint8() == 0 {
		return nil
	}
	return r.Key32()
}
