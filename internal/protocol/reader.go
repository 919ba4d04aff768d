package protocol

import (
	"encoding/binary"
	"math"
)

// Reader is a bounded cursor over one decoded body.
// Reads never advance past the end; a short buffer yields a *DecodeError.
type Reader struct {
	buf []byte
	off int
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Offset is the number of bytes consumed so far.
func (r *Reader) Offset() int {
	return r.off
}

// Len is the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.buf) - r.off
}

func (r *Reader) truncated(want int) error {
	return &DecodeError{Kind: KindTruncated, Offset: r.off, Want: uint64(want), Have: r.Len()}
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, r.truncated(n)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) ReadByte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadI64() (int64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func (r *Reader) ReadF64() (float64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

// ReadBytes reads a u32 length then that many bytes, returning a copy.
// A length that claims more than what remains is KindInvalidLength.
func (r *Reader) ReadBytes() ([]byte, error) {
	start := r.off
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(r.Len()) {
		r.off = start
		return nil, &DecodeError{Kind: KindInvalidLength, Offset: start, Want: uint64(n), Have: r.Len() - 4}
	}
	raw, _ := r.take(int(n))
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// Done fails with KindTrailingBytes if unread bytes remain.
func (r *Reader) Done() error {
	if rest := r.Len(); rest > 0 {
		return &DecodeError{Kind: KindTrailingBytes, Offset: r.off, Have: rest}
	}
	return nil
}
