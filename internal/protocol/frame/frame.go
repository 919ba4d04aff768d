package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderLen is the size of the u32 length prefix.
const HeaderLen = 4

// maxEmptyReads bounds consecutive (0, nil) reads before giving up.
const maxEmptyReads = 100

var (
	ErrConnClosed      = errors.New("frame: connection closed")
	ErrShortFrame      = errors.New("frame: connection closed mid-frame")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrShortHeader     = errors.New("frame: short length header")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 8 * 1024 * 1024,
	}
}

func (l Limits) check(n uint64) error {
	if l.MaxPayloadBytes > 0 && n > uint64(l.MaxPayloadBytes) {
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, n, l.MaxPayloadBytes)
	}
	if n > uint64(^uint32(0)) {
		return fmt.Errorf("%w: %d exceeds u32", ErrPayloadTooLarge, n)
	}
	return nil
}

// ReadFrame reads one length-prefixed payload. A zero-length frame yields an
// empty, non-nil payload. Short reads are retried; only EOF or an I/O error fails.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var head [HeaderLen]byte
	if err := readFull(r, head[:]); err != nil {
		if errors.Is(err, ErrShortFrame) {
			return nil, fmt.Errorf("%w: %w", ErrShortHeader, err)
		}
		return nil, err
	}
	n, err := DecodeHeader(head[:])
	if err != nil {
		return nil, err
	}
	if err := limits.check(uint64(n)); err != nil {
		return nil, err
	}

	payload := make([]byte, n)
	if n == 0 {
		return payload, nil
	}
	if err := readFull(r, payload); err != nil {
		if errors.Is(err, ErrConnClosed) {
			return nil, ErrShortFrame
		}
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes the length prefix and payload, retrying partial writes.
func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	if err := limits.check(uint64(len(payload))); err != nil {
		return err
	}
	return writeFull(w, AppendFrame(make([]byte, 0, HeaderLen+len(payload)), payload))
}

// AppendFrame appends the length prefix and payload to dst without checking limits.
func AppendFrame(dst, payload []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

func EncodeHeader(n uint32) []byte {
	buf := make([]byte, HeaderLen)
	binary.LittleEndian.PutUint32(buf, n)
	return buf
}

func DecodeHeader(b []byte) (uint32, error) {
	if len(b) != HeaderLen {
		return 0, fmt.Errorf("frame: invalid header length: %d", len(b))
	}
	return binary.LittleEndian.Uint32(b), nil
}

func readFull(r io.Reader, buf []byte) error {
	got, empty := 0, 0
	for got < len(buf) {
		n, err := r.Read(buf[got:])
		got += n
		if got == len(buf) {
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if got == 0 {
					return ErrConnClosed
				}
				return ErrShortFrame
			}
			return fmt.Errorf("frame: read: %w", err)
		}
		if n == 0 {
			empty++
			if empty >= maxEmptyReads {
				return io.ErrNoProgress
			}
			continue
		}
		empty = 0
	}
	return nil
}

func writeFull(w io.Writer, buf []byte) error {
	for off := 0; off < len(buf); {
		n, err := w.Write(buf[off:])
		off += n
		if err != nil {
			return fmt.Errorf("frame: write: %w", err)
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}
