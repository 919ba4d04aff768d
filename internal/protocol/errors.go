package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrTruncated     = errors.New("protocol: truncated data")
	ErrUnknownTag    = errors.New("protocol: unknown value tag")
	ErrInvalidLength = errors.New("protocol: invalid length")
	ErrTrailingBytes = errors.New("protocol: trailing bytes after value")
	ErrArgTooLarge   = errors.New("protocol: argument exceeds u32 length")
	ErrNilValue      = errors.New("protocol: nil value")
)

// DecodeErrorKind classifies a decode failure.
type DecodeErrorKind uint8

const (
	KindTruncated DecodeErrorKind = iota + 1
	KindUnknownTag
	KindInvalidLength
	KindTrailingBytes
)

func (k DecodeErrorKind) String() string {
	switch k {
	case KindTruncated:
		return "truncated"
	case KindUnknownTag:
		return "unknown_tag"
	case KindInvalidLength:
		return "invalid_length"
	case KindTrailingBytes:
		return "trailing_bytes"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// DecodeError reports where and why a buffer could not be decoded.
// It is distinct from an Error value, which is a successfully decoded result.
type DecodeError struct {
	Kind   DecodeErrorKind
	Offset int
	Tag    byte
	Want   uint64
	Have   int
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case KindUnknownTag:
		return fmt.Sprintf("protocol: unknown value tag %d at offset %d", e.Tag, e.Offset)
	case KindTrailingBytes:
		return fmt.Sprintf("protocol: %d trailing bytes at offset %d", e.Have, e.Offset)
	default:
		return fmt.Sprintf("protocol: %s at offset %d (want %d, have %d)", e.Kind, e.Offset, e.Want, e.Have)
	}
}

func (e *DecodeError) Unwrap() error {
	switch e.Kind {
	case KindTruncated:
		return ErrTruncated
	case KindUnknownTag:
		return ErrUnknownTag
	case KindInvalidLength:
		return ErrInvalidLength
	case KindTrailingBytes:
		return ErrTrailingBytes
	default:
		return nil
	}
}

// IsDecodeError reports whether err came from a decode path.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
