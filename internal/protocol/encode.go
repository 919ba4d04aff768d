package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeRequest builds a request body: argc then each argument length-prefixed.
// The caller frames the result with its own length.
func EncodeRequest(args [][]byte) ([]byte, error) {
	size := 4
	for _, arg := range args {
		size += 4 + len(arg)
	}
	return AppendRequest(make([]byte, 0, size), args)
}

// AppendRequest appends the request body for args to dst.
func AppendRequest(dst []byte, args [][]byte) ([]byte, error) {
	if uint64(len(args)) > math.MaxUint32 {
		return nil, ErrArgTooLarge
	}
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(args)))
	for i, arg := range args {
		if uint64(len(arg)) > math.MaxUint32 {
			return nil, fmt.Errorf("%w: arg %d has %d bytes", ErrArgTooLarge, i, len(arg))
		}
		dst = appendBytes(dst, arg)
	}
	return dst, nil
}

// RequestStrings converts string arguments into request arguments.
func RequestStrings(args ...string) [][]byte {
	out := make([][]byte, len(args))
	for i, a := range args {
		out[i] = []byte(a)
	}
	return out
}

// EncodeValue returns the tagged encoding of v.
func EncodeValue(v Value) ([]byte, error) {
	return AppendValue(nil, v)
}

// AppendValue appends the tagged encoding of v to dst, recursing into arrays.
func AppendValue(dst []byte, v Value) ([]byte, error) {
	switch tv := v.(type) {
	case nil:
		return nil, ErrNilValue
	case Nil:
		return append(dst, byte(TagNil)), nil
	case Error:
		if uint64(len(tv.Message)) > math.MaxUint32 {
			return nil, ErrArgTooLarge
		}
		dst = append(dst, byte(TagError))
		dst = binary.LittleEndian.AppendUint32(dst, tv.Code)
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(tv.Message)))
		return append(dst, tv.Message...), nil
	case String:
		if uint64(len(tv)) > math.MaxUint32 {
			return nil, ErrArgTooLarge
		}
		return appendBytes(append(dst, byte(TagString)), tv), nil
	case Integer:
		dst = append(dst, byte(TagInteger))
		return binary.LittleEndian.AppendUint64(dst, uint64(tv)), nil
	case Double:
		dst = append(dst, byte(TagDouble))
		return binary.LittleEndian.AppendUint64(dst, math.Float64bits(float64(tv))), nil
	case Array:
		if uint64(len(tv)) > math.MaxUint32 {
			return nil, ErrArgTooLarge
		}
		dst = append(dst, byte(TagArray))
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(tv)))
		var err error
		for _, elem := range tv {
			if dst, err = AppendValue(dst, elem); err != nil {
				return nil, err
			}
		}
		return dst, nil
	default:
		return nil, fmt.Errorf("%w: unsupported value type %T", ErrUnknownTag, v)
	}
}

func appendBytes(dst, b []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(b)))
	return append(dst, b...)
}
