package protocol

import (
	"bytes"
	"fmt"
	"math"
)

// Tag identifies which Value variant follows on the wire.
type Tag uint8

const (
	TagNil Tag = iota
	TagError
	TagString
	TagInteger
	TagDouble
	TagArray
)

func (t Tag) String() string {
	switch t {
	case TagNil:
		return "nil"
	case TagError:
		return "error"
	case TagString:
		return "string"
	case TagInteger:
		return "integer"
	case TagDouble:
		return "double"
	case TagArray:
		return "array"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// Value is one tagged response node. The set of variants is closed:
// Nil, Error, String, Integer, Double and Array.
type Value interface {
	Tag() Tag
	isValue()
}

type (
	Nil   struct{}
	Error struct {
		Code    uint32
		Message string
	}
	String  []byte
	Integer int64
	Double  float64
	Array   []Value
)

func (Nil) Tag() Tag     { return TagNil }
func (Error) Tag() Tag   { return TagError }
func (String) Tag() Tag  { return TagString }
func (Integer) Tag() Tag { return TagInteger }
func (Double) Tag() Tag  { return TagDouble }
func (Array) Tag() Tag   { return TagArray }

func (Nil) isValue()     {}
func (Error) isValue()   {}
func (String) isValue()  {}
func (Integer) isValue() {}
func (Double) isValue()  {}
func (Array) isValue()   {}

func (e Error) Error() string {
	return fmt.Sprintf("[ERROR %d]: %s", e.Code, e.Message)
}

// StringValue copies s into a String.
func StringValue(s string) String {
	return String([]byte(s))
}

// Errorf builds an Error value with a formatted message.
func Errorf(code uint32, format string, args ...any) Error {
	return Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ArrayOf builds a non-nil Array from vs.
func ArrayOf(vs ...Value) Array {
	out := make(Array, len(vs))
	copy(out, vs)
	return out
}

// StringArray builds an Array of String values.
func StringArray(items ...string) Array {
	out := make(Array, len(items))
	for i, s := range items {
		out[i] = StringValue(s)
	}
	return out
}

// Equal reports structural equality. Doubles compare by bit pattern so NaN equals itself.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case Nil:
		_, ok := b.(Nil)
		return ok
	case Error:
		bv, ok := b.(Error)
		return ok && av.Code == bv.Code && av.Message == bv.Message
	case String:
		bv, ok := b.(String)
		return ok && bytes.Equal(av, bv)
	case Integer:
		bv, ok := b.(Integer)
		return ok && av == bv
	case Double:
		bv, ok := b.(Double)
		return ok && math.Float64bits(float64(av)) == math.Float64bits(float64(bv))
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	}
	return false
}
