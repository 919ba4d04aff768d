package protocol

// DecodeRequest parses a request body into its arguments.
// Counts and lengths are checked against the bytes that remain before anything is allocated.
func DecodeRequest(body []byte) ([][]byte, error) {
	r := NewReader(body)
	start := r.Offset()
	argc, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	// every argument carries at least its 4-byte length
	if uint64(argc)*4 > uint64(r.Len()) {
		return nil, &DecodeError{Kind: KindInvalidLength, Offset: start, Want: uint64(argc) * 4, Have: r.Len()}
	}
	args := make([][]byte, 0, argc)
	for i := uint32(0); i < argc; i++ {
		arg, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return args, nil
}

// UnmarshalValue decodes exactly one value from body.
func UnmarshalValue(body []byte) (Value, error) {
	r := NewReader(body)
	v, err := DecodeValue(r)
	if err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeValue consumes one tagged value from r. On error no partial value is returned.
func DecodeValue(r *Reader) (Value, error) {
	at := r.Offset()
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch Tag(tag) {
	case TagNil:
		return Nil{}, nil
	case TagError:
		return decodeError(r)
	case TagString:
		return decodeString(r)
	case TagInteger:
		return decodeInteger(r)
	case TagDouble:
		return decodeDouble(r)
	case TagArray:
		return decodeArray(r)
	default:
		return nil, &DecodeError{Kind: KindUnknownTag, Offset: at, Tag: tag}
	}
}

func decodeError(r *Reader) (Value, error) {
	code, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	msg, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	return Error{Code: code, Message: string(msg)}, nil
}

func decodeString(r *Reader) (Value, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	return String(b), nil
}

func decodeInteger(r *Reader) (Value, error) {
	n, err := r.ReadI64()
	if err != nil {
		return nil, err
	}
	return Integer(n), nil
}

func decodeDouble(r *Reader) (Value, error) {
	f, err := r.ReadF64()
	if err != nil {
		return nil, err
	}
	return Double(f), nil
}

func decodeArray(r *Reader) (Value, error) {
	at := r.Offset()
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	// each element needs at least its tag byte
	if uint64(count) > uint64(r.Len()) {
		return nil, &DecodeError{Kind: KindInvalidLength, Offset: at, Want: uint64(count), Have: r.Len()}
	}
	out := make(Array, 0, count)
	for i := uint32(0); i < count; i++ {
		elem, err := DecodeValue(r)
		if err != nil {
			return nil, err
		}
		out = append(out, elem)
	}
	return out, nil
}
