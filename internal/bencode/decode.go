package bencode

import (
	"fmt"
	"strconv"
)

// Decode parses a complete bencoded value. Trailing bytes after the
// top-level value are an error.
func Decode(data []byte) (any, error) {
	value, rest, err := DecodeNext(data)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after top-level value", ErrMalformed, len(rest))
	}
	return value, nil
}

// DecodeNext parses one bencoded value from the front of data and returns it
// along with the unconsumed remainder.
func DecodeNext(data []byte) (any, []byte, error) {
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}

	switch data[0] {
	case 'i':
		return parse_int(data)
	case 'l':
		return parse_list(data)
	case 'd':
		return parse_dict(data)
	}

	return parse_string(data)
}

func parse_int(data []byte) (any, []byte, error) {
	s := 1
	if s < len(data) && data[s] == '-' {
		s++
	}

	e := s
	for e < len(data) && data[e] >= '0' && data[e] <= '9' {
		e++
	}

	if s == e {
		return nil, nil, fmt.Errorf("%w: invalid integer - no number specified", ErrMalformed)
	}
	if e >= len(data) || data[e] != 'e' {
		return nil, nil, fmt.Errorf("%w: invalid integer - should start with 'i' and end with 'e'", ErrMalformed)
	}
	if data[s] == '0' && (e != s+1 || s != 1) {
		return nil, nil, fmt.Errorf("%w: invalid integer - cannot start with 0 or be negative 0", ErrMalformed)
	}

	value, err := strconv.ParseInt(string(data[1:e]), 10, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid integer - %v", ErrMalformed, err)
	}
	return value, data[e+1:], nil
}

func parse_string(data []byte) (any, []byte, error) {
	i := 0
	for i < len(data) && data[i] >= '0' && data[i] <= '9' {
		i++
	}

	if i == 0 {
		return nil, nil, fmt.Errorf("%w: unrecognised start token", ErrMalformed)
	}
	if data[0] == '0' && i > 1 {
		return nil, nil, fmt.Errorf("%w: invalid string length - starts with 0", ErrMalformed)
	}
	if i >= len(data) || data[i] != ':' {
		return nil, nil, fmt.Errorf("%w: invalid header, missing separator colon", ErrMalformed)
	}

	length, err := strconv.Atoi(string(data[0:i]))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid string length - %v", ErrMalformed, err)
	}
	if len(data) < i+1+length {
		return nil, nil, fmt.Errorf("%w: invalid string length - string len does not match length header", ErrMalformed)
	}

	return string(data[i+1 : i+1+length]), data[i+1+length:], nil
}

func parse_list(data []byte) (any, []byte, error) {
	result := []any{}
	data = data[1:]
	for {
		if len(data) == 0 {
			return nil, nil, fmt.Errorf("%w: invalid list - should start with 'l' and end with 'e'", ErrMalformed)
		}
		if data[0] == 'e' {
			return result, data[1:], nil
		}
		elem, rest, err := DecodeNext(data)
		if err != nil {
			return nil, nil, err
		}
		result = append(result, elem)
		data = rest
	}
}

func parse_dict(data []byte) (any, []byte, error) {
	result := map[string]any{}
	data = data[1:]
	for {
		if len(data) == 0 {
			return nil, nil, fmt.Errorf("%w: invalid dictionary - should start with 'd' and end with 'e'", ErrMalformed)
		}
		if data[0] == 'e' {
			return result, data[1:], nil
		}

		k, rest, err := DecodeNext(data)
		if err != nil {
			return nil, nil, err
		}
		key, ok := k.(string)
		if !ok {
			return nil, nil, fmt.Errorf("%w: invalid dictionary - keys should be strings", ErrMalformed)
		}
		data = rest

		if len(data) == 0 || data[0] == 'e' {
			return nil, nil, fmt.Errorf("%w: invalid dictionary - an entry is missing a defined value", ErrMalformed)
		}
		val, rest, err := DecodeNext(data)
		if err != nil {
			return nil, nil, err
		}
		result[key] = val
		data = rest
	}
}
