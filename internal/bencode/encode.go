package bencode

import (
	"fmt"
	"sort"
	"strconv"
)

// Encode serialises a value into its canonical bencoded form. Dictionary
// keys are emitted in ascending byte order regardless of how the map was
// built, so equivalent values always encode to identical bytes.
func Encode(value any) ([]byte, error) {
	return append_value(nil, value)
}

func append_value(buf []byte, value any) ([]byte, error) {
	switch v := value.(type) {
	case int:
		return append_int(buf, int64(v)), nil
	case int64:
		return append_int(buf, v), nil
	case string:
		return append_bytes(buf, []byte(v)), nil
	case []byte:
		return append_bytes(buf, v), nil
	case []string:
		buf = append(buf, 'l')
		for _, elem := range v {
			buf = append_bytes(buf, []byte(elem))
		}
		return append(buf, 'e'), nil
	case []any:
		buf = append(buf, 'l')
		var err error
		for _, elem := range v {
			if buf, err = append_value(buf, elem); err != nil {
				return nil, err
			}
		}
		return append(buf, 'e'), nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		buf = append(buf, 'd')
		var err error
		for _, key := range keys {
			buf = append_bytes(buf, []byte(key))
			if buf, err = append_value(buf, v[key]); err != nil {
				return nil, err
			}
		}
		return append(buf, 'e'), nil
	}

	return nil, fmt.Errorf("bencode expects int|string|[]byte|list|dict, not %T", value)
}

func append_int(buf []byte, value int64) []byte {
	buf = append(buf, 'i')
	buf = strconv.AppendInt(buf, value, 10)
	return append(buf, 'e')
}

func append_bytes(buf []byte, value []byte) []byte {
	buf = strconv.AppendInt(buf, int64(len(value)), 10)
	buf = append(buf, ':')
	return append(buf, value...)
}
