// Package bencode implements the canonical binary serialization used by
// torrent files. There are only four datatypes, and its all done around
// individual bytes (text encoding does not apply here). Decoded values are
// one of: int64, string (raw bytes), []any, map[string]any. Dictionary keys
// are kept as raw byte strings; applying a text encoding is left to higher
// layers.
package bencode

import (
	"errors"
	"fmt"
)

// ErrMalformed is wrapped by every decode failure.
var ErrMalformed = errors.New("malformed bencode")

// Get fetches a typed value out of a decoded dictionary.
func Get[T any](m map[string]any, key string) (T, error) {
	var nil_t T
	val, exists := m[key]
	if !exists {
		return nil_t, fmt.Errorf("key %s was not in map", key)
	}
	res, ok := val.(T)
	if !ok {
		return nil_t, fmt.Errorf("key %s's value was an invalid type: %v", key, val)
	}
	return res, nil
}

// GetStrings fetches a list of byte strings out of a decoded dictionary.
func GetStrings(m map[string]any, key string) ([]string, error) {
	list, err := Get[[]any](m, key)
	if err != nil {
		return nil, err
	}
	results := []string{}
	for _, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("a non-string value was in the list: %v", v)
		}
		results = append(results, s)
	}
	return results, nil
}
