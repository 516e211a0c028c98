// Package relationships holds the batching primitives shared by the eager
// loaders: key normalization, distinct key collection, result grouping and
// include-path parsing.
package relationships

import (
	"fmt"

	"github.com/spf13/cast"
)

// KeyString normalizes a key so that 1, int64(1), "1" and []byte("1")
// match in a dictionary
func KeyString(id interface{}) (string, error) {
	if id == nil {
		return "", fmt.Errorf("%w: nil", ErrInvalidKey)
	}

	switch v := id.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}

	s, err := cast.ToStringE(id)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return s, nil
}

// DistinctKeys returns the non-nil keys in first-seen order with
// duplicates removed
func DistinctKeys(values []interface{}) []interface{} {
	seen := make(map[string]bool, len(values))
	keys := make([]interface{}, 0, len(values))

	for _, v := range values {
		s, err := KeyString(v)
		if err != nil || seen[s] {
			continue
		}
		seen[s] = true
		keys = append(keys, v)
	}
	return keys
}

// Group builds a dictionary from normalized key to the items carrying it.
// Items whose key is nil are skipped. Order within a group follows items.
func Group[T any](items []T, key func(T) interface{}) map[string][]T {
	dict := make(map[string][]T)
	for _, item := range items {
		s, err := KeyString(key(item))
		if err != nil {
			continue
		}
		dict[s] = append(dict[s], item)
	}
	return dict
}

// Lookup fetches the group of key from dict
func Lookup[T any](dict map[string][]T, key interface{}) []T {
	s, err := KeyString(key)
	if err != nil {
		return nil
	}
	return dict[s]
}
