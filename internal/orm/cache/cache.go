// Package cache provides the key-value stores behind the find-by-key row
// cache and the row cache itself.
package cache

import (
	"context"
	"errors"
	"time"
)

// Store defines the interface for all cache backends
type Store interface {
	// Get retrieves a value; a missing or expired key returns ErrMiss
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with a TTL; zero means the store default
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// Clear removes every key under the store prefix
	Clear(ctx context.Context) error
}

// ErrMiss is returned when a key is not found in the store
var ErrMiss = errors.New("cache miss")

// IsMiss checks if an error is a cache miss
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}

// Options holds common configuration for stores
type Options struct {
	// DefaultTTL applies when Set is called with a zero TTL
	DefaultTTL time.Duration
	// Prefix is prepended to all keys
	Prefix string
}

// DefaultOptions returns the default store options
func DefaultOptions() Options {
	return Options{
		DefaultTTL: 5 * time.Minute,
		Prefix:     "orm:",
	}
}
