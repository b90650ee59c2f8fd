// Package cache provides a generic, thread-safe in-memory TTL cache with
// built-in statistics.
package cache

import (
	"fmt"
	"time"

	"github.com/c360/symbolws/errors"
)

// Cache is a key/value cache parameterized by value type.
type Cache[V any] interface {
	// Get returns the value and true when key is present and not expired.
	Get(key string) (V, bool)
	// Set stores value and reports whether a new entry was created.
	Set(key string, value V) (bool, error)
	// Delete removes key and reports whether it existed.
	Delete(key string) (bool, error)
	// Clear removes all entries.
	Clear() error
	// Size returns the number of stored entries, expired ones included until cleanup.
	Size() int
	Stats() *Statistics
	// Close stops background cleanup.
	Close() error
}

// Option configures a cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithNow replaces the time source used for expiry.
func WithNow(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: empty cache key", errors.ErrInvalidArgument),
			"cache", "validateKey", "check key")
	}
	return nil
}
