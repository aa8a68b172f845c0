package types

import (
	"errors"
	"time"
)

// Cache is the backend-neutral cache contract.
type Cache interface {
	// Set stores a value under key for at most expiration.
	Set(key string, value interface{}, expiration time.Duration) error

	// Get loads the value stored under key into dest.
	Get(key string, dest interface{}) error

	// Delete removes a key.
	Delete(key string) error

	// Exists checks a key without loading it.
	Exists(key string) (bool, error)

	// Close releases backend resources.
	Close() error
}

// ErrCacheMiss is returned by Get for an absent key.
var ErrCacheMiss = &cacheMissError{}

type cacheMissError struct{}

func (e *cacheMissError) Error() string {
	return "cache miss"
}

// IsCacheMiss reports whether err is a cache miss.
func IsCacheMiss(err error) bool {
	var miss *cacheMissError
	return errors.As(err, &miss)
}
