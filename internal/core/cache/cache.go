// Package cache defines the key/value store backing conversation sessions.
package cache

import (
	"context"
	"time"
)

// Cache defines the interface for key/value store operations.
type Cache interface {
	// Get retrieves a value from the cache by key.
	// Returns nil if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache and resets its TTL.
	// If ttl is 0, the default TTL is used.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores a value only if the key does not exist yet.
	// Returns true if the value was stored.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// DeleteIfEquals removes key only while it still holds value.
	DeleteIfEquals(ctx context.Context, key string, value []byte) (bool, error)

	// ScanPrefix returns every key starting with prefix.
	// Iteration is cursor based and resumes until the store reports completion.
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)

	// Ping checks if the cache connection is alive.
	Ping(ctx context.Context) error

	// Close closes the cache connection.
	Close() error
}
