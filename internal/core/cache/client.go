package cache

import (
	"context"
	"time"
)

// Client is the handle injected into services. It is constructed and
// connected explicitly at startup and closed on shutdown.
type Client interface {
	// GetCache returns the underlying Cache implementation.
	GetCache() Cache

	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	DeleteIfEquals(ctx context.Context, key string, value []byte) (bool, error)
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}
