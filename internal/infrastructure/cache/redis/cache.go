// Package redis provides the Redis cache implementation.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unifiedui/chat-relay/internal/core/cache"
)

const (
	scanBatchSize  = 100
	connectTimeout = 5 * time.Second
)

// deleteIfEqualsScript removes KEYS[1] only while it holds ARGV[1].
var deleteIfEqualsScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Config holds Redis connection configuration.
type Config struct {
	Host       string
	Port       string
	Password   string
	DB         int
	DefaultTTL time.Duration
}

// Cache implements the cache.Cache interface for Redis.
type Cache struct {
	client     *redis.Client
	defaultTTL time.Duration
}

// NewCache connects to Redis and verifies the connection.
func NewCache(cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{
		client:     client,
		defaultTTL: cfg.DefaultTTL,
	}, nil
}

func (c *Cache) ttl(ttl time.Duration) time.Duration {
	if ttl == 0 {
		return c.defaultTTL
	}
	return ttl
}

// Get retrieves a value from Redis by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, nil
}

// Set stores a value in Redis and resets its TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, c.ttl(ttl)).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// SetNX stores a value only if the key is absent.
func (c *Cache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, key, value, c.ttl(ttl)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to setnx key %s: %w", key, err)
	}
	return ok, nil
}

// Delete removes a key from Redis.
func (c *Cache) Delete(ctx context.Context, key string) (bool, error) {
	result, err := c.client.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return result > 0, nil
}

// DeleteIfEquals removes key only while it still holds value.
func (c *Cache) DeleteIfEquals(ctx context.Context, key string, value []byte) (bool, error) {
	result, err := deleteIfEqualsScript.Run(ctx, c.client, []string{key}, value).Int64()
	if err != nil {
		return false, fmt.Errorf("failed to compare-and-delete key %s: %w", key, err)
	}
	return result > 0, nil
}

// ScanPrefix returns all keys starting with prefix using SCAN.
// SCAN may report a key more than once, so results are de-duplicated.
func (c *Cache) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	pattern := cache.EscapeGlob(prefix) + "*"

	var cursor uint64
	seen := make(map[string]struct{})
	keys := make([]string, 0)

	for {
		batch, nextCursor, err := c.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys with prefix %s: %w", prefix, err)
		}

		for _, key := range batch {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}

// Ping checks if the Redis connection is alive.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis connection: %w", err)
	}
	return nil
}
