// Package testutil provides shared helpers for package tests.
package testutil

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/chat-relay/internal/core/cache"
	rediscache "github.com/unifiedui/chat-relay/internal/infrastructure/cache/redis"
)

// NewMiniredisClient starts an in-memory Redis and returns a connected cache client.
// Both are closed when the test ends.
func NewMiniredisClient(t *testing.T) (*miniredis.Miniredis, cache.Client) {
	t.Helper()

	mr := miniredis.RunT(t)

	client, err := rediscache.NewClient(rediscache.Config{
		Host:       mr.Host(),
		Port:       mr.Port(),
		DefaultTTL: time.Hour,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
	})

	return mr, client
}
