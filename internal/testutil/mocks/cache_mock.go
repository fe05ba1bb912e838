// Package mocks provides testify mock implementations of the service ports.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/unifiedui/chat-relay/internal/core/cache"
)

// MockCacheClient is a mock implementation of cache.Client.
type MockCacheClient struct {
	mock.Mock
}

// NewMockCacheClient creates a new MockCacheClient.
func NewMockCacheClient() *MockCacheClient {
	return &MockCacheClient{}
}

// GetCache returns nil; tests use the client surface directly.
func (m *MockCacheClient) GetCache() cache.Cache {
	return nil
}

// Get retrieves a value from the cache.
func (m *MockCacheClient) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// Set stores a value in the cache.
func (m *MockCacheClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

// SetNX stores a value if absent.
func (m *MockCacheClient) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, value, ttl)
	return args.Bool(0), args.Error(1)
}

// Delete removes a value from the cache.
func (m *MockCacheClient) Delete(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// DeleteIfEquals removes a value if it matches.
func (m *MockCacheClient) DeleteIfEquals(ctx context.Context, key string, value []byte) (bool, error) {
	args := m.Called(ctx, key, value)
	return args.Bool(0), args.Error(1)
}

// ScanPrefix lists keys by prefix.
func (m *MockCacheClient) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// Ping checks the cache connection.
func (m *MockCacheClient) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close closes the cache connection.
func (m *MockCacheClient) Close() error {
	args := m.Called()
	return args.Error(0)
}
