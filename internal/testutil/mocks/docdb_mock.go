package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/unifiedui/chat-relay/internal/core/docdb"
	"github.com/unifiedui/chat-relay/internal/domain/models"
)

// MockDocDBClient is a mock implementation of docdb.Client.
type MockDocDBClient struct {
	mock.Mock
	TurnsCollection *MockTurnsCollection
}

// NewMockDocDBClient creates a new MockDocDBClient.
func NewMockDocDBClient() *MockDocDBClient {
	return &MockDocDBClient{
		TurnsCollection: &MockTurnsCollection{},
	}
}

// Turns returns the mock turns collection.
func (m *MockDocDBClient) Turns() docdb.TurnsCollection {
	return m.TurnsCollection
}

// EnsureIndexes creates indexes.
func (m *MockDocDBClient) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Ping checks the database connection.
func (m *MockDocDBClient) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close closes the database connection.
func (m *MockDocDBClient) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockTurnsCollection is a mock implementation of docdb.TurnsCollection.
type MockTurnsCollection struct {
	mock.Mock
}

// Record inserts a turn.
func (m *MockTurnsCollection) Record(ctx context.Context, turn *models.TurnRecord) error {
	args := m.Called(ctx, turn)
	return args.Error(0)
}

// ListBySession lists turns of a session.
func (m *MockTurnsCollection) ListBySession(ctx context.Context, opts *docdb.ListTurnsOptions) ([]*models.TurnRecord, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TurnRecord), args.Error(1)
}

// DeleteBySession removes turns of a session.
func (m *MockTurnsCollection) DeleteBySession(ctx context.Context, ownerID, sessionID string) (int64, error) {
	args := m.Called(ctx, ownerID, sessionID)
	return args.Get(0).(int64), args.Error(1)
}

// EnsureIndexes creates indexes.
func (m *MockTurnsCollection) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
