package docdb

import (
	"context"

	"github.com/unifiedui/chat-relay/internal/domain/models"
)

// SortOrder represents the sort direction.
type SortOrder string

const (
	// SortOrderAsc represents ascending order.
	SortOrderAsc SortOrder = "asc"
	// SortOrderDesc represents descending order.
	SortOrderDesc SortOrder = "desc"
)

// DefaultListLimit caps ListBySession when no limit is given.
const DefaultListLimit = 100

// ListTurnsOptions contains options for listing archived turns.
type ListTurnsOptions struct {
	SessionID string
	OwnerID   string // Required for owner isolation
	Limit     int64
	Skip      int64
	OrderBy   SortOrder // Order by createdAt
}

// TurnsCollection defines the turn archive operations.
type TurnsCollection interface {
	// Record inserts a completed turn. An empty ID is generated.
	Record(ctx context.Context, turn *models.TurnRecord) error

	// ListBySession lists archived turns of one session.
	ListBySession(ctx context.Context, opts *ListTurnsOptions) ([]*models.TurnRecord, error)

	// DeleteBySession removes the archived turns of one session.
	DeleteBySession(ctx context.Context, ownerID, sessionID string) (int64, error)

	// EnsureIndexes creates necessary indexes.
	EnsureIndexes(ctx context.Context) error
}
