package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/unifiedui/chat-relay/internal/core/docdb"
	"github.com/unifiedui/chat-relay/internal/domain/models"
)

// TurnsCollectionName is the name of the turn archive collection.
const TurnsCollectionName = "chat_turns"

// TurnsCollection implements the docdb.TurnsCollection interface for MongoDB.
type TurnsCollection struct {
	turns *mongo.Collection
}

// NewTurnsCollection creates a new turns collection wrapper.
func NewTurnsCollection(db *mongo.Database) *TurnsCollection {
	return &TurnsCollection{
		turns: db.Collection(TurnsCollectionName),
	}
}

// Record inserts a completed turn.
func (c *TurnsCollection) Record(ctx context.Context, turn *models.TurnRecord) error {
	if turn.SessionID == "" || turn.OwnerID == "" {
		return fmt.Errorf("session ID and owner ID are required")
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	if _, err := c.turns.InsertOne(ctx, turn); err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}
	return nil
}

// ListBySession lists archived turns of one session owned by opts.OwnerID.
func (c *TurnsCollection) ListBySession(ctx context.Context, opts *docdb.ListTurnsOptions) ([]*models.TurnRecord, error) {
	if opts == nil || opts.SessionID == "" || opts.OwnerID == "" {
		return nil, fmt.Errorf("session ID and owner ID are required")
	}

	filter := bson.M{
		"sessionId": opts.SessionID,
		"ownerId":   opts.OwnerID,
	}

	cursor, err := c.turns.Find(ctx, filter, c.buildFindOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer cursor.Close(ctx)

	turns := []*models.TurnRecord{}
	if err := cursor.All(ctx, &turns); err != nil {
		return nil, fmt.Errorf("failed to decode turns: %w", err)
	}
	return turns, nil
}

// DeleteBySession removes the archived turns of one session.
func (c *TurnsCollection) DeleteBySession(ctx context.Context, ownerID, sessionID string) (int64, error) {
	if ownerID == "" || sessionID == "" {
		return 0, fmt.Errorf("session ID and owner ID are required")
	}

	result, err := c.turns.DeleteMany(ctx, bson.M{"sessionId": sessionID, "ownerId": ownerID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete turns: %w", err)
	}
	return result.DeletedCount, nil
}

// EnsureIndexes creates necessary indexes for the turns collection.
func (c *TurnsCollection) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "sessionId", Value: 1},
				{Key: "createdAt", Value: -1},
			},
			Options: options.Index().SetName("idx_session_created"),
		},
		{
			Keys: bson.D{
				{Key: "ownerId", Value: 1},
				{Key: "sessionId", Value: 1},
			},
			Options: options.Index().SetName("idx_owner_session"),
		},
		{
			Keys:    bson.D{{Key: "correlationId", Value: 1}},
			Options: options.Index().SetName("idx_correlation_id"),
		},
	}

	if _, err := c.turns.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create turns indexes: %w", err)
	}
	return nil
}

// buildFindOptions creates MongoDB find options from list options.
func (c *TurnsCollection) buildFindOptions(opts *docdb.ListTurnsOptions) *options.FindOptions {
	findOpts := options.Find()

	limit := opts.Limit
	if limit <= 0 {
		limit = docdb.DefaultListLimit
	}
	findOpts.SetLimit(limit)

	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}

	// Default to ascending order by createdAt
	sortOrder := 1
	if opts.OrderBy == docdb.SortOrderDesc {
		sortOrder = -1
	}
	findOpts.SetSort(bson.D{{Key: "createdAt", Value: sortOrder}})

	return findOpts
}
