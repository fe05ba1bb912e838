// Package mongodb provides MongoDB client implementation.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/unifiedui/chat-relay/internal/core/docdb"
)

// Client implements the docdb.Client interface for MongoDB.
type Client struct {
	client          *mongo.Client
	turnsCollection *TurnsCollection
}

// ClientConfig holds MongoDB connection configuration.
type ClientConfig struct {
	URI          string
	DatabaseName string
}

// NewClient creates a new MongoDB client.
func NewClient(ctx context.Context, config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.URI == "" {
		return nil, fmt.Errorf("mongodb URI is required")
	}
	if config.DatabaseName == "" {
		return nil, fmt.Errorf("database name is required")
	}

	clientOpts := options.Client().ApplyURI(config.URI)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	return &Client{
		client:          client,
		turnsCollection: NewTurnsCollection(client.Database(config.DatabaseName)),
	}, nil
}

// Turns returns the turn archive collection.
func (c *Client) Turns() docdb.TurnsCollection {
	return c.turnsCollection
}

// Ping verifies the connection to MongoDB.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongodb ping failed: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection.
func (c *Client) Close(ctx context.Context) error {
	if err := c.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongodb: %w", err)
	}
	return nil
}

// EnsureIndexes creates all necessary indexes for all collections.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	if err := c.turnsCollection.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("failed to ensure turns indexes: %w", err)
	}
	return nil
}
