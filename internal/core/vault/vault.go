// Package vault resolves secret references used by the relay, such as the
// upstream API credentials and the session encryption key.
package vault

import (
	"context"
	"strings"
)

// Type represents the type of vault.
type Type string

const (
	// TypeDotEnv reads secrets from the process environment (and .env).
	TypeDotEnv Type = "dotenv"
)

// Vault defines the interface for secret lookups.
type Vault interface {
	// GetSecret retrieves a secret by URI, e.g. "dotenv://SPARK_API_SECRET".
	GetSecret(ctx context.Context, uri string) (string, error)

	// Ping checks if the vault is reachable.
	Ping(ctx context.Context) error

	// Close releases vault resources.
	Close() error
}

// IsReference reports whether value looks like a secret URI rather than a literal.
func IsReference(value string) bool {
	return strings.Contains(value, "://")
}

// Resolve returns value unchanged when it is a literal, or looks it up
// in v when it is a secret reference. Empty values resolve to "".
func Resolve(ctx context.Context, v Vault, value string) (string, error) {
	if value == "" || !IsReference(value) {
		return value, nil
	}
	return v.GetSecret(ctx, value)
}
