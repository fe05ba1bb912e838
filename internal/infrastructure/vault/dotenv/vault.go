// Package dotenv provides an environment-backed vault for development.
package dotenv

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Scheme is the URI scheme handled by this vault.
const Scheme = "dotenv://"

// Vault implements vault.Vault using environment variables.
// godotenv has already merged .env into the environment by the time it is used.
type Vault struct {
	lookup func(string) (string, bool)
}

// NewVault creates a vault reading from the process environment.
func NewVault() *Vault {
	return &Vault{lookup: os.LookupEnv}
}

// NewVaultWithLookup creates a vault with a custom lookup, for tests.
func NewVaultWithLookup(lookup func(string) (string, bool)) *Vault {
	return &Vault{lookup: lookup}
}

// GetSecret resolves "dotenv://NAME" to the value of NAME.
func (v *Vault) GetSecret(ctx context.Context, uri string) (string, error) {
	if !strings.HasPrefix(uri, Scheme) {
		return "", fmt.Errorf("unsupported secret uri %q", uri)
	}

	key := strings.TrimPrefix(uri, Scheme)
	if key == "" {
		return "", fmt.Errorf("secret uri %q has no key", uri)
	}

	value, ok := v.lookup(key)
	if !ok || value == "" {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	return value, nil
}

// Ping always succeeds for the environment vault.
func (v *Vault) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (v *Vault) Close() error {
	return nil
}
