// Package encryption seals session payloads at rest with AES-256-GCM.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// KeySize is the required key length for AES-256.
const KeySize = 32

// Encryptor seals and opens opaque payloads.
type Encryptor interface {
	// Encrypt seals plaintext and returns base64-encoded ciphertext.
	Encrypt(plaintext []byte) (string, error)

	// Decrypt opens base64-encoded ciphertext.
	Decrypt(ciphertext string) ([]byte, error)
}

// New returns an AES encryptor for key, or a NoOpEncryptor when key is empty.
func New(key string) (Encryptor, error) {
	if key == "" {
		return NewNoOpEncryptor(), nil
	}
	return NewAESEncryptor(key)
}

// AESEncryptor implements Encryptor using AES-256-GCM.
type AESEncryptor struct {
	gcm cipher.AEAD
}

// NewAESEncryptor creates a new AES-256-GCM encryptor.
// The key is accepted base64-encoded or raw and must decode to 32 bytes.
func NewAESEncryptor(key string) (*AESEncryptor, error) {
	keyBytes, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		keyBytes = []byte(key)
	}

	if len(keyBytes) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(keyBytes))
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESEncryptor{gcm: gcm}, nil
}

// Encrypt seals plaintext. The nonce is prepended to the ciphertext.
func (e *AESEncryptor) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens ciphertext produced by Encrypt.
func (e *AESEncryptor) Decrypt(ciphertext string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	nonceSize := e.gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	plaintext, err := e.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// GenerateKey returns a new random base64-encoded 32-byte key.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// NoOpEncryptor only base64-encodes. Used when no key is configured.
type NoOpEncryptor struct{}

// NewNoOpEncryptor creates a new no-operation encryptor.
func NewNoOpEncryptor() *NoOpEncryptor {
	return &NoOpEncryptor{}
}

// Encrypt returns the plaintext as base64.
func (e *NoOpEncryptor) Encrypt(plaintext []byte) (string, error) {
	return base64.StdEncoding.EncodeToString(plaintext), nil
}

// Decrypt decodes base64 and returns the plaintext.
func (e *NoOpEncryptor) Decrypt(ciphertext string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(ciphertext)
}
