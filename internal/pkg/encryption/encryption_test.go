package encryption_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/chat-relay/internal/pkg/encryption"
)

func generateTestKey(t *testing.T) string {
	key, err := encryption.GenerateKey()
	require.NoError(t, err)
	return key
}

func TestNew_EmptyKeyFallsBackToNoOp(t *testing.T) {
	enc, err := encryption.New("")

	require.NoError(t, err)
	assert.IsType(t, &encryption.NoOpEncryptor{}, enc)
}

func TestNew_WithKey(t *testing.T) {
	enc, err := encryption.New(generateTestKey(t))

	require.NoError(t, err)
	assert.IsType(t, &encryption.AESEncryptor{}, enc)
}

func TestNewAESEncryptor_RawKey(t *testing.T) {
	enc, err := encryption.NewAESEncryptor("0123456789abcdef0123456789abcde!")

	require.NoError(t, err)
	assert.NotNil(t, enc)
}

func TestNewAESEncryptor_InvalidKeyLength(t *testing.T) {
	enc, err := encryption.NewAESEncryptor("tooshort!!!")

	assert.Error(t, err)
	assert.Nil(t, enc)
	assert.Contains(t, err.Error(), "must be 32 bytes")
}

func TestAESEncryptor_RoundTrip(t *testing.T) {
	enc, err := encryption.NewAESEncryptor(generateTestKey(t))
	require.NoError(t, err)

	plaintext := []byte(`{"id":"u_1","messages":[]}`)

	sealed, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "messages")

	opened, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestAESEncryptor_NonceDiffers(t *testing.T) {
	enc, err := encryption.NewAESEncryptor(generateTestKey(t))
	require.NoError(t, err)

	a, err := enc.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := enc.Encrypt([]byte("same"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestAESEncryptor_WrongKey(t *testing.T) {
	enc1, err := encryption.NewAESEncryptor(generateTestKey(t))
	require.NoError(t, err)
	enc2, err := encryption.NewAESEncryptor(generateTestKey(t))
	require.NoError(t, err)

	sealed, err := enc1.Encrypt([]byte("secret"))
	require.NoError(t, err)

	_, err = enc2.Decrypt(sealed)
	assert.Error(t, err)
}

func TestAESEncryptor_Garbage(t *testing.T) {
	enc, err := encryption.NewAESEncryptor(generateTestKey(t))
	require.NoError(t, err)

	_, err = enc.Decrypt("not base64 !!")
	assert.Error(t, err)

	_, err = enc.Decrypt("YQ==")
	assert.ErrorContains(t, err, "too short")
}

func TestNoOpEncryptor_RoundTrip(t *testing.T) {
	enc := encryption.NewNoOpEncryptor()

	sealed, err := enc.Encrypt([]byte("hello"))
	require.NoError(t, err)

	opened, err := enc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), opened)
}
