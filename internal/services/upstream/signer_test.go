package upstream_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/chat-relay/internal/services/upstream"
)

var signTime = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func TestSigner_SignURL(t *testing.T) {
	signer := &upstream.Signer{APIKey: "key-1", APISecret: "secret-1"}

	signed, err := signer.SignURL("wss://spark-api.xf-yun.com/v3.5/chat", signTime)
	require.NoError(t, err)

	u, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "wss", u.Scheme)
	assert.Equal(t, "/v3.5/chat", u.Path)

	query := u.Query()
	assert.Equal(t, "Mon, 06 May 2024 07:08:09 GMT", query.Get("date"))
	assert.Equal(t, "spark-api.xf-yun.com", query.Get("host"))

	origin := "host: spark-api.xf-yun.com\ndate: Mon, 06 May 2024 07:08:09 GMT\nGET /v3.5/chat HTTP/1.1"
	mac := hmac.New(sha256.New, []byte("secret-1"))
	mac.Write([]byte(origin))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	authorization, err := base64.StdEncoding.DecodeString(query.Get("authorization"))
	require.NoError(t, err)
	assert.Equal(t,
		`api_key="key-1", algorithm="hmac-sha256", headers="host date request-line", signature="`+signature+`"`,
		string(authorization),
	)
}

func TestSigner_Deterministic(t *testing.T) {
	signer := &upstream.Signer{APIKey: "k", APISecret: "s"}

	first, err := signer.SignURL("wss://example.com/chat", signTime)
	require.NoError(t, err)
	second, err := signer.SignURL("wss://example.com/chat", signTime)
	require.NoError(t, err)
	later, err := signer.SignURL("wss://example.com/chat", signTime.Add(time.Second))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, later)
}

func TestSigner_NonUTCTime(t *testing.T) {
	signer := &upstream.Signer{APIKey: "k", APISecret: "s"}
	local := signTime.In(time.FixedZone("UTC+8", 8*60*60))

	a, err := signer.SignURL("wss://example.com/chat", signTime)
	require.NoError(t, err)
	b, err := signer.SignURL("wss://example.com/chat", local)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestSigner_Errors(t *testing.T) {
	_, err := (&upstream.Signer{APIKey: "k"}).SignURL("wss://example.com/chat", signTime)
	assert.ErrorContains(t, err, "api key and secret are required")

	_, err = (&upstream.Signer{APIKey: "k", APISecret: "s"}).SignURL("/relative/only", signTime)
	assert.ErrorContains(t, err, "has no host")
}
