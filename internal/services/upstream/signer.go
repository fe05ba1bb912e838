package upstream

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Signer signs the connection URL with the API key pair.
type Signer struct {
	APIKey    string
	APISecret string
}

// SignURL returns rawURL with the authorization, date and host query
// parameters for a handshake at now.
func (s *Signer) SignURL(rawURL string, now time.Time) (string, error) {
	if s.APIKey == "" || s.APISecret == "" {
		return "", fmt.Errorf("api key and secret are required")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse upstream url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("upstream url %q has no host", rawURL)
	}

	date := now.UTC().Format(http.TimeFormat)
	signature := s.sign(u.Host, date, u.EscapedPath())

	authorization := fmt.Sprintf(
		`api_key="%s", algorithm="hmac-sha256", headers="host date request-line", signature="%s"`,
		s.APIKey, signature,
	)

	query := u.Query()
	query.Set("authorization", base64.StdEncoding.EncodeToString([]byte(authorization)))
	query.Set("date", date)
	query.Set("host", u.Host)
	u.RawQuery = query.Encode()

	return u.String(), nil
}

func (s *Signer) sign(host, date, path string) string {
	origin := fmt.Sprintf("host: %s\ndate: %s\nGET %s HTTP/1.1", host, date, path)
	mac := hmac.New(sha256.New, []byte(s.APISecret))
	mac.Write([]byte(origin))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
