// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	domainerrors "github.com/unifiedui/chat-relay/internal/domain/errors"
	"github.com/unifiedui/chat-relay/internal/domain/models"
)

// UserIDKey is the gin context key of the authenticated user id.
const UserIDKey = "user_id"

// DefaultUserHeader carries the user id set by the authentication gateway.
const DefaultUserHeader = "X-User-ID"

// Authenticator resolves the caller of a request to an opaque user id.
type Authenticator interface {
	Authenticate(r *http.Request) (string, error)
}

// HeaderAuthenticator trusts an identity header injected by an upstream
// gateway. The relay must not be reachable without that gateway in front.
type HeaderAuthenticator struct {
	Header string
}

// Authenticate returns the header value. Values that cannot form a
// session id are rejected.
func (a *HeaderAuthenticator) Authenticate(r *http.Request) (string, error) {
	header := a.Header
	if header == "" {
		header = DefaultUserHeader
	}

	userID := strings.TrimSpace(r.Header.Get(header))
	if userID == "" {
		return "", domainerrors.NewUnauthorizedError("missing " + header + " header")
	}
	if err := models.ValidateOwnerID(userID); err != nil {
		return "", domainerrors.NewUnauthorizedError("invalid " + header + " header")
	}
	return userID, nil
}

// AuthMiddleware rejects unauthenticated requests.
type AuthMiddleware struct {
	authenticator Authenticator
}

// NewAuthMiddleware creates a new AuthMiddleware.
func NewAuthMiddleware(authenticator Authenticator) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: authenticator,
	}
}

// Authenticate returns a gin middleware that stores the caller's user id
// in the context for downstream handlers.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := m.authenticator.Authenticate(c.Request)
		if err != nil {
			if _, ok := domainerrors.GetDomainError(err); !ok {
				err = domainerrors.NewUnauthorizedError(err.Error())
			}
			HandleError(c, err)
			return
		}

		c.Set(UserIDKey, userID)

		c.Next()
	}
}

// GetUserID retrieves the authenticated user id from the gin context.
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}
