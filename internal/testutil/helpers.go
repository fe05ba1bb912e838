// HTTP helpers shared by handler and route tests.
package testutil

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// Test constants
const (
	TestUserID  = "user-test-def"
	TestOrigin  = "https://chat.example.com"
	UserHeader  = "X-User-ID"
	APIBasePath = "/api/v1/chat"
)

// SetupTestRouter creates a new Gin router for testing.
func SetupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// UserHeaders returns request headers authenticating userID.
func UserHeaders(userID string) map[string]string {
	return map[string]string{UserHeader: userID}
}

// PerformRequest performs an HTTP request against a test router.
func PerformRequest(router http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBody))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ParseJSONResponse parses a JSON response body.
func ParseJSONResponse(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	err := json.Unmarshal(w.Body.Bytes(), v)
	require.NoError(t, err, "failed to parse JSON response")
}

// AssertStatusCode asserts the response status code.
func AssertStatusCode(t *testing.T, expected int, w *httptest.ResponseRecorder) {
	t.Helper()
	require.Equal(t, expected, w.Code, "unexpected status code: %s", w.Body.String())
}

// ParseSSEEvents decodes every "data:" line of an event stream body.
func ParseSSEEvents(t *testing.T, body string) []map[string]interface{} {
	t.Helper()

	var events []map[string]interface{}
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event), "bad event %q", line)
		events = append(events, event)
	}
	require.NoError(t, scanner.Err())
	return events
}

// EventTypes returns the "type" field of each event.
func EventTypes(events []map[string]interface{}) []string {
	types := make([]string, 0, len(events))
	for _, e := range events {
		s, _ := e["type"].(string)
		types = append(types, s)
	}
	return types
}
