package handlers_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/chat-relay/internal/api/dto"
	"github.com/unifiedui/chat-relay/internal/api/handlers"
	"github.com/unifiedui/chat-relay/internal/api/middleware"
	"github.com/unifiedui/chat-relay/internal/core/docdb"
	"github.com/unifiedui/chat-relay/internal/domain/models"
	"github.com/unifiedui/chat-relay/internal/services/session"
	"github.com/unifiedui/chat-relay/internal/testutil"
	"github.com/unifiedui/chat-relay/internal/testutil/mocks"
)

type sessionsFixture struct {
	router   *gin.Engine
	sessions session.Service
}

func newSessionsRouter(t *testing.T, archive docdb.TurnsCollection) *sessionsFixture {
	t.Helper()

	_, cacheClient := testutil.NewMiniredisClient(t)
	sessions, err := session.NewService(&session.Config{CacheClient: cacheClient, TTL: time.Hour})
	require.NoError(t, err)

	auth := middleware.NewAuthMiddleware(&middleware.HeaderAuthenticator{Header: testutil.UserHeader})
	handler := handlers.NewSessionsHandler(sessions, archive)

	router := testutil.SetupTestRouter()
	group := router.Group("/sessions", auth.Authenticate())
	group.POST("", handler.CreateSession)
	group.GET("", handler.ListSessions)
	group.GET("/:sessionId", handler.GetSession)
	group.DELETE("/:sessionId", handler.DeleteSession)
	group.GET("/:sessionId/messages", handler.GetMessages)
	group.DELETE("/:sessionId/messages", handler.ClearMessages)
	group.GET("/:sessionId/turns", handler.ListTurns)

	return &sessionsFixture{router: router, sessions: sessions}
}

func (f *sessionsFixture) seed(t *testing.T, ownerID, systemPrompt string, contents ...string) *models.Session {
	t.Helper()
	ctx := context.Background()

	sess, err := f.sessions.CreateSession(ctx, ownerID, systemPrompt)
	require.NoError(t, err)
	for _, content := range contents {
		sess, err = f.sessions.AppendTurn(ctx, ownerID, sess.ID,
			models.NewUserMessage(content), models.NewAssistantMessage("re: "+content))
		require.NoError(t, err)
	}
	return sess
}

func TestSessionsHandler_CreateSession(t *testing.T) {
	f := newSessionsRouter(t, nil)

	w := testutil.PerformRequest(f.router, "POST", "/sessions", dto.CreateSessionRequest{SystemPrompt: "be brief"}, testutil.UserHeaders("alice"))

	testutil.AssertStatusCode(t, http.StatusCreated, w)

	var response dto.SessionResponse
	testutil.ParseJSONResponse(t, w, &response)
	assert.True(t, models.SessionIDOwnedBy(response.SessionID, "alice"))

	messages, err := f.sessions.GetMessages(context.Background(), "alice", response.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []models.Message{models.NewSystemMessage("be brief")}, messages)
}

func TestSessionsHandler_CreateSession_NoBody(t *testing.T) {
	f := newSessionsRouter(t, nil)

	w := testutil.PerformRequest(f.router, "POST", "/sessions", nil, testutil.UserHeaders("alice"))

	testutil.AssertStatusCode(t, http.StatusCreated, w)
}

func TestSessionsHandler_RequiresUser(t *testing.T) {
	f := newSessionsRouter(t, nil)

	w := testutil.PerformRequest(f.router, "GET", "/sessions", nil, nil)

	testutil.AssertStatusCode(t, http.StatusUnauthorized, w)

	var response dto.ErrorResponse
	testutil.ParseJSONResponse(t, w, &response)
	assert.Equal(t, "UNAUTHORIZED", response.Code)
}

func TestSessionsHandler_ListSessions(t *testing.T) {
	f := newSessionsRouter(t, nil)
	first := f.seed(t, "alice", "", "first question")
	time.Sleep(5 * time.Millisecond)
	second := f.seed(t, "alice", "", "second question")
	f.seed(t, "bob", "", "not yours")

	w := testutil.PerformRequest(f.router, "GET", "/sessions", nil, testutil.UserHeaders("alice"))

	testutil.AssertStatusCode(t, http.StatusOK, w)

	var response dto.ListSessionsResponse
	testutil.ParseJSONResponse(t, w, &response)
	require.Equal(t, 2, response.Total)
	assert.Equal(t, second.ID, response.Sessions[0].SessionID)
	assert.Equal(t, first.ID, response.Sessions[1].SessionID)
	assert.Equal(t, "second question", response.Sessions[0].Preview)
}

func TestSessionsHandler_ListSessions_Empty(t *testing.T) {
	f := newSessionsRouter(t, nil)

	w := testutil.PerformRequest(f.router, "GET", "/sessions", nil, testutil.UserHeaders("alice"))

	testutil.AssertStatusCode(t, http.StatusOK, w)
	assert.JSONEq(t, `{"sessions":[],"total":0}`, w.Body.String())
}

func TestSessionsHandler_GetSession(t *testing.T) {
	f := newSessionsRouter(t, nil)
	sess := f.seed(t, "alice", "", "hello")

	w := testutil.PerformRequest(f.router, "GET", "/sessions/"+sess.ID, nil, testutil.UserHeaders("alice"))

	testutil.AssertStatusCode(t, http.StatusOK, w)

	var response dto.SessionResponse
	testutil.ParseJSONResponse(t, w, &response)
	assert.Equal(t, sess.ID, response.SessionID)
	assert.Equal(t, "hello", response.Preview)
}

func TestSessionsHandler_OwnershipAndLookupErrors(t *testing.T) {
	f := newSessionsRouter(t, nil)
	bobs := f.seed(t, "bob", "", "secret")

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"get foreign", "GET", "/sessions/" + bobs.ID, http.StatusForbidden},
		{"messages foreign", "GET", "/sessions/" + bobs.ID + "/messages", http.StatusForbidden},
		{"clear foreign", "DELETE", "/sessions/" + bobs.ID + "/messages", http.StatusForbidden},
		{"delete foreign", "DELETE", "/sessions/" + bobs.ID, http.StatusForbidden},
		{"get unknown", "GET", "/sessions/" + models.NewSessionID("alice"), http.StatusNotFound},
		{"get malformed", "GET", "/sessions/nope", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutil.PerformRequest(f.router, tt.method, tt.path, nil, testutil.UserHeaders("alice"))
			testutil.AssertStatusCode(t, tt.wantStatus, w)
		})
	}

	// Bob's session is untouched.
	messages, err := f.sessions.GetMessages(context.Background(), "bob", bobs.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestSessionsHandler_GetMessages(t *testing.T) {
	f := newSessionsRouter(t, nil)
	sess := f.seed(t, "alice", "be brief", "hello")

	w := testutil.PerformRequest(f.router, "GET", "/sessions/"+sess.ID+"/messages", nil, testutil.UserHeaders("alice"))

	testutil.AssertStatusCode(t, http.StatusOK, w)

	var response dto.GetMessagesResponse
	testutil.ParseJSONResponse(t, w, &response)
	assert.Equal(t, sess.ID, response.SessionID)
	require.Len(t, response.Messages, 3)
	assert.Equal(t, "system", response.Messages[0].Role)
	assert.Equal(t, "re: hello", response.Messages[2].Content)
}

func TestSessionsHandler_ClearMessages_KeepsSystem(t *testing.T) {
	f := newSessionsRouter(t, nil)
	sess := f.seed(t, "alice", "be brief", "hello", "again")

	w := testutil.PerformRequest(f.router, "DELETE", "/sessions/"+sess.ID+"/messages", nil, testutil.UserHeaders("alice"))

	testutil.AssertStatusCode(t, http.StatusOK, w)

	var response dto.GetMessagesResponse
	testutil.ParseJSONResponse(t, w, &response)
	require.Len(t, response.Messages, 1)
	assert.Equal(t, "be brief", response.Messages[0].Content)
}

func TestSessionsHandler_DeleteSession(t *testing.T) {
	archive := &mocks.MockTurnsCollection{}
	f := newSessionsRouter(t, archive)
	sess := f.seed(t, "alice", "", "hello")

	archive.On("DeleteBySession", mock.Anything, "alice", sess.ID).Return(int64(1), nil)

	w := testutil.PerformRequest(f.router, "DELETE", "/sessions/"+sess.ID, nil, testutil.UserHeaders("alice"))

	testutil.AssertStatusCode(t, http.StatusNoContent, w)
	archive.AssertExpectations(t)

	w = testutil.PerformRequest(f.router, "GET", "/sessions/"+sess.ID, nil, testutil.UserHeaders("alice"))
	testutil.AssertStatusCode(t, http.StatusNotFound, w)
}

func TestSessionsHandler_DeleteSession_ArchiveFailureIgnored(t *testing.T) {
	archive := &mocks.MockTurnsCollection{}
	f := newSessionsRouter(t, archive)
	sess := f.seed(t, "alice", "", "hello")

	archive.On("DeleteBySession", mock.Anything, "alice", sess.ID).Return(int64(0), assert.AnError)

	w := testutil.PerformRequest(f.router, "DELETE", "/sessions/"+sess.ID, nil, testutil.UserHeaders("alice"))

	testutil.AssertStatusCode(t, http.StatusNoContent, w)
}

func TestSessionsHandler_ListTurns(t *testing.T) {
	archive := &mocks.MockTurnsCollection{}
	f := newSessionsRouter(t, archive)
	sessionID := models.NewSessionID("alice")
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	archive.On("ListBySession", mock.Anything, &docdb.ListTurnsOptions{
		SessionID: sessionID,
		OwnerID:   "alice",
		Limit:     10,
		Skip:      5,
		OrderBy:   docdb.SortOrderDesc,
	}).Return([]*models.TurnRecord{{
		ID:               "turn-1",
		SessionID:        sessionID,
		OwnerID:          "alice",
		CorrelationID:    "abc",
		UserContent:      "Hi",
		AssistantContent: "Hello",
		LatencyMs:        42,
		Fragments:        2,
		CreatedAt:        created,
	}}, nil)

	w := testutil.PerformRequest(f.router, "GET", "/sessions/"+sessionID+"/turns?limit=10&offset=5&order=desc", nil, testutil.UserHeaders("alice"))

	testutil.AssertStatusCode(t, http.StatusOK, w)

	var response dto.ListTurnsResponse
	testutil.ParseJSONResponse(t, w, &response)
	assert.Equal(t, sessionID, response.SessionID)
	assert.Equal(t, int64(10), response.Limit)
	require.Len(t, response.Turns, 1)
	assert.Equal(t, "Hello", response.Turns[0].AssistantContent)
	assert.Equal(t, created, response.Turns[0].CreatedAt)
	archive.AssertExpectations(t)
}

func TestSessionsHandler_ListTurns_DefaultLimit(t *testing.T) {
	archive := &mocks.MockTurnsCollection{}
	f := newSessionsRouter(t, archive)
	sessionID := models.NewSessionID("alice")

	archive.On("ListBySession", mock.Anything, mock.MatchedBy(func(opts *docdb.ListTurnsOptions) bool {
		return opts.Limit == docdb.DefaultListLimit && opts.Skip == 0
	})).Return([]*models.TurnRecord{}, nil)

	w := testutil.PerformRequest(f.router, "GET", "/sessions/"+sessionID+"/turns", nil, testutil.UserHeaders("alice"))

	testutil.AssertStatusCode(t, http.StatusOK, w)
	archive.AssertExpectations(t)
}

func TestSessionsHandler_ListTurns_Rejections(t *testing.T) {
	archive := &mocks.MockTurnsCollection{}
	f := newSessionsRouter(t, archive)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"foreign session", "/sessions/" + models.NewSessionID("bob") + "/turns", http.StatusForbidden},
		{"shared prefix owner", "/sessions/" + models.NewSessionID("alice_b") + "/turns", http.StatusForbidden},
		{"malformed id", "/sessions/nope/turns", http.StatusBadRequest},
		{"limit too large", "/sessions/" + models.NewSessionID("alice") + "/turns?limit=1000", http.StatusBadRequest},
		{"bad order", "/sessions/" + models.NewSessionID("alice") + "/turns?order=sideways", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := testutil.PerformRequest(f.router, "GET", tt.path, nil, testutil.UserHeaders("alice"))
			testutil.AssertStatusCode(t, tt.wantStatus, w)
		})
	}

	archive.AssertNotCalled(t, "ListBySession", mock.Anything, mock.Anything)
}

func TestSessionsHandler_ListTurns_ArchiveErrors(t *testing.T) {
	sessionID := models.NewSessionID("alice")

	t.Run("disabled", func(t *testing.T) {
		f := newSessionsRouter(t, nil)
		w := testutil.PerformRequest(f.router, "GET", "/sessions/"+sessionID+"/turns", nil, testutil.UserHeaders("alice"))
		testutil.AssertStatusCode(t, http.StatusServiceUnavailable, w)
	})

	t.Run("query failure", func(t *testing.T) {
		archive := &mocks.MockTurnsCollection{}
		archive.On("ListBySession", mock.Anything, mock.Anything).Return(nil, assert.AnError)
		f := newSessionsRouter(t, archive)

		w := testutil.PerformRequest(f.router, "GET", "/sessions/"+sessionID+"/turns", nil, testutil.UserHeaders("alice"))
		testutil.AssertStatusCode(t, http.StatusServiceUnavailable, w)
	})
}
