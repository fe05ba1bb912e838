package handlers_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifiedui/chat-relay/internal/api/dto"
	"github.com/unifiedui/chat-relay/internal/api/handlers"
	"github.com/unifiedui/chat-relay/internal/api/middleware"
	"github.com/unifiedui/chat-relay/internal/domain/models"
	"github.com/unifiedui/chat-relay/internal/services/relay"
	"github.com/unifiedui/chat-relay/internal/services/session"
	"github.com/unifiedui/chat-relay/internal/services/upstream"
	"github.com/unifiedui/chat-relay/internal/testutil"
)

type chatFixture struct {
	router   *gin.Engine
	sessions session.Service
	upstream *testutil.FakeUpstream
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()

	_, cacheClient := testutil.NewMiniredisClient(t)
	sessions, err := session.NewService(&session.Config{CacheClient: cacheClient, TTL: time.Hour})
	require.NoError(t, err)

	fake := &testutil.FakeUpstream{}
	relayService, err := relay.NewService(&relay.Config{
		Sessions:    sessions,
		Upstream:    fake,
		TurnTimeout: 5 * time.Second,
	})
	require.NoError(t, err)

	auth := middleware.NewAuthMiddleware(&middleware.HeaderAuthenticator{Header: testutil.UserHeader})
	handler := handlers.NewChatHandler(relayService)

	router := testutil.SetupTestRouter()
	router.POST("/stream", auth.Authenticate(), handler.Stream)

	return &chatFixture{router: router, sessions: sessions, upstream: fake}
}

func userTurn(sessionID, content string) dto.StreamRequest {
	return dto.StreamRequest{
		SessionID: sessionID,
		Messages:  []*dto.MessageRequest{{Role: "user", Content: content}},
	}
}

func TestChatHandler_Stream_NewSession(t *testing.T) {
	f := newChatFixture(t)
	f.upstream.Fragments = []string{"Hel", "lo"}

	w := testutil.PerformRequest(f.router, "POST", "/stream", userTurn("", "Hi"), testutil.UserHeaders("alice"))

	testutil.AssertStatusCode(t, http.StatusOK, w)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := testutil.ParseSSEEvents(t, w.Body.String())
	require.Equal(t, []string{"start", "update", "update", "end"}, testutil.EventTypes(events))

	sessionID, _ := events[0]["sessionId"].(string)
	require.NoError(t, models.ValidateSessionID(sessionID))
	assert.True(t, models.SessionIDOwnedBy(sessionID, "alice"))

	assert.Equal(t, "Hel", events[1]["content"])
	assert.Equal(t, "Hello", events[2]["fullContent"])
	assert.Equal(t, "Hello", events[3]["fullContent"])
	assert.Equal(t, sessionID, events[3]["sessionId"])
	assert.NotContains(t, events[3], "warning")

	messages, err := f.sessions.GetMessages(context.Background(), "alice", sessionID)
	require.NoError(t, err)
	assert.Equal(t, []models.Message{
		models.NewUserMessage("Hi"),
		models.NewAssistantMessage("Hello"),
	}, messages)
}

func TestChatHandler_Stream_ContinuesSession(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	sess, err := f.sessions.CreateSession(ctx, "alice", "")
	require.NoError(t, err)
	_, err = f.sessions.AppendTurn(ctx, "alice", sess.ID,
		models.NewUserMessage("Hi"), models.NewAssistantMessage("Hello"))
	require.NoError(t, err)

	f.upstream.Fragments = []string{"Fine"}

	w := testutil.PerformRequest(f.router, "POST", "/stream", userTurn(sess.ID, "How are you?"), testutil.UserHeaders("alice"))

	testutil.AssertStatusCode(t, http.StatusOK, w)
	events := testutil.ParseSSEEvents(t, w.Body.String())
	assert.Equal(t, []string{"start", "update", "end"}, testutil.EventTypes(events))

	requests := f.upstream.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, []models.Message{
		models.NewUserMessage("Hi"),
		models.NewAssistantMessage("Hello"),
		models.NewUserMessage("How are you?"),
	}, requests[0].History)

	messages, err := f.sessions.GetMessages(ctx, "alice", sess.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 4)
}

func TestChatHandler_Stream_UpstreamError(t *testing.T) {
	f := newChatFixture(t)
	f.upstream.Err = &upstream.Error{Kind: upstream.KindStatus, Code: 11200, Message: "quota exceeded"}

	w := testutil.PerformRequest(f.router, "POST", "/stream", userTurn("", "Hi"), testutil.UserHeaders("alice"))

	testutil.AssertStatusCode(t, http.StatusOK, w)
	events := testutil.ParseSSEEvents(t, w.Body.String())
	require.Equal(t, []string{"start", "error"}, testutil.EventTypes(events))
	assert.Equal(t, "quota exceeded", events[1]["error"])

	sessionID, _ := events[0]["sessionId"].(string)
	messages, err := f.sessions.GetMessages(context.Background(), "alice", sessionID)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestChatHandler_Stream_ForeignSession(t *testing.T) {
	f := newChatFixture(t)

	sess, err := f.sessions.CreateSession(context.Background(), "bob", "")
	require.NoError(t, err)

	w := testutil.PerformRequest(f.router, "POST", "/stream", userTurn(sess.ID, "Hi"), testutil.UserHeaders("alice"))

	testutil.AssertStatusCode(t, http.StatusForbidden, w)

	var response dto.ErrorResponse
	testutil.ParseJSONResponse(t, w, &response)
	assert.Equal(t, "FORBIDDEN", response.Code)
	assert.Empty(t, f.upstream.Requests())
}

func TestChatHandler_Stream_Unauthenticated(t *testing.T) {
	f := newChatFixture(t)

	w := testutil.PerformRequest(f.router, "POST", "/stream", userTurn("", "Hi"), nil)

	testutil.AssertStatusCode(t, http.StatusUnauthorized, w)
	assert.Empty(t, f.upstream.Requests())
}

func TestChatHandler_Stream_InvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{"no messages", dto.StreamRequest{}},
		{"assistant last", dto.StreamRequest{Messages: []*dto.MessageRequest{
			{Role: "user", Content: "Hi"},
			{Role: "assistant", Content: "Hello"},
		}}},
		{"unknown role", dto.StreamRequest{Messages: []*dto.MessageRequest{{Role: "tool", Content: "x"}}}},
		{"malformed session id", userTurn("not-a-session", "Hi")},
		{"not json", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChatFixture(t)

			w := testutil.PerformRequest(f.router, "POST", "/stream", tt.body, testutil.UserHeaders("alice"))

			testutil.AssertStatusCode(t, http.StatusBadRequest, w)
			var response dto.ErrorResponse
			testutil.ParseJSONResponse(t, w, &response)
			assert.Equal(t, "VALIDATION_ERROR", response.Code)
			assert.Empty(t, f.upstream.Requests())
		})
	}
}

func TestChatHandler_Stream_UnknownSession(t *testing.T) {
	f := newChatFixture(t)

	w := testutil.PerformRequest(f.router, "POST", "/stream", userTurn(models.NewSessionID("alice"), "Hi"), testutil.UserHeaders("alice"))

	testutil.AssertStatusCode(t, http.StatusNotFound, w)
}

func TestChatHandler_Stream_TurnInProgress(t *testing.T) {
	f := newChatFixture(t)
	ctx := context.Background()

	sess, err := f.sessions.CreateSession(ctx, "alice", "")
	require.NoError(t, err)
	release, err := f.sessions.AcquireTurnLock(ctx, sess.ID, time.Minute)
	require.NoError(t, err)
	defer release()

	w := testutil.PerformRequest(f.router, "POST", "/stream", userTurn(sess.ID, "Hi"), testutil.UserHeaders("alice"))

	testutil.AssertStatusCode(t, http.StatusConflict, w)
	assert.Empty(t, f.upstream.Requests())
}

func TestChatHandler_Stream_EchoesOrigin(t *testing.T) {
	f := newChatFixture(t)
	f.upstream.Fragments = []string{"ok"}

	headers := testutil.UserHeaders("alice")
	headers["Origin"] = testutil.TestOrigin

	w := testutil.PerformRequest(f.router, "POST", "/stream", userTurn("", "Hi"), headers)

	testutil.AssertStatusCode(t, http.StatusOK, w)
	assert.Equal(t, testutil.TestOrigin, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}
