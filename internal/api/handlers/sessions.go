package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unifiedui/chat-relay/internal/api/dto"
	"github.com/unifiedui/chat-relay/internal/api/middleware"
	"github.com/unifiedui/chat-relay/internal/core/docdb"
	"github.com/unifiedui/chat-relay/internal/domain/errors"
	"github.com/unifiedui/chat-relay/internal/domain/models"
	"github.com/unifiedui/chat-relay/internal/services/session"
)

// SessionsHandler handles session management endpoints.
type SessionsHandler struct {
	sessions session.Service
	archive  docdb.TurnsCollection
}

// NewSessionsHandler creates a new SessionsHandler. archive is nil when
// the turn archive is disabled.
func NewSessionsHandler(sessions session.Service, archive docdb.TurnsCollection) *SessionsHandler {
	return &SessionsHandler{
		sessions: sessions,
		archive:  archive,
	}
}

// CreateSession handles POST /sessions
// @Summary Create a session
// @Description Creates an empty session, optionally seeded with a system prompt
// @Tags Sessions
// @Accept json
// @Produce json
// @Param request body dto.CreateSessionRequest false "Optional system prompt"
// @Success 201 {object} dto.SessionResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Security UserHeader
// @Router /api/v1/chat/sessions [post]
func (h *SessionsHandler) CreateSession(c *gin.Context) {
	var req dto.CreateSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
			return
		}
	}

	sess, err := h.sessions.CreateSession(c.Request.Context(), middleware.GetUserID(c), req.SystemPrompt)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewSessionResponse(sess.Summary()))
}

// ListSessions handles GET /sessions
// @Summary List sessions
// @Description Lists the caller's sessions, most recently updated first
// @Tags Sessions
// @Produce json
// @Success 200 {object} dto.ListSessionsResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Security UserHeader
// @Router /api/v1/chat/sessions [get]
func (h *SessionsHandler) ListSessions(c *gin.Context) {
	summaries, err := h.sessions.ListSessions(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	sessions := make([]*dto.SessionResponse, 0, len(summaries))
	for _, s := range summaries {
		sessions = append(sessions, dto.NewSessionResponse(s))
	}

	c.JSON(http.StatusOK, dto.ListSessionsResponse{
		Sessions: sessions,
		Total:    len(sessions),
	})
}

// GetSession handles GET /sessions/{sessionId}
// @Summary Get a session
// @Description Returns session metadata
// @Tags Sessions
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} dto.SessionResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Security UserHeader
// @Router /api/v1/chat/sessions/{sessionId} [get]
func (h *SessionsHandler) GetSession(c *gin.Context) {
	summary, err := h.sessions.GetSession(c.Request.Context(), middleware.GetUserID(c), c.Param("sessionId"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSessionResponse(summary))
}

// GetMessages handles GET /sessions/{sessionId}/messages
// @Summary Get session messages
// @Description Returns the stored transcript of a session
// @Tags Sessions
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} dto.GetMessagesResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Security UserHeader
// @Router /api/v1/chat/sessions/{sessionId}/messages [get]
func (h *SessionsHandler) GetMessages(c *gin.Context) {
	sessionID := c.Param("sessionId")

	messages, err := h.sessions.GetMessages(c.Request.Context(), middleware.GetUserID(c), sessionID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.GetMessagesResponse{
		SessionID: sessionID,
		Messages:  dto.NewMessageResponses(messages),
	})
}

// ClearMessages handles DELETE /sessions/{sessionId}/messages
// @Summary Clear session messages
// @Description Drops the transcript, keeping a leading system message
// @Tags Sessions
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} dto.GetMessagesResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Security UserHeader
// @Router /api/v1/chat/sessions/{sessionId}/messages [delete]
func (h *SessionsHandler) ClearMessages(c *gin.Context) {
	sess, err := h.sessions.ClearMessages(c.Request.Context(), middleware.GetUserID(c), c.Param("sessionId"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.GetMessagesResponse{
		SessionID: sess.ID,
		Messages:  dto.NewMessageResponses(sess.Messages),
	})
}

// DeleteSession handles DELETE /sessions/{sessionId}
// @Summary Delete a session
// @Description Deletes the session and its archived turns
// @Tags Sessions
// @Param sessionId path string true "Session ID"
// @Success 204 "Session deleted"
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Security UserHeader
// @Router /api/v1/chat/sessions/{sessionId} [delete]
func (h *SessionsHandler) DeleteSession(c *gin.Context) {
	ctx := c.Request.Context()
	ownerID := middleware.GetUserID(c)
	sessionID := c.Param("sessionId")

	if err := h.sessions.DeleteSession(ctx, ownerID, sessionID); err != nil {
		middleware.HandleError(c, err)
		return
	}

	if h.archive != nil {
		if _, err := h.archive.DeleteBySession(ctx, ownerID, sessionID); err != nil {
			logger := middleware.GetRequestLogger(c)
			logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to delete archived turns")
		}
	}

	c.Status(http.StatusNoContent)
}

// ListTurns handles GET /sessions/{sessionId}/turns
// @Summary List archived turns
// @Description Lists the archived turns of a session. Archived turns outlive the session itself.
// @Tags Sessions
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param limit query int false "Maximum number of turns" default(100) minimum(1) maximum(100)
// @Param offset query int false "Offset for pagination" default(0) minimum(0)
// @Param order query string false "Sort order by creation time" Enums(asc, desc) default(asc)
// @Success 200 {object} dto.ListTurnsResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Security UserHeader
// @Router /api/v1/chat/sessions/{sessionId}/turns [get]
func (h *SessionsHandler) ListTurns(c *gin.Context) {
	if h.archive == nil {
		middleware.HandleError(c, errors.NewServiceUnavailableError("turn archive", nil))
		return
	}

	ownerID := middleware.GetUserID(c)
	sessionID := c.Param("sessionId")

	if err := models.ValidateSessionID(sessionID); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid session id", err.Error()))
		return
	}
	// Sessions may have expired, so ownership is checked on the id alone.
	if ownerID == "" || !models.SessionIDOwnedBy(sessionID, ownerID) {
		middleware.HandleError(c, errors.NewForbiddenError("session belongs to another user"))
		return
	}

	var req dto.ListTurnsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid query parameters", err.Error()))
		return
	}
	if req.Limit == 0 {
		req.Limit = docdb.DefaultListLimit
	}

	turns, err := h.archive.ListBySession(c.Request.Context(), &docdb.ListTurnsOptions{
		SessionID: sessionID,
		OwnerID:   ownerID,
		Limit:     req.Limit,
		Skip:      req.Offset,
		OrderBy:   docdb.SortOrder(req.Order),
	})
	if err != nil {
		middleware.HandleError(c, errors.NewServiceUnavailableError("turn archive", err))
		return
	}

	c.JSON(http.StatusOK, dto.ListTurnsResponse{
		SessionID: sessionID,
		Turns:     dto.NewTurnResponses(turns),
		Limit:     req.Limit,
		Offset:    req.Offset,
	})
}
