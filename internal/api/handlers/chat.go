package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/unifiedui/chat-relay/internal/api/dto"
	"github.com/unifiedui/chat-relay/internal/api/middleware"
	"github.com/unifiedui/chat-relay/internal/api/sse"
	"github.com/unifiedui/chat-relay/internal/domain/errors"
	"github.com/unifiedui/chat-relay/internal/services/relay"
)

// ChatHandler streams chat turns.
type ChatHandler struct {
	relay relay.Service
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(relayService relay.Service) *ChatHandler {
	return &ChatHandler{
		relay: relayService,
	}
}

// Stream handles POST /stream
// @Summary Stream a chat turn
// @Description Relays one user turn to the model and streams the reply as Server-Sent Events.
// @Description Each event is a "data:" line holding a JSON object whose "type" is start, update, end or error.
// @Description Requests rejected before streaming get a JSON error body instead.
// @Tags Chat
// @Accept json
// @Produce text/event-stream
// @Param request body dto.StreamRequest true "Conversation turn"
// @Success 200 {object} sse.UpdateEvent "Event stream"
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Security UserHeader
// @Router /api/v1/chat/stream [post]
func (h *ChatHandler) Stream(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	turn, err := h.relay.Prepare(ctx, middleware.GetUserID(c), &relay.TurnRequest{
		SessionID: req.SessionID,
		Messages:  req.ToModels(),
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	writer, err := sse.NewWriter(c.Writer, c.GetHeader("Origin"))
	if err != nil {
		turn.Release()
		middleware.HandleError(c, errors.NewInternalError("streaming not supported", err))
		return
	}
	c.Status(http.StatusOK)

	turn.Stream(ctx, writer)
}
