// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"github.com/unifiedui/chat-relay/internal/domain/models"
)

// MessageRequest is one message of a client conversation.
type MessageRequest struct {
	Role    string `json:"role" binding:"required" example:"user"`
	Content string `json:"content" binding:"max=32000" example:"Hello"`
}

// StreamRequest represents the request body of a streamed chat turn.
type StreamRequest struct {
	// SessionID continues a stored session. Omit to start a new one.
	SessionID string            `json:"sessionId,omitempty"`
	Messages  []*MessageRequest `json:"messages" binding:"required,min=1,dive,required"`
}

// ToModels converts the request messages to domain messages.
func (r *StreamRequest) ToModels() []models.Message {
	messages := make([]models.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		messages = append(messages, models.Message{
			Role:    models.MessageRole(m.Role),
			Content: m.Content,
		})
	}
	return messages
}

// CreateSessionRequest represents the optional body of a session creation.
type CreateSessionRequest struct {
	SystemPrompt string `json:"systemPrompt,omitempty" binding:"max=32000"`
}

// ListTurnsRequest represents the query parameters for listing archived turns.
type ListTurnsRequest struct {
	Limit  int64  `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int64  `form:"offset" binding:"omitempty,min=0"`
	Order  string `form:"order" binding:"omitempty,oneof=asc desc"`
}
