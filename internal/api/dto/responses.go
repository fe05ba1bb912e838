package dto

import (
	"time"

	"github.com/unifiedui/chat-relay/internal/domain/models"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionResponse represents session metadata in API responses.
type SessionResponse struct {
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Preview   string    `json:"preview"`
}

// ListSessionsResponse represents the response for listing sessions.
type ListSessionsResponse struct {
	Sessions []*SessionResponse `json:"sessions"`
	Total    int                `json:"total"`
}

// GetMessagesResponse represents the response for getting messages.
type GetMessagesResponse struct {
	SessionID string             `json:"sessionId"`
	Messages  []*MessageResponse `json:"messages"`
}

// TurnResponse represents an archived turn in API responses.
type TurnResponse struct {
	ID               string    `json:"id"`
	CorrelationID    string    `json:"correlationId"`
	UserContent      string    `json:"userContent"`
	AssistantContent string    `json:"assistantContent"`
	LatencyMs        int64     `json:"latencyMs"`
	Fragments        int       `json:"fragments"`
	CreatedAt        time.Time `json:"createdAt"`
}

// ListTurnsResponse represents the response for listing archived turns.
type ListTurnsResponse struct {
	SessionID string          `json:"sessionId"`
	Turns     []*TurnResponse `json:"turns"`
	Limit     int64           `json:"limit"`
	Offset    int64           `json:"offset"`
}

// NewSessionResponse converts a session summary.
func NewSessionResponse(s *models.SessionSummary) *SessionResponse {
	return &SessionResponse{
		SessionID: s.ID,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Preview:   s.Preview,
	}
}

// NewMessageResponses converts domain messages.
func NewMessageResponses(messages []models.Message) []*MessageResponse {
	result := make([]*MessageResponse, 0, len(messages))
	for _, m := range messages {
		result = append(result, &MessageResponse{Role: string(m.Role), Content: m.Content})
	}
	return result
}

// NewTurnResponses converts archived turns.
func NewTurnResponses(turns []*models.TurnRecord) []*TurnResponse {
	result := make([]*TurnResponse, 0, len(turns))
	for _, t := range turns {
		result = append(result, &TurnResponse{
			ID:               t.ID,
			CorrelationID:    t.CorrelationID,
			UserContent:      t.UserContent,
			AssistantContent: t.AssistantContent,
			LatencyMs:        t.LatencyMs,
			Fragments:        t.Fragments,
			CreatedAt:        t.CreatedAt,
		})
	}
	return result
}
