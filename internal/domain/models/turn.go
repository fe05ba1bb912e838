package models

import "time"

// TurnRecord is the archived copy of one completed turn.
type TurnRecord struct {
	ID               string    `json:"id" bson:"_id"`
	SessionID        string    `json:"sessionId" bson:"sessionId"`
	OwnerID          string    `json:"ownerId" bson:"ownerId"`
	CorrelationID    string    `json:"correlationId" bson:"correlationId"`
	UserContent      string    `json:"userContent" bson:"userContent"`
	AssistantContent string    `json:"assistantContent" bson:"assistantContent"`
	LatencyMs        int64     `json:"latencyMs" bson:"latencyMs"`
	Fragments        int       `json:"fragments" bson:"fragments"`
	CreatedAt        time.Time `json:"createdAt" bson:"createdAt"`
}
