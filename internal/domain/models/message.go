// Package models contains domain models for the chat relay.
package models

import "fmt"

// MessageRole represents the role of a message sender.
type MessageRole string

const (
	// RoleSystem frames the task for the model. At most one per session, always first.
	RoleSystem MessageRole = "system"
	// RoleUser represents a message from the user.
	RoleUser MessageRole = "user"
	// RoleAssistant represents a message from the model.
	RoleAssistant MessageRole = "assistant"
)

// IsValid reports whether r is one of the known roles.
func (r MessageRole) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is one entry of a conversation transcript.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// ValidateMessages checks role validity and system-message placement.
func ValidateMessages(messages []Message) error {
	for i, m := range messages {
		if !m.Role.IsValid() {
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
		if m.Role == RoleSystem && i != 0 {
			return fmt.Errorf("message %d: system message must be first", i)
		}
	}
	return nil
}

// HasLeadingSystem reports whether messages starts with a system message.
func HasLeadingSystem(messages []Message) bool {
	return len(messages) > 0 && messages[0].Role == RoleSystem
}
