// Package sse provides Server-Sent Events support for streaming responses.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// EventType is the "type" field of a stream event.
type EventType string

const (
	// EventStart opens the stream and announces the session id.
	EventStart EventType = "start"
	// EventUpdate carries one reply fragment and the text so far.
	EventUpdate EventType = "update"
	// EventEnd carries the complete reply. Always last.
	EventEnd EventType = "end"
	// EventError reports a failed turn. Always last.
	EventError EventType = "error"
)

// StartEvent is the payload of a start event.
type StartEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
}

// UpdateEvent is the payload of an update event.
type UpdateEvent struct {
	Type        EventType `json:"type"`
	Content     string    `json:"content"`
	FullContent string    `json:"fullContent"`
	SessionID   string    `json:"sessionId"`
}

// EndEvent is the payload of an end event.
type EndEvent struct {
	Type        EventType `json:"type"`
	FullContent string    `json:"fullContent"`
	SessionID   string    `json:"sessionId"`
	Warning     string    `json:"warning,omitempty"`
}

// ErrorEvent is the payload of an error event.
type ErrorEvent struct {
	Type      EventType `json:"type"`
	Error     string    `json:"error"`
	SessionID string    `json:"sessionId"`
}

// Writer writes Server-Sent Events to an HTTP response.
type Writer struct {
	writer  http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the stream headers on w. A non-empty origin is echoed
// back with credentials allowed.
func NewWriter(w http.ResponseWriter, origin string) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	if origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Add("Vary", "Origin")
	}

	return &Writer{
		writer:  w,
		flusher: flusher,
	}, nil
}

// WriteData writes one "data:" frame and flushes it.
func (w *Writer) WriteData(data []byte) error {
	if _, err := fmt.Fprintf(w.writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// WriteJSON writes v as one JSON data frame.
func (w *Writer) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	return w.WriteData(data)
}

// Start writes the start event.
func (w *Writer) Start(sessionID string) error {
	return w.WriteJSON(&StartEvent{Type: EventStart, SessionID: sessionID})
}

// Update writes an update event.
func (w *Writer) Update(sessionID, content, fullContent string) error {
	return w.WriteJSON(&UpdateEvent{
		Type:        EventUpdate,
		Content:     content,
		FullContent: fullContent,
		SessionID:   sessionID,
	})
}

// End writes the end event.
func (w *Writer) End(sessionID, fullContent, warning string) error {
	return w.WriteJSON(&EndEvent{
		Type:        EventEnd,
		FullContent: fullContent,
		SessionID:   sessionID,
		Warning:     warning,
	})
}

// Error writes the error event.
func (w *Writer) Error(sessionID, message string) error {
	return w.WriteJSON(&ErrorEvent{
		Type:      EventError,
		Error:     message,
		SessionID: sessionID,
	})
}
