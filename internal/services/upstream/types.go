package upstream

import (
	"fmt"

	"github.com/unifiedui/chat-relay/internal/domain/models"
)

// StatusComplete marks the final response frame of an exchange.
const StatusComplete = 2

// Kind classifies a terminal stream failure.
type Kind string

const (
	KindConnect   Kind = "connect"
	KindStatus    Kind = "status"
	KindMalformed Kind = "malformed"
	KindClosed    Kind = "closed"
	KindCanceled  Kind = "canceled"
)

// Error is the terminal failure of an exchange.
type Error struct {
	Kind    Kind
	Code    int
	Message string
	Err     error
}

// Error returns the message reported to the client.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// String includes the classification, for logs.
func (e *Error) String() string {
	if e.Code != 0 {
		return fmt.Sprintf("upstream %s error %d: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("upstream %s error: %s", e.Kind, e.Message)
}

// StreamRequest is one completion request.
type StreamRequest struct {
	// History is the conversation sent upstream, oldest first.
	History []models.Message
	// CorrelationID ties upstream logs to the turn. Generated when empty.
	CorrelationID string
}

// Chunk is an incremental fragment of the reply.
type Chunk struct {
	Content string
}

// StreamReader yields reply fragments. Read returns io.EOF after the last
// fragment of a completed exchange and an *Error for any other outcome.
// Once a terminal result is returned every later Read returns it again.
type StreamReader interface {
	Read() (*Chunk, error)
	Close() error
}

// RequestFrame is the JSON frame sent after the handshake.
type RequestFrame struct {
	Header    RequestHeader    `json:"header"`
	Parameter RequestParameter `json:"parameter"`
	Payload   RequestPayload   `json:"payload"`
}

type RequestHeader struct {
	AppID string `json:"app_id"`
	UID   string `json:"uid"`
}

type RequestParameter struct {
	Chat ChatParameter `json:"chat"`
}

type ChatParameter struct {
	Domain      string  `json:"domain"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type RequestPayload struct {
	Message RequestMessage `json:"message"`
}

type RequestMessage struct {
	Text []models.Message `json:"text"`
}

// ResponseFrame is one JSON frame received from the service.
type ResponseFrame struct {
	Header  ResponseHeader  `json:"header"`
	Payload ResponsePayload `json:"payload"`
}

type ResponseHeader struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	SID     string `json:"sid"`
	Status  int    `json:"status"`
}

type ResponsePayload struct {
	Choices Choices `json:"choices"`
}

type Choices struct {
	Status int          `json:"status"`
	Seq    int          `json:"seq"`
	Text   []ChoiceText `json:"text"`
}

type ChoiceText struct {
	Content string `json:"content"`
	Role    string `json:"role"`
	Index   int    `json:"index"`
}
