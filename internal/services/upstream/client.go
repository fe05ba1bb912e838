// Package upstream streams completions from the external inference service
// over one WebSocket exchange per turn.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/unifiedui/chat-relay/internal/domain/models"
)

// DefaultHandshakeTimeout bounds the WebSocket handshake.
const DefaultHandshakeTimeout = 10 * time.Second

// Client opens completion streams.
type Client interface {
	// Stream sends req and returns a reader over the reply. Connection
	// failures are returned here as an *Error of kind KindConnect.
	Stream(ctx context.Context, req *StreamRequest) (StreamReader, error)
}

// Config holds the configuration for the upstream client.
type Config struct {
	URL          string
	AppID        string
	APIKey       string
	APISecret    string
	Domain       string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string

	HandshakeTimeout time.Duration

	// Now defaults to time.Now. Used for the signature date.
	Now func() time.Time
}

type client struct {
	cfg    Config
	signer *Signer
	dialer *websocket.Dialer
}

// NewClient creates a new upstream client.
func NewClient(cfg *Config) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("upstream url is required")
	}

	c := *cfg
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	return &client{
		cfg:    c,
		signer: &Signer{APIKey: c.APIKey, APISecret: c.APISecret},
		dialer: &websocket.Dialer{
			HandshakeTimeout: c.HandshakeTimeout,
			Proxy:            websocket.DefaultDialer.Proxy,
		},
	}, nil
}

// Stream signs the URL, dials, writes the request frame and hands the
// connection to a StreamReader.
func (c *client) Stream(ctx context.Context, req *StreamRequest) (StreamReader, error) {
	if err := ctx.Err(); err != nil {
		return nil, canceledError(err)
	}

	signed, err := c.signer.SignURL(c.cfg.URL, c.cfg.Now())
	if err != nil {
		return nil, &Error{Kind: KindConnect, Message: "failed to sign upstream request", Err: err}
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}

	conn, resp, err := c.dialer.DialContext(ctx, signed, nil)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, canceledError(ctxErr)
		}
		upErr := &Error{Kind: KindConnect, Message: "failed to connect to upstream", Err: err}
		if resp != nil {
			upErr.Code = resp.StatusCode
			upErr.Message = fmt.Sprintf("upstream handshake rejected with status %d", resp.StatusCode)
			if resp.Body != nil {
				resp.Body.Close()
			}
		}
		log.Warn().Err(err).Str("correlation_id", correlationID).Msg("upstream handshake failed")
		return nil, upErr
	}

	reader := newStreamReader(ctx, conn)

	if err := conn.WriteJSON(c.buildRequest(req.History, correlationID)); err != nil {
		reader.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, canceledError(ctxErr)
		}
		return nil, &Error{Kind: KindClosed, Message: "failed to send upstream request", Err: err}
	}

	log.Debug().
		Str("correlation_id", correlationID).
		Int("messages", len(req.History)).
		Msg("upstream stream opened")

	return reader, nil
}

// buildRequest frames history, prepending the configured system prompt
// when history does not start with one.
func (c *client) buildRequest(history []models.Message, correlationID string) *RequestFrame {
	text := make([]models.Message, 0, len(history)+1)
	if c.cfg.SystemPrompt != "" && !models.HasLeadingSystem(history) {
		text = append(text, models.NewSystemMessage(c.cfg.SystemPrompt))
	}
	text = append(text, history...)

	return &RequestFrame{
		Header: RequestHeader{
			AppID: c.cfg.AppID,
			UID:   correlationID,
		},
		Parameter: RequestParameter{
			Chat: ChatParameter{
				Domain:      c.cfg.Domain,
				Temperature: c.cfg.Temperature,
				MaxTokens:   c.cfg.MaxTokens,
			},
		},
		Payload: RequestPayload{
			Message: RequestMessage{Text: text},
		},
	}
}

// NewCorrelationID returns a 32-char hex id.
func NewCorrelationID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func canceledError(err error) *Error {
	return &Error{Kind: KindCanceled, Message: "request canceled", Err: err}
}

// streamReader demultiplexes response frames into chunks.
type streamReader struct {
	ctx     context.Context
	conn    *websocket.Conn
	stop    func() bool
	pending []string
	err     error

	closeOnce sync.Once
	closeErr  error
}

func newStreamReader(ctx context.Context, conn *websocket.Conn) *streamReader {
	r := &streamReader{ctx: ctx, conn: conn}
	// Closing the socket unblocks a pending ReadMessage.
	r.stop = context.AfterFunc(ctx, func() {
		conn.Close()
	})
	return r
}

// Read returns the next non-empty fragment.
func (r *streamReader) Read() (*Chunk, error) {
	for {
		if len(r.pending) > 0 {
			content := r.pending[0]
			r.pending = r.pending[1:]
			return &Chunk{Content: content}, nil
		}
		if r.err != nil {
			return nil, r.err
		}
		if err := r.next(); err != nil {
			r.err = err
			r.Close()
		}
	}
}

// next reads one frame into pending. It returns io.EOF on the terminal
// frame and an *Error on failure.
func (r *streamReader) next() error {
	_, data, err := r.conn.ReadMessage()
	if err != nil {
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			return canceledError(ctxErr)
		}
		return &Error{Kind: KindClosed, Message: "upstream connection closed before completion", Err: err}
	}

	var frame ResponseFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return &Error{Kind: KindMalformed, Message: "malformed upstream frame", Err: err}
	}
	if frame.Header.Code != 0 {
		return &Error{Kind: KindStatus, Code: frame.Header.Code, Message: frame.Header.Message}
	}

	for _, text := range frame.Payload.Choices.Text {
		if text.Content != "" {
			r.pending = append(r.pending, text.Content)
		}
	}

	if frame.Header.Status == StatusComplete {
		return io.EOF
	}
	return nil
}

// Close releases the connection. Safe to call more than once.
func (r *streamReader) Close() error {
	r.closeOnce.Do(func() {
		r.stop()
		r.closeErr = r.conn.Close()
	})
	return r.closeErr
}
