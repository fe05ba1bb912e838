// Package relay runs one chat turn: it resolves the session, streams the
// upstream reply to an event sink and persists the completed exchange.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	domainerrors "github.com/unifiedui/chat-relay/internal/domain/errors"
	"github.com/unifiedui/chat-relay/internal/domain/models"
	"github.com/unifiedui/chat-relay/internal/services/session"
	"github.com/unifiedui/chat-relay/internal/services/upstream"
)

const (
	// DefaultTurnTimeout bounds one turn from upstream connect to the terminal frame.
	DefaultTurnTimeout = 120 * time.Second

	// lockGrace keeps the turn lock a little past the turn deadline.
	lockGrace = 10 * time.Second

	archiveTimeout  = 5 * time.Second
	finalizeTimeout = 5 * time.Second

	// PersistWarning is sent with the end event when the reply was not saved.
	PersistWarning = "the reply could not be saved to the conversation history"

	timeoutMessage = "upstream response timed out"
)

// Outcome labels how a turn ended.
type Outcome string

const (
	OutcomeCompleted     Outcome = "completed"
	OutcomePersistFailed Outcome = "persist_failed"
	OutcomeUpstreamError Outcome = "upstream_error"
	OutcomeTimeout       Outcome = "timeout"
	OutcomeCanceled      Outcome = "canceled"
)

// TurnRequest is one user turn.
type TurnRequest struct {
	// SessionID continues a stored session. Empty starts a new one.
	SessionID string
	// Messages is the client-side conversation ending with the new user message.
	Messages []models.Message
}

// EventSink receives the events of one turn in order: Start, any number of
// Update, then exactly one End or Error. A write error means the client is gone.
type EventSink interface {
	Start(sessionID string) error
	Update(sessionID, content, fullContent string) error
	End(sessionID, fullContent, warning string) error
	Error(sessionID, message string) error
}

// Result summarizes a finished turn.
type Result struct {
	SessionID     string
	CorrelationID string
	Content       string
	Fragments     int
	Outcome       Outcome
	Err           error
	Duration      time.Duration
}

// Archiver records completed turns outside the session store.
type Archiver interface {
	Record(ctx context.Context, turn *models.TurnRecord) error
}

// Service prepares turns.
type Service interface {
	// Prepare validates the request, resolves the session and reserves it.
	// Errors are returned before any downstream event is written.
	Prepare(ctx context.Context, ownerID string, req *TurnRequest) (*Turn, error)
}

// Config holds the configuration for the relay service.
type Config struct {
	Sessions session.Service
	Upstream upstream.Client
	// Archive records completed turns. Optional.
	Archive Archiver
	// Metrics is optional.
	Metrics     *Metrics
	TurnTimeout time.Duration
}

type service struct {
	sessions    session.Service
	upstream    upstream.Client
	archive     Archiver
	metrics     *Metrics
	turnTimeout time.Duration
}

// NewService creates a new relay service.
func NewService(cfg *Config) (Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session service is required")
	}
	if cfg.Upstream == nil {
		return nil, fmt.Errorf("upstream client is required")
	}

	turnTimeout := cfg.TurnTimeout
	if turnTimeout <= 0 {
		turnTimeout = DefaultTurnTimeout
	}

	return &service{
		sessions:    cfg.Sessions,
		upstream:    cfg.Upstream,
		archive:     cfg.Archive,
		metrics:     cfg.Metrics,
		turnTimeout: turnTimeout,
	}, nil
}

// Prepare validates the request, loads or creates the session and takes the turn lock.
func (s *service) Prepare(ctx context.Context, ownerID string, req *TurnRequest) (*Turn, error) {
	if ownerID == "" {
		return nil, domainerrors.NewUnauthorizedError("caller identity is required")
	}
	if err := models.ValidateOwnerID(ownerID); err != nil {
		return nil, domainerrors.NewValidationError("invalid owner id", err.Error())
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	userMessage := req.Messages[len(req.Messages)-1]

	var (
		sessionID string
		history   []models.Message
		release   session.Release
	)

	if req.SessionID != "" {
		if _, err := s.loadSession(ctx, ownerID, req.SessionID); err != nil {
			return nil, err
		}

		var err error
		release, err = s.sessions.AcquireTurnLock(ctx, req.SessionID, s.turnTimeout+lockGrace)
		if err != nil {
			return nil, err
		}

		// Reload under the lock so a turn that just finished is included.
		sess, err := s.loadSession(ctx, ownerID, req.SessionID)
		if err != nil {
			release()
			return nil, err
		}

		sessionID = sess.ID
		history = append(sess.Messages, userMessage)
	} else {
		systemPrompt := ""
		if models.HasLeadingSystem(req.Messages) {
			systemPrompt = req.Messages[0].Content
		}

		sess, err := s.sessions.CreateSession(ctx, ownerID, systemPrompt)
		if err != nil {
			return nil, err
		}

		release, err = s.sessions.AcquireTurnLock(ctx, sess.ID, s.turnTimeout+lockGrace)
		if err != nil {
			if delErr := s.sessions.DeleteSession(context.WithoutCancel(ctx), ownerID, sess.ID); delErr != nil {
				log.Ctx(ctx).Warn().Err(delErr).Str("session_id", sess.ID).Msg("failed to remove unused session")
			}
			return nil, err
		}

		sessionID = sess.ID
		history = append([]models.Message(nil), req.Messages...)
	}

	return &Turn{
		relay:         s,
		ownerID:       ownerID,
		sessionID:     sessionID,
		correlationID: upstream.NewCorrelationID(),
		history:       history,
		userMessage:   userMessage,
		release:       release,
	}, nil
}

// loadSession reports a store failure as a missing session.
func (s *service) loadSession(ctx context.Context, ownerID, sessionID string) (*models.Session, error) {
	sess, err := s.sessions.LoadSession(ctx, ownerID, sessionID)
	if err != nil {
		if domainErr, ok := domainerrors.GetDomainError(err); ok && domainErr.Code == domainerrors.ErrCodeServiceUnavailable {
			return nil, domainerrors.NewNotFoundError("session", sessionID)
		}
		return nil, err
	}
	return sess, nil
}

func validateRequest(req *TurnRequest) error {
	if req == nil || len(req.Messages) == 0 {
		return domainerrors.NewValidationError("messages are required", "")
	}
	if err := models.ValidateMessages(req.Messages); err != nil {
		return domainerrors.NewValidationError("invalid messages", err.Error())
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != models.RoleUser || strings.TrimSpace(last.Content) == "" {
		return domainerrors.NewValidationError("last message must be a non-empty user message", "")
	}
	if req.SessionID != "" {
		if err := models.ValidateSessionID(req.SessionID); err != nil {
			return domainerrors.NewValidationError("invalid session id", err.Error())
		}
	}
	return nil
}

// Turn is a prepared turn holding the session's turn lock. Call Stream
// once, or Release to give the lock back without streaming.
type Turn struct {
	relay         *service
	ownerID       string
	sessionID     string
	correlationID string
	history       []models.Message
	userMessage   models.Message
	release       session.Release
}

// SessionID returns the id of the session the turn belongs to.
func (t *Turn) SessionID() string {
	return t.sessionID
}

// CorrelationID returns the id sent upstream with the turn.
func (t *Turn) CorrelationID() string {
	return t.correlationID
}

// History returns the messages sent upstream.
func (t *Turn) History() []models.Message {
	return t.history
}

// Release frees the turn lock.
func (t *Turn) Release() {
	t.release()
}

// Stream relays the upstream reply to sink and persists the exchange once
// the upstream completes. Failed or canceled turns persist nothing.
func (t *Turn) Stream(ctx context.Context, sink EventSink) Result {
	defer t.release()

	started := time.Now()
	t.relay.metrics.turnStarted()

	logger := log.Ctx(ctx).With().
		Str("session_id", t.sessionID).
		Str("correlation_id", t.correlationID).
		Logger()

	turnCtx, cancel := context.WithTimeout(ctx, t.relay.turnTimeout)
	defer cancel()

	result := t.stream(ctx, turnCtx, sink, started, &logger)
	result.Duration = time.Since(started)
	t.relay.metrics.turnFinished(result.Outcome, result.Duration)

	event := logger.Info()
	if result.Err != nil && result.Outcome != OutcomeCanceled {
		event = logger.Warn().Err(result.Err)
	}
	event.
		Str("outcome", string(result.Outcome)).
		Int("fragments", result.Fragments).
		Dur("duration", result.Duration).
		Msg("turn finished")

	return result
}

func (t *Turn) stream(parent, ctx context.Context, sink EventSink, started time.Time, logger *zerolog.Logger) Result {
	result := Result{SessionID: t.sessionID, CorrelationID: t.correlationID}

	if err := sink.Start(t.sessionID); err != nil {
		result.Outcome = OutcomeCanceled
		result.Err = err
		return result
	}

	reader, err := t.relay.upstream.Stream(ctx, &upstream.StreamRequest{
		History:       t.history,
		CorrelationID: t.correlationID,
	})
	if err != nil {
		return t.fail(parent, ctx, sink, result, err)
	}
	defer reader.Close()

	var full strings.Builder
	for {
		chunk, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return t.fail(parent, ctx, sink, result, err)
		}

		full.WriteString(chunk.Content)
		result.Fragments++
		t.relay.metrics.fragment()

		if err := sink.Update(t.sessionID, chunk.Content, full.String()); err != nil {
			result.Outcome = OutcomeCanceled
			result.Err = err
			return result
		}
	}
	result.Content = full.String()

	// The client left after the last fragment.
	if err := parent.Err(); err != nil {
		result.Outcome = OutcomeCanceled
		result.Err = err
		return result
	}

	result.Outcome = OutcomeCompleted
	warning := ""

	// The upstream deadline no longer applies once the reply is complete.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(parent), finalizeTimeout)
	defer cancel()

	if _, err := t.relay.sessions.AppendTurn(persistCtx, t.ownerID, t.sessionID,
		t.userMessage,
		models.NewAssistantMessage(result.Content),
	); err != nil {
		logger.Error().Err(err).Msg("failed to persist turn")
		result.Outcome = OutcomePersistFailed
		result.Err = err
		warning = PersistWarning
	}

	if err := sink.End(t.sessionID, result.Content, warning); err != nil {
		logger.Debug().Err(err).Msg("failed to write end event")
	}

	if result.Outcome == OutcomeCompleted {
		t.archive(parent, result, time.Since(started), logger)
	}
	return result
}

// fail emits the error event. The write is best effort: a canceled client
// is usually gone already.
func (t *Turn) fail(parent, ctx context.Context, sink EventSink, result Result, err error) Result {
	result.Err = err
	message := err.Error()

	switch {
	case parent.Err() != nil:
		result.Outcome = OutcomeCanceled
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		result.Outcome = OutcomeTimeout
		message = timeoutMessage
		result.Err = domainerrors.NewTimeoutError("upstream response", err)
	default:
		result.Outcome = OutcomeUpstreamError
		result.Err = domainerrors.NewUpstreamError(message, err)
	}

	if writeErr := sink.Error(t.sessionID, message); writeErr != nil {
		log.Ctx(parent).Debug().Err(writeErr).Str("session_id", t.sessionID).Msg("failed to write error event")
	}
	return result
}

// archive records a completed turn. Failures are logged only.
func (t *Turn) archive(ctx context.Context, result Result, latency time.Duration, logger *zerolog.Logger) {
	if t.relay.archive == nil {
		return
	}

	archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	err := t.relay.archive.Record(archiveCtx, &models.TurnRecord{
		SessionID:        t.sessionID,
		OwnerID:          t.ownerID,
		CorrelationID:    t.correlationID,
		UserContent:      t.userMessage.Content,
		AssistantContent: result.Content,
		LatencyMs:        latency.Milliseconds(),
		Fragments:        result.Fragments,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		logger.Warn().Err(err).Msg("failed to archive turn")
	}
}
