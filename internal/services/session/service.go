// Package session manages bounded conversation transcripts in the session store.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unifiedui/chat-relay/internal/core/cache"
	"github.com/unifiedui/chat-relay/internal/domain/errors"
	"github.com/unifiedui/chat-relay/internal/domain/models"
	"github.com/unifiedui/chat-relay/internal/pkg/encryption"
)

const (
	// DefaultSessionTTL expires sessions after three days without a write.
	DefaultSessionTTL = 72 * time.Hour

	// KeyPrefix namespaces session payloads in the store.
	KeyPrefix = "chat:session:"

	storeName = "session store"
)

// Service manages conversation sessions. Every operation takes the
// caller's identity and fails for sessions owned by someone else.
//
// Appends are read-modify-write without compare-and-swap. Callers that may
// run concurrent turns on one session must hold the turn lock.
type Service interface {
	// CreateSession writes a new empty session, seeded with systemPrompt when non-empty.
	CreateSession(ctx context.Context, ownerID, systemPrompt string) (*models.Session, error)

	// LoadSession returns the stored session.
	LoadSession(ctx context.Context, ownerID, sessionID string) (*models.Session, error)

	// GetSession returns session metadata.
	GetSession(ctx context.Context, ownerID, sessionID string) (*models.SessionSummary, error)

	// GetMessages returns the session transcript.
	GetMessages(ctx context.Context, ownerID, sessionID string) ([]models.Message, error)

	// AppendMessage appends one message under the window policy.
	AppendMessage(ctx context.Context, ownerID, sessionID string, msg models.Message) (*models.Session, error)

	// AppendTurn appends msgs in order and writes once, so a failed write
	// leaves the stored session unchanged.
	AppendTurn(ctx context.Context, ownerID, sessionID string, msgs ...models.Message) (*models.Session, error)

	// ClearMessages resets the transcript, keeping a leading system message.
	ClearMessages(ctx context.Context, ownerID, sessionID string) (*models.Session, error)

	// DeleteSession removes the session.
	DeleteSession(ctx context.Context, ownerID, sessionID string) error

	// ListSessions returns summaries of the owner's sessions, newest update first.
	ListSessions(ctx context.Context, ownerID string) ([]*models.SessionSummary, error)

	// PurgeOwner deletes every session of ownerID and reports how many were removed.
	PurgeOwner(ctx context.Context, ownerID string) (int, error)

	// AcquireTurnLock reserves sessionID for one in-flight turn.
	AcquireTurnLock(ctx context.Context, sessionID string, ttl time.Duration) (Release, error)

	// BuildCacheKey generates the store key for a session.
	BuildCacheKey(sessionID string) string
}

// service implements the Service interface.
type service struct {
	cacheClient cache.Client
	encryptor   encryption.Encryptor
	ttl         time.Duration
	maxMessages int
}

// Config holds the configuration for the session service.
type Config struct {
	CacheClient cache.Client
	Encryptor   encryption.Encryptor
	TTL         time.Duration
	MaxMessages int
}

// NewService creates a new session service.
func NewService(cfg *Config) (Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.CacheClient == nil {
		return nil, fmt.Errorf("cache client is required")
	}

	encryptor := cfg.Encryptor
	if encryptor == nil {
		encryptor = encryption.NewNoOpEncryptor()
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultSessionTTL
	}

	maxMessages := cfg.MaxMessages
	if maxMessages == 0 {
		maxMessages = models.DefaultMaxMessages
	}

	return &service{
		cacheClient: cfg.CacheClient,
		encryptor:   encryptor,
		ttl:         ttl,
		maxMessages: maxMessages,
	}, nil
}

// CreateSession allocates an id and writes an empty session.
func (s *service) CreateSession(ctx context.Context, ownerID, systemPrompt string) (*models.Session, error) {
	if err := checkOwner(ownerID); err != nil {
		return nil, err
	}

	sess := models.NewSession(ownerID)
	if systemPrompt != "" {
		sess.Messages = append(sess.Messages, models.NewSystemMessage(systemPrompt))
	}

	if err := s.write(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// LoadSession returns the caller's session.
func (s *service) LoadSession(ctx context.Context, ownerID, sessionID string) (*models.Session, error) {
	return s.loadOwned(ctx, ownerID, sessionID)
}

// GetSession returns session metadata.
func (s *service) GetSession(ctx context.Context, ownerID, sessionID string) (*models.SessionSummary, error) {
	sess, err := s.loadOwned(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Summary(), nil
}

// GetMessages returns the session transcript.
func (s *service) GetMessages(ctx context.Context, ownerID, sessionID string) ([]models.Message, error) {
	sess, err := s.loadOwned(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Messages, nil
}

// AppendMessage appends one message under the window policy.
func (s *service) AppendMessage(ctx context.Context, ownerID, sessionID string, msg models.Message) (*models.Session, error) {
	return s.AppendTurn(ctx, ownerID, sessionID, msg)
}

// AppendTurn applies each append in order and persists the result with a refreshed TTL.
func (s *service) AppendTurn(ctx context.Context, ownerID, sessionID string, msgs ...models.Message) (*models.Session, error) {
	sess, err := s.loadOwned(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}

	for _, msg := range msgs {
		if err := sess.Append(msg, s.maxMessages); err != nil {
			return nil, errors.NewValidationError("invalid message", err.Error())
		}
	}

	if err := s.write(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ClearMessages resets the transcript to [] or [system].
func (s *service) ClearMessages(ctx context.Context, ownerID, sessionID string) (*models.Session, error) {
	sess, err := s.loadOwned(ctx, ownerID, sessionID)
	if err != nil {
		return nil, err
	}

	sess.Clear()

	if err := s.write(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// DeleteSession removes the session from the store.
func (s *service) DeleteSession(ctx context.Context, ownerID, sessionID string) error {
	if _, err := s.loadOwned(ctx, ownerID, sessionID); err != nil {
		return err
	}

	if _, err := s.cacheClient.Delete(ctx, s.BuildCacheKey(sessionID)); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to delete session")
		return errors.NewServiceUnavailableError(storeName, err)
	}
	return nil
}

// ListSessions scans the owner's key prefix and returns summaries sorted by UpdatedAt.
func (s *service) ListSessions(ctx context.Context, ownerID string) ([]*models.SessionSummary, error) {
	sessions, err := s.ownedSessions(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})

	summaries := make([]*models.SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, sess.Summary())
	}
	return summaries, nil
}

// PurgeOwner deletes every session of ownerID.
func (s *service) PurgeOwner(ctx context.Context, ownerID string) (int, error) {
	sessions, err := s.ownedSessions(ctx, ownerID)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, sess := range sessions {
		deleted, err := s.cacheClient.Delete(ctx, s.BuildCacheKey(sess.ID))
		if err != nil {
			return purged, errors.NewServiceUnavailableError(storeName, err)
		}
		if deleted {
			purged++
		}
	}
	return purged, nil
}

// BuildCacheKey generates the store key for a session.
func (s *service) BuildCacheKey(sessionID string) string {
	return KeyPrefix + sessionID
}

// ownedSessions loads every readable session stored under the owner's prefix.
// Keys of other owners that share the prefix are filtered by the stored owner.
func (s *service) ownedSessions(ctx context.Context, ownerID string) ([]*models.Session, error) {
	if err := checkOwner(ownerID); err != nil {
		return nil, err
	}

	keys, err := s.cacheClient.ScanPrefix(ctx, KeyPrefix+models.SessionOwnerPrefix(ownerID))
	if err != nil {
		log.Error().Err(err).Str("owner_id", ownerID).Msg("failed to scan sessions")
		return nil, errors.NewServiceUnavailableError(storeName, err)
	}

	sessions := make([]*models.Session, 0, len(keys))
	for _, key := range keys {
		sess, err := s.read(ctx, strings.TrimPrefix(key, KeyPrefix))
		if err != nil {
			return nil, err
		}
		if sess == nil || !sess.OwnedBy(ownerID) {
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// checkOwner rejects callers whose id cannot form a session id.
func checkOwner(ownerID string) error {
	if ownerID == "" {
		return errors.NewUnauthorizedError("caller identity is required")
	}
	if err := models.ValidateOwnerID(ownerID); err != nil {
		return errors.NewValidationError("invalid owner id", err.Error())
	}
	return nil
}

// loadOwned validates the id, reads the session and checks ownership.
func (s *service) loadOwned(ctx context.Context, ownerID, sessionID string) (*models.Session, error) {
	if err := checkOwner(ownerID); err != nil {
		return nil, err
	}
	if err := models.ValidateSessionID(sessionID); err != nil {
		return nil, errors.NewValidationError("invalid session id", err.Error())
	}
	if !models.SessionIDOwnedBy(sessionID, ownerID) {
		return nil, errors.NewForbiddenError("session belongs to another user")
	}

	sess, err := s.read(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errors.NewNotFoundError("session", sessionID)
	}
	if !sess.OwnedBy(ownerID) {
		return nil, errors.NewForbiddenError("session belongs to another user")
	}
	return sess, nil
}

// read fetches and decodes a session. It returns nil when the key is absent.
// Entries that cannot be decrypted, decoded or validated are deleted and
// reported as absent.
func (s *service) read(ctx context.Context, sessionID string) (*models.Session, error) {
	key := s.BuildCacheKey(sessionID)

	raw, err := s.cacheClient.Get(ctx, key)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to read session")
		return nil, errors.NewServiceUnavailableError(storeName, err)
	}
	if raw == nil {
		return nil, nil
	}

	sess, err := s.decode(raw)
	if err == nil && sess.ID != sessionID {
		err = fmt.Errorf("stored id %q does not match key", sess.ID)
	}
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("discarding corrupt session")
		_, _ = s.cacheClient.Delete(ctx, key)
		return nil, nil
	}
	return sess, nil
}

func (s *service) decode(raw []byte) (*models.Session, error) {
	plaintext, err := s.encryptor.Decrypt(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session: %w", err)
	}

	var sess models.Session
	if err := json.Unmarshal(plaintext, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if sess.Messages == nil {
		sess.Messages = []models.Message{}
	}
	if err := sess.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session payload: %w", err)
	}
	return &sess, nil
}

// write persists the session and resets its TTL.
func (s *service) write(ctx context.Context, sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return errors.NewInternalError("failed to marshal session", err)
	}

	sealed, err := s.encryptor.Encrypt(data)
	if err != nil {
		return errors.NewInternalError("failed to encrypt session", err)
	}

	if err := s.cacheClient.Set(ctx, s.BuildCacheKey(sess.ID), []byte(sealed), s.ttl); err != nil {
		log.Error().Err(err).Str("session_id", sess.ID).Msg("failed to write session")
		return errors.NewServiceUnavailableError(storeName, err)
	}
	return nil
}
