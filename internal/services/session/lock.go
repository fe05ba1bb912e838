package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/unifiedui/chat-relay/internal/domain/errors"
)

// LockKeyPrefix namespaces turn locks in the store.
const LockKeyPrefix = "chat:lock:"

const releaseTimeout = 2 * time.Second

// Release frees a turn lock. It is safe to call more than once.
type Release func()

// AcquireTurnLock reserves sessionID for one in-flight turn. The lock
// expires after ttl if the holder never releases it.
func (s *service) AcquireTurnLock(ctx context.Context, sessionID string, ttl time.Duration) (Release, error) {
	key := LockKeyPrefix + sessionID
	token := []byte(uuid.NewString())

	acquired, err := s.cacheClient.SetNX(ctx, key, token, ttl)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to acquire turn lock")
		return nil, errors.NewServiceUnavailableError(storeName, err)
	}
	if !acquired {
		return nil, errors.NewConflictError("another turn is in progress for this session", sessionID)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The request context may already be canceled.
			releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if _, err := s.cacheClient.DeleteIfEquals(releaseCtx, key, token); err != nil {
				log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to release turn lock")
			}
		})
	}, nil
}
