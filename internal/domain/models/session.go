package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// DefaultMaxMessages is the window size of a session transcript.
	DefaultMaxMessages = 20

	// PreviewLength is the number of characters kept in a session preview.
	PreviewLength = 30

	previewEllipsis = "..."
	idSeparator     = "_"
)

// ownerPattern is the grammar of the owner part of a session id. It
// excludes whitespace and glob metacharacters so ids are safe inside
// store keys.
const ownerPattern = `[^\s*?\[\]\\]{1,128}`

var (
	ownerIDPattern   = regexp.MustCompile(`^` + ownerPattern + `$`)
	sessionIDPattern = regexp.MustCompile(`^` + ownerPattern + `_[0-9a-f]{32}$`)
)

// ErrSystemNotFirst is returned when a system message would not be the first entry.
var ErrSystemNotFirst = errors.New("system message is only allowed as the first message")

// Session is a bounded, persisted conversation transcript owned by one user.
type Session struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Messages  []Message `json:"messages"`
}

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	ID        string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Preview   string    `json:"preview"`
}

// NewSessionID allocates an id for ownerID. The random part keeps ids of
// one owner unguessable by another.
func NewSessionID(ownerID string) string {
	return ownerID + idSeparator + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ValidateOwnerID checks that ownerID can be embedded in a session id.
func ValidateOwnerID(ownerID string) error {
	if !ownerIDPattern.MatchString(ownerID) {
		return fmt.Errorf("owner id %q must be 1-128 characters without whitespace or any of *?[]\\", ownerID)
	}
	return nil
}

// ValidateSessionID checks the shape of a session id.
func ValidateSessionID(id string) error {
	if !sessionIDPattern.MatchString(id) {
		return fmt.Errorf("malformed session id %q", id)
	}
	return nil
}

// SessionOwnerPrefix is the id prefix shared by every session of ownerID.
func SessionOwnerPrefix(ownerID string) string {
	return ownerID + idSeparator
}

// SessionIDOwnedBy reports whether id was allocated for ownerID. Owners
// sharing a prefix ("alice" and "alice_b") are told apart by the fixed
// length of the random part.
func SessionIDOwnedBy(id, ownerID string) bool {
	return ownerID != "" &&
		len(id) == len(ownerID)+len(idSeparator)+32 &&
		strings.HasPrefix(id, SessionOwnerPrefix(ownerID))
}

// NewSession creates an empty session for ownerID.
func NewSession(ownerID string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        NewSessionID(ownerID),
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []Message{},
	}
}

// Validate checks the schema invariants of a decoded session.
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("session id is empty")
	}
	if s.OwnerID == "" {
		return errors.New("session owner is empty")
	}
	if !strings.HasPrefix(s.ID, SessionOwnerPrefix(s.OwnerID)) {
		return fmt.Errorf("session id %q does not belong to owner %q", s.ID, s.OwnerID)
	}
	if s.CreatedAt.IsZero() || s.UpdatedAt.IsZero() {
		return errors.New("session timestamps are missing")
	}
	return ValidateMessages(s.Messages)
}

// OwnedBy reports whether ownerID owns the session.
func (s *Session) OwnedBy(ownerID string) bool {
	return ownerID != "" && s.OwnerID == ownerID
}

// Append adds msg and evicts the oldest non-system messages until at most
// maxMessages remain. A leading system message is never evicted.
func (s *Session) Append(msg Message, maxMessages int) error {
	if !msg.Role.IsValid() {
		return fmt.Errorf("unknown role %q", msg.Role)
	}
	if msg.Role == RoleSystem && len(s.Messages) > 0 {
		return ErrSystemNotFirst
	}
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}

	s.Messages = append(s.Messages, msg)

	if excess := len(s.Messages) - maxMessages; excess > 0 {
		start := 0
		if HasLeadingSystem(s.Messages) {
			start = 1
		}
		kept := make([]Message, 0, maxMessages)
		kept = append(kept, s.Messages[:start]...)
		kept = append(kept, s.Messages[start+excess:]...)
		s.Messages = kept
	}

	s.Touch()
	return nil
}

// Clear drops every message except a leading system message.
func (s *Session) Clear() {
	if HasLeadingSystem(s.Messages) {
		s.Messages = []Message{s.Messages[0]}
	} else {
		s.Messages = []Message{}
	}
	s.Touch()
}

// Touch refreshes UpdatedAt.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// Summary builds the listing view of the session.
func (s *Session) Summary() *SessionSummary {
	return &SessionSummary{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Preview:   s.Preview(),
	}
}

// Preview returns the last user message shortened to PreviewLength characters.
func (s *Session) Preview() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role != RoleUser {
			continue
		}
		content := s.Messages[i].Content
		if utf8.RuneCountInString(content) <= PreviewLength {
			return content
		}
		return string([]rune(content)[:PreviewLength]) + previewEllipsis
	}
	return ""
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	c.Messages = append([]Message(nil), s.Messages...)
	return &c
}
