// Package session provides conversation session and message storage.
package session

import (
	"context"
	"errors"
	"time"
)

// MaxMessageLen is the longest content a single message may carry.
const MaxMessageLen = 10000

// Message sender roles.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
	SenderSystem    = "system"
)

// Errors returned by repositories.
var (
	ErrNotFound       = errors.New("session: not found")
	ErrEmptyMessage   = errors.New("session: message content is empty")
	ErrMessageTooLong = errors.New("session: message content exceeds limit")
	ErrInvalidSender  = errors.New("session: invalid sender")
)

// Intake is the four free-text fields describing what the user wants
// automated. It is captured once at session creation and snapshotted on
// the session record.
type Intake struct {
	Goal       string `json:"goal"`
	Workflow   string `json:"workflow_description"`
	Tools      string `json:"tools"`
	PainPoints string `json:"pain_points"`
}

// Session holds the state of a single blueprint conversation.
type Session struct {
	ID          string            `json:"id"`
	Persona     string            `json:"persona,omitempty"`
	Email       string            `json:"email,omitempty"`
	Intake      Intake            `json:"intake"`
	State       string            `json:"state"`
	BlueprintID string            `json:"blueprint_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Message represents one turn entry in a session. Messages are immutable
// after creation except for metadata enrichment.
type Message struct {
	ID        string            `json:"id"`
	SessionID string            `json:"session_id"`
	Sender    string            `json:"sender"` // user, assistant, system
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// ValidateContent checks message content against the length invariants.
func ValidateContent(content string) error {
	if content == "" {
		return ErrEmptyMessage
	}
	if len(content) > MaxMessageLen {
		return ErrMessageTooLong
	}
	return nil
}

// ValidateSender checks that sender is one of the defined roles.
func ValidateSender(sender string) error {
	switch sender {
	case SenderUser, SenderAssistant, SenderSystem:
		return nil
	}
	return ErrInvalidSender
}

// SessionRepository persists sessions. Implementations must make
// Create/Update atomic per record.
type SessionRepository interface {
	CreateSession(ctx context.Context, sess *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateSession(ctx context.Context, sess *Session) error
}

// MessageRepository persists the ordered, append-only message log.
type MessageRepository interface {
	AddMessage(ctx context.Context, msg *Message) error
	GetMessages(ctx context.Context, sessionID string) ([]Message, error)
	EnrichMessage(ctx context.Context, messageID string, metadata map[string]string) error
}
