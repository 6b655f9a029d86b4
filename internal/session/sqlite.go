package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed implementation of SessionRepository and
// MessageRepository. Writes are per-record atomic; SQLite serializes them.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the store at dbPath and migrates the
// schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

// migrate creates the database schema.
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		persona TEXT,
		email TEXT,
		intake_goal TEXT NOT NULL,
		intake_workflow TEXT NOT NULL,
		intake_tools TEXT NOT NULL,
		intake_pain_points TEXT NOT NULL,
		state TEXT NOT NULL,
		blueprint_id TEXT,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT,
		timestamp TIMESTAMP NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession persists a new session. A missing ID or timestamps are
// filled in here so callers can pass a bare record.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate session ID: %w", err)
		}
		sess.ID = id.String()
	}
	now := time.Now()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = now
	}

	meta, err := encodeMetadata(sess.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions
			(id, persona, email, intake_goal, intake_workflow, intake_tools, intake_pain_points,
			 state, blueprint_id, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.Persona, sess.Email,
		sess.Intake.Goal, sess.Intake.Workflow, sess.Intake.Tools, sess.Intake.PainPoints,
		sess.State, sess.BlueprintID, meta, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, persona, email, intake_goal, intake_workflow, intake_tools, intake_pain_points,
		       state, blueprint_id, metadata, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id)

	var sess Session
	var persona, email, blueprintID, meta sql.NullString
	err := row.Scan(&sess.ID, &persona, &email,
		&sess.Intake.Goal, &sess.Intake.Workflow, &sess.Intake.Tools, &sess.Intake.PainPoints,
		&sess.State, &blueprintID, &meta, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	sess.Persona = persona.String
	sess.Email = email.String
	sess.BlueprintID = blueprintID.String
	if sess.Metadata, err = decodeMetadata(meta.String); err != nil {
		return nil, err
	}
	return &sess, nil
}

// UpdateSession writes back a session's mutable fields. UpdatedAt never
// moves backwards: if the caller left it stale, it is bumped to now.
func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *Session) error {
	now := time.Now()
	if now.After(sess.UpdatedAt) {
		sess.UpdatedAt = now
	}

	meta, err := encodeMetadata(sess.Metadata)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET persona = ?, state = ?, blueprint_id = ?, metadata = ?, updated_at = ?
		WHERE id = ?
	`, sess.Persona, sess.State, sess.BlueprintID, meta, sess.UpdatedAt, sess.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddMessage appends a message to a session's log. Content and sender
// invariants are enforced here so no caller can bypass them.
func (s *SQLiteStore) AddMessage(ctx context.Context, msg *Message) error {
	if err := ValidateContent(msg.Content); err != nil {
		return err
	}
	if err := ValidateSender(msg.Sender); err != nil {
		return err
	}

	if msg.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate message ID: %w", err)
		}
		msg.ID = id.String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	meta, err := encodeMetadata(msg.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, sender, content, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.SessionID, msg.Sender, msg.Content, meta, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	// Keep the session's updated_at non-decreasing with its message log.
	_, err = s.db.ExecContext(ctx, `
		UPDATE sessions SET updated_at = ? WHERE id = ? AND updated_at < ?
	`, msg.Timestamp, msg.SessionID, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	return nil
}

// GetMessages retrieves a session's messages in append order.
func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, sender, content, metadata, timestamp
		FROM messages
		WHERE session_id = ?
		ORDER BY timestamp ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var meta sql.NullString
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Sender, &m.Content, &meta, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if m.Metadata, err = decodeMetadata(meta.String); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// EnrichMessage merges metadata into an existing message. Content, sender
// and timestamp stay immutable.
func (s *SQLiteStore) EnrichMessage(ctx context.Context, messageID string, metadata map[string]string) error {
	if len(metadata) == 0 {
		return nil
	}

	row := s.db.QueryRowContext(ctx, `SELECT metadata FROM messages WHERE id = ?`, messageID)
	var existing sql.NullString
	if err := row.Scan(&existing); err == sql.ErrNoRows {
		return ErrNotFound
	} else if err != nil {
		return fmt.Errorf("read message metadata: %w", err)
	}

	merged, err := decodeMetadata(existing.String)
	if err != nil {
		return err
	}
	if merged == nil {
		merged = make(map[string]string, len(metadata))
	}
	for k, v := range metadata {
		merged[k] = v
	}

	encoded, err := encodeMetadata(merged)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `UPDATE messages SET metadata = ? WHERE id = ?`, encoded, messageID)
	if err != nil {
		return fmt.Errorf("update message metadata: %w", err)
	}
	return nil
}

// Stats returns store statistics.
func (s *SQLiteStore) Stats() map[string]any {
	var sessCount, msgCount int

	_ = s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&sessCount)
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&msgCount)

	return map[string]any{
		"sessions": sessCount,
		"messages": msgCount,
		"storage":  "sqlite",
	}
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}

func decodeMetadata(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}
