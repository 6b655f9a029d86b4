package generate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// FailureRecord is one exhausted generation attempt, kept for operator
// review. Records are append-only.
type FailureRecord struct {
	ID         string
	Timestamp  time.Time
	SessionID  string
	PromptHash string
	Kind       Kind
	Message    string
	Attempts   int
}

// FailureStore is an append-only SQLite store for generation failures.
// Safe for concurrent use; SQLite serializes writes.
type FailureStore struct {
	db *sql.DB
}

// NewFailureStore creates a failure store at the given database path.
// The schema is created automatically on first use.
func NewFailureStore(dbPath string) (*FailureStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open failure database: %w", err)
	}

	s := &FailureStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate failure schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *FailureStore) Close() error {
	return s.db.Close()
}

func (s *FailureStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS generation_failures (
		id          TEXT PRIMARY KEY,
		timestamp   TEXT NOT NULL,
		session_id  TEXT,
		prompt_hash TEXT NOT NULL,
		kind        TEXT NOT NULL,
		message     TEXT NOT NULL,
		attempts    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_failures_timestamp ON generation_failures(timestamp);
	CREATE INDEX IF NOT EXISTS idx_failures_session ON generation_failures(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record persists a failure record. If rec.ID is empty, a UUIDv7 is
// generated. The context is used for cancellation only.
func (s *FailureStore) Record(ctx context.Context, rec FailureRecord) error {
	if rec.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate failure record ID: %w", err)
		}
		rec.ID = id.String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generation_failures
			(id, timestamp, session_id, prompt_hash, kind, message, attempts)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Timestamp.UTC().Format(time.RFC3339),
		rec.SessionID,
		rec.PromptHash,
		rec.Kind,
		rec.Message,
		rec.Attempts,
	)
	if err != nil {
		return fmt.Errorf("insert failure record: %w", err)
	}
	return nil
}

// Recent returns up to limit failure records, newest first.
func (s *FailureStore) Recent(ctx context.Context, limit int) ([]FailureRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, session_id, prompt_hash, kind, message, attempts
		 FROM generation_failures
		 ORDER BY timestamp DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent failures: %w", err)
	}
	defer rows.Close()

	var records []FailureRecord
	for rows.Next() {
		var rec FailureRecord
		var ts string
		if err := rows.Scan(&rec.ID, &ts, &rec.SessionID, &rec.PromptHash, &rec.Kind, &rec.Message, &rec.Attempts); err != nil {
			return nil, fmt.Errorf("scan failure record: %w", err)
		}
		rec.Timestamp, _ = time.Parse(time.RFC3339, ts)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountSince returns how many failures were recorded at or after t.
func (s *FailureStore) CountSince(ctx context.Context, t time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM generation_failures WHERE timestamp >= ?`,
		t.UTC().Format(time.RFC3339)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count failures: %w", err)
	}
	return count, nil
}

// PromptHash fingerprints a prompt for failure correlation without
// storing the prompt text itself.
func PromptHash(prompt string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(prompt))
}
