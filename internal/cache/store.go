package cache

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/blueprintlab/blueprintd/internal/session"
)

// Payload is a cached blueprint generation result.
type Payload struct {
	Content       string    `json:"content"`
	Summary       string    `json:"summary"`
	DiagramMarkup string    `json:"diagram_markup"`
	StepsCount    int       `json:"steps_count"`
	Model         string    `json:"model"`
	TokensUsed    int       `json:"tokens_used"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// Options modifies a single lookup/store call.
type Options struct {
	// Bypass skips both read and write for this call. Existing entries
	// are left untouched. Intended for privileged/testing callers.
	Bypass bool
}

// Stats is the cache statistics surface.
type Stats struct {
	Entries       int  `json:"entries"`
	RetentionDays int  `json:"retention_days"`
	Enabled       bool `json:"enabled"`
}

// Store is a SQLite-backed blueprint cache with a fixed retention window.
// Entries past expiry are logically absent whether or not they have been
// physically purged. Lookup and Put are safe on a nil *Store (always a
// miss, never a write), so callers can run cacheless without guards.
type Store struct {
	db        *sql.DB
	retention time.Duration
	enabled   bool
	logger    *slog.Logger

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewStore opens (or creates) the cache database at dbPath.
// retentionDays controls how long entries stay live after store time.
func NewStore(dbPath string, retentionDays int, enabled bool, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if retentionDays <= 0 {
		retentionDays = 7
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	s := &Store{
		db:        db,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		enabled:   enabled,
		logger:    logger.With("component", "cache"),
		now:       time.Now,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache schema: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS blueprint_cache (
		fingerprint TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		summary TEXT NOT NULL,
		diagram_markup TEXT NOT NULL,
		steps_count INTEGER NOT NULL,
		model TEXT NOT NULL,
		tokens_used INTEGER NOT NULL,
		generated_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_cache_expires ON blueprint_cache(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the cached payload for an intake, or (nil, false) on a
// miss. Disabled caching, a bypass call, an absent entry, and an expired
// entry all look identical to the caller: a miss.
func (s *Store) Lookup(ctx context.Context, intake session.Intake, opts Options) (*Payload, bool) {
	if s == nil || !s.enabled || opts.Bypass {
		return nil, false
	}

	fp := Fingerprint(intake)
	row := s.db.QueryRowContext(ctx, `
		SELECT content, summary, diagram_markup, steps_count, model, tokens_used, generated_at
		FROM blueprint_cache
		WHERE fingerprint = ? AND expires_at > ?
	`, fp, s.now())

	var p Payload
	err := row.Scan(&p.Content, &p.Summary, &p.DiagramMarkup, &p.StepsCount, &p.Model, &p.TokensUsed, &p.GeneratedAt)
	if err == sql.ErrNoRows {
		s.logger.Debug("cache miss", "fingerprint", fp)
		return nil, false
	}
	if err != nil {
		// Read failures are treated as misses; generation proceeds.
		s.logger.Warn("cache read failed", "fingerprint", fp, "error", err)
		return nil, false
	}

	s.logger.Debug("cache hit", "fingerprint", fp)
	return &p, true
}

// Put stores a payload under the intake's fingerprint with a fresh
// retention window. Concurrent writers race last-write-wins; that is the
// documented contract, not a bug. The caller treats errors as non-fatal.
func (s *Store) Put(ctx context.Context, intake session.Intake, p *Payload, opts Options) error {
	if s == nil || !s.enabled || opts.Bypass {
		return nil
	}

	fp := Fingerprint(intake)
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO blueprint_cache
			(fingerprint, content, summary, diagram_markup, steps_count, model, tokens_used, generated_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, fp, p.Content, p.Summary, p.DiagramMarkup, p.StepsCount, p.Model, p.TokensUsed, p.GeneratedAt, now.Add(s.retention))
	if err != nil {
		return fmt.Errorf("store cache entry: %w", err)
	}

	s.logger.Debug("cache store", "fingerprint", fp)
	return nil
}

// PurgeExpired physically removes entries past expiry and returns how
// many were deleted. Lookup correctness never depends on this running;
// it only reclaims space.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blueprint_cache WHERE expires_at <= ?`, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge cache: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("purged expired cache entries", "count", n)
	}
	return n, nil
}

// Stats returns the live-entry count and configuration surface.
func (s *Store) Stats() Stats {
	var count int
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM blueprint_cache WHERE expires_at > ?`, s.now()).Scan(&count)

	return Stats{
		Entries:       count,
		RetentionDays: int(s.retention / (24 * time.Hour)),
		Enabled:       s.enabled,
	}
}
