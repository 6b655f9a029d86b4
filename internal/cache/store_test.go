package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/blueprintlab/blueprintd/internal/session"
)

func testCache(t *testing.T, retentionDays int, enabled bool) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	s, err := NewStore(dbPath, retentionDays, enabled, nil)
	if err != nil {
		t.Fatalf("NewStore(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testIntake() session.Intake {
	return session.Intake{
		Goal:       "automate invoicing",
		Workflow:   "manual PDF entry",
		Tools:      "Xero",
		PainPoints: "slow",
	}
}

func testPayload() *Payload {
	return &Payload{
		Content:       "## Blueprint\n\nAutomate the intake.",
		Summary:       "Automate the intake.",
		DiagramMarkup: "flowchart TD\n    S0([Start])",
		StepsCount:    4,
		Model:         "gpt-4o",
		TokensUsed:    165,
		GeneratedAt:   time.Now().UTC(),
	}
}

func TestRoundTrip(t *testing.T) {
	s := testCache(t, 7, true)
	ctx := context.Background()
	intake := testIntake()
	p := testPayload()

	if err := s.Put(ctx, intake, p, Options{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := s.Lookup(ctx, intake, Options{})
	if !ok {
		t.Fatal("Lookup missed a freshly stored entry")
	}
	if got.Content != p.Content {
		t.Errorf("Content = %q, want %q", got.Content, p.Content)
	}
	if got.Summary != p.Summary || got.DiagramMarkup != p.DiagramMarkup {
		t.Error("payload fields did not round-trip")
	}
	if got.StepsCount != 4 || got.TokensUsed != 165 {
		t.Errorf("counts = %d/%d, want 4/165", got.StepsCount, got.TokensUsed)
	}
}

func TestLookup_MissOnUnknownIntake(t *testing.T) {
	s := testCache(t, 7, true)
	if _, ok := s.Lookup(context.Background(), testIntake(), Options{}); ok {
		t.Error("Lookup hit on an empty cache")
	}
}

func TestExpiry(t *testing.T) {
	s := testCache(t, 7, true)
	ctx := context.Background()
	intake := testIntake()

	base := time.Now()
	s.now = func() time.Time { return base }

	if err := s.Put(ctx, intake, testPayload(), Options{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// One second short of the window: still live.
	s.now = func() time.Time { return base.Add(7*24*time.Hour - time.Second) }
	if _, ok := s.Lookup(ctx, intake, Options{}); !ok {
		t.Error("entry expired before the retention window elapsed")
	}

	// At the window boundary: logically absent, even though unpurged.
	s.now = func() time.Time { return base.Add(7 * 24 * time.Hour) }
	if _, ok := s.Lookup(ctx, intake, Options{}); ok {
		t.Error("expired entry still served")
	}
}

func TestPurgeExpired(t *testing.T) {
	s := testCache(t, 7, true)
	ctx := context.Background()

	base := time.Now()
	s.now = func() time.Time { return base }
	if err := s.Put(ctx, testIntake(), testPayload(), Options{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	s.now = func() time.Time { return base.Add(8 * 24 * time.Hour) }
	n, err := s.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
}

func TestBypass(t *testing.T) {
	s := testCache(t, 7, true)
	ctx := context.Background()
	intake := testIntake()

	// A bypassed store writes nothing.
	if err := s.Put(ctx, intake, testPayload(), Options{Bypass: true}); err != nil {
		t.Fatalf("Put(bypass): %v", err)
	}
	if _, ok := s.Lookup(ctx, intake, Options{}); ok {
		t.Error("bypassed Put still wrote an entry")
	}

	// A bypassed lookup skips an existing entry but does not delete it.
	if err := s.Put(ctx, intake, testPayload(), Options{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := s.Lookup(ctx, intake, Options{Bypass: true}); ok {
		t.Error("bypassed Lookup returned a hit")
	}
	if _, ok := s.Lookup(ctx, intake, Options{}); !ok {
		t.Error("bypass deleted the existing entry")
	}
}

func TestDisabled(t *testing.T) {
	s := testCache(t, 7, false)
	ctx := context.Background()
	intake := testIntake()

	if err := s.Put(ctx, intake, testPayload(), Options{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := s.Lookup(ctx, intake, Options{}); ok {
		t.Error("disabled cache served a hit")
	}
}

func TestStats(t *testing.T) {
	s := testCache(t, 7, true)
	ctx := context.Background()

	stats := s.Stats()
	if stats.Entries != 0 || !stats.Enabled || stats.RetentionDays != 7 {
		t.Errorf("Stats = %+v", stats)
	}

	if err := s.Put(ctx, testIntake(), testPayload(), Options{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got := s.Stats().Entries; got != 1 {
		t.Errorf("Entries = %d, want 1", got)
	}
}

func TestPut_Overwrites(t *testing.T) {
	s := testCache(t, 7, true)
	ctx := context.Background()
	intake := testIntake()

	first := testPayload()
	if err := s.Put(ctx, intake, first, Options{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	second := testPayload()
	second.Content = "## Blueprint v2"
	if err := s.Put(ctx, intake, second, Options{}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := s.Lookup(ctx, intake, Options{})
	if !ok {
		t.Fatal("Lookup missed")
	}
	if got.Content != "## Blueprint v2" {
		t.Errorf("Content = %q, want last write", got.Content)
	}
}
