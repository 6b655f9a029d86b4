package generate

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func testFailureStore(t *testing.T) *FailureStore {
	t.Helper()
	s, err := NewFailureStore(filepath.Join(t.TempDir(), "failures.db"))
	if err != nil {
		t.Fatalf("NewFailureStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestFailureStore_RecordAndRecent(t *testing.T) {
	s := testFailureStore(t)
	ctx := context.Background()

	recs := []FailureRecord{
		{SessionID: "s1", PromptHash: PromptHash("p1"), Kind: KindTimeout, Message: "deadline exceeded", Attempts: 3, Timestamp: time.Now().Add(-time.Hour)},
		{SessionID: "s2", PromptHash: PromptHash("p2"), Kind: KindAuth, Message: "401", Attempts: 1, Timestamp: time.Now()},
	}
	for _, rec := range recs {
		if err := s.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("records = %d, want 2", len(got))
	}
	// Newest first.
	if got[0].SessionID != "s2" || got[1].SessionID != "s1" {
		t.Errorf("order = %s, %s; want s2, s1", got[0].SessionID, got[1].SessionID)
	}
	if got[0].ID == "" {
		t.Error("record ID not generated")
	}
	if got[1].Kind != KindTimeout || got[1].Attempts != 3 {
		t.Errorf("record fields did not round-trip: %+v", got[1])
	}
}

func TestFailureStore_RecentLimit(t *testing.T) {
	s := testFailureStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := s.Record(ctx, FailureRecord{PromptHash: "h", Kind: KindGeneric, Message: "x", Attempts: 1}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("records = %d, want limit of 3", len(got))
	}
}

func TestFailureStore_CountSince(t *testing.T) {
	s := testFailureStore(t)
	ctx := context.Background()

	old := FailureRecord{PromptHash: "h", Kind: KindGeneric, Message: "old", Attempts: 1, Timestamp: time.Now().Add(-48 * time.Hour)}
	fresh := FailureRecord{PromptHash: "h", Kind: KindGeneric, Message: "fresh", Attempts: 1, Timestamp: time.Now()}
	for _, rec := range []FailureRecord{old, fresh} {
		if err := s.Record(ctx, rec); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	n, err := s.CountSince(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CountSince: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestPromptHash_Stable(t *testing.T) {
	if PromptHash("same") != PromptHash("same") {
		t.Error("hash not deterministic")
	}
	if PromptHash("a") == PromptHash("b") {
		t.Error("distinct prompts collided")
	}
}
