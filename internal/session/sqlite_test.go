package session

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "sessions_test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%q): %v", dbPath, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSession() *Session {
	return &Session{
		Persona: "operations",
		Email:   "ops@example.com",
		Intake: Intake{
			Goal:       "automate invoicing",
			Workflow:   "manual PDF entry",
			Tools:      "Xero",
			PainPoints: "slow",
		},
		State: "clarification",
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sess := testSession()
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("CreateSession did not assign an ID")
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Intake != sess.Intake {
		t.Errorf("Intake = %+v, want %+v", got.Intake, sess.Intake)
	}
	if got.State != "clarification" {
		t.Errorf("State = %q", got.State)
	}
	if got.Persona != "operations" {
		t.Errorf("Persona = %q", got.Persona)
	}
	if got.Email != "ops@example.com" {
		t.Errorf("Email = %q", got.Email)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetSession(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestUpdateSession(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sess := testSession()
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	created := sess.UpdatedAt

	sess.State = "upsell"
	sess.Metadata = map[string]string{"generation_started_at": "2026-08-28T10:00:00Z"}
	if err := s.UpdateSession(ctx, sess); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.State != "upsell" {
		t.Errorf("State = %q, want upsell", got.State)
	}
	if got.Metadata["generation_started_at"] == "" {
		t.Error("metadata not persisted")
	}
	if got.UpdatedAt.Before(created) {
		t.Errorf("UpdatedAt went backwards: %v < %v", got.UpdatedAt, created)
	}
}

func TestUpdateSession_NotFound(t *testing.T) {
	s := testStore(t)
	sess := testSession()
	sess.ID = "missing"
	if err := s.UpdateSession(context.Background(), sess); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestAddMessage_OrderPreserved(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sess := testSession()
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	contents := []string{"first", "second", "third"}
	senders := []string{SenderUser, SenderAssistant, SenderUser}
	for i := range contents {
		msg := &Message{
			SessionID: sess.ID,
			Sender:    senders[i],
			Content:   contents[i],
			Timestamp: time.Now().Add(time.Duration(i) * time.Millisecond),
		}
		if err := s.AddMessage(ctx, msg); err != nil {
			t.Fatalf("AddMessage(%d): %v", i, err)
		}
	}

	msgs, err := s.GetMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	for i, m := range msgs {
		if m.Content != contents[i] {
			t.Errorf("msgs[%d].Content = %q, want %q", i, m.Content, contents[i])
		}
	}
}

func TestAddMessage_Validation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sess := testSession()
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	tests := []struct {
		name    string
		msg     Message
		wantErr error
	}{
		{"empty content", Message{SessionID: sess.ID, Sender: SenderUser, Content: ""}, ErrEmptyMessage},
		{"too long", Message{SessionID: sess.ID, Sender: SenderUser, Content: strings.Repeat("x", MaxMessageLen+1)}, ErrMessageTooLong},
		{"bad sender", Message{SessionID: sess.ID, Sender: "robot", Content: "hi"}, ErrInvalidSender},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			if err := s.AddMessage(ctx, &msg); !errors.Is(err, tt.wantErr) {
				t.Errorf("AddMessage error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnrichMessage(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sess := testSession()
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	msg := &Message{
		SessionID: sess.ID,
		Sender:    SenderAssistant,
		Content:   "Which tools do you use today?",
		Metadata:  map[string]string{"type": "question"},
	}
	if err := s.AddMessage(ctx, msg); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	if err := s.EnrichMessage(ctx, msg.ID, map[string]string{"upsell": "consultation"}); err != nil {
		t.Fatalf("EnrichMessage: %v", err)
	}

	msgs, err := s.GetMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	got := msgs[0]
	if got.Content != "Which tools do you use today?" {
		t.Errorf("content changed: %q", got.Content)
	}
	if got.Metadata["type"] != "question" || got.Metadata["upsell"] != "consultation" {
		t.Errorf("metadata = %v, want merged keys", got.Metadata)
	}
}

func TestEnrichMessage_NotFound(t *testing.T) {
	s := testStore(t)
	err := s.EnrichMessage(context.Background(), "missing", map[string]string{"k": "v"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestStats(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sess := testSession()
	if err := s.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	msg := &Message{SessionID: sess.ID, Sender: SenderUser, Content: "hello"}
	if err := s.AddMessage(ctx, msg); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	stats := s.Stats()
	if stats["sessions"] != 1 {
		t.Errorf("sessions = %v, want 1", stats["sessions"])
	}
	if stats["messages"] != 1 {
		t.Errorf("messages = %v, want 1", stats["messages"])
	}
}
