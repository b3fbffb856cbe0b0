package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(NewMemoryBackend())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func grounding() Message {
	return NewMessage(RoleSystem, KindGrounding, "You are a financial analyst.")
}

func TestEnsureInitializedIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.EnsureInitialized(ctx, "u1", grounding())
	if err != nil {
		t.Fatalf("EnsureInitialized() error = %v", err)
	}
	if !created {
		t.Error("first EnsureInitialized() should report created")
	}

	created, err = s.EnsureInitialized(ctx, "u1", NewMessage(RoleSystem, KindGrounding, "different text"))
	if err != nil {
		t.Fatalf("second EnsureInitialized() error = %v", err)
	}
	if created {
		t.Error("second EnsureInitialized() should be a no-op")
	}

	msgs, err := s.Read(ctx, "u1")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("len(Read()) = %d, want 1", len(msgs))
	}
	if msgs[0].Role != RoleSystem || msgs[0].Kind != KindGrounding {
		t.Errorf("leading message = %+v, want system grounding", msgs[0])
	}
	if msgs[0].Content != "You are a financial analyst." {
		t.Errorf("grounding content replaced: %q", msgs[0].Content)
	}
	if msgs[0].ID == "" || msgs[0].CreatedAt.IsZero() {
		t.Error("grounding message should be stamped with ID and time")
	}
}

func TestEnsureInitializedConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			created, err := s.EnsureInitialized(ctx, "race", grounding())
			if err != nil {
				t.Errorf("EnsureInitialized() error = %v", err)
				return
			}
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if createdCount != 1 {
		t.Errorf("created %d times, want exactly 1", createdCount)
	}
	n, _ := s.Len(ctx, "race")
	if n != 1 {
		t.Errorf("Len() = %d, want 1", n)
	}
}

func TestEnsureInitializedValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		identity string
		msg      Message
		wantErr  error
	}{
		{"empty identity", "", grounding(), ErrEmptyIdentity},
		{"blank identity", "   ", grounding(), ErrEmptyIdentity},
		{"user role grounding", "u1", NewMessage(RoleUser, KindGrounding, "x"), ErrInvalidMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.EnsureInitialized(ctx, tt.identity, tt.msg)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("EnsureInitialized() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAppendRequiresConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Append(ctx, "ghost", NewMessage(RoleUser, KindTurn, "hello"))
	if !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("Append() error = %v, want %v", err, ErrConversationNotFound)
	}

	if _, err := s.EnsureInitialized(ctx, "u1", grounding()); err != nil {
		t.Fatal(err)
	}
	_, err = s.Append(ctx, "u1", Message{Role: "tool", Content: "x"})
	if !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("Append() with bad role error = %v, want %v", err, ErrInvalidMessage)
	}
}

func TestAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.EnsureInitialized(ctx, "u1", grounding()); err != nil {
		t.Fatal(err)
	}

	var previous []Message
	for i := 0; i < 5; i++ {
		_, err := s.Append(ctx, "u1",
			NewMessage(RoleUser, KindTurn, fmt.Sprintf("q%d", i)),
			NewMessage(RoleAssistant, KindTurn, fmt.Sprintf("a%d", i)),
		)
		if err != nil {
			t.Fatalf("Append() error = %v", err)
		}

		current, err := s.Read(ctx, "u1")
		if err != nil {
			t.Fatal(err)
		}
		if len(current) < len(previous) {
			t.Fatalf("history shrank from %d to %d", len(previous), len(current))
		}
		for j := range previous {
			if current[j] != previous[j] {
				t.Fatalf("message %d changed: %+v -> %+v", j, previous[j], current[j])
			}
		}
		previous = current
	}

	if len(previous) != 11 {
		t.Errorf("final length = %d, want 11", len(previous))
	}
}

func TestReadUnknownIdentity(t *testing.T) {
	s := newTestStore(t)

	msgs, err := s.Read(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Errorf("Read() = %v, want empty non-nil slice", msgs)
	}
}

func TestReadReturnsCopy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.EnsureInitialized(ctx, "u1", grounding()); err != nil {
		t.Fatal(err)
	}
	msgs, _ := s.Read(ctx, "u1")
	msgs[0].Content = "tampered"

	again, _ := s.Read(ctx, "u1")
	if again[0].Content == "tampered" {
		t.Error("Read() exposed internal storage")
	}
}

func TestReadRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.EnsureInitialized(ctx, "u1", grounding()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if _, err := s.Append(ctx, "u1", NewMessage(RoleUser, KindTurn, fmt.Sprintf("m%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name      string
		n         int
		wantLen   int
		wantFirst string
	}{
		{"last two", 2, 2, "m2"},
		{"exact length", 5, 5, "You are a financial analyst."},
		{"more than length", 50, 5, "You are a financial analyst."},
		{"zero means all", 0, 5, "You are a financial analyst."},
		{"negative means all", -1, 5, "You are a financial analyst."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ReadRecent(ctx, "u1", tt.n)
			if err != nil {
				t.Fatalf("ReadRecent() error = %v", err)
			}
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tt.wantLen)
			}
			if got[0].Content != tt.wantFirst {
				t.Errorf("first = %q, want %q", got[0].Content, tt.wantFirst)
			}
		})
	}

	if n, _ := s.Len(ctx, "u1"); n != 5 {
		t.Errorf("ReadRecent() mutated the conversation: Len() = %d", n)
	}
}

func TestRollback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.EnsureInitialized(ctx, "u1", grounding()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Append(ctx, "u1", NewMessage(RoleUser, KindAnnouncement, "data")); err != nil {
		t.Fatal(err)
	}

	if err := s.Rollback(ctx, "u1", 1); err != nil {
		t.Fatalf("Rollback() error = %v", err)
	}
	if n, _ := s.Len(ctx, "u1"); n != 1 {
		t.Errorf("Len() after rollback = %d, want 1", n)
	}

	if err := s.Rollback(ctx, "u1", 0); err != nil {
		t.Fatalf("Rollback(0) error = %v", err)
	}
	if ok, _ := s.Exists(ctx, "u1"); ok {
		t.Error("Rollback(0) should remove the conversation")
	}
}

func TestStoreClosed(t *testing.T) {
	s := NewStore(NewMemoryBackend())
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	_, err := s.EnsureInitialized(context.Background(), "u1", grounding())
	if !errors.Is(err, ErrStorageClosed) {
		t.Errorf("EnsureInitialized() after close error = %v, want %v", err, ErrStorageClosed)
	}
}

func TestCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := s.EnsureInitialized(ctx, id, grounding()); err != nil {
			t.Fatal(err)
		}
	}
	n, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3", n)
	}
}
