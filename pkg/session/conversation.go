package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is the conversation store: one ordered, append-only message log
// per identity. Store is safe for concurrent use; ordering between callers
// that touch the same identity is the caller's responsibility.
type Store struct {
	backend StorageBackend
	now     func() time.Time
	newID   func() string
}

// NewStore creates a conversation store over backend.
func NewStore(backend StorageBackend) *Store {
	return &Store{
		backend: backend,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.New().String() },
	}
}

// EnsureInitialized creates the conversation for identity with grounding as
// its single leading message. If the conversation already exists it does
// nothing and reports created=false; the grounding message is never
// inserted twice.
func (s *Store) EnsureInitialized(ctx context.Context, identity string, grounding Message) (bool, error) {
	if err := checkIdentity(identity); err != nil {
		return false, err
	}
	if grounding.Role != RoleSystem {
		return false, fmt.Errorf("%w: grounding message must have role %q, got %q", ErrInvalidMessage, RoleSystem, grounding.Role)
	}
	if grounding.Kind == "" {
		grounding.Kind = KindGrounding
	}

	exists, err := s.backend.Exists(ctx, identity)
	if err != nil {
		return false, fmt.Errorf("check conversation: %w", err)
	}
	if exists {
		return false, nil
	}

	err = s.backend.Create(ctx, identity, []Message{s.stamp(grounding)})
	if errors.Is(err, ErrConversationExists) {
		// Lost a race with another initializer; the winner's grounding stands.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create conversation: %w", err)
	}
	return true, nil
}

// Append adds messages to the end of the identity's conversation and returns
// them with IDs and timestamps assigned.
func (s *Store) Append(ctx context.Context, identity string, msgs ...Message) ([]Message, error) {
	if err := checkIdentity(identity); err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	stamped := make([]Message, len(msgs))
	for i, m := range msgs {
		if !m.Role.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, m.Role)
		}
		stamped[i] = s.stamp(m)
	}

	if err := s.backend.AppendEntries(ctx, identity, stamped); err != nil {
		return nil, fmt.Errorf("append messages: %w", err)
	}
	return stamped, nil
}

// Read returns the full conversation. An unknown identity yields an empty
// slice and no error.
func (s *Store) Read(ctx context.Context, identity string) ([]Message, error) {
	msgs, err := s.backend.LoadEntries(ctx, identity)
	if errors.Is(err, ErrConversationNotFound) {
		return []Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return msgs, nil
}

// ReadRecent returns the last n messages, or all of them when n <= 0 or the
// conversation is shorter. The stored conversation is not modified.
func (s *Store) ReadRecent(ctx context.Context, identity string, n int) ([]Message, error) {
	msgs, err := s.Read(ctx, identity)
	if err != nil {
		return nil, err
	}
	if n <= 0 || n >= len(msgs) {
		return msgs, nil
	}
	return msgs[len(msgs)-n:], nil
}

// Exists reports whether identity has a conversation.
func (s *Store) Exists(ctx context.Context, identity string) (bool, error) {
	return s.backend.Exists(ctx, identity)
}

// Len returns the number of messages for identity, 0 when unknown.
func (s *Store) Len(ctx context.Context, identity string) (int, error) {
	meta, err := s.backend.LoadMetadata(ctx, identity)
	if errors.Is(err, ErrConversationNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return meta.MessageCount, nil
}

// Metadata returns the conversation summary for identity.
func (s *Store) Metadata(ctx context.Context, identity string) (*Metadata, error) {
	return s.backend.LoadMetadata(ctx, identity)
}

// Rollback truncates identity's conversation back to n messages.
// Only undo appends made inside the caller's own exclusive section.
func (s *Store) Rollback(ctx context.Context, identity string, n int) error {
	return s.backend.Truncate(ctx, identity, n)
}

// Count returns the number of live conversations.
func (s *Store) Count(ctx context.Context) (int, error) {
	ids, err := s.backend.Identities(ctx)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) stamp(m Message) Message {
	m.ID = s.newID()
	m.CreatedAt = s.now()
	if m.Kind == "" {
		m.Kind = KindTurn
	}
	return m
}

func checkIdentity(identity string) error {
	if strings.TrimSpace(identity) == "" {
		return ErrEmptyIdentity
	}
	return nil
}
