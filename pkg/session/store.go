package session

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	// ErrConversationNotFound is returned when an identity has no conversation.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrConversationExists is returned by Create for a known identity.
	ErrConversationExists = errors.New("conversation already exists")
	// ErrStorageClosed is returned when operating on a closed storage backend.
	ErrStorageClosed = errors.New("storage backend is closed")
	// ErrEmptyIdentity is returned when an operation is given a blank identity.
	ErrEmptyIdentity = errors.New("identity is empty")
	// ErrInvalidMessage is returned when a message has an unknown role.
	ErrInvalidMessage = errors.New("invalid message")
)

// StorageBackend abstracts where conversations live.
// Implementations must be safe for concurrent use.
type StorageBackend interface {
	// Exists reports whether a conversation exists for identity.
	Exists(ctx context.Context, identity string) (bool, error)

	// Create creates a conversation holding the given first messages.
	// Returns ErrConversationExists if one already exists.
	Create(ctx context.Context, identity string, first []Message) error

	// AppendEntries adds messages to the end of a conversation.
	// Returns ErrConversationNotFound if the conversation doesn't exist.
	AppendEntries(ctx context.Context, identity string, msgs []Message) error

	// LoadEntries returns a copy of all messages in order.
	// Returns ErrConversationNotFound if the conversation doesn't exist.
	LoadEntries(ctx context.Context, identity string) ([]Message, error)

	// LoadMetadata returns the conversation summary.
	LoadMetadata(ctx context.Context, identity string) (*Metadata, error)

	// Truncate shortens a conversation to n messages, deleting it when n is 0.
	// It exists only so callers can undo their own appends inside a failed
	// atomic section and must never be used to rewrite history.
	Truncate(ctx context.Context, identity string, n int) error

	// Identities lists known identities.
	Identities(ctx context.Context) ([]string, error)

	// Close releases any resources held by the backend.
	Close() error
}
