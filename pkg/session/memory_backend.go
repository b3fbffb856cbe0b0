package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryBackend implements StorageBackend in process memory.
// Conversations live until the process exits.
type MemoryBackend struct {
	mu            sync.RWMutex
	conversations map[string]*memoryConversation
	closed        bool
	now           func() time.Time
}

type memoryConversation struct {
	meta     Metadata
	messages []Message
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		conversations: make(map[string]*memoryConversation),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Exists reports whether a conversation exists for identity.
func (b *MemoryBackend) Exists(_ context.Context, identity string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false, ErrStorageClosed
	}
	_, ok := b.conversations[identity]
	return ok, nil
}

// Create creates a conversation holding the given first messages.
func (b *MemoryBackend) Create(_ context.Context, identity string, first []Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrStorageClosed
	}
	if _, ok := b.conversations[identity]; ok {
		return ErrConversationExists
	}

	now := b.now()
	conv := &memoryConversation{
		meta: Metadata{
			Identity:  identity,
			CreatedAt: now,
			UpdatedAt: now,
		},
		messages: make([]Message, 0, len(first)+4),
	}
	conv.messages = append(conv.messages, first...)
	conv.meta.MessageCount = len(conv.messages)
	b.conversations[identity] = conv

	return nil
}

// AppendEntries adds messages to the end of a conversation.
func (b *MemoryBackend) AppendEntries(_ context.Context, identity string, msgs []Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrStorageClosed
	}
	conv, ok := b.conversations[identity]
	if !ok {
		return ErrConversationNotFound
	}

	conv.messages = append(conv.messages, msgs...)
	conv.meta.MessageCount = len(conv.messages)
	conv.meta.UpdatedAt = b.now()

	return nil
}

// LoadEntries returns a copy of all messages in order.
func (b *MemoryBackend) LoadEntries(_ context.Context, identity string) ([]Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrStorageClosed
	}
	conv, ok := b.conversations[identity]
	if !ok {
		return nil, ErrConversationNotFound
	}

	out := make([]Message, len(conv.messages))
	copy(out, conv.messages)
	return out, nil
}

// LoadMetadata returns the conversation summary.
func (b *MemoryBackend) LoadMetadata(_ context.Context, identity string) (*Metadata, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrStorageClosed
	}
	conv, ok := b.conversations[identity]
	if !ok {
		return nil, ErrConversationNotFound
	}

	meta := conv.meta
	return &meta, nil
}

// Truncate shortens a conversation to n messages, deleting it when n is 0.
func (b *MemoryBackend) Truncate(_ context.Context, identity string, n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrStorageClosed
	}
	conv, ok := b.conversations[identity]
	if !ok {
		return ErrConversationNotFound
	}
	if n < 0 || n > len(conv.messages) {
		return fmt.Errorf("truncate %q to %d: out of range (have %d)", identity, n, len(conv.messages))
	}

	if n == 0 {
		delete(b.conversations, identity)
		return nil
	}

	// Zero the tail so dropped messages can be collected.
	for i := n; i < len(conv.messages); i++ {
		conv.messages[i] = Message{}
	}
	conv.messages = conv.messages[:n]
	conv.meta.MessageCount = n
	conv.meta.UpdatedAt = b.now()

	return nil
}

// Identities lists known identities in sorted order.
func (b *MemoryBackend) Identities(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrStorageClosed
	}

	ids := make([]string, 0, len(b.conversations))
	for id := range b.conversations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close releases the stored conversations.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.conversations = nil
	return nil
}
