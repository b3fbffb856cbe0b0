// Package handlers implements the HTTP entrypoints.
package handlers

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aixgo-dev/fincontext/internal/conversation"
	"github.com/aixgo-dev/fincontext/internal/identity"
	"github.com/aixgo-dev/fincontext/pkg/dataset"
	"github.com/aixgo-dev/fincontext/pkg/session"
)

// ConversationService is what the handlers need from the conversation
// core. *conversation.Service implements it.
type ConversationService interface {
	Converse(ctx context.Context, identity, utterance string) (*conversation.Reply, error)
	Ingest(ctx context.Context, identity string, ds *dataset.Dataset) (*conversation.IngestResult, error)
	Dataset(ctx context.Context, identity string) (*dataset.Dataset, error)
	History(ctx context.Context, identity string, n int) ([]session.Message, int, error)
}

// Limits bounds request handling.
type Limits struct {
	// MaxUploadBytes caps the uploaded file size.
	MaxUploadBytes int64
	// MaxRows caps the data rows of an upload.
	MaxRows int
	// DefaultHistory is the history page size when no limit is given.
	DefaultHistory int
	// MaxHistory caps the history page size.
	MaxHistory int
}

// Provider wires all HTTP handlers for dependency injection.
type Provider struct {
	Upload  *UploadHandler
	Chat    *ChatHandler
	Session *SessionHandler
}

// NewProvider constructs the handler provider.
func NewProvider(service ConversationService, limits Limits, log zerolog.Logger) *Provider {
	resolver := identity.NewResolver()
	return &Provider{
		Upload:  NewUploadHandler(service, resolver, limits, log),
		Chat:    NewChatHandler(service, resolver, log),
		Session: NewSessionHandler(service, resolver, limits, log),
	}
}
