package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aixgo-dev/fincontext/internal/grounding"
	"github.com/aixgo-dev/fincontext/internal/llm/provider"
	"github.com/aixgo-dev/fincontext/internal/observability"
	"github.com/aixgo-dev/fincontext/pkg/dataset"
	metrics "github.com/aixgo-dev/fincontext/pkg/observability"
	"github.com/aixgo-dev/fincontext/pkg/session"
)

const (
	defaultModel       = "gpt-4"
	defaultTemperature = 0.7
	defaultMaxTokens   = 1000
)

// Reply is the outcome of a successful turn.
type Reply struct {
	Identity string
	Content  string
	Model    string
	Usage    provider.Usage
}

// IngestResult describes a stored dataset.
type IngestResult struct {
	Identity string
	Rows     int
	Columns  []string
	// Created is true when the ingestion started the conversation.
	Created bool
	// Summarised is true when the dataset exceeds the inline token budget.
	Summarised bool
}

// Service runs conversation turns and dataset ingestion.
type Service struct {
	registry    *Registry
	injector    *grounding.Injector
	provider    provider.Provider
	model       string
	temperature float64
	maxTokens   int
	autoInit    bool
	log         zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithModel sets the model passed to the provider.
func WithModel(model string) Option {
	return func(s *Service) {
		if model != "" {
			s.model = model
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(s *Service) { s.temperature = t }
}

// WithMaxTokens caps the reply length. Zero leaves it to the provider.
func WithMaxTokens(n int) Option {
	return func(s *Service) { s.maxTokens = n }
}

// WithAutoInit makes Converse start a grounded conversation for an unknown
// identity instead of failing with ErrNoSession.
func WithAutoInit(enabled bool) Option {
	return func(s *Service) { s.autoInit = enabled }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log.With().Str("component", "conversation").Logger() }
}

// NewService creates a service. A nil injector gets the default one.
func NewService(reg *Registry, inj *grounding.Injector, p provider.Provider, opts ...Option) *Service {
	if inj == nil {
		inj = grounding.NewInjector(grounding.Config{})
	}
	s := &Service{
		registry:    reg,
		injector:    inj,
		provider:    p,
		model:       defaultModel,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Converse runs one chat turn for identity. It appends the user message,
// re-injects the dataset as a reminder, asks the provider for a reply and
// appends it. The whole turn holds the identity's exclusive section.
func (s *Service) Converse(ctx context.Context, identity, utterance string) (*Reply, error) {
	if strings.TrimSpace(identity) == "" {
		metrics.RecordTurn(metrics.OutcomeInvalid)
		return nil, ErrInvalidIdentity
	}
	if strings.TrimSpace(utterance) == "" {
		metrics.RecordTurn(metrics.OutcomeInvalid)
		return nil, ErrEmptyMessage
	}

	ctx, span := observability.StartSpan(ctx, "conversation.converse", map[string]any{
		"identity": identity,
	})
	defer span.End()

	unlock := s.registry.Lock(identity)
	defer unlock()

	convs := s.registry.Conversations()
	exists, err := convs.Exists(ctx, identity)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("check conversation: %w", err)
	}
	if !exists {
		if !s.autoInit {
			metrics.RecordTurn(metrics.OutcomeNoSession)
			return nil, ErrNoSession
		}
		if _, err := convs.EnsureInitialized(ctx, identity, s.injector.GroundingMessage()); err != nil {
			span.SetError(err)
			return nil, fmt.Errorf("initialize conversation: %w", err)
		}
		s.log.Debug().Str("identity", identity).Msg("conversation auto-initialized")
	}

	ds, hasData := s.registry.Datasets().Get(identity)
	reminders, err := s.injector.Reminder(ds)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("build reminder: %w", err)
	}
	span.SetAttribute("dataset.present", hasData)

	pending := append([]session.Message{
		session.NewMessage(session.RoleUser, session.KindTurn, utterance),
	}, reminders...)
	if _, err := convs.Append(ctx, identity, pending...); err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("append user message: %w", err)
	}

	history, err := convs.Read(ctx, identity)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("read conversation: %w", err)
	}

	resp, err := s.provider.CreateCompletion(ctx, provider.CompletionRequest{
		Messages:    toProviderMessages(history),
		Model:       s.model,
		Temperature: s.temperature,
		MaxTokens:   s.maxTokens,
	})
	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = errors.New("empty completion")
	}
	if err != nil {
		span.SetError(err)
		metrics.RecordTurn(metrics.OutcomeFailed)
		s.log.Warn().Err(err).Str("identity", identity).Int("messages", len(history)).Msg("completion failed")
		return nil, &CompletionFailedError{Identity: identity, Err: err}
	}

	reply := session.NewMessage(session.RoleAssistant, session.KindTurn, resp.Content)
	if _, err := convs.Append(ctx, identity, reply); err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("append assistant message: %w", err)
	}

	metrics.RecordTurn(metrics.OutcomeSuccess)
	s.log.Debug().
		Str("identity", identity).
		Int("messages", len(history)+1).
		Int("total_tokens", resp.Usage.TotalTokens).
		Msg("turn completed")

	model := resp.Model
	if model == "" {
		model = s.model
	}
	return &Reply{
		Identity: identity,
		Content:  resp.Content,
		Model:    model,
		Usage:    resp.Usage,
	}, nil
}

// Ingest stores ds as identity's dataset and records it in the
// conversation: the conversation is initialised if needed, the dataset
// replaces any prior one and an announcement message is appended. If the
// announcement cannot be recorded the prior state is restored.
func (s *Service) Ingest(ctx context.Context, identity string, ds *dataset.Dataset) (*IngestResult, error) {
	if strings.TrimSpace(identity) == "" {
		metrics.RecordIngest(metrics.OutcomeInvalid, 0)
		return nil, ErrInvalidIdentity
	}
	if ds == nil {
		metrics.RecordIngest(metrics.OutcomeInvalid, 0)
		return nil, ErrNilDataset
	}

	ctx, span := observability.StartSpan(ctx, "conversation.ingest", map[string]any{
		"identity": identity,
		"rows":     ds.Len(),
	})
	defer span.End()

	announcement, err := s.injector.Announcement(ds)
	if err != nil {
		span.SetError(err)
		metrics.RecordIngest(metrics.OutcomeFailed, 0)
		return nil, fmt.Errorf("build announcement: %w", err)
	}
	summarised, err := s.injector.Oversized(ds)
	if err != nil {
		span.SetError(err)
		metrics.RecordIngest(metrics.OutcomeFailed, 0)
		return nil, fmt.Errorf("measure dataset: %w", err)
	}

	unlock := s.registry.Lock(identity)
	defer unlock()

	convs := s.registry.Conversations()
	datasets := s.registry.Datasets()

	created, err := convs.EnsureInitialized(ctx, identity, s.injector.GroundingMessage())
	if err != nil {
		span.SetError(err)
		metrics.RecordIngest(metrics.OutcomeFailed, 0)
		return nil, fmt.Errorf("initialize conversation: %w", err)
	}

	prior, hadPrior := datasets.Get(identity)
	datasets.Put(identity, ds)

	if _, err := convs.Append(ctx, identity, announcement); err != nil {
		span.SetError(err)
		metrics.RecordIngest(metrics.OutcomeFailed, 0)
		return nil, s.rollbackIngest(ctx, identity, created, prior, hadPrior, err)
	}

	metrics.RecordIngest(metrics.OutcomeSuccess, ds.Len())
	if n, err := convs.Count(ctx); err == nil {
		metrics.SetLiveSessions(n)
	}
	s.log.Info().
		Str("identity", identity).
		Int("rows", ds.Len()).
		Bool("created", created).
		Bool("summarised", summarised).
		Msg("dataset ingested")

	return &IngestResult{
		Identity:   identity,
		Rows:       ds.Len(),
		Columns:    append([]string(nil), ds.Columns...),
		Created:    created,
		Summarised: summarised,
	}, nil
}

func (s *Service) rollbackIngest(ctx context.Context, identity string, created bool, prior *dataset.Dataset, hadPrior bool, cause error) error {
	datasets := s.registry.Datasets()
	if hadPrior {
		datasets.Put(identity, prior)
	} else {
		datasets.Delete(identity)
	}

	rolledBack := true
	if created {
		if err := s.registry.Conversations().Rollback(ctx, identity, 0); err != nil {
			rolledBack = false
			s.log.Error().Err(err).Str("identity", identity).Msg("failed to discard new conversation")
		}
	}

	s.log.Error().Err(cause).Str("identity", identity).Bool("rolled_back", rolledBack).Msg("ingestion failed")
	return &IngestionPartialFailureError{Identity: identity, RolledBack: rolledBack, Err: cause}
}

// Dataset returns identity's current dataset.
func (s *Service) Dataset(_ context.Context, identity string) (*dataset.Dataset, error) {
	ds, ok := s.registry.Datasets().Get(identity)
	if !ok {
		return nil, ErrUnknownIdentity
	}
	return ds, nil
}

// History returns the last n messages of identity's conversation, all of
// them when n <= 0.
func (s *Service) History(ctx context.Context, identity string, n int) ([]session.Message, int, error) {
	convs := s.registry.Conversations()
	exists, err := convs.Exists(ctx, identity)
	if err != nil {
		return nil, 0, err
	}
	if !exists {
		return nil, 0, ErrUnknownIdentity
	}

	// One snapshot, so the window and the total always agree.
	msgs, err := convs.Read(ctx, identity)
	if err != nil {
		return nil, 0, err
	}
	total := len(msgs)
	if n > 0 && n < total {
		msgs = msgs[total-n:]
	}
	return msgs, total, nil
}

// Sessions returns the number of identities with a conversation.
func (s *Service) Sessions(ctx context.Context) (int, error) {
	return s.registry.Conversations().Count(ctx)
}

// Provider returns the completion provider in use.
func (s *Service) Provider() provider.Provider {
	return s.provider
}

// Preview renders ds the way a reminder would embed it.
func (s *Service) Preview(ds *dataset.Dataset) (string, error) {
	return s.injector.Render(ds)
}

func toProviderMessages(msgs []session.Message) []provider.Message {
	out := make([]provider.Message, len(msgs))
	for i, m := range msgs {
		out[i] = provider.Message{Role: string(m.Role), Content: m.Content}
	}
	return out
}
