package provider

import (
	"context"
	"time"

	"github.com/aixgo-dev/fincontext/internal/observability"
	metrics "github.com/aixgo-dev/fincontext/pkg/observability"
)

// InstrumentedProvider wraps a Provider with a span and completion metrics
// per call.
type InstrumentedProvider struct {
	provider Provider
	now      func() time.Time
}

// NewInstrumentedProvider wraps p
func NewInstrumentedProvider(p Provider) *InstrumentedProvider {
	return &InstrumentedProvider{provider: p, now: time.Now}
}

// Name returns the wrapped provider name
func (p *InstrumentedProvider) Name() string {
	return p.provider.Name()
}

// Unwrap returns the wrapped provider
func (p *InstrumentedProvider) Unwrap() Provider {
	return p.provider
}

// CreateCompletion implements Provider
func (p *InstrumentedProvider) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	name := p.provider.Name()
	ctx, span := observability.StartSpan(ctx, "llm.completion", map[string]any{
		"llm.provider":    name,
		"llm.model":       req.Model,
		"llm.messages":    len(req.Messages),
		"llm.temperature": req.Temperature,
		"llm.max_tokens":  req.MaxTokens,
	})
	defer span.End()

	start := p.now()
	resp, err := p.provider.CreateCompletion(ctx, req)
	elapsed := p.now().Sub(start)

	if err != nil {
		span.SetError(err)
		metrics.RecordCompletion(name, metrics.OutcomeFailed, elapsed, 0, 0)
		return nil, err
	}

	span.SetAttribute("llm.finish_reason", resp.FinishReason)
	span.SetAttribute("llm.usage.prompt_tokens", resp.Usage.PromptTokens)
	span.SetAttribute("llm.usage.completion_tokens", resp.Usage.CompletionTokens)
	metrics.RecordCompletion(name, metrics.OutcomeSuccess, elapsed, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	return resp, nil
}
