package provider

import (
	"context"
	"sync"
)

const mockDefaultReply = "Mock response"

func init() {
	RegisterFactory("mock", func(cfg Config) (Provider, error) {
		m := NewMockProvider("mock")
		if cfg.Reply != "" {
			m.DefaultReply = cfg.Reply
		}
		return m, nil
	})
}

// MockProvider is a scripted provider for tests and offline runs.
// Responses and Errors are consumed in call order; once both are exhausted
// every call returns DefaultReply.
type MockProvider struct {
	name string

	mu sync.Mutex

	// Responses to return for each request
	Responses []*CompletionResponse
	// Errors to return for each request; a nil entry falls through to Responses
	Errors []error
	// DefaultReply is returned after the scripted entries run out
	DefaultReply string
	// Hook runs before each call, e.g. to block or observe concurrency
	Hook func(ctx context.Context, req CompletionRequest)

	calls        []CompletionRequest
	currentIndex int
}

// NewMockProvider creates a new mock provider
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name:         name,
		DefaultReply: mockDefaultReply,
	}
}

// CreateCompletion implements Provider
func (m *MockProvider) CreateCompletion(ctx context.Context, request CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	hook := m.Hook
	m.mu.Unlock()
	if hook != nil {
		hook(ctx, request)
	}
	if err := ctx.Err(); err != nil {
		return nil, NewProviderError(m.name, ErrorCodeTimeout, err.Error(), err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := make([]Message, len(request.Messages))
	copy(msgs, request.Messages)
	request.Messages = msgs
	m.calls = append(m.calls, request)

	idx := m.currentIndex
	m.currentIndex++

	if idx < len(m.Errors) && m.Errors[idx] != nil {
		return nil, m.Errors[idx]
	}
	if idx < len(m.Responses) && m.Responses[idx] != nil {
		resp := *m.Responses[idx]
		return &resp, nil
	}

	return &CompletionResponse{
		Content:      m.DefaultReply,
		Model:        request.Model,
		FinishReason: "stop",
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 5,
			TotalTokens:      15,
		},
	}, nil
}

// Name implements Provider
func (m *MockProvider) Name() string {
	return m.name
}

// Calls returns a copy of every request received so far.
func (m *MockProvider) Calls() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]CompletionRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// Reset clears scripted entries and recorded calls.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Responses = nil
	m.Errors = nil
	m.calls = nil
	m.currentIndex = 0
}
