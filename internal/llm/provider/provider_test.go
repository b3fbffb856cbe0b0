package provider

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	for _, name := range []string{"openai", "gemini", "mock"} {
		assert.True(t, IsRegistered(name), name)
	}
	assert.Equal(t, []string{"gemini", "mock", "openai"}, List())

	_, err := New(Config{Provider: "bedrock"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")

	assert.Panics(t, func() {
		RegisterFactory("mock", func(Config) (Provider, error) { return nil, nil })
	})
	assert.Panics(t, func() { RegisterFactory("nil", nil) })
}

func TestNew_OpenAIRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := New(Config{Provider: "openai"})
	require.Error(t, err)

	p, err := New(Config{Provider: "openai", APIKey: "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
}

func TestMockProvider(t *testing.T) {
	p, err := New(Config{Provider: "mock", Reply: "canned"})
	require.NoError(t, err)

	resp, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "canned", resp.Content)
}

func TestMockProvider_Scripted(t *testing.T) {
	boom := errors.New("boom")
	m := NewMockProvider("mock")
	m.Errors = []error{boom, nil}
	m.Responses = []*CompletionResponse{nil, {Content: "second"}}

	_, err := m.CreateCompletion(context.Background(), CompletionRequest{})
	assert.ErrorIs(t, err, boom)

	resp, err := m.CreateCompletion(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Content)

	resp, err = m.CreateCompletion(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, mockDefaultReply, resp.Content)

	assert.Len(t, m.Calls(), 3)
	m.Reset()
	assert.Empty(t, m.Calls())
}

func TestMockProvider_CallsAreCopies(t *testing.T) {
	m := NewMockProvider("mock")
	msgs := []Message{{Role: "user", Content: "original"}}

	_, err := m.CreateCompletion(context.Background(), CompletionRequest{Messages: msgs})
	require.NoError(t, err)

	msgs[0].Content = "changed"
	assert.Equal(t, "original", m.Calls()[0].Messages[0].Content)
}

func TestMockProvider_Concurrent(t *testing.T) {
	m := NewMockProvider("mock")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.CreateCompletion(context.Background(), CompletionRequest{})
		}()
	}
	wg.Wait()

	assert.Len(t, m.Calls(), 20)
}

func TestInstrumentedProvider(t *testing.T) {
	m := NewMockProvider("mock")
	m.Errors = []error{NewProviderError("mock", ErrorCodeServerError, "down", nil)}

	p := NewInstrumentedProvider(m)
	assert.Equal(t, "mock", p.Name())
	assert.Same(t, m, p.Unwrap())

	_, err := p.CreateCompletion(context.Background(), CompletionRequest{})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))

	resp, err := p.CreateCompletion(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, mockDefaultReply, resp.Content)
}

func TestCodeForStatus(t *testing.T) {
	tests := map[int]string{
		401: ErrorCodeAuthentication,
		403: ErrorCodeAuthentication,
		429: ErrorCodeRateLimit,
		400: ErrorCodeInvalidRequest,
		404: ErrorCodeModelNotFound,
		502: ErrorCodeServerError,
		418: ErrorCodeUnknown,
	}
	for status, want := range tests {
		assert.Equal(t, want, codeForStatus(status), "status %d", status)
	}
}
