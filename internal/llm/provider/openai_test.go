package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, handler func(w http.ResponseWriter, req openai.ChatCompletionRequest, attempt int)) (*httptest.Server, *int32) {
	t.Helper()
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		n := atomic.AddInt32(&attempts, 1)
		w.Header().Set("Content-Type", "application/json")
		handler(w, req, int(n))
	}))
	t.Cleanup(srv.Close)
	return srv, &attempts
}

func writeCompletion(w http.ResponseWriter, model, content string) {
	_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
		Model: model,
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Role: "assistant", Content: content},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15},
	})
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": message, "type": "server_error"},
	})
}

func TestOpenAIProvider_CreateCompletion(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv, _ := chatServer(t, func(w http.ResponseWriter, req openai.ChatCompletionRequest, _ int) {
		got = req
		writeCompletion(w, req.Model, "Revenue grew 20%.")
	})

	p := NewOpenAIProvider("test-key", srv.URL)
	resp, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: "system", Content: "You are an analyst."},
			{Role: "user", Content: "How did revenue change?"},
			{Role: "system", Content: "Remember the data."},
		},
		Temperature: 0.7,
		MaxTokens:   1000,
	})
	require.NoError(t, err)

	assert.Equal(t, "Revenue grew 20%.", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	assert.Equal(t, openaiDefaultModel, got.Model)
	assert.Equal(t, 1000, got.MaxTokens)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "system", got.Messages[2].Role)
	assert.Equal(t, "Remember the data.", got.Messages[2].Content)
}

func TestOpenAIProvider_RetriesServerErrors(t *testing.T) {
	srv, attempts := chatServer(t, func(w http.ResponseWriter, req openai.ChatCompletionRequest, attempt int) {
		if attempt < 3 {
			writeAPIError(w, http.StatusServiceUnavailable, "overloaded")
			return
		}
		writeCompletion(w, req.Model, "ok")
	})

	p := NewOpenAIProvider("test-key", srv.URL, WithBackoff(time.Millisecond))
	resp, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
		Model:    "gpt-4o-mini",
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.EqualValues(t, 3, atomic.LoadInt32(attempts))
}

func TestOpenAIProvider_Errors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantCode     string
		wantAttempts int32
	}{
		{name: "authentication is not retried", status: http.StatusUnauthorized, wantCode: ErrorCodeAuthentication, wantAttempts: 1},
		{name: "bad request is not retried", status: http.StatusBadRequest, wantCode: ErrorCodeInvalidRequest, wantAttempts: 1},
		{name: "rate limit exhausts retries", status: http.StatusTooManyRequests, wantCode: ErrorCodeRateLimit, wantAttempts: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, attempts := chatServer(t, func(w http.ResponseWriter, _ openai.ChatCompletionRequest, _ int) {
				writeAPIError(w, tt.status, "nope")
			})

			p := NewOpenAIProvider("test-key", srv.URL, WithBackoff(time.Millisecond))
			_, err := p.CreateCompletion(context.Background(), CompletionRequest{
				Messages: []Message{{Role: "user", Content: "hi"}},
			})
			require.Error(t, err)

			var pe *ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantCode, pe.Code)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.wantAttempts, atomic.LoadInt32(attempts))
		})
	}
}

func TestOpenAIProvider_EmptyChoices(t *testing.T) {
	srv, _ := chatServer(t, func(w http.ResponseWriter, req openai.ChatCompletionRequest, _ int) {
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{Model: req.Model})
	})

	p := NewOpenAIProvider("test-key", srv.URL, WithMaxRetries(0))
	_, err := p.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrorCodeEmptyResponse, pe.Code)
	assert.False(t, IsRetryable(err))
}

func TestOpenAIProvider_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv, _ := chatServer(t, func(w http.ResponseWriter, req openai.ChatCompletionRequest, _ int) {
		<-release
		writeCompletion(w, req.Model, "late")
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	p := NewOpenAIProvider("test-key", srv.URL, WithBackoff(time.Millisecond))
	_, err := p.CreateCompletion(ctx, CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrorCodeTimeout, pe.Code)
}
