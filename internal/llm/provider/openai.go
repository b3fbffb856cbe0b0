package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	openaiDefaultModel   = "gpt-4"
	openaiDefaultTimeout = 120 * time.Second
	openaiMaxRetries     = 2
)

func init() {
	RegisterFactory("openai", func(cfg Config) (Provider, error) {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY not set")
		}
		return NewOpenAIProvider(apiKey, cfg.BaseURL,
			WithTimeout(cfg.Timeout),
			WithMaxRetries(cfg.MaxRetries),
		), nil
	})
}

// OpenAIClient is the subset of the go-openai client the provider uses.
type OpenAIClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider implements Provider for the OpenAI chat API and any
// endpoint speaking the same protocol.
type OpenAIProvider struct {
	client     OpenAIClient
	maxRetries int
	backoff    time.Duration
	timeout    time.Duration
}

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*OpenAIProvider)

// WithTimeout bounds each HTTP attempt. Zero keeps the default.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(p *OpenAIProvider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithMaxRetries sets the retry count for retryable failures.
// Negative keeps the default; zero disables retries.
func WithMaxRetries(n int) OpenAIOption {
	return func(p *OpenAIProvider) {
		if n >= 0 {
			p.maxRetries = n
		}
	}
}

// WithBackoff sets the base delay between retries.
func WithBackoff(d time.Duration) OpenAIOption {
	return func(p *OpenAIProvider) {
		p.backoff = d
	}
}

// NewOpenAIProvider creates a new OpenAI provider. An empty baseURL uses
// the public OpenAI endpoint.
func NewOpenAIProvider(apiKey, baseURL string, opts ...OpenAIOption) *OpenAIProvider {
	p := &OpenAIProvider{
		maxRetries: openaiMaxRetries,
		backoff:    time.Second,
		timeout:    openaiDefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: p.timeout}
	p.client = openai.NewClientWithConfig(cfg)
	return p
}

// NewOpenAIProviderWithClient creates a provider around an existing client.
func NewOpenAIProviderWithClient(client OpenAIClient, opts ...OpenAIOption) *OpenAIProvider {
	p := &OpenAIProvider{
		client:     client,
		maxRetries: openaiMaxRetries,
		backoff:    time.Second,
		timeout:    openaiDefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// CreateCompletion creates a completion
func (p *OpenAIProvider) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = openaiDefaultModel
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	oReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			delay := p.backoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, NewProviderError("openai", ErrorCodeTimeout, ctx.Err().Error(), ctx.Err())
			case <-time.After(delay):
			}
		}

		resp, err := p.client.CreateChatCompletion(ctx, oReq)
		if err == nil {
			return p.parseResponse(resp)
		}

		lastErr = p.wrapError(err)
		if !IsRetryable(lastErr) || ctx.Err() != nil {
			return nil, lastErr
		}
	}

	return nil, lastErr
}

func (p *OpenAIProvider) parseResponse(resp openai.ChatCompletionResponse) (*CompletionResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, NewProviderError("openai", ErrorCodeEmptyResponse, "no choices in response", nil)
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return nil, NewProviderError("openai", ErrorCodeContentFiltered, "response blocked by content filter", nil)
	}

	return &CompletionResponse{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (p *OpenAIProvider) wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := codeForStatus(apiErr.HTTPStatusCode)
		return &ProviderError{
			Provider:      "openai",
			Code:          code,
			Message:       apiErr.Message,
			Type:          apiErr.Type,
			StatusCode:    apiErr.HTTPStatusCode,
			IsRetryable:   isRetryableError(code),
			OriginalError: err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		code := codeForStatus(reqErr.HTTPStatusCode)
		return &ProviderError{
			Provider:      "openai",
			Code:          code,
			Message:       reqErr.Error(),
			StatusCode:    reqErr.HTTPStatusCode,
			IsRetryable:   isRetryableError(code),
			OriginalError: err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return NewProviderError("openai", ErrorCodeTimeout, err.Error(), err)
	}

	// Transport failures (connection refused, reset) are worth a retry.
	return NewProviderError("openai", ErrorCodeServerError, err.Error(), err)
}
