package provider

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	geminiDefaultModel   = "gemini-2.0-flash"
	geminiClientTimeout  = 30 * time.Second
	geminiDefaultTimeout = 120 * time.Second
	geminiMaxRetries     = 2
)

func init() {
	RegisterFactory("gemini", func(cfg Config) (Provider, error) {
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY not set")
		}
		return NewGeminiProvider(apiKey,
			WithGeminiTimeout(cfg.Timeout),
			WithGeminiMaxRetries(cfg.MaxRetries),
		)
	})
}

// GeminiModels is the subset of the Gen AI SDK the provider calls.
type GeminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider implements Provider for the Gemini API using the Gen AI SDK.
type GeminiProvider struct {
	models     GeminiModels
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
}

// GeminiOption configures a GeminiProvider.
type GeminiOption func(*GeminiProvider)

// WithGeminiTimeout bounds each attempt. Zero keeps the default.
func WithGeminiTimeout(d time.Duration) GeminiOption {
	return func(p *GeminiProvider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithGeminiMaxRetries sets the retry count for retryable failures.
// Negative keeps the default; zero disables retries.
func WithGeminiMaxRetries(n int) GeminiOption {
	return func(p *GeminiProvider) {
		if n >= 0 {
			p.maxRetries = n
		}
	}
}

// WithGeminiBackoff sets the base delay between retries.
func WithGeminiBackoff(d time.Duration) GeminiOption {
	return func(p *GeminiProvider) {
		p.backoff = d
	}
}

func newGeminiProvider(models GeminiModels, opts []GeminiOption) *GeminiProvider {
	p := &GeminiProvider{
		models:     models,
		timeout:    geminiDefaultTimeout,
		maxRetries: geminiMaxRetries,
		backoff:    time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewGeminiProvider creates a Gemini API provider.
func NewGeminiProvider(apiKey string, opts ...GeminiOption) (*GeminiProvider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), geminiClientTimeout)
	defer cancel()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newGeminiProvider(client.Models, opts), nil
}

// NewGeminiProviderWithModels creates a provider around an existing client.
func NewGeminiProviderWithModels(models GeminiModels, opts ...GeminiOption) *GeminiProvider {
	return newGeminiProvider(models, opts)
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// CreateCompletion creates a completion using the Gen AI SDK
func (p *GeminiProvider) CreateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" || strings.HasPrefix(model, "gpt-") {
		model = geminiDefaultModel
	}

	config := &genai.GenerateContentConfig{}
	config.Temperature = genai.Ptr(float32(req.Temperature))
	if req.MaxTokens > 0 && req.MaxTokens <= math.MaxInt32 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	contents, systemInstruction := buildGeminiContents(req.Messages)
	if systemInstruction != nil {
		config.SystemInstruction = systemInstruction
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			delay := p.backoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, NewProviderError("gemini", ErrorCodeTimeout, ctx.Err().Error(), ctx.Err())
			case <-time.After(delay):
			}
		}

		resp, err := p.generate(ctx, model, contents, config)
		if err == nil {
			return parseGeminiResponse(model, resp)
		}

		lastErr = wrapGeminiError(err)
		if !IsRetryable(lastErr) || ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// generate runs one attempt bounded by the provider timeout.
func (p *GeminiProvider) generate(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.models.GenerateContent(attemptCtx, model, contents, config)
	if err != nil && attemptCtx.Err() != nil {
		return nil, fmt.Errorf("gemini request: %w", attemptCtx.Err())
	}
	return resp, err
}

// buildGeminiContents converts messages to Gen AI contents. Leading system
// messages become the system instruction; later ones (dataset reminders)
// are sent as user turns because Gemini only accepts one instruction.
func buildGeminiContents(messages []Message) ([]*genai.Content, *genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))

	leading := true
	for _, m := range messages {
		if m.Role == "system" && leading {
			system = append(system, m.Content)
			continue
		}
		leading = false

		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	if len(system) == 0 {
		return contents, nil
	}
	return contents, &genai.Content{
		Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}},
	}
}

func parseGeminiResponse(model string, resp *genai.GenerateContentResponse) (*CompletionResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, NewProviderError("gemini", ErrorCodeEmptyResponse, "no candidates in response", nil)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, NewProviderError("gemini", ErrorCodeContentFiltered, "response blocked by safety filter", nil)
	}

	var content strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				content.WriteString(part.Text)
			}
		}
	}

	finishReason := string(candidate.FinishReason)
	if finishReason == "STOP" || finishReason == "" {
		finishReason = "stop"
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	return &CompletionResponse{
		Content:      content.String(),
		Model:        model,
		FinishReason: finishReason,
		Usage:        usage,
	}, nil
}

// wrapGeminiError classifies SDK errors by message, as the SDK does not
// expose a stable typed status across versions.
func wrapGeminiError(err error) error {
	code := ErrorCodeUnknown
	errMsg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errMsg, "api key") || strings.Contains(errMsg, "403") || strings.Contains(errMsg, "401"):
		code = ErrorCodeAuthentication
	case strings.Contains(errMsg, "429") || strings.Contains(errMsg, "quota") || strings.Contains(errMsg, "resource_exhausted"):
		code = ErrorCodeRateLimit
	case strings.Contains(errMsg, "not found") || strings.Contains(errMsg, "404"):
		code = ErrorCodeModelNotFound
	case strings.Contains(errMsg, "invalid") || strings.Contains(errMsg, "400"):
		code = ErrorCodeInvalidRequest
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline"):
		code = ErrorCodeTimeout
	case strings.Contains(errMsg, "500") || strings.Contains(errMsg, "503") || strings.Contains(errMsg, "unavailable"):
		code = ErrorCodeServerError
	}

	return &ProviderError{
		Provider:      "gemini",
		Code:          code,
		Message:       err.Error(),
		IsRetryable:   isRetryableError(code),
		OriginalError: err,
	}
}
