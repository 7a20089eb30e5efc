package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/DukeRupert/adcraft/internal/ai"
	goopenai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultTextModel is the default chat model for marketing copy
	DefaultTextModel = goopenai.GPT4o

	// DefaultImageModel is the default image model
	DefaultImageModel = goopenai.CreateImageModelDallE3

	maxCopyTokens = 400
)

// Config contains configuration for the OpenAI provider
type Config struct {
	APIKey         string
	BaseURL        string // empty uses the public API
	TextModel      string
	ImageModel     string
	ProviderConfig ai.ProviderConfig
}

// Provider implements ai.Provider on top of the go-openai client.
type Provider struct {
	config Config
	client *goopenai.Client
	logger *slog.Logger
}

var _ ai.Provider = (*Provider)(nil)

// New creates a new OpenAI provider
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	if config.TextModel == "" {
		config.TextModel = DefaultTextModel
	}
	if config.ImageModel == "" {
		config.ImageModel = DefaultImageModel
	}
	if config.ProviderConfig.MaxRetries == 0 {
		config.ProviderConfig.MaxRetries = 3
	}
	if config.ProviderConfig.RetryBaseDelay == 0 {
		config.ProviderConfig.RetryBaseDelay = 1 * time.Second
	}
	if config.ProviderConfig.RequestTimeout == 0 {
		config.ProviderConfig.RequestTimeout = 90 * time.Second
	}

	clientConfig := goopenai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}
	clientConfig.HTTPClient = &http.Client{Timeout: config.ProviderConfig.RequestTimeout}

	return &Provider{
		config: config,
		client: goopenai.NewClientWithConfig(clientConfig),
		logger: logger,
	}, nil
}

// GenerateCopy writes marketing copy with the chat completions endpoint.
func (p *Provider) GenerateCopy(ctx context.Context, params ai.CopyParams) (*ai.CopyResult, error) {
	start := time.Now()

	req := goopenai.ChatCompletionRequest{
		Model:     p.config.TextModel,
		MaxTokens: maxCopyTokens,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: copySystemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: buildCopyPrompt(params.Brief)},
		},
	}

	var resp goopenai.ChatCompletionResponse
	err := p.withRetry(ctx, "chat", func(ctx context.Context) error {
		var err error
		resp, err = p.client.CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		return nil, ai.WrapError("generate copy", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, ai.WrapError("generate copy", ai.EAIEmptyResponse)
	}

	return &ai.CopyResult{
		Text: strings.TrimSpace(resp.Choices[0].Message.Content),
		Usage: ai.UsageInfo{
			Model:        p.config.TextModel,
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			Duration:     time.Since(start),
		},
	}, nil
}

// GenerateImage renders an image and returns the decoded bytes.
func (p *Provider) GenerateImage(ctx context.Context, params ai.ImageParams) (*ai.ImageResult, error) {
	start := time.Now()

	prompt := params.Prompt
	if prompt == "" {
		prompt = buildImagePrompt(params.Brief)
	}

	req := goopenai.ImageRequest{
		Model:          p.config.ImageModel,
		Prompt:         prompt,
		N:              1,
		Size:           params.Brief.Platform.ImageSize(),
		Quality:        goopenai.CreateImageQualityStandard,
		ResponseFormat: goopenai.CreateImageResponseFormatB64JSON,
	}

	var resp goopenai.ImageResponse
	err := p.withRetry(ctx, "image", func(ctx context.Context) error {
		var err error
		resp, err = p.client.CreateImage(ctx, req)
		return err
	})
	if err != nil {
		return nil, ai.WrapError("generate image", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, ai.WrapError("generate image", ai.EAIEmptyResponse)
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, ai.WrapError("decode image", err)
	}

	return &ai.ImageResult{
		Data:          data,
		ContentType:   http.DetectContentType(data),
		RevisedPrompt: resp.Data[0].RevisedPrompt,
		Usage: ai.UsageInfo{
			Model:    p.config.ImageModel,
			Duration: time.Since(start),
		},
	}, nil
}

// withRetry runs call with exponential backoff while the classified error is
// retryable.
func (p *Provider) withRetry(ctx context.Context, endpoint string, call func(context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.config.ProviderConfig.MaxRetries; attempt++ {
		err := call(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = classifyError(err)

		if !ai.IsRetryable(lastErr) || attempt >= p.config.ProviderConfig.MaxRetries {
			break
		}

		// Exponential: base * 2^(attempt-1)
		delay := p.config.ProviderConfig.RetryBaseDelay * time.Duration(1<<(attempt-1))
		p.logger.Info("retrying AI request", "endpoint", endpoint, "attempt", attempt, "delay", delay, "error", lastErr)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}

// classifyError maps client errors onto the ai error set.
func classifyError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		code, _ := apiErr.Code.(string)
		return classifyStatus(apiErr.HTTPStatusCode, code, apiErr.Message)
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, "", reqErr.Error())
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ai.EAITimeout
	}
	// Connection failures and non-JSON gateway pages carry no API error.
	return fmt.Errorf("%w: %v", ai.EAIUnavailable, err)
}

func classifyStatus(status int, code, message string) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ai.EAIUnauthorized
	case http.StatusTooManyRequests:
		// Exhausted billing quota is not transient.
		if code == "insufficient_quota" {
			return fmt.Errorf("%w: %s", ai.EAIUnauthorized, message)
		}
		return ai.EAIRateLimit
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ai.EAITimeout
	case http.StatusBadRequest:
		if code == "content_policy_violation" {
			return ai.EAIContentPolicy
		}
		return fmt.Errorf("bad request: %s", message)
	case http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusBadGateway:
		return ai.EAIUnavailable
	default:
		return fmt.Errorf("API error (status %d): %s", status, message)
	}
}
