package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DukeRupert/adcraft/internal/domain"
	"github.com/google/uuid"
)

// Provider defines the interface for AI-powered marketing content generation.
type Provider interface {
	// GenerateCopy writes short marketing copy for a campaign brief.
	GenerateCopy(ctx context.Context, params CopyParams) (*CopyResult, error)

	// GenerateImage renders a marketing image sized for the brief's platform.
	GenerateImage(ctx context.Context, params ImageParams) (*ImageResult, error)
}

// Brief is the campaign description shared by copy and image requests.
type Brief struct {
	ProductName string
	Slogan      string
	Price       string
	Audience    string
	BrandColors string
	Platform    domain.Platform
}

// BriefFromParams builds a Brief from validated generation parameters.
func BriefFromParams(p domain.GenerateParams) Brief {
	return Brief{
		ProductName: p.ProductName,
		Slogan:      p.Slogan,
		Price:       p.Price,
		Audience:    p.Audience,
		BrandColors: p.BrandColors,
		Platform:    p.Platform,
	}
}

// Summary returns a one-line description of the brief, stored with the
// generation as its prompt.
func (b Brief) Summary() string {
	s := fmt.Sprintf("%s ad for %s: %q", b.Platform.Label(), b.ProductName, b.Slogan)
	if b.Price != "" {
		s += ", " + b.Price
	}
	if b.Audience != "" {
		s += ", for " + b.Audience
	}
	return s
}

// CopyParams contains parameters for copy generation.
type CopyParams struct {
	Brief        Brief
	UserID       uuid.UUID // for tracking
	GenerationID uuid.UUID // for tracking
}

// CopyResult contains generated marketing copy.
type CopyResult struct {
	Text  string
	Usage UsageInfo
}

// ImageParams contains parameters for image generation.
type ImageParams struct {
	Brief        Brief
	Prompt       string // overrides the prompt built from Brief when set
	UserID       uuid.UUID
	GenerationID uuid.UUID
}

// ImageResult contains a generated image.
type ImageResult struct {
	Data          []byte // decoded image bytes
	ContentType   string
	RevisedPrompt string // prompt as rewritten by the model, if any
	Usage         UsageInfo
}

// UsageInfo tracks API usage for monitoring.
type UsageInfo struct {
	Model        string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// ProviderConfig contains common configuration for AI providers.
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for AI provider operations
var (
	// EAIRateLimit indicates the API rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIContentPolicy indicates the prompt was rejected by the safety system
	EAIContentPolicy = errors.New("request violates content policy")

	// EAITimeout indicates the request timed out
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the AI service is temporarily unavailable
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")

	// EAIEmptyResponse indicates the provider returned no usable content
	EAIEmptyResponse = errors.New("ai provider returned no content")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}

// UserMessage returns a failure message safe to store on a generation and
// show to its owner.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, EAIContentPolicy):
		return "The request was rejected by the content policy. Try rewording your brief."
	case errors.Is(err, EAIRateLimit), errors.Is(err, EAIUnavailable), errors.Is(err, EAITimeout):
		return "The image service is busy. Please try again in a few minutes."
	default:
		return "Generation failed. Please try again."
	}
}
