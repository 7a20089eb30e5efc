package mock

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/adcraft/internal/ai"
)

// Provider is a mock AI provider for testing and development
type Provider struct {
	logger *slog.Logger

	mu sync.Mutex

	// Configurable responses for testing
	CopyResponse  *ai.CopyResult
	CopyError     error
	ImageResponse *ai.ImageResult
	ImageError    error

	// Call tracking for testing
	CopyCalls  int
	ImageCalls int
}

var _ ai.Provider = (*Provider)(nil)

// New creates a new mock AI provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// GenerateCopy returns canned copy built from the brief.
func (p *Provider) GenerateCopy(ctx context.Context, params ai.CopyParams) (*ai.CopyResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CopyCalls++

	if p.CopyError != nil {
		return nil, p.CopyError
	}
	if p.CopyResponse != nil {
		return p.CopyResponse, nil
	}

	b := params.Brief
	text := fmt.Sprintf("%s. Meet %s, made for %s.", b.Slogan, b.ProductName, b.Platform.Label())
	if b.Price != "" {
		text += " Only " + b.Price + "."
	}
	return &ai.CopyResult{
		Text: text,
		Usage: ai.UsageInfo{
			Model:        "mock-copy-v1",
			InputTokens:  120,
			OutputTokens: 40,
			Duration:     50 * time.Millisecond,
		},
	}, nil
}

// GenerateImage returns a small solid-color PNG.
func (p *Provider) GenerateImage(ctx context.Context, params ai.ImageParams) (*ai.ImageResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ImageCalls++

	if p.ImageError != nil {
		return nil, p.ImageError
	}
	if p.ImageResponse != nil {
		return p.ImageResponse, nil
	}

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 0x33, G: 0x66, B: 0x99, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode mock image: %w", err)
	}

	return &ai.ImageResult{
		Data:        buf.Bytes(),
		ContentType: "image/png",
		Usage: ai.UsageInfo{
			Model:    "mock-image-v1",
			Duration: 100 * time.Millisecond,
		},
	}, nil
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CopyCalls = 0
	p.ImageCalls = 0
	p.CopyResponse = nil
	p.CopyError = nil
	p.ImageResponse = nil
	p.ImageError = nil
}
