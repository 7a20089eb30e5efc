// Package domain contains core business types and interfaces.
//
// This file defines the Generation domain type and its status lifecycle.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// =============================================================================
// Platform
// =============================================================================

// Platform is the channel a generated asset is designed for.
type Platform string

const (
	PlatformDigitalSignage Platform = "DIGITAL_SIGNAGE"
	PlatformInstagramPost  Platform = "INSTAGRAM_POST"
	PlatformInstagramStory Platform = "INSTAGRAM_STORY"
	PlatformTikTok         Platform = "TIKTOK"
)

// AllPlatforms lists every supported platform in display order.
var AllPlatforms = []Platform{
	PlatformDigitalSignage,
	PlatformInstagramPost,
	PlatformInstagramStory,
	PlatformTikTok,
}

// IsValid returns true if the platform is a recognized value.
func (p Platform) IsValid() bool {
	switch p {
	case PlatformDigitalSignage, PlatformInstagramPost, PlatformInstagramStory, PlatformTikTok:
		return true
	}
	return false
}

// Label returns a human-readable platform name, e.g. "Instagram Story".
func (p Platform) Label() string {
	if p == PlatformTikTok {
		return "TikTok"
	}
	return cases.Title(language.English).String(strings.ReplaceAll(string(p), "_", " "))
}

// ImageSize returns the image dimensions requested from the image model.
// Signage is landscape, Instagram posts are square and vertical feeds are portrait.
func (p Platform) ImageSize() string {
	switch p {
	case PlatformInstagramPost:
		return "1024x1024"
	case PlatformDigitalSignage:
		return "1792x1024"
	default:
		return "1024x1792"
	}
}

// =============================================================================
// Generation Status
// =============================================================================

// GenerationStatus represents the lifecycle state of a generation.
type GenerationStatus string

const (
	GenerationStatusPending   GenerationStatus = "PENDING"
	GenerationStatusCompleted GenerationStatus = "COMPLETED"
	GenerationStatusFailed    GenerationStatus = "FAILED"
)

// IsValid returns true if the status is a recognized value.
func (s GenerationStatus) IsValid() bool {
	switch s {
	case GenerationStatusPending, GenerationStatusCompleted, GenerationStatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true once the generation can no longer change.
func (s GenerationStatus) IsTerminal() bool {
	return s == GenerationStatusCompleted || s == GenerationStatusFailed
}

// CanTransitionTo reports whether a status change is allowed. A generation
// is created PENDING and moves exactly once to COMPLETED or FAILED.
func (s GenerationStatus) CanTransitionTo(next GenerationStatus) bool {
	return s == GenerationStatusPending && next.IsTerminal()
}

// =============================================================================
// Generation Domain Type
// =============================================================================

// Generation is one accepted content generation request.
//
// ID, UserID and CreatedAt never change. Status, the outputs and the error
// are written once by the generation execution step.
type Generation struct {
	ID             uuid.UUID          `json:"id"`
	UserID         uuid.UUID          `json:"user_id"`
	ImageID        *uuid.UUID         `json:"image_id,omitempty"`
	Prompt         string             `json:"prompt"`
	Platform       Platform           `json:"platform"`
	Status         GenerationStatus   `json:"status"`
	ProductName    string             `json:"product_name"`
	Slogan         string             `json:"slogan"`
	Price          string             `json:"price,omitempty"`
	Audience       string             `json:"audience,omitempty"`
	Options        *GenerationOptions `json:"options,omitempty"`
	OutputText     string             `json:"output_text,omitempty"`
	OutputImageKey string             `json:"-"`
	OutputImageURL string             `json:"output_image_url,omitempty"`
	ErrorMessage   string             `json:"error_message,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty"`
}

// TransitionTo moves the generation to the next status, rejecting anything
// other than PENDING to a terminal status.
func (g *Generation) TransitionTo(next GenerationStatus) error {
	if !g.Status.CanTransitionTo(next) {
		return Errorf(ECONFLICT, "generation.transition", "cannot transition generation from %s to %s", g.Status, next)
	}
	g.Status = next
	return nil
}

// GenerationOptions holds free-form campaign details stored as JSON.
type GenerationOptions struct {
	BrandColors    string `json:"brand_colors,omitempty"`
	SourceImageKey string `json:"source_image_key,omitempty"`
}

// MarshalOptions encodes options for storage. Nil or empty options encode to nil.
func MarshalOptions(o *GenerationOptions) ([]byte, error) {
	if o == nil || (*o == GenerationOptions{}) {
		return nil, nil
	}
	return json.Marshal(o)
}

// UnmarshalOptions decodes stored options. Empty input yields nil.
func UnmarshalOptions(raw []byte) (*GenerationOptions, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var o GenerationOptions
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("decode generation options: %w", err)
	}
	return &o, nil
}

// =============================================================================
// Service Parameters
// =============================================================================

// GenerateParams contains the campaign brief submitted by a user.
type GenerateParams struct {
	UserID      uuid.UUID
	ImageID     uuid.UUID
	ProductName string
	Slogan      string
	Price       string
	Audience    string
	BrandColors string
	Platform    Platform
}

const (
	maxProductNameLength = 200
	maxSloganLength      = 300
	maxBriefFieldLength  = 200
)

// Validate checks the brief and returns a ValidationError listing every bad field.
func (p *GenerateParams) Validate() error {
	const op = "generation.validate"
	fields := map[string]string{}

	p.ProductName = strings.TrimSpace(p.ProductName)
	p.Slogan = strings.TrimSpace(p.Slogan)
	p.Price = strings.TrimSpace(p.Price)
	p.Audience = strings.TrimSpace(p.Audience)
	p.BrandColors = strings.TrimSpace(p.BrandColors)

	switch {
	case p.ProductName == "":
		fields["product_name"] = "Product name is required"
	case len(p.ProductName) > maxProductNameLength:
		fields["product_name"] = fmt.Sprintf("Product name must be %d characters or fewer", maxProductNameLength)
	}
	switch {
	case p.Slogan == "":
		fields["slogan"] = "Slogan is required"
	case len(p.Slogan) > maxSloganLength:
		fields["slogan"] = fmt.Sprintf("Slogan must be %d characters or fewer", maxSloganLength)
	}
	if len(p.Price) > maxBriefFieldLength {
		fields["price"] = "Price is too long"
	}
	if len(p.Audience) > maxBriefFieldLength {
		fields["audience"] = "Audience is too long"
	}
	if len(p.BrandColors) > maxBriefFieldLength {
		fields["brand_colors"] = "Brand colors are too long"
	}
	if p.ImageID == uuid.Nil {
		fields["image_id"] = "Image ID is required"
	}
	if !p.Platform.IsValid() {
		fields["platform"] = "Platform must be one of DIGITAL_SIGNAGE, INSTAGRAM_POST, INSTAGRAM_STORY, TIKTOK"
	}

	if len(fields) > 0 {
		return &ValidationError{Op: op, Fields: fields}
	}
	return nil
}

// GenerationResult is returned to the client after a synchronous generation.
type GenerationResult struct {
	Generation *Generation `json:"generation"`
	Usage      QuotaUsage  `json:"usage"`
}
