// Package domain contains core business types and interfaces.
//
// This file defines the Image domain type for product photos uploaded as
// source material for generations.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Image Constants
// =============================================================================

// SupportedImageTypes maps accepted upload MIME types to their human-readable names.
var SupportedImageTypes = map[string]string{
	"image/jpeg": "JPEG",
	"image/png":  "PNG",
	"image/webp": "WebP",
}

const (
	// MaxImageSize is the maximum allowed size for uploaded images (5MB).
	MaxImageSize = 5 * 1024 * 1024

	// UploadMaxWidth and UploadMaxHeight bound stored uploads. Larger images
	// are resized to fit, preserving aspect ratio.
	UploadMaxWidth  = 1200
	UploadMaxHeight = 1200

	// UploadJPEGQuality is the JPEG quality for re-encoded uploads (0-100).
	UploadJPEGQuality = 85
)

// =============================================================================
// Image Domain Type
// =============================================================================

// Image represents an uploaded product photo.
type Image struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	StorageKey       string    `json:"-"`
	OriginalFilename string    `json:"original_filename"`
	ContentType      string    `json:"content_type"`
	SizeBytes        int64     `json:"size_bytes"`
	Width            int32     `json:"width"`
	Height           int32     `json:"height"`
	CreatedAt        time.Time `json:"created_at"`

	// Populated by services, not stored.
	URL string `json:"url,omitempty"`
}

// IsOwnedBy returns true if the image belongs to the given user.
func (i *Image) IsOwnedBy(userID uuid.UUID) bool {
	return i.UserID == userID
}

// SizeMB returns the file size in megabytes.
func (i *Image) SizeMB() float64 {
	return float64(i.SizeBytes) / (1024 * 1024)
}

// UploadImageParams contains the raw upload submitted by a user.
type UploadImageParams struct {
	UserID           uuid.UUID
	OriginalFilename string
	ContentType      string
	SizeBytes        int64
}

// =============================================================================
// Validation Helpers
// =============================================================================

// IsValidImageContentType checks if the content type is supported.
func IsValidImageContentType(contentType string) bool {
	_, ok := SupportedImageTypes[contentType]
	return ok
}

// ValidateImageSize checks if the file size is within limits.
func ValidateImageSize(size int64) error {
	if size > MaxImageSize {
		return Errorf(ETOOLARGE, "image.validate", "Image size %d bytes exceeds maximum of %d bytes (%.1fMB)", size, MaxImageSize, float64(MaxImageSize)/(1024*1024))
	}
	if size == 0 {
		return Invalid("image.validate", "Image file is empty")
	}
	return nil
}
