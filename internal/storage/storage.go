// Package storage stores uploaded product photos and generated marketing
// images. LocalStorage writes to disk for development; R2Storage writes to
// Cloudflare R2 through the S3 API.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Storage is an object store keyed by slash-separated paths.
type Storage interface {
	// Put writes data at key. ErrKeyExists is returned when the key is taken
	// and opts.Overwrite is false; ErrTooLarge when data exceeds opts.MaxSize.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get opens the object at key. The caller closes the reader.
	// ErrNotFound is returned for a missing key.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// URL returns a link to key. A zero expires asks for a permanent public
	// URL where the backend has one; otherwise the URL is presigned.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// PutOptions configures how an object is stored.
type PutOptions struct {
	ContentType string // detected from the key when empty
	MaxSize     int64  // 0 means unlimited
	Overwrite   bool
	Public      bool // R2 only: public-read ACL
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	ETag         string
}

// =============================================================================
// Configuration
// =============================================================================

const (
	ProviderLocal = "local"
	ProviderR2    = "r2"
)

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	BasePath string // e.g. "./storage"
	BaseURL  string // e.g. "http://localhost:8080/files"
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string // custom domain; presigned URLs are used when empty
	Region          string // defaults to "auto"
}

// =============================================================================
// Key Layout
// =============================================================================

// UploadKey returns the key for a user's uploaded product photo.
// Format: uploads/{userID}/{imageID}.{ext}
func UploadKey(userID, imageID uuid.UUID, contentType string) string {
	return fmt.Sprintf("uploads/%s/%s%s", userID, imageID, ExtensionForContentType(contentType))
}

// GenerationKey returns the key for a generated marketing image.
// Format: generations/{userID}/{generationID}.{ext}
func GenerationKey(userID, generationID uuid.UUID, contentType string) string {
	return fmt.Sprintf("generations/%s/%s%s", userID, generationID, ExtensionForContentType(contentType))
}
