// Package service contains the business logic layer.
//
// This file implements the image service for product photos uploaded as
// source material for generations.
package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/adcraft/internal/domain"
	"github.com/DukeRupert/adcraft/internal/metrics"
	"github.com/DukeRupert/adcraft/internal/repository"
	"github.com/DukeRupert/adcraft/internal/storage"
	"github.com/google/uuid"
)

// imageURLExpiry is how long presigned image links stay valid.
const imageURLExpiry = time.Hour

// defaultImageListLimit caps ListByUser when no limit is given.
const defaultImageListLimit = 50

// =============================================================================
// Interface Definition
// =============================================================================

// ImageService defines the interface for image-related operations.
type ImageService interface {
	// Upload validates, resizes and stores a product photo and creates its
	// record. Returns domain.ETOOLARGE for files over the size limit and
	// domain.EINVALID for unsupported or undecodable files.
	Upload(ctx context.Context, params domain.UploadImageParams, data io.Reader) (*domain.Image, error)

	// GetByID returns an image owned by userID. Images owned by other users
	// are reported as not found.
	GetByID(ctx context.Context, imageID, userID uuid.UUID) (*domain.Image, error)

	// ListByUser returns the user's most recent uploads.
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Image, error)
}

// =============================================================================
// Implementation
// =============================================================================

type imageService struct {
	store     repository.Querier
	storage   storage.Storage
	processor ImageProcessor
	logger    *slog.Logger
}

var _ ImageService = (*imageService)(nil)

// NewImageService creates a new ImageService.
func NewImageService(
	store repository.Querier,
	storage storage.Storage,
	processor ImageProcessor,
	logger *slog.Logger,
) ImageService {
	return &imageService{
		store:     store,
		storage:   storage,
		processor: processor,
		logger:    logger,
	}
}

// =============================================================================
// Upload
// =============================================================================

func (s *imageService) Upload(ctx context.Context, params domain.UploadImageParams, data io.Reader) (img *domain.Image, err error) {
	const op = "image.upload"
	defer func() { metrics.RecordImageUpload(err) }()

	if params.SizeBytes > 0 {
		if err := domain.ValidateImageSize(params.SizeBytes); err != nil {
			return nil, err
		}
	}

	// The declared size comes from the client, so enforce the limit on the
	// bytes actually read.
	raw, err := io.ReadAll(io.LimitReader(data, domain.MaxImageSize+1))
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to read upload")
	}
	if err := domain.ValidateImageSize(int64(len(raw))); err != nil {
		return nil, err
	}

	contentType := http.DetectContentType(raw)
	if !domain.IsValidImageContentType(contentType) {
		return nil, domain.Invalid(op, fmt.Sprintf("Unsupported image type: %s. Only JPEG, PNG and WebP are supported.", contentType))
	}

	processed, err := s.processor.Process(bytes.NewReader(raw), domain.UploadMaxWidth, domain.UploadMaxHeight)
	if err != nil {
		s.logger.Info("rejecting undecodable upload", "user_id", params.UserID, "content_type", contentType, "error", err)
		return nil, domain.Invalid(op, "The image could not be read. Please upload a valid JPEG, PNG or WebP file.")
	}

	key := storage.UploadKey(params.UserID, uuid.New(), processed.ContentType)
	if err := s.storage.Put(ctx, key, bytes.NewReader(processed.Data), storage.PutOptions{
		ContentType: processed.ContentType,
	}); err != nil {
		return nil, domain.Internal(err, op, "Failed to store image")
	}

	row, err := s.store.CreateImage(ctx, repository.CreateImageParams{
		UserID:           params.UserID,
		StorageKey:       key,
		OriginalFilename: params.OriginalFilename,
		ContentType:      processed.ContentType,
		SizeBytes:        int64(len(processed.Data)),
		Width:            int32(processed.Width),
		Height:           int32(processed.Height),
	})
	if err != nil {
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			s.logger.Error("failed to remove orphaned upload", "key", key, "error", delErr)
		}
		return nil, domain.Internal(err, op, "Failed to save image")
	}

	s.logger.Info("image uploaded",
		"user_id", params.UserID,
		"image_id", row.ID,
		"width", processed.Width,
		"height", processed.Height,
	)
	return s.toDomain(ctx, row), nil
}

// =============================================================================
// Queries
// =============================================================================

func (s *imageService) GetByID(ctx context.Context, imageID, userID uuid.UUID) (*domain.Image, error) {
	const op = "image.get"

	row, err := s.store.GetImageByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "image", imageID.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve image")
	}
	if row.UserID != userID {
		return nil, domain.NotFound(op, "image", imageID.String())
	}
	return s.toDomain(ctx, row), nil
}

func (s *imageService) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Image, error) {
	const op = "image.list"

	if limit <= 0 || limit > defaultImageListLimit {
		limit = defaultImageListLimit
	}
	rows, err := s.store.ListImagesByUser(ctx, repository.ListImagesByUserParams{
		UserID: userID,
		Limit:  int32(limit),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list images")
	}

	images := make([]domain.Image, len(rows))
	for i, row := range rows {
		images[i] = *s.toDomain(ctx, row)
	}
	return images, nil
}

// toDomain converts a row and attaches a link. A failed link is logged and
// left empty.
func (s *imageService) toDomain(ctx context.Context, row repository.Image) *domain.Image {
	img := &domain.Image{
		ID:               row.ID,
		UserID:           row.UserID,
		StorageKey:       row.StorageKey,
		OriginalFilename: row.OriginalFilename,
		ContentType:      row.ContentType,
		SizeBytes:        row.SizeBytes,
		Width:            row.Width,
		Height:           row.Height,
		CreatedAt:        row.CreatedAt,
	}
	url, err := s.storage.URL(ctx, row.StorageKey, imageURLExpiry)
	if err != nil {
		s.logger.Warn("failed to build image url", "image_id", row.ID, "error", err)
		return img
	}
	img.URL = url
	return img
}
