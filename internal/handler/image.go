package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/adcraft/internal/auth"
	"github.com/DukeRupert/adcraft/internal/domain"
	"github.com/DukeRupert/adcraft/internal/service"
)

// maxUploadBody bounds the multipart request: the image plus form overhead.
const maxUploadBody = domain.MaxImageSize + 1<<20

// ImageHandler handles product photo uploads.
type ImageHandler struct {
	images service.ImageService
	logger *slog.Logger
}

// NewImageHandler creates a new ImageHandler.
func NewImageHandler(images service.ImageService, logger *slog.Logger) *ImageHandler {
	return &ImageHandler{
		images: images,
		logger: logger,
	}
}

// RegisterRoutes registers image routes behind requireUser.
func (h *ImageHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/images", requireUser(http.HandlerFunc(h.Upload)))
	mux.Handle("GET /api/images", requireUser(http.HandlerFunc(h.List)))
	mux.Handle("GET /api/images/{id}", requireUser(http.HandlerFunc(h.Get)))
}

// Upload handles POST /api/images with a multipart "file" field.
func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	const op = "image.upload"

	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxUploadBody); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			ErrorResponse(w, r, h.logger, domain.Errorf(domain.ETOOLARGE, op, "File size exceeds the 5MB limit"))
			return
		}
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Request must be multipart/form-data"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "file", "An image file is required"))
		return
	}
	defer file.Close()

	img, err := h.images.Upload(r.Context(), domain.UploadImageParams{
		UserID:           user.ID,
		OriginalFilename: header.Filename,
		ContentType:      header.Header.Get("Content-Type"),
		SizeBytes:        header.Size,
	}, file)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, img)
}

// List handles GET /api/images?limit=N.
func (h *ImageHandler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	limit, err := queryInt(r.URL.Query().Get("limit"))
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("image.list", "limit must be a non-negative integer"))
		return
	}

	images, err := h.images.ListByUser(r.Context(), user.ID, limit)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": images})
}

// Get handles GET /api/images/{id}.
func (h *ImageHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathID(r, "id", "image")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	img, err := h.images.GetByID(r.Context(), id, user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, img)
}
