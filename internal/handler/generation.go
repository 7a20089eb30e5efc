package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/DukeRupert/adcraft/internal/auth"
	"github.com/DukeRupert/adcraft/internal/domain"
	"github.com/DukeRupert/adcraft/internal/service"
	"github.com/google/uuid"
)

// GenerationHandler handles content generation and quota requests.
type GenerationHandler struct {
	generations service.GenerationService
	logger      *slog.Logger
}

// NewGenerationHandler creates a new GenerationHandler.
func NewGenerationHandler(generations service.GenerationService, logger *slog.Logger) *GenerationHandler {
	return &GenerationHandler{
		generations: generations,
		logger:      logger,
	}
}

// RegisterRoutes registers generation routes behind requireUser.
func (h *GenerationHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/generations", requireUser(http.HandlerFunc(h.Create)))
	mux.Handle("GET /api/generations", requireUser(http.HandlerFunc(h.List)))
	mux.Handle("GET /api/generations/{id}", requireUser(http.HandlerFunc(h.Get)))
	mux.Handle("GET /api/quota", requireUser(http.HandlerFunc(h.Quota)))
}

type createGenerationRequest struct {
	ProductName string `json:"productName"`
	Slogan      string `json:"slogan"`
	Price       string `json:"price"`
	Audience    string `json:"audience"`
	Platform    string `json:"platform"`
	BrandColors string `json:"brandColors"`
	ImageID     string `json:"imageId"`
}

// Create handles POST /api/generations. The request runs the whole
// generation synchronously; a quota denial returns 429 with the usage in
// the error details.
func (h *GenerationHandler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "generation.create"

	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req createGenerationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	params := domain.GenerateParams{
		UserID:      user.ID,
		ProductName: req.ProductName,
		Slogan:      req.Slogan,
		Price:       req.Price,
		Audience:    req.Audience,
		BrandColors: req.BrandColors,
		Platform:    domain.Platform(strings.ToUpper(strings.TrimSpace(req.Platform))),
	}
	if req.ImageID != "" {
		id, err := uuid.Parse(req.ImageID)
		if err != nil {
			ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "image_id", "Image ID is not valid"))
			return
		}
		params.ImageID = id
	}

	result, err := h.generations.Generate(r.Context(), params)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// List handles GET /api/generations?status=COMPLETED,FAILED&limit=20&offset=0.
func (h *GenerationHandler) List(w http.ResponseWriter, r *http.Request) {
	const op = "generation.list"

	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	q := r.URL.Query()
	params := service.ListGenerationsParams{UserID: user.ID}

	for _, raw := range q["status"] {
		for _, st := range strings.Split(raw, ",") {
			if st = strings.TrimSpace(st); st != "" {
				params.Statuses = append(params.Statuses, domain.GenerationStatus(strings.ToUpper(st)))
			}
		}
	}

	var err error
	if params.Limit, err = queryInt(q.Get("limit")); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "limit must be a non-negative integer"))
		return
	}
	if params.Offset, err = queryInt(q.Get("offset")); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "offset must be a non-negative integer"))
		return
	}

	page, err := h.generations.List(r.Context(), params)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Get handles GET /api/generations/{id}. Only the owner can see a generation.
func (h *GenerationHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathID(r, "id", "generation")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	gen, err := h.generations.GetByID(r.Context(), id, user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, gen)
}

// Quota handles GET /api/quota.
func (h *GenerationHandler) Quota(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	usage, err := h.generations.QuotaUsage(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

// queryInt parses an optional non-negative integer query value.
func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
