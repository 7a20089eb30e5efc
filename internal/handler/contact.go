package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/adcraft/internal/domain"
	"github.com/DukeRupert/adcraft/internal/service"
)

// ContactHandler handles the public contact form and newsletter sign-up.
type ContactHandler struct {
	contact service.ContactService
	logger  *slog.Logger
}

// NewContactHandler creates a new ContactHandler.
func NewContactHandler(contact service.ContactService, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{
		contact: contact,
		logger:  logger,
	}
}

// RegisterRoutes registers the public routes, each wrapped in limit.
func (h *ContactHandler) RegisterRoutes(mux *http.ServeMux, limit func(http.Handler) http.Handler) {
	mux.Handle("POST /api/contact", limit(http.HandlerFunc(h.SendMessage)))
	mux.Handle("POST /api/newsletter", limit(http.HandlerFunc(h.Subscribe)))
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// SendMessage handles POST /api/contact.
func (h *ContactHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.contact.SendMessage(r.Context(), domain.ContactMessage{
		Name:    req.Name,
		Email:   req.Email,
		Subject: req.Subject,
		Message: req.Message,
	}); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, messageResponse{Message: "Thanks for reaching out. We'll get back to you soon."})
}

// Subscribe handles POST /api/newsletter. Subscribing twice succeeds.
func (h *ContactHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.contact.Subscribe(r.Context(), req.Email); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "You're subscribed."})
}
