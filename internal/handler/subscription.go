package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/adcraft/internal/auth"
	"github.com/DukeRupert/adcraft/internal/service"
)

// SubscriptionHandler exposes subscription diagnostics for the current user.
type SubscriptionHandler struct {
	subscriptions service.SubscriptionService
	logger        *slog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(subscriptions service.SubscriptionService, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// RegisterRoutes registers subscription routes behind requireUser.
func (h *SubscriptionHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /api/subscription/status", requireUser(http.HandlerFunc(h.Status)))
	mux.Handle("POST /api/subscription/verify", requireUser(http.HandlerFunc(h.Verify)))
}

// Status handles GET /api/subscription/status. Provider failures are
// reported in the body rather than as an error status.
func (h *SubscriptionHandler) Status(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	report, err := h.subscriptions.Status(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Verify handles POST /api/subscription/verify for the current user.
func (h *SubscriptionHandler) Verify(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	update, err := h.subscriptions.VerifyAndRepair(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, update)
}
