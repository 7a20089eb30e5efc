package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/adcraft/internal/auth"
	"github.com/DukeRupert/adcraft/internal/service"
)

// AdminHandler handles admin-only subscription support operations.
type AdminHandler struct {
	subscriptions service.SubscriptionService
	logger        *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(subscriptions service.SubscriptionService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// RegisterRoutes registers admin routes behind requireAdmin.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux, requireAdmin func(http.Handler) http.Handler) {
	mux.Handle("GET /admin/users/{id}/subscription", requireAdmin(http.HandlerFunc(h.SubscriptionStatus)))
	mux.Handle("POST /admin/users/{id}/subscription/verify", requireAdmin(http.HandlerFunc(h.VerifySubscription)))
	mux.Handle("POST /admin/users/{id}/subscription/force-paid", requireAdmin(http.HandlerFunc(h.ForcePaid)))
}

// SubscriptionStatus handles GET /admin/users/{id}/subscription.
func (h *AdminHandler) SubscriptionStatus(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id", "user")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	report, err := h.subscriptions.Status(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// VerifySubscription handles POST /admin/users/{id}/subscription/verify.
func (h *AdminHandler) VerifySubscription(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetUserFromRequest(r)
	if actor == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	userID, err := pathID(r, "id", "user")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	update, err := h.subscriptions.VerifyAndRepair(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	h.logger.Info("admin verified subscription",
		"actor_id", actor.ID,
		"user_id", userID,
		"changed", update.Changed,
	)
	writeJSON(w, http.StatusOK, update)
}

type forcePaidRequest struct {
	Reason string `json:"reason"`
}

// ForcePaid handles POST /admin/users/{id}/subscription/force-paid.
// The reason is required and recorded in the log.
func (h *AdminHandler) ForcePaid(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetUserFromRequest(r)
	if actor == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	userID, err := pathID(r, "id", "user")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req forcePaidRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	update, err := h.subscriptions.ForcePaid(r.Context(), actor, userID, req.Reason)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, update)
}
