package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/adcraft/internal/auth"
	"github.com/DukeRupert/adcraft/internal/domain"
	"github.com/DukeRupert/adcraft/internal/service"
)

// BillingHandler starts Stripe Checkout and Customer Portal sessions.
type BillingHandler struct {
	billing service.BillingService
	logger  *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
// billingService may be nil when Stripe is not configured.
func NewBillingHandler(billingService service.BillingService, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing: billingService,
		logger:  logger,
	}
}

// RegisterRoutes registers billing routes behind requireUser.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/billing/checkout", requireUser(http.HandlerFunc(h.Checkout)))
	mux.Handle("POST /api/billing/portal", requireUser(http.HandlerFunc(h.Portal)))
}

type redirectResponse struct {
	ID  string `json:"id,omitempty"`
	URL string `json:"url"`
}

// Checkout handles POST /api/billing/checkout and returns the hosted
// checkout URL.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	if h.billing == nil {
		ErrorResponse(w, r, h.logger, billingNotConfigured("billing.checkout"))
		return
	}

	sess, err := h.billing.Checkout(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, redirectResponse{ID: sess.ID, URL: sess.URL})
}

// Portal handles POST /api/billing/portal and returns the portal URL.
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	if h.billing == nil {
		ErrorResponse(w, r, h.logger, billingNotConfigured("billing.portal"))
		return
	}

	url, err := h.billing.Portal(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, redirectResponse{URL: url})
}

func billingNotConfigured(op string) error {
	return domain.Errorf(domain.ENOTIMPL, op, "Billing is not configured")
}
