package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/adcraft/internal/domain"
	"github.com/DukeRupert/adcraft/internal/metrics"
	"github.com/DukeRupert/adcraft/internal/service"
	"github.com/stripe/stripe-go/v79"
)

// maxWebhookBody is the largest webhook payload read.
const maxWebhookBody = 65536

// WebhookVerifier checks Stripe signatures and converts verified events.
// billing.Service satisfies it.
type WebhookVerifier interface {
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)
	ParseEvent(event stripe.Event) (domain.SubscriptionEvent, error)
}

// WebhookHandler handles incoming webhook events from Stripe.
type WebhookHandler struct {
	verifier      WebhookVerifier
	subscriptions service.SubscriptionService
	logger        *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// verifier may be nil when Stripe is not configured; every event is then
// rejected.
func NewWebhookHandler(verifier WebhookVerifier, subscriptions service.SubscriptionService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		verifier:      verifier,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// RegisterRoutes registers webhook routes. The route is public: Stripe
// calls it directly and the request is authenticated by its signature.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook verifies and applies a Stripe event.
//
// Responses:
//   - 400: unreadable body, missing or invalid signature, undecodable event
//   - 500: the reconciler failed; Stripe retries the delivery
//   - 200: applied, unchanged or ignored
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		metrics.RecordWebhookEvent("unknown", "rejected")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		metrics.RecordWebhookEvent("unknown", "rejected")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		h.logger.Warn("webhook missing signature header", "ip", ClientIP(r))
		metrics.RecordWebhookEvent("unknown", "rejected")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	event, err := h.verifier.VerifyWebhookSignature(body, signature)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "ip", ClientIP(r), "error", err)
		metrics.RecordWebhookEvent("unknown", "rejected")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	eventType := string(event.Type)
	h.logger.Info("stripe webhook received", "type", eventType, "id", event.ID)

	parsed, err := h.verifier.ParseEvent(event)
	if err != nil {
		h.logger.Warn("failed to decode webhook event", "type", eventType, "id", event.ID, "error", err)
		metrics.RecordWebhookEvent(eventType, "rejected")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	result, err := h.subscriptions.ApplyEvent(r.Context(), parsed)
	if err != nil {
		var derr *domain.Error
		level := slog.LevelError
		if errors.As(err, &derr) && derr.Code == domain.EUNAVAILABLE {
			level = slog.LevelWarn
		}
		h.logger.Log(r.Context(), level, "failed to apply webhook event",
			"type", eventType,
			"id", event.ID,
			"error", err,
		)
		metrics.RecordWebhookEvent(eventType, "error")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	metrics.RecordWebhookEvent(eventType, string(result.Outcome))
	w.WriteHeader(http.StatusOK)
}
