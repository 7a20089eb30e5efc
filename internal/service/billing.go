// Package service contains the business logic layer.
//
// This file implements the billing service that starts Stripe Checkout and
// Customer Portal sessions. Tier changes never happen here; they arrive
// through SubscriptionService.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"github.com/DukeRupert/adcraft/internal/billing"
	"github.com/DukeRupert/adcraft/internal/domain"
	"github.com/DukeRupert/adcraft/internal/repository"
	"github.com/google/uuid"
)

// CheckoutProvider is the part of billing.Service that starts sessions.
type CheckoutProvider interface {
	CreateCustomer(ctx context.Context, userID uuid.UUID, email, name string) (string, error)
	CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (*billing.CheckoutSession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// BillingService defines checkout and portal operations.
type BillingService interface {
	// Checkout creates a subscription checkout for the user, creating and
	// saving a Stripe customer first when they have none. Paid users get
	// domain.ECONFLICT.
	Checkout(ctx context.Context, userID uuid.UUID) (*billing.CheckoutSession, error)

	// Portal returns a Customer Portal link. Users without a Stripe
	// customer get domain.ECONFLICT.
	Portal(ctx context.Context, userID uuid.UUID) (string, error)
}

type billingService struct {
	store    repository.Querier
	provider CheckoutProvider
	baseURL  string
	logger   *slog.Logger
}

var _ BillingService = (*billingService)(nil)

// NewBillingService creates a new BillingService. baseURL is the public
// origin used for the success, cancel and return links.
func NewBillingService(store repository.Querier, provider CheckoutProvider, baseURL string, logger *slog.Logger) BillingService {
	return &billingService{
		store:    store,
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
	}
}

func (s *billingService) Checkout(ctx context.Context, userID uuid.UUID) (*billing.CheckoutSession, error) {
	const op = "billing.checkout"

	u, err := s.loadUser(ctx, op, userID)
	if err != nil {
		return nil, err
	}
	if u.SubscriptionTier == string(domain.SubscriptionTierPaid) && u.SubscriptionID.Valid {
		return nil, domain.Conflict(op, "You already have an active subscription. Manage it from the billing portal.")
	}

	customerID := domain.NullStringValue(u.StripeCustomerID)
	if customerID == "" {
		customerID, err = s.provider.CreateCustomer(ctx, u.ID, u.Email, u.Name)
		if err != nil {
			s.logger.Error("failed to create stripe customer", "user_id", u.ID, "error", err)
			return nil, domain.ProviderUnavailable(err, op, providerName)
		}
		if err := s.store.UpdateUserStripeCustomerID(ctx, repository.UpdateUserStripeCustomerIDParams{
			ID:               u.ID,
			StripeCustomerID: domain.ToNullString(customerID),
		}); err != nil {
			// The webhook stores the customer again on checkout, so carry on.
			s.logger.Error("failed to save stripe customer id", "user_id", u.ID, "customer_id", customerID, "error", err)
		}
	}

	session, err := s.provider.CreateCheckoutSession(ctx, billing.CheckoutParams{
		UserID:     u.ID,
		CustomerID: customerID,
		Email:      u.Email,
		SuccessURL: s.baseURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.baseURL + "/billing",
	})
	if err != nil {
		s.logger.Error("failed to create checkout session", "user_id", u.ID, "error", err)
		return nil, domain.ProviderUnavailable(err, op, providerName)
	}

	s.logger.Info("checkout session created", "user_id", u.ID, "session_id", session.ID)
	return session, nil
}

func (s *billingService) Portal(ctx context.Context, userID uuid.UUID) (string, error) {
	const op = "billing.portal"

	u, err := s.loadUser(ctx, op, userID)
	if err != nil {
		return "", err
	}
	customerID := domain.NullStringValue(u.StripeCustomerID)
	if customerID == "" {
		return "", domain.Conflict(op, "No billing account yet. Start a subscription first.")
	}

	url, err := s.provider.CreatePortalSession(ctx, customerID, s.baseURL+"/billing")
	if err != nil {
		s.logger.Error("failed to create portal session", "user_id", u.ID, "error", err)
		return "", domain.ProviderUnavailable(err, op, providerName)
	}
	return url, nil
}

func (s *billingService) loadUser(ctx context.Context, op string, userID uuid.UUID) (repository.User, error) {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.User{}, domain.NotFound(op, "user", userID.String())
		}
		return repository.User{}, domain.Internal(err, op, "Failed to retrieve user")
	}
	return u, nil
}
