// Package billing provides Stripe billing integration for subscription management.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DukeRupert/adcraft/internal/domain"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	billingportalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/subscription"
	"github.com/stripe/stripe-go/v79/webhook"
)

// MetadataUserID is the metadata key carrying our user ID on checkout
// sessions and subscriptions.
const MetadataUserID = "userId"

// DefaultLookupTimeout bounds subscription lookups when none is configured.
const DefaultLookupTimeout = 10 * time.Second

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("stripe webhook signature verification failed")

// Service defines the interface for billing operations.
type Service interface {
	// CreateCustomer creates a new Stripe customer tagged with the user ID.
	CreateCustomer(ctx context.Context, userID uuid.UUID, email, name string) (string, error)

	// CreateCheckoutSession creates a subscription Checkout session.
	// The session and the resulting subscription both carry the user ID.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)

	// CreatePortalSession creates a Stripe Customer Portal session.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)

	// GetSubscription retrieves a subscription by ID within the lookup timeout.
	GetSubscription(ctx context.Context, subscriptionID string) (*domain.ProviderSubscription, error)

	// VerifyWebhookSignature verifies the payload against the signing secret.
	// A missing secret or signature fails closed with ErrInvalidSignature.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)

	// ParseEvent converts a verified event into the reconciler's view.
	ParseEvent(event stripe.Event) (domain.SubscriptionEvent, error)
}

// Config holds Stripe credentials and settings.
type Config struct {
	SecretKey     string
	WebhookSecret string
	PriceID       string
	LookupTimeout time.Duration
}

// CheckoutParams describes a subscription checkout for one user.
type CheckoutParams struct {
	UserID     uuid.UUID
	CustomerID string // reused when the user already has a Stripe customer
	Email      string
	PriceID    string // defaults to the configured price
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is the part of a Checkout session the client needs.
type CheckoutSession struct {
	ID  string `json:"session_id"`
	URL string `json:"url"`
}

// stripeService is the concrete implementation of Service.
type stripeService struct {
	webhookSecret string
	priceID       string
	lookupTimeout time.Duration
}

// NewStripeService creates a new Stripe billing service.
func NewStripeService(cfg Config) Service {
	stripe.Key = cfg.SecretKey

	timeout := cfg.LookupTimeout
	if timeout <= 0 {
		timeout = DefaultLookupTimeout
	}

	return &stripeService{
		webhookSecret: cfg.WebhookSecret,
		priceID:       cfg.PriceID,
		lookupTimeout: timeout,
	}
}

func (s *stripeService) CreateCustomer(ctx context.Context, userID uuid.UUID, email, name string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
	}
	params.Context = ctx
	params.AddMetadata(MetadataUserID, userID.String())

	c, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return c.ID, nil
}

func (s *stripeService) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	priceID := p.PriceID
	if priceID == "" {
		priceID = s.priceID
	}
	if priceID == "" {
		return nil, errors.New("stripe create checkout session: no price configured")
	}

	userRef := p.UserID.String()
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(userRef),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{MetadataUserID: userRef},
		},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	} else {
		params.CustomerEmail = stripe.String(p.Email)
	}
	params.Context = ctx
	params.AddMetadata(MetadataUserID, userRef)

	sess, err := checkoutsession.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (s *stripeService) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := billingportalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create portal session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) GetSubscription(ctx context.Context, subscriptionID string) (*domain.ProviderSubscription, error) {
	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get subscription %s: %w", subscriptionID, err)
	}
	return toProviderSubscription(sub), nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	if s.webhookSecret == "" || signature == "" {
		return stripe.Event{}, fmt.Errorf("%w: missing secret or signature", ErrInvalidSignature)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

func (s *stripeService) ParseEvent(event stripe.Event) (domain.SubscriptionEvent, error) {
	return ParseEvent(event)
}

func toProviderSubscription(sub *stripe.Subscription) *domain.ProviderSubscription {
	ps := &domain.ProviderSubscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		ps.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		ps.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	return ps
}
