package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionTier is the application's binary billing tier.
type SubscriptionTier string

const (
	SubscriptionTierFree SubscriptionTier = "FREE"
	SubscriptionTierPaid SubscriptionTier = "PAID"
)

// IsValid returns true if the tier is a recognized value.
func (t SubscriptionTier) IsValid() bool {
	return t == SubscriptionTierFree || t == SubscriptionTierPaid
}

// Provider-side subscription statuses that the reconciler cares about. Any
// other status maps to the free tier.
const (
	ProviderStatusActive   = "active"
	ProviderStatusTrialing = "trialing"
	ProviderStatusCanceled = "canceled"
)

// TierForStatus maps a provider subscription status to a tier. Only active
// and trialing subscriptions grant the paid tier.
func TierForStatus(status string) SubscriptionTier {
	switch status {
	case ProviderStatusActive, ProviderStatusTrialing:
		return SubscriptionTierPaid
	default:
		return SubscriptionTierFree
	}
}

// TierForUpdatedStatus maps the status carried by a subscription update
// event. A trial reported through an update does not grant the paid tier;
// only checkout confirmation and verification accept trialing.
func TierForUpdatedStatus(status string) SubscriptionTier {
	if status == ProviderStatusActive {
		return SubscriptionTierPaid
	}
	return SubscriptionTierFree
}

// =============================================================================
// Webhook Events
// =============================================================================

// EventType identifies a payment provider webhook event.
type EventType string

const (
	EventCheckoutCompleted       EventType = "checkout.session.completed"
	EventInvoicePaymentSucceeded EventType = "invoice.payment_succeeded"
	EventSubscriptionUpdated     EventType = "customer.subscription.updated"
	EventSubscriptionDeleted     EventType = "customer.subscription.deleted"
)

// IsHandled returns true for the event types the reconciler acts on.
func (t EventType) IsHandled() bool {
	switch t {
	case EventCheckoutCompleted, EventInvoicePaymentSucceeded,
		EventSubscriptionUpdated, EventSubscriptionDeleted:
		return true
	}
	return false
}

// SubscriptionEvent is a verified, provider-neutral view of a webhook event.
//
// UserRef is whatever user identifier the provider echoed back to us
// (client_reference_id or metadata.userId). It is never trusted blindly:
// the reconciler resolves it against the users table.
type SubscriptionEvent struct {
	ID               string
	Type             EventType
	Created          time.Time
	UserRef          string
	SubscriptionRef  string
	CustomerRef      string
	Status           string // provider subscription status, when the payload carries one
	PaymentConfirmed bool   // checkout only
}

// =============================================================================
// Reconciliation Results
// =============================================================================

// TierUpdateSource records what triggered a tier change.
type TierUpdateSource string

const (
	TierSourceWebhook TierUpdateSource = "webhook"
	TierSourceVerify  TierUpdateSource = "verify"
	TierSourceManual  TierUpdateSource = "manual"
)

// TierUpdate reports the before and after state of a reconciliation.
type TierUpdate struct {
	UserID               uuid.UUID        `json:"user_id"`
	Before               SubscriptionTier `json:"before"`
	After                SubscriptionTier `json:"after"`
	SubscriptionIDBefore string           `json:"subscription_id_before,omitempty"`
	SubscriptionIDAfter  string           `json:"subscription_id_after,omitempty"`
	ProviderStatus       string           `json:"provider_status,omitempty"`
	Source               TierUpdateSource `json:"source"`
	Changed              bool             `json:"changed"`
}

// ApplyOutcome classifies the result of applying a webhook event.
type ApplyOutcome string

const (
	OutcomeApplied   ApplyOutcome = "applied"
	OutcomeUnchanged ApplyOutcome = "unchanged"
	OutcomeIgnored   ApplyOutcome = "ignored"
)

// Reasons an event was ignored.
const (
	IgnoreUnhandledType       = "unhandled_event_type"
	IgnoreUnresolvableUser    = "unresolvable_user"
	IgnorePaymentUnconfirmed  = "payment_not_confirmed"
	IgnoreMissingSubscription = "missing_subscription"
	IgnoreStaleEvent          = "stale_event"
	IgnoreOtherSubscription   = "other_subscription"
)

// ApplyResult is returned by the reconciler for each event.
type ApplyResult struct {
	Outcome ApplyOutcome
	Reason  string
	Update  *TierUpdate
}

// SubscriptionChange is a requested write to a user's subscription link.
type SubscriptionChange struct {
	UserID         uuid.UUID
	Tier           SubscriptionTier
	SubscriptionID string // empty clears the link
	CustomerID     string // empty leaves the stored customer untouched
	AsOf           time.Time
	Source         TierUpdateSource
	ProviderStatus string
}

// ProviderSubscription is the subset of the provider's subscription object the
// application reads.
type ProviderSubscription struct {
	ID                string    `json:"id"`
	Status            string    `json:"status"`
	CustomerID        string    `json:"customer_id,omitempty"`
	CurrentPeriodEnd  time.Time `json:"current_period_end"`
	CancelAtPeriodEnd bool      `json:"cancel_at_period_end"`
}

// SubscriptionStatusReport is the diagnostic view of a user's subscription.
type SubscriptionStatusReport struct {
	UserID         uuid.UUID             `json:"user_id"`
	Email          string                `json:"email"`
	Tier           SubscriptionTier      `json:"tier"`
	SubscriptionID string                `json:"subscription_id,omitempty"`
	Provider       *ProviderSubscription `json:"provider,omitempty"`
	ProviderError  string                `json:"provider_error,omitempty"`
	InSync         bool                  `json:"in_sync"`
}
