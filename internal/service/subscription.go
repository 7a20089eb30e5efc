// Package service contains the business logic layer.
//
// This file implements the subscription reconciler: it keeps
// users.subscription_tier in line with Stripe, driven by webhook events and
// by on-demand verification.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/DukeRupert/adcraft/internal/billing"
	"github.com/DukeRupert/adcraft/internal/domain"
	"github.com/DukeRupert/adcraft/internal/metrics"
	"github.com/DukeRupert/adcraft/internal/repository"
	"github.com/google/uuid"
)

// providerName is used in user-facing unavailability messages.
const providerName = "Stripe"

// =============================================================================
// Interface Definition
// =============================================================================

// SubscriptionProvider is the read-only view of the payment provider the
// reconciler needs. billing.Service satisfies it.
type SubscriptionProvider interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*domain.ProviderSubscription, error)
}

// SubscriptionService reconciles a user's tier with the payment provider.
type SubscriptionService interface {
	// ApplyEvent applies a verified webhook event. Events that cannot be tied
	// to a user, lack payment confirmation, or are older than the last sync
	// are ignored without error. Provider lookup failures return
	// domain.EUNAVAILABLE and change nothing.
	ApplyEvent(ctx context.Context, event domain.SubscriptionEvent) (*domain.ApplyResult, error)

	// VerifyAndRepair re-reads the user's linked subscription from the
	// provider and re-applies the status mapping. It never grants PAID
	// without a successful lookup.
	VerifyAndRepair(ctx context.Context, userID uuid.UUID) (*domain.TierUpdate, error)

	// ForcePaid sets a user without a linked subscription to PAID. Only
	// admins may call it; every use is logged at WARN.
	ForcePaid(ctx context.Context, actor *domain.User, userID uuid.UUID, reason string) (*domain.TierUpdate, error)

	// Status reports the stored tier next to the provider's view. Provider
	// errors are reported in the result, not returned.
	Status(ctx context.Context, userID uuid.UUID) (*domain.SubscriptionStatusReport, error)
}

// SubscriptionServiceConfig holds reconciler settings.
type SubscriptionServiceConfig struct {
	// LookupTimeout bounds each provider lookup. Zero uses
	// billing.DefaultLookupTimeout.
	LookupTimeout time.Duration
}

// =============================================================================
// Implementation
// =============================================================================

type subscriptionService struct {
	store         repository.TxQuerier
	provider      SubscriptionProvider
	admins        *AdminPolicy
	logger        *slog.Logger
	lookupTimeout time.Duration
	now           func() time.Time
}

var _ SubscriptionService = (*subscriptionService)(nil)

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(
	store repository.TxQuerier,
	provider SubscriptionProvider,
	admins *AdminPolicy,
	logger *slog.Logger,
	cfg SubscriptionServiceConfig,
) SubscriptionService {
	timeout := cfg.LookupTimeout
	if timeout <= 0 {
		timeout = billing.DefaultLookupTimeout
	}
	return &subscriptionService{
		store:         store,
		provider:      provider,
		admins:        admins,
		logger:        logger,
		lookupTimeout: timeout,
		now:           time.Now,
	}
}

// =============================================================================
// ApplyEvent
// =============================================================================

// ApplyEvent maps a webhook event to a tier change.
//
//	checkout.session.completed     user ref; payment confirmed; tier from provider lookup
//	invoice.payment_succeeded      user ref, sub link or customer link; PAID
//	customer.subscription.updated  user ref or sub link; PAID only when active
//	customer.subscription.deleted  user ref or sub link; FREE and link cleared
//
// The write happens under a row lock. Events created before the user's last
// sync are stale and skipped, so redeliveries and out-of-order events cannot
// flip the tier back.
func (s *subscriptionService) ApplyEvent(ctx context.Context, ev domain.SubscriptionEvent) (*domain.ApplyResult, error) {
	const op = "subscription.apply_event"

	log := s.logger.With("event_id", ev.ID, "event_type", ev.Type)

	if !ev.Type.IsHandled() {
		log.Debug("ignoring unhandled event type")
		return ignored(domain.IgnoreUnhandledType), nil
	}

	userID, found, err := s.resolveUser(ctx, ev)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to resolve webhook user")
	}
	if !found {
		log.Warn("webhook event references no known user",
			"user_ref", ev.UserRef,
			"subscription_ref", ev.SubscriptionRef,
			"customer_ref", ev.CustomerRef,
		)
		return ignored(domain.IgnoreUnresolvableUser), nil
	}
	log = log.With("user_id", userID)

	change := domain.SubscriptionChange{
		UserID:         userID,
		SubscriptionID: ev.SubscriptionRef,
		AsOf:           ev.Created,
		Source:         domain.TierSourceWebhook,
		ProviderStatus: ev.Status,
	}
	// Downgrades only apply to the subscription the user is linked to.
	guardLink := false

	switch ev.Type {
	case domain.EventCheckoutCompleted:
		if !ev.PaymentConfirmed {
			log.Info("checkout completed without payment confirmation, tier unchanged")
			return ignored(domain.IgnorePaymentUnconfirmed), nil
		}
		if ev.SubscriptionRef == "" {
			log.Warn("checkout completed without a subscription")
			return ignored(domain.IgnoreMissingSubscription), nil
		}
		sub, err := s.lookup(ctx, ev.SubscriptionRef)
		if err != nil {
			log.Error("subscription lookup failed, tier unchanged", "subscription_id", ev.SubscriptionRef, "error", err)
			return nil, domain.ProviderUnavailable(err, op, providerName)
		}
		change.Tier = domain.TierForStatus(sub.Status)
		change.ProviderStatus = sub.Status
		change.CustomerID = ev.CustomerRef

	case domain.EventInvoicePaymentSucceeded:
		if ev.SubscriptionRef == "" {
			log.Debug("invoice without a subscription")
			return ignored(domain.IgnoreMissingSubscription), nil
		}
		change.Tier = domain.SubscriptionTierPaid
		change.CustomerID = ev.CustomerRef

	case domain.EventSubscriptionUpdated:
		if ev.SubscriptionRef == "" {
			return ignored(domain.IgnoreMissingSubscription), nil
		}
		change.Tier = domain.TierForUpdatedStatus(ev.Status)
		guardLink = change.Tier == domain.SubscriptionTierFree

	case domain.EventSubscriptionDeleted:
		change.Tier = domain.SubscriptionTierFree
		change.SubscriptionID = ""
		guardLink = true
	}

	result, err := s.commit(ctx, change, func(u repository.User) string {
		if guardLink && u.SubscriptionID.Valid && ev.SubscriptionRef != "" && u.SubscriptionID.String != ev.SubscriptionRef {
			return domain.IgnoreOtherSubscription
		}
		return ""
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to apply subscription change")
	}

	switch result.Outcome {
	case domain.OutcomeApplied:
		log.Info("subscription tier updated",
			"before", result.Update.Before,
			"after", result.Update.After,
			"subscription_id", result.Update.SubscriptionIDAfter,
		)
	case domain.OutcomeIgnored:
		log.Info("webhook event skipped", "reason", result.Reason)
	default:
		log.Debug("webhook event produced no change")
	}
	return result, nil
}

// resolveUser finds the user an event is about. An explicit user reference
// wins; otherwise the stored subscription link, then (for invoices) the
// stored customer link. A reference that names no user is never guessed
// around.
func (s *subscriptionService) resolveUser(ctx context.Context, ev domain.SubscriptionEvent) (uuid.UUID, bool, error) {
	if ev.UserRef != "" {
		id, err := uuid.Parse(ev.UserRef)
		if err != nil {
			return uuid.Nil, false, nil
		}
		return s.userExists(s.store.GetUserByID(ctx, id))
	}

	if ev.Type == domain.EventCheckoutCompleted {
		return uuid.Nil, false, nil
	}

	if ev.SubscriptionRef != "" {
		id, found, err := s.userExists(s.store.GetUserBySubscriptionID(ctx, domain.ToNullString(ev.SubscriptionRef)))
		if err != nil || found {
			return id, found, err
		}
	}

	if ev.Type == domain.EventInvoicePaymentSucceeded && ev.CustomerRef != "" {
		return s.userExists(s.store.GetUserByStripeCustomerID(ctx, domain.ToNullString(ev.CustomerRef)))
	}
	return uuid.Nil, false, nil
}

func (s *subscriptionService) userExists(u repository.User, err error) (uuid.UUID, bool, error) {
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, err
	}
	return u.ID, true, nil
}

// =============================================================================
// VerifyAndRepair
// =============================================================================

func (s *subscriptionService) VerifyAndRepair(ctx context.Context, userID uuid.UUID) (*domain.TierUpdate, error) {
	const op = "subscription.verify"

	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", userID.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}
	if !u.SubscriptionID.Valid || u.SubscriptionID.String == "" {
		return nil, domain.Conflict(op, "No linked subscription to verify")
	}
	subID := u.SubscriptionID.String

	sub, err := s.lookup(ctx, subID)
	if err != nil {
		s.logger.Warn("verify: subscription lookup failed, tier unchanged",
			"user_id", userID,
			"subscription_id", subID,
			"error", err,
		)
		return nil, domain.ProviderUnavailable(err, op, providerName)
	}

	result, err := s.commit(ctx, domain.SubscriptionChange{
		UserID:         userID,
		Tier:           domain.TierForStatus(sub.Status),
		SubscriptionID: subID,
		CustomerID:     sub.CustomerID,
		AsOf:           s.now(),
		Source:         domain.TierSourceVerify,
		ProviderStatus: sub.Status,
	}, func(cur repository.User) string {
		if cur.SubscriptionID.String != subID {
			return domain.IgnoreOtherSubscription
		}
		return ""
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to update subscription")
	}
	if result.Outcome == domain.OutcomeIgnored {
		return nil, domain.Conflict(op, "Subscription changed during verification, please retry")
	}

	s.logger.Info("subscription verified",
		"user_id", userID,
		"subscription_id", subID,
		"provider_status", sub.Status,
		"before", result.Update.Before,
		"after", result.Update.After,
	)
	return result.Update, nil
}

// =============================================================================
// ForcePaid
// =============================================================================

// ForcePaid is the manual recovery path for a user who paid but has no
// subscription on record. It is never reached from webhook handling or from
// a failed lookup.
func (s *subscriptionService) ForcePaid(ctx context.Context, actor *domain.User, userID uuid.UUID, reason string) (*domain.TierUpdate, error) {
	const op = "subscription.force_paid"

	if !s.admins.IsAdmin(actor) {
		return nil, domain.Forbidden(op, "Only administrators can override a subscription")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.Invalid(op, "A reason is required")
	}

	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", userID.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	result, err := s.commit(ctx, domain.SubscriptionChange{
		UserID: userID,
		Tier:   domain.SubscriptionTierPaid,
		Source: domain.TierSourceManual,
	}, func(cur repository.User) string {
		if cur.SubscriptionID.Valid && cur.SubscriptionID.String != "" {
			return domain.IgnoreOtherSubscription
		}
		return ""
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to update subscription")
	}
	if result.Outcome == domain.OutcomeIgnored {
		return nil, domain.Conflict(op, "User has a linked subscription; verify it instead")
	}

	s.logger.Warn("subscription manually forced to PAID",
		"actor_id", actor.ID,
		"actor_email", actor.Email,
		"user_id", userID,
		"reason", reason,
		"before", result.Update.Before,
		"changed", result.Update.Changed,
	)
	return result.Update, nil
}

// =============================================================================
// Status
// =============================================================================

func (s *subscriptionService) Status(ctx context.Context, userID uuid.UUID) (*domain.SubscriptionStatusReport, error) {
	const op = "subscription.status"

	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", userID.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	report := &domain.SubscriptionStatusReport{
		UserID:         u.ID,
		Email:          u.Email,
		Tier:           domain.SubscriptionTier(u.SubscriptionTier),
		SubscriptionID: domain.NullStringValue(u.SubscriptionID),
		InSync:         true,
	}
	if report.SubscriptionID == "" {
		return report, nil
	}

	sub, err := s.lookup(ctx, report.SubscriptionID)
	if err != nil {
		s.logger.Warn("status: subscription lookup failed", "user_id", userID, "error", err)
		report.ProviderError = domain.ProviderUnavailable(err, op, providerName).Message
		report.InSync = false
		return report, nil
	}
	report.Provider = sub
	report.InSync = domain.TierForStatus(sub.Status) == report.Tier
	return report, nil
}

// =============================================================================
// Helpers
// =============================================================================

// lookup fetches a subscription within the lookup timeout.
func (s *subscriptionService) lookup(ctx context.Context, subscriptionID string) (*domain.ProviderSubscription, error) {
	if s.provider == nil {
		return nil, errProviderNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	start := time.Now()
	sub, err := s.provider.GetSubscription(ctx, subscriptionID)
	metrics.RecordStripeLookup(time.Since(start), err)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, errors.New("provider returned no subscription")
	}
	return sub, nil
}

var errProviderNotConfigured = errors.New("payment provider is not configured")

// commit writes change under a row lock. check may veto the change after the
// lock is taken by returning an ignore reason.
func (s *subscriptionService) commit(ctx context.Context, change domain.SubscriptionChange, check func(repository.User) string) (*domain.ApplyResult, error) {
	var result *domain.ApplyResult

	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		cur, err := q.GetUserForUpdate(ctx, change.UserID)
		if err != nil {
			return err
		}

		if !change.AsOf.IsZero() && cur.SubscriptionSyncedAt.Valid && change.AsOf.Before(cur.SubscriptionSyncedAt.Time) {
			result = ignored(domain.IgnoreStaleEvent)
			return nil
		}
		if check != nil {
			if reason := check(cur); reason != "" {
				result = ignored(reason)
				return nil
			}
		}

		update := &domain.TierUpdate{
			UserID:               cur.ID,
			Before:               domain.SubscriptionTier(cur.SubscriptionTier),
			After:                change.Tier,
			SubscriptionIDBefore: domain.NullStringValue(cur.SubscriptionID),
			SubscriptionIDAfter:  change.SubscriptionID,
			ProviderStatus:       change.ProviderStatus,
			Source:               change.Source,
		}
		customerChanged := change.CustomerID != "" && change.CustomerID != domain.NullStringValue(cur.StripeCustomerID)
		if update.Before == update.After && update.SubscriptionIDBefore == update.SubscriptionIDAfter && !customerChanged {
			result = &domain.ApplyResult{Outcome: domain.OutcomeUnchanged, Update: update}
			return nil
		}

		syncedAt := sql.NullTime{Time: change.AsOf, Valid: true}
		if syncedAt.Time.IsZero() {
			syncedAt.Time = s.now()
		}
		// A manual override carries no provider state, so it must not order
		// itself ahead of events Stripe has yet to deliver.
		if change.Source == domain.TierSourceManual {
			syncedAt = cur.SubscriptionSyncedAt
		}
		if _, err := q.UpdateUserSubscription(ctx, repository.UpdateUserSubscriptionParams{
			ID:                   cur.ID,
			SubscriptionTier:     string(change.Tier),
			SubscriptionID:       domain.ToNullString(change.SubscriptionID),
			SubscriptionSyncedAt: syncedAt,
			StripeCustomerID:     domain.ToNullString(change.CustomerID),
		}); err != nil {
			return err
		}

		update.Changed = true
		result = &domain.ApplyResult{Outcome: domain.OutcomeApplied, Update: update}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTierUpdate(result.Update)
	return result, nil
}

func ignored(reason string) *domain.ApplyResult {
	return &domain.ApplyResult{Outcome: domain.OutcomeIgnored, Reason: reason}
}
