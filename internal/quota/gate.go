// Package quota decides whether a user may start a new generation today.
//
// The gate is pure: it reads a user's quota state and the current time and
// returns a Decision. Persisting an allowed decision is the caller's job and
// must happen atomically with creating the generation record (see
// repository.ReserveGenerationSlot).
//
// Day boundaries are UTC midnight for every user. Each decision carries
// ResetsAt so clients can show when the limit rolls over.
package quota

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/adcraft/internal/domain"
)

// =============================================================================
// Clock
// =============================================================================

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant. Useful in tests.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return time.Time(c) }

// Today truncates t to midnight UTC.
func Today(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// Limits
// =============================================================================

// DailyLimits holds the per-tier number of generations allowed per UTC day.
type DailyLimits struct {
	Free int
	Paid int
}

// DefaultLimits mirrors the defaults of FREE_TIER_DAILY_LIMIT and PAID_TIER_DAILY_LIMIT.
var DefaultLimits = DailyLimits{Free: 3, Paid: 10}

// Validate rejects negative limits.
func (l DailyLimits) Validate() error {
	if l.Free < 0 || l.Paid < 0 {
		return fmt.Errorf("daily limits must not be negative (free=%d, paid=%d)", l.Free, l.Paid)
	}
	return nil
}

// For returns the limit for a tier and whether the tier was recognized.
// Unknown tiers get the free limit.
func (l DailyLimits) For(tier domain.SubscriptionTier) (int, bool) {
	switch tier {
	case domain.SubscriptionTierPaid:
		return l.Paid, true
	case domain.SubscriptionTierFree:
		return l.Free, true
	default:
		return l.Free, false
	}
}

// =============================================================================
// Decision
// =============================================================================

// DenyReason explains a denied decision.
type DenyReason string

const (
	ReasonNone          DenyReason = ""
	ReasonQuotaExceeded DenyReason = "quota_exceeded"
	ReasonUserNotFound  DenyReason = "user_not_found"
)

// Decision is the outcome of CheckAndReserve.
type Decision struct {
	Allowed bool
	Reason  DenyReason

	// Tier is the tier the limit was taken from. Unknown tiers are reported
	// as FREE since that is the limit applied.
	Tier  domain.SubscriptionTier
	Limit int

	// Used is the effective usage before this request (zero after a rollover).
	Used int

	// Set only when Allowed.
	NewUsage             int
	NewLastGenerationDay time.Time

	ResetsAt time.Time
}

// Usage converts the decision into the client-facing usage view, counting
// the reserved slot when the decision is allowed.
func (d Decision) Usage() domain.QuotaUsage {
	used := d.Used
	if d.Allowed {
		used = d.NewUsage
	}
	remaining := d.Limit - used
	if remaining < 0 {
		remaining = 0
	}
	return domain.QuotaUsage{
		Tier:      d.Tier,
		Used:      used,
		Limit:     d.Limit,
		Remaining: remaining,
		ResetsAt:  d.ResetsAt,
	}
}

// Err converts a denied decision into a domain error. Allowed decisions return nil.
func (d Decision) Err(op string) error {
	switch d.Reason {
	case ReasonNone:
		return nil
	case ReasonUserNotFound:
		return domain.Unauthorized(op, "Your session is no longer valid. Please sign in again.")
	default:
		return domain.QuotaExceeded(op, d.Tier, d.Used, d.Limit, d.ResetsAt)
	}
}

// =============================================================================
// Gate
// =============================================================================

// Gate evaluates quota decisions against injected limits and clock.
type Gate struct {
	limits DailyLimits
	clock  Clock
	logger *slog.Logger
}

// NewGate creates a Gate. A nil clock uses the system clock.
func NewGate(limits DailyLimits, clock Clock, logger *slog.Logger) *Gate {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Gate{limits: limits, clock: clock, logger: logger}
}

// Limits returns the configured daily limits.
func (g *Gate) Limits() DailyLimits {
	return g.limits
}

// Now returns the gate's current time.
func (g *Gate) Now() time.Time {
	return g.clock.Now()
}

// CheckAndReserve decides whether the user may start a generation now.
//
// A nil state means the user does not exist. The returned decision has no
// side effects; an allowed decision must be persisted by the caller.
func (g *Gate) CheckAndReserve(state *domain.UserQuotaState) Decision {
	today := Today(g.clock.Now())
	resetsAt := today.AddDate(0, 0, 1)

	if state == nil {
		return Decision{Reason: ReasonUserNotFound, ResetsAt: resetsAt}
	}

	limit, known := g.limits.For(state.Tier)
	tier := state.Tier
	if !known {
		g.logger.Warn("unrecognized subscription tier, applying free limit",
			"user_id", state.UserID,
			"tier", state.Tier,
		)
		tier = domain.SubscriptionTierFree
	}

	used := EffectiveUsage(state, today)

	if used >= limit {
		return Decision{
			Reason:   ReasonQuotaExceeded,
			Tier:     tier,
			Limit:    limit,
			Used:     used,
			ResetsAt: resetsAt,
		}
	}

	return Decision{
		Allowed:              true,
		Tier:                 tier,
		Limit:                limit,
		Used:                 used,
		NewUsage:             used + 1,
		NewLastGenerationDay: today,
		ResetsAt:             resetsAt,
	}
}

// Usage reports the user's usage today without reserving anything.
func (g *Gate) Usage(state *domain.UserQuotaState) domain.QuotaUsage {
	d := g.CheckAndReserve(state)
	d.Allowed = false
	return d.Usage()
}

// EffectiveUsage returns the stored counter when it belongs to today and zero
// when the last generation day is absent or earlier.
func EffectiveUsage(state *domain.UserQuotaState, today time.Time) int {
	if state.LastGenerationDay == nil || Today(*state.LastGenerationDay).Before(today) {
		return 0
	}
	if state.GenerationsToday < 0 {
		return 0
	}
	return state.GenerationsToday
}
