package metrics

import (
	"time"

	"github.com/DukeRupert/adcraft/internal/domain"
)

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordQuotaDecision counts one gate decision.
func RecordQuotaDecision(tier domain.SubscriptionTier, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	QuotaDecisionsTotal.WithLabelValues(string(tier), outcome).Inc()
}

// RecordGeneration records a generation reaching a terminal status.
func RecordGeneration(platform domain.Platform, status domain.GenerationStatus, duration time.Duration) {
	GenerationsTotal.WithLabelValues(string(platform), string(status)).Inc()
	GenerationDuration.WithLabelValues(string(platform)).Observe(duration.Seconds())
}

// RecordAICall records one provider call.
func RecordAICall(operation string, duration time.Duration, err error) {
	AIAPICalls.WithLabelValues(operation, statusLabel(err)).Inc()
	AIRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAITokens adds token usage reported by the provider.
func RecordAITokens(input, output int) {
	if input > 0 {
		AITokensTotal.WithLabelValues("input").Add(float64(input))
	}
	if output > 0 {
		AITokensTotal.WithLabelValues("output").Add(float64(output))
	}
}

// RecordWebhookEvent counts a processed webhook. outcome is an
// ApplyOutcome, "rejected" or "error".
func RecordWebhookEvent(eventType string, outcome string) {
	WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// RecordTierUpdate counts tier changes. Unchanged updates are not recorded.
func RecordTierUpdate(u *domain.TierUpdate) {
	if u == nil || u.Before == u.After {
		return
	}
	TierTransitionsTotal.WithLabelValues(string(u.Before), string(u.After), string(u.Source)).Inc()
}

// RecordStripeLookup records one subscription lookup.
func RecordStripeLookup(duration time.Duration, err error) {
	StripeLookupsTotal.WithLabelValues(statusLabel(err)).Inc()
	StripeLookupDuration.Observe(duration.Seconds())
}

// RecordImageUpload counts an upload attempt.
func RecordImageUpload(err error) {
	ImagesUploadedTotal.WithLabelValues(statusLabel(err)).Inc()
}
