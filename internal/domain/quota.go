// Package domain contains core business types and interfaces.
//
// This file defines the quota view of a user record.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserQuotaState is the subset of a user record the quota gate reads.
//
// GenerationsToday is only meaningful relative to LastGenerationDay: once the
// current UTC day is after LastGenerationDay the counter is logically zero,
// whatever value is stored.
type UserQuotaState struct {
	UserID            uuid.UUID
	Tier              SubscriptionTier
	GenerationsToday  int
	LastGenerationDay *time.Time
}

// QuotaUsage represents today's usage against the daily limit.
type QuotaUsage struct {
	Tier      SubscriptionTier `json:"tier"`
	Used      int              `json:"used"`
	Limit     int              `json:"limit"`
	Remaining int              `json:"remaining"`
	ResetsAt  time.Time        `json:"resets_at"`
}
