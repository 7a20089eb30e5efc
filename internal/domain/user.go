// Package domain contains core business types and interfaces.
//
// This file defines the User domain type and related types for authentication.
// These types are separate from the repository models to allow for business logic
// enrichment and to decouple the domain layer from the database layer.
package domain

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Role controls access to administrative operations.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User represents a registered user of the AdCraft platform.
//
// This is the domain representation of a user, designed for use in business logic.
// It differs from repository.User in that:
// - It uses proper Go types instead of sql.Null* types where appropriate
// - It provides helper methods for common checks
type User struct {
	ID               uuid.UUID
	Email            string
	PasswordHash     string // Never expose this in API responses
	Name             string
	Role             Role
	StripeCustomerID string

	// SubscriptionTier is the only input the quota gate uses for limit lookup.
	// It is written exclusively by SubscriptionService.
	SubscriptionTier     SubscriptionTier
	SubscriptionID       string
	SubscriptionSyncedAt *time.Time

	// Quota counters, written exclusively by the generation reservation.
	GenerationsToday  int
	LastGenerationDay *time.Time

	EmailVerified   bool
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsPaid returns true if the user is on the paid tier.
func (u *User) IsPaid() bool {
	return u.SubscriptionTier == SubscriptionTierPaid
}

// HasSubscriptionLink returns true if the user is linked to a provider subscription.
func (u *User) HasSubscriptionLink() bool {
	return u.SubscriptionID != ""
}

// DisplayName returns the user's name or email if name is empty.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// QuotaState returns the quota view of the user record.
func (u *User) QuotaState() *UserQuotaState {
	return &UserQuotaState{
		UserID:            u.ID,
		Tier:              u.SubscriptionTier,
		GenerationsToday:  u.GenerationsToday,
		LastGenerationDay: u.LastGenerationDay,
	}
}

// Session represents an authenticated session.
//
// Sessions are stored in the database with a hashed token.
// The raw token is only given to the client once (at login).
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string // SHA-256 hash of the session token
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// RegisterParams contains the validated parameters for user registration.
type RegisterParams struct {
	Email    string
	Password string // Raw password, will be hashed by service
	Name     string
}

// LoginResult contains the result of a successful login.
type LoginResult struct {
	User  *User
	Token string // Raw session token (not hashed) - only returned once
}

// =============================================================================
// Conversion helpers from repository types
// =============================================================================

// NullStringValue safely extracts a string from sql.NullString.
func NullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// NullTimeValue safely extracts a time pointer from sql.NullTime.
func NullTimeValue(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time
		return &t
	}
	return nil
}

// ToNullString converts a string to sql.NullString.
func ToNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// ToNullTime converts a time pointer to sql.NullTime.
func ToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// ToNullUUID converts a uuid pointer to uuid.NullUUID.
func ToNullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{Valid: false}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
