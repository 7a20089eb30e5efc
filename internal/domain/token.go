// Package domain contains core business types and interfaces.
//
// This file defines token-related domain types for email OTP verification
// and password reset flows.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Token Configuration Constants
// =============================================================================

const (
	// OTPDuration is how long an emailed one-time code remains valid.
	OTPDuration = 10 * time.Minute

	// OTPDigits is the length of the numeric one-time code.
	OTPDigits = 6

	// OTPMaxAttempts is how many wrong codes are accepted before the code is burned.
	OTPMaxAttempts = 5

	// PasswordResetTokenDuration is how long password reset tokens remain valid.
	PasswordResetTokenDuration = 1 * time.Hour

	// TokenBytes is the number of random bytes for reset and session tokens.
	// The token is hex-encoded to 64 characters for URL safety.
	TokenBytes = 32
)

// =============================================================================
// Email OTP
// =============================================================================

// EmailOTP is a one-time code sent to prove ownership of an email address.
//
// Only the SHA-256 hash of the code is stored. A user has at most one live
// code; requesting a new one replaces it.
type EmailOTP struct {
	UserID    uuid.UUID
	CodeHash  string
	Attempts  int
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired returns true if the code has expired.
func (o *EmailOTP) IsExpired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// IsExhausted returns true once too many wrong codes were tried.
func (o *EmailOTP) IsExhausted() bool {
	return o.Attempts >= OTPMaxAttempts
}

// =============================================================================
// Password Reset Token
// =============================================================================

// PasswordResetToken represents a token sent to allow password reset.
//
// Tokens are stored hashed, marked used rather than deleted, and every
// session of the user is invalidated after a successful reset.
type PasswordResetToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time // nil = unused
	CreatedAt time.Time
}

// IsExpired returns true if the token has expired.
func (t *PasswordResetToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsUsed returns true if the token has already been used.
func (t *PasswordResetToken) IsUsed() bool {
	return t.UsedAt != nil
}

// IsValid returns true if the token is not expired and not used.
func (t *PasswordResetToken) IsValid() bool {
	return !t.IsExpired() && !t.IsUsed()
}

// =============================================================================
// Service Parameters
// =============================================================================

// VerifyOTPParams contains parameters for the OTP verification operation.
type VerifyOTPParams struct {
	Email string
	Code  string
}

// ResetPasswordParams contains parameters for resetting a password.
type ResetPasswordParams struct {
	Token       string // Raw token from the reset link
	NewPassword string
}
