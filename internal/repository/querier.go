package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// Querier is the full set of statements against the schema. *Queries
// implements it for both pooled connections and transactions.
type Querier interface {
	// Users
	CreateUser(ctx context.Context, arg CreateUserParams) (User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByStripeCustomerID(ctx context.Context, stripeCustomerID sql.NullString) (User, error)
	GetUserBySubscriptionID(ctx context.Context, subscriptionID sql.NullString) (User, error)
	GetUserForUpdate(ctx context.Context, id uuid.UUID) (User, error)
	GetUserQuotaState(ctx context.Context, id uuid.UUID) (GetUserQuotaStateRow, error)
	ReserveGenerationSlot(ctx context.Context, arg ReserveGenerationSlotParams) (ReserveGenerationSlotRow, error)
	UpdateUserSubscription(ctx context.Context, arg UpdateUserSubscriptionParams) (User, error)
	UpdateUserStripeCustomerID(ctx context.Context, arg UpdateUserStripeCustomerIDParams) error
	UpdateUserPassword(ctx context.Context, arg UpdateUserPasswordParams) error
	MarkEmailVerified(ctx context.Context, id uuid.UUID) error

	// Sessions
	CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error)
	GetUserBySessionToken(ctx context.Context, tokenHash string) (User, error)
	DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error
	DeleteUserSessions(ctx context.Context, userID uuid.UUID) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)

	// Tokens
	UpsertEmailOTP(ctx context.Context, arg UpsertEmailOTPParams) error
	GetEmailOTP(ctx context.Context, userID uuid.UUID) (EmailOtp, error)
	IncrementEmailOTPAttempts(ctx context.Context, userID uuid.UUID) error
	DeleteEmailOTP(ctx context.Context, userID uuid.UUID) error
	CreatePasswordResetToken(ctx context.Context, arg CreatePasswordResetTokenParams) (PasswordResetToken, error)
	GetPasswordResetToken(ctx context.Context, tokenHash string) (PasswordResetToken, error)
	MarkPasswordResetTokenUsed(ctx context.Context, id uuid.UUID) error
	DeleteUnusedPasswordResetTokens(ctx context.Context, userID uuid.UUID) error

	// Images
	CreateImage(ctx context.Context, arg CreateImageParams) (Image, error)
	GetImageByID(ctx context.Context, id uuid.UUID) (Image, error)
	ListImagesByUser(ctx context.Context, arg ListImagesByUserParams) ([]Image, error)

	// Generations
	CreateGeneration(ctx context.Context, arg CreateGenerationParams) (Generation, error)
	GetGenerationByID(ctx context.Context, id uuid.UUID) (Generation, error)
	ListGenerationsByUser(ctx context.Context, arg ListGenerationsByUserParams) ([]Generation, error)
	CountGenerationsByUser(ctx context.Context, arg CountGenerationsByUserParams) (int64, error)
	CompleteGeneration(ctx context.Context, arg CompleteGenerationParams) (Generation, error)
	FailGeneration(ctx context.Context, arg FailGenerationParams) (Generation, error)

	// Newsletter
	CreateNewsletterSubscriber(ctx context.Context, email string) (NewsletterSubscriber, error)
}

var _ Querier = (*Queries)(nil)
