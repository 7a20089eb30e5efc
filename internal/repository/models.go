package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type EmailOtp struct {
	UserID    uuid.UUID
	CodeHash  string
	Attempts  int32
	ExpiresAt time.Time
	CreatedAt time.Time
}

type Generation struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	ImageID        uuid.NullUUID
	Prompt         string
	Platform       string
	Status         string
	ProductName    string
	Slogan         string
	Price          sql.NullString
	Audience       sql.NullString
	Options        pqtype.NullRawMessage
	OutputText     sql.NullString
	OutputImageKey sql.NullString
	ErrorMessage   sql.NullString
	CreatedAt      time.Time
	CompletedAt    sql.NullTime
}

type Image struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	StorageKey       string
	OriginalFilename string
	ContentType      string
	SizeBytes        int64
	Width            int32
	Height           int32
	CreatedAt        time.Time
}

type NewsletterSubscriber struct {
	ID           uuid.UUID
	Email        string
	SubscribedAt time.Time
}

type PasswordResetToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	UsedAt    sql.NullTime
	CreatedAt time.Time
}

type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type User struct {
	ID                   uuid.UUID
	Email                string
	PasswordHash         string
	Name                 string
	Role                 string
	StripeCustomerID     sql.NullString
	SubscriptionTier     string
	SubscriptionID       sql.NullString
	SubscriptionSyncedAt sql.NullTime
	GenerationsToday     int32
	LastGenerationDay    sql.NullTime
	EmailVerified        bool
	EmailVerifiedAt      sql.NullTime
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
