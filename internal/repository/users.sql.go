package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const userColumns = `id, email, password_hash, name, role, stripe_customer_id, subscription_tier,
    subscription_id, subscription_synced_at, generations_today, last_generation_day,
    email_verified, email_verified_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.PasswordHash,
		&i.Name,
		&i.Role,
		&i.StripeCustomerID,
		&i.SubscriptionTier,
		&i.SubscriptionID,
		&i.SubscriptionSyncedAt,
		&i.GenerationsToday,
		&i.LastGenerationDay,
		&i.EmailVerified,
		&i.EmailVerifiedAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createUser = `-- name: CreateUser :one
INSERT INTO users (email, password_hash, name, role)
VALUES ($1, $2, $3, $4)
RETURNING ` + userColumns

type CreateUserParams struct {
	Email        string
	PasswordHash string
	Name         string
	Role         string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx, createUser, arg.Email, arg.PasswordHash, arg.Name, arg.Role)
	return scanUser(row)
}

const getUserByID = `-- name: GetUserByID :one
SELECT ` + userColumns + ` FROM users WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByID, id)
	return scanUser(row)
}

const getUserByEmail = `-- name: GetUserByEmail :one
SELECT ` + userColumns + ` FROM users WHERE email = $1`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByEmail, email)
	return scanUser(row)
}

const getUserByStripeCustomerID = `-- name: GetUserByStripeCustomerID :one
SELECT ` + userColumns + ` FROM users WHERE stripe_customer_id = $1`

func (q *Queries) GetUserByStripeCustomerID(ctx context.Context, stripeCustomerID sql.NullString) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByStripeCustomerID, stripeCustomerID)
	return scanUser(row)
}

const getUserBySubscriptionID = `-- name: GetUserBySubscriptionID :one
SELECT ` + userColumns + ` FROM users WHERE subscription_id = $1
ORDER BY updated_at DESC
LIMIT 1`

func (q *Queries) GetUserBySubscriptionID(ctx context.Context, subscriptionID sql.NullString) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserBySubscriptionID, subscriptionID)
	return scanUser(row)
}

const getUserForUpdate = `-- name: GetUserForUpdate :one
SELECT ` + userColumns + ` FROM users WHERE id = $1
FOR UPDATE`

// GetUserForUpdate locks the user row until the surrounding transaction ends.
// Concurrent subscription writes for the same user queue behind the lock.
func (q *Queries) GetUserForUpdate(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserForUpdate, id)
	return scanUser(row)
}

const getUserQuotaState = `-- name: GetUserQuotaState :one
SELECT id, subscription_tier, generations_today, last_generation_day
FROM users
WHERE id = $1`

type GetUserQuotaStateRow struct {
	ID                uuid.UUID
	SubscriptionTier  string
	GenerationsToday  int32
	LastGenerationDay sql.NullTime
}

func (q *Queries) GetUserQuotaState(ctx context.Context, id uuid.UUID) (GetUserQuotaStateRow, error) {
	row := q.db.QueryRowContext(ctx, getUserQuotaState, id)
	var i GetUserQuotaStateRow
	err := row.Scan(
		&i.ID,
		&i.SubscriptionTier,
		&i.GenerationsToday,
		&i.LastGenerationDay,
	)
	return i, err
}

const reserveGenerationSlot = `-- name: ReserveGenerationSlot :one
UPDATE users
SET generations_today = CASE
        WHEN last_generation_day = $2::date THEN generations_today + 1
        ELSE 1
    END,
    last_generation_day = $2::date,
    updated_at = NOW()
WHERE id = $1
  AND $3::int > 0
  AND (
        last_generation_day IS NULL
        OR last_generation_day < $2::date
        OR (last_generation_day = $2::date AND generations_today < $3::int)
  )
RETURNING generations_today, last_generation_day`

type ReserveGenerationSlotParams struct {
	UserID uuid.UUID
	Day    time.Time
	Limit  int32
}

type ReserveGenerationSlotRow struct {
	GenerationsToday  int32
	LastGenerationDay sql.NullTime
}

// ReserveGenerationSlot increments today's counter, or resets it to 1 when the
// stored day is older, only while the counter is below the limit. The check
// and the write are one statement, so two concurrent requests cannot both
// take the last slot. A stored day newer than Day is never moved back.
// sql.ErrNoRows means no slot was taken.
func (q *Queries) ReserveGenerationSlot(ctx context.Context, arg ReserveGenerationSlotParams) (ReserveGenerationSlotRow, error) {
	row := q.db.QueryRowContext(ctx, reserveGenerationSlot, arg.UserID, arg.Day, arg.Limit)
	var i ReserveGenerationSlotRow
	err := row.Scan(&i.GenerationsToday, &i.LastGenerationDay)
	return i, err
}

const updateUserSubscription = `-- name: UpdateUserSubscription :one
UPDATE users
SET subscription_tier = $2,
    subscription_id = $3,
    subscription_synced_at = $4,
    stripe_customer_id = COALESCE($5, stripe_customer_id),
    updated_at = NOW()
WHERE id = $1
RETURNING ` + userColumns

type UpdateUserSubscriptionParams struct {
	ID                   uuid.UUID
	SubscriptionTier     string
	SubscriptionID       sql.NullString
	SubscriptionSyncedAt sql.NullTime
	StripeCustomerID     sql.NullString
}

func (q *Queries) UpdateUserSubscription(ctx context.Context, arg UpdateUserSubscriptionParams) (User, error) {
	row := q.db.QueryRowContext(ctx, updateUserSubscription,
		arg.ID,
		arg.SubscriptionTier,
		arg.SubscriptionID,
		arg.SubscriptionSyncedAt,
		arg.StripeCustomerID,
	)
	return scanUser(row)
}

const updateUserStripeCustomerID = `-- name: UpdateUserStripeCustomerID :exec
UPDATE users
SET stripe_customer_id = $2, updated_at = NOW()
WHERE id = $1`

type UpdateUserStripeCustomerIDParams struct {
	ID               uuid.UUID
	StripeCustomerID sql.NullString
}

func (q *Queries) UpdateUserStripeCustomerID(ctx context.Context, arg UpdateUserStripeCustomerIDParams) error {
	_, err := q.db.ExecContext(ctx, updateUserStripeCustomerID, arg.ID, arg.StripeCustomerID)
	return err
}

const updateUserPassword = `-- name: UpdateUserPassword :exec
UPDATE users
SET password_hash = $2, updated_at = NOW()
WHERE id = $1`

type UpdateUserPasswordParams struct {
	ID           uuid.UUID
	PasswordHash string
}

func (q *Queries) UpdateUserPassword(ctx context.Context, arg UpdateUserPasswordParams) error {
	_, err := q.db.ExecContext(ctx, updateUserPassword, arg.ID, arg.PasswordHash)
	return err
}

const markEmailVerified = `-- name: MarkEmailVerified :exec
UPDATE users
SET email_verified = TRUE,
    email_verified_at = COALESCE(email_verified_at, NOW()),
    updated_at = NOW()
WHERE id = $1`

func (q *Queries) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, markEmailVerified, id)
	return err
}
