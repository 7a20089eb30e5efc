package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const upsertEmailOTP = `-- name: UpsertEmailOTP :exec
INSERT INTO email_otps (user_id, code_hash, attempts, expires_at)
VALUES ($1, $2, 0, $3)
ON CONFLICT (user_id) DO UPDATE
SET code_hash = EXCLUDED.code_hash,
    attempts = 0,
    expires_at = EXCLUDED.expires_at,
    created_at = NOW()`

type UpsertEmailOTPParams struct {
	UserID    uuid.UUID
	CodeHash  string
	ExpiresAt time.Time
}

func (q *Queries) UpsertEmailOTP(ctx context.Context, arg UpsertEmailOTPParams) error {
	_, err := q.db.ExecContext(ctx, upsertEmailOTP, arg.UserID, arg.CodeHash, arg.ExpiresAt)
	return err
}

const getEmailOTP = `-- name: GetEmailOTP :one
SELECT user_id, code_hash, attempts, expires_at, created_at
FROM email_otps
WHERE user_id = $1`

func (q *Queries) GetEmailOTP(ctx context.Context, userID uuid.UUID) (EmailOtp, error) {
	row := q.db.QueryRowContext(ctx, getEmailOTP, userID)
	var i EmailOtp
	err := row.Scan(
		&i.UserID,
		&i.CodeHash,
		&i.Attempts,
		&i.ExpiresAt,
		&i.CreatedAt,
	)
	return i, err
}

const incrementEmailOTPAttempts = `-- name: IncrementEmailOTPAttempts :exec
UPDATE email_otps SET attempts = attempts + 1 WHERE user_id = $1`

func (q *Queries) IncrementEmailOTPAttempts(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, incrementEmailOTPAttempts, userID)
	return err
}

const deleteEmailOTP = `-- name: DeleteEmailOTP :exec
DELETE FROM email_otps WHERE user_id = $1`

func (q *Queries) DeleteEmailOTP(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteEmailOTP, userID)
	return err
}

const createPasswordResetToken = `-- name: CreatePasswordResetToken :one
INSERT INTO password_reset_tokens (user_id, token_hash, expires_at)
VALUES ($1, $2, $3)
RETURNING id, user_id, token_hash, expires_at, used_at, created_at`

type CreatePasswordResetTokenParams struct {
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
}

func (q *Queries) CreatePasswordResetToken(ctx context.Context, arg CreatePasswordResetTokenParams) (PasswordResetToken, error) {
	row := q.db.QueryRowContext(ctx, createPasswordResetToken, arg.UserID, arg.TokenHash, arg.ExpiresAt)
	var i PasswordResetToken
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.TokenHash,
		&i.ExpiresAt,
		&i.UsedAt,
		&i.CreatedAt,
	)
	return i, err
}

const getPasswordResetToken = `-- name: GetPasswordResetToken :one
SELECT id, user_id, token_hash, expires_at, used_at, created_at
FROM password_reset_tokens
WHERE token_hash = $1`

func (q *Queries) GetPasswordResetToken(ctx context.Context, tokenHash string) (PasswordResetToken, error) {
	row := q.db.QueryRowContext(ctx, getPasswordResetToken, tokenHash)
	var i PasswordResetToken
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.TokenHash,
		&i.ExpiresAt,
		&i.UsedAt,
		&i.CreatedAt,
	)
	return i, err
}

const markPasswordResetTokenUsed = `-- name: MarkPasswordResetTokenUsed :exec
UPDATE password_reset_tokens SET used_at = NOW() WHERE id = $1`

func (q *Queries) MarkPasswordResetTokenUsed(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, markPasswordResetTokenUsed, id)
	return err
}

const deleteUnusedPasswordResetTokens = `-- name: DeleteUnusedPasswordResetTokens :exec
DELETE FROM password_reset_tokens WHERE user_id = $1 AND used_at IS NULL`

func (q *Queries) DeleteUnusedPasswordResetTokens(ctx context.Context, userID uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, deleteUnusedPasswordResetTokens, userID)
	return err
}
