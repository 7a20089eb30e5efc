package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

const generationColumns = `id, user_id, image_id, prompt, platform, status, product_name, slogan,
    price, audience, options, output_text, output_image_key, error_message, created_at, completed_at`

func scanGeneration(row rowScanner) (Generation, error) {
	var i Generation
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.ImageID,
		&i.Prompt,
		&i.Platform,
		&i.Status,
		&i.ProductName,
		&i.Slogan,
		&i.Price,
		&i.Audience,
		&i.Options,
		&i.OutputText,
		&i.OutputImageKey,
		&i.ErrorMessage,
		&i.CreatedAt,
		&i.CompletedAt,
	)
	return i, err
}

const createGeneration = `-- name: CreateGeneration :one
INSERT INTO generations (user_id, image_id, prompt, platform, status, product_name, slogan, price, audience, options)
VALUES ($1, $2, $3, $4, 'PENDING', $5, $6, $7, $8, $9)
RETURNING ` + generationColumns

type CreateGenerationParams struct {
	UserID      uuid.UUID
	ImageID     uuid.NullUUID
	Prompt      string
	Platform    string
	ProductName string
	Slogan      string
	Price       sql.NullString
	Audience    sql.NullString
	Options     pqtype.NullRawMessage
}

func (q *Queries) CreateGeneration(ctx context.Context, arg CreateGenerationParams) (Generation, error) {
	row := q.db.QueryRowContext(ctx, createGeneration,
		arg.UserID,
		arg.ImageID,
		arg.Prompt,
		arg.Platform,
		arg.ProductName,
		arg.Slogan,
		arg.Price,
		arg.Audience,
		arg.Options,
	)
	return scanGeneration(row)
}

const getGenerationByID = `-- name: GetGenerationByID :one
SELECT ` + generationColumns + ` FROM generations WHERE id = $1`

func (q *Queries) GetGenerationByID(ctx context.Context, id uuid.UUID) (Generation, error) {
	row := q.db.QueryRowContext(ctx, getGenerationByID, id)
	return scanGeneration(row)
}

const listGenerationsByUser = `-- name: ListGenerationsByUser :many
SELECT ` + generationColumns + `
FROM generations
WHERE user_id = $1
  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
ORDER BY created_at DESC
LIMIT $3 OFFSET $4`

type ListGenerationsByUserParams struct {
	UserID   uuid.UUID
	Statuses []string
	Limit    int32
	Offset   int32
}

// ListGenerationsByUser returns a page of the user's generations, newest
// first. An empty Statuses slice matches every status.
func (q *Queries) ListGenerationsByUser(ctx context.Context, arg ListGenerationsByUserParams) ([]Generation, error) {
	statuses := arg.Statuses
	if statuses == nil {
		statuses = []string{}
	}
	rows, err := q.db.QueryContext(ctx, listGenerationsByUser,
		arg.UserID,
		pq.Array(statuses),
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Generation
	for rows.Next() {
		i, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countGenerationsByUser = `-- name: CountGenerationsByUser :one
SELECT COUNT(*) FROM generations
WHERE user_id = $1
  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))`

type CountGenerationsByUserParams struct {
	UserID   uuid.UUID
	Statuses []string
}

func (q *Queries) CountGenerationsByUser(ctx context.Context, arg CountGenerationsByUserParams) (int64, error) {
	statuses := arg.Statuses
	if statuses == nil {
		statuses = []string{}
	}
	row := q.db.QueryRowContext(ctx, countGenerationsByUser, arg.UserID, pq.Array(statuses))
	var count int64
	err := row.Scan(&count)
	return count, err
}

const completeGeneration = `-- name: CompleteGeneration :one
UPDATE generations
SET status = 'COMPLETED',
    output_text = $2,
    output_image_key = $3,
    completed_at = NOW()
WHERE id = $1 AND status = 'PENDING'
RETURNING ` + generationColumns

type CompleteGenerationParams struct {
	ID             uuid.UUID
	OutputText     sql.NullString
	OutputImageKey sql.NullString
}

// CompleteGeneration returns sql.ErrNoRows if the generation is no longer pending.
func (q *Queries) CompleteGeneration(ctx context.Context, arg CompleteGenerationParams) (Generation, error) {
	row := q.db.QueryRowContext(ctx, completeGeneration, arg.ID, arg.OutputText, arg.OutputImageKey)
	return scanGeneration(row)
}

const failGeneration = `-- name: FailGeneration :one
UPDATE generations
SET status = 'FAILED',
    error_message = $2,
    completed_at = NOW()
WHERE id = $1 AND status = 'PENDING'
RETURNING ` + generationColumns

type FailGenerationParams struct {
	ID           uuid.UUID
	ErrorMessage sql.NullString
}

// FailGeneration returns sql.ErrNoRows if the generation is no longer pending.
func (q *Queries) FailGeneration(ctx context.Context, arg FailGenerationParams) (Generation, error) {
	row := q.db.QueryRowContext(ctx, failGeneration, arg.ID, arg.ErrorMessage)
	return scanGeneration(row)
}
