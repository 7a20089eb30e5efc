package repository

import (
	"context"

	"github.com/google/uuid"
)

const createImage = `-- name: CreateImage :one
INSERT INTO images (user_id, storage_key, original_filename, content_type, size_bytes, width, height)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, user_id, storage_key, original_filename, content_type, size_bytes, width, height, created_at`

type CreateImageParams struct {
	UserID           uuid.UUID
	StorageKey       string
	OriginalFilename string
	ContentType      string
	SizeBytes        int64
	Width            int32
	Height           int32
}

func (q *Queries) CreateImage(ctx context.Context, arg CreateImageParams) (Image, error) {
	row := q.db.QueryRowContext(ctx, createImage,
		arg.UserID,
		arg.StorageKey,
		arg.OriginalFilename,
		arg.ContentType,
		arg.SizeBytes,
		arg.Width,
		arg.Height,
	)
	var i Image
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.StorageKey,
		&i.OriginalFilename,
		&i.ContentType,
		&i.SizeBytes,
		&i.Width,
		&i.Height,
		&i.CreatedAt,
	)
	return i, err
}

const getImageByID = `-- name: GetImageByID :one
SELECT id, user_id, storage_key, original_filename, content_type, size_bytes, width, height, created_at
FROM images
WHERE id = $1`

func (q *Queries) GetImageByID(ctx context.Context, id uuid.UUID) (Image, error) {
	row := q.db.QueryRowContext(ctx, getImageByID, id)
	var i Image
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.StorageKey,
		&i.OriginalFilename,
		&i.ContentType,
		&i.SizeBytes,
		&i.Width,
		&i.Height,
		&i.CreatedAt,
	)
	return i, err
}

const listImagesByUser = `-- name: ListImagesByUser :many
SELECT id, user_id, storage_key, original_filename, content_type, size_bytes, width, height, created_at
FROM images
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2`

type ListImagesByUserParams struct {
	UserID uuid.UUID
	Limit  int32
}

func (q *Queries) ListImagesByUser(ctx context.Context, arg ListImagesByUserParams) ([]Image, error) {
	rows, err := q.db.QueryContext(ctx, listImagesByUser, arg.UserID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Image
	for rows.Next() {
		var i Image
		if err := rows.Scan(
			&i.ID,
			&i.UserID,
			&i.StorageKey,
			&i.OriginalFilename,
			&i.ContentType,
			&i.SizeBytes,
			&i.Width,
			&i.Height,
			&i.CreatedAt,
		); err != nil {
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
