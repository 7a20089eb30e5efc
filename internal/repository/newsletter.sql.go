package repository

import (
	"context"
)

const createNewsletterSubscriber = `-- name: CreateNewsletterSubscriber :one
INSERT INTO newsletter_subscribers (email)
VALUES ($1)
ON CONFLICT (email) DO NOTHING
RETURNING id, email, subscribed_at`

// CreateNewsletterSubscriber returns sql.ErrNoRows when the email is already subscribed.
func (q *Queries) CreateNewsletterSubscriber(ctx context.Context, email string) (NewsletterSubscriber, error) {
	row := q.db.QueryRowContext(ctx, createNewsletterSubscriber, email)
	var i NewsletterSubscriber
	err := row.Scan(&i.ID, &i.Email, &i.SubscribedAt)
	return i, err
}
