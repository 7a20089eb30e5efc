// Package auth carries the authenticated user through request contexts.
//
// Both middleware and handler import it, so it must not import either.
package auth

import (
	"context"
	"net/http"

	"github.com/DukeRupert/adcraft/internal/domain"
)

type contextKey string

const userContextKey contextKey = "user"

// GetUser retrieves the authenticated user from the context.
// Returns nil if no user is authenticated.
func GetUser(ctx context.Context) *domain.User {
	user, ok := ctx.Value(userContextKey).(*domain.User)
	if !ok {
		return nil
	}
	return user
}

// GetUserFromRequest retrieves the authenticated user from the request context.
func GetUserFromRequest(r *http.Request) *domain.User {
	return GetUser(r.Context())
}

// SetUser stores a user in the context.
func SetUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
