// Package middleware contains HTTP middleware for the AdCraft API.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler
// and are composed with Stack.
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/adcraft/internal/auth"
	"github.com/DukeRupert/adcraft/internal/domain"
	"github.com/DukeRupert/adcraft/internal/handler"
	"github.com/DukeRupert/adcraft/internal/service"
	"github.com/DukeRupert/adcraft/internal/session"
)

// =============================================================================
// Auth Middleware Configuration
// =============================================================================

// AuthMiddleware loads the session user and guards authenticated routes.
//
// Create one instance and use its methods as middleware.
type AuthMiddleware struct {
	userService service.UserService
	admins      *service.AdminPolicy
	logger      *slog.Logger
	isSecure    bool // Secure flag on cookies (true in production)
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(userService service.UserService, admins *service.AdminPolicy, logger *slog.Logger, isSecure bool) *AuthMiddleware {
	return &AuthMiddleware{
		userService: userService,
		admins:      admins,
		logger:      logger,
		isSecure:    isSecure,
	}
}

// =============================================================================
// WithUser Middleware
// =============================================================================

// WithUser loads the user from the session cookie, if any, and stores it in
// the request context. It always calls the next handler.
//
// An invalid or expired session clears the cookie.
func (m *AuthMiddleware) WithUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := session.Token(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := m.userService.GetBySessionToken(r.Context(), token)
		if err != nil {
			if domain.ErrorCode(err) != domain.EUNAUTHORIZED {
				m.logger.Error("failed to load session", "error", err)
			}
			session.ClearCookie(w, m.isSecure)
			next.ServeHTTP(w, r)
			return
		}

		r = r.WithContext(auth.SetUser(r.Context(), user))
		captureUser(r)
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// RequireUser Middleware
// =============================================================================

// RequireUser returns 401 unless WithUser placed a user in the context.
//
// Must run after WithUser.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.GetUserFromRequest(r) == nil {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// RequireAdmin Middleware
// =============================================================================

// RequireAdmin returns 401 without a user and 403 for users who are not
// admins by role or by the configured email list.
//
// Must run after WithUser.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := auth.GetUserFromRequest(r)
		if user == nil {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}
		if !m.admins.IsAdmin(user) {
			m.logger.Warn("admin route denied", "user_id", user.ID, "path", r.URL.Path)
			handler.ForbiddenResponse(w, r, m.logger)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// The first middleware in the list is the outermost (runs first on request,
// last on response).
//
//	stack := Stack(authMw.WithUser, authMw.RequireUser)
//	mux.Handle("GET /api/me", stack(meHandler))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

var (
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).WithUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireUser
	_ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireAdmin
)
