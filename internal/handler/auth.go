// Package handler contains the JSON HTTP handlers for the AdCraft API.
//
// This file implements account handlers: registration, login, logout, the
// current user, email codes and password reset.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/adcraft/internal/auth"
	"github.com/DukeRupert/adcraft/internal/domain"
	"github.com/DukeRupert/adcraft/internal/invite"
	"github.com/DukeRupert/adcraft/internal/service"
	"github.com/DukeRupert/adcraft/internal/session"
	"github.com/google/uuid"
)

// LoginLimiter tracks failed logins per client IP.
// middleware.AuthRateLimiter satisfies it.
type LoginLimiter interface {
	RecordFailedLogin(ip string)
	ResetLogin(ip string)
}

// AuthHandlerConfig holds cookie settings for the auth handler.
type AuthHandlerConfig struct {
	// SessionDuration sets the cookie lifetime; it should match the user
	// service's session duration.
	SessionDuration time.Duration

	// Secure sets the Secure flag on the session cookie (true in production).
	Secure bool
}

// AuthHandler handles account and session requests.
type AuthHandler struct {
	userService service.UserService
	invites     *invite.Validator
	limiter     LoginLimiter
	logger      *slog.Logger
	cfg         AuthHandlerConfig
}

// NewAuthHandler creates a new AuthHandler. limiter may be nil.
func NewAuthHandler(
	userService service.UserService,
	invites *invite.Validator,
	limiter LoginLimiter,
	logger *slog.Logger,
	cfg AuthHandlerConfig,
) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		invites:     invites,
		limiter:     limiter,
		logger:      logger,
		cfg:         cfg,
	}
}

// AuthRoutes carries the middleware the auth routes need.
type AuthRoutes struct {
	RequireUser        func(http.Handler) http.Handler
	LimitLogin         func(http.Handler) http.Handler
	LimitRegister      func(http.Handler) http.Handler
	LimitPasswordReset func(http.Handler) http.Handler
	LimitOTP           func(http.Handler) http.Handler
}

// RegisterRoutes registers auth routes on the mux. The mux is expected to be
// wrapped in WithUser so logout and /api/me can see the session.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, mw AuthRoutes) {
	mux.Handle("POST /api/auth/register", mw.LimitRegister(http.HandlerFunc(h.Register)))
	mux.Handle("POST /api/auth/login", mw.LimitLogin(http.HandlerFunc(h.Login)))
	mux.HandleFunc("POST /api/auth/logout", h.Logout)
	mux.Handle("GET /api/me", mw.RequireUser(http.HandlerFunc(h.Me)))

	mux.Handle("POST /api/auth/otp/send", mw.LimitOTP(http.HandlerFunc(h.SendOTP)))
	mux.HandleFunc("POST /api/auth/otp/verify", h.VerifyOTP)

	mux.Handle("POST /api/auth/password/forgot", mw.LimitPasswordReset(http.HandlerFunc(h.ForgotPassword)))
	mux.HandleFunc("POST /api/auth/password/reset", h.ResetPassword)
}

// =============================================================================
// Response Types
// =============================================================================

// UserResponse is the public view of a user.
type UserResponse struct {
	ID               uuid.UUID               `json:"id"`
	Email            string                  `json:"email"`
	Name             string                  `json:"name"`
	EmailVerified    bool                    `json:"email_verified"`
	SubscriptionTier domain.SubscriptionTier `json:"subscription_tier"`
	CreatedAt        time.Time               `json:"created_at"`
}

func newUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:               u.ID,
		Email:            u.Email,
		Name:             u.Name,
		EmailVerified:    u.EmailVerified,
		SubscriptionTier: u.SubscriptionTier,
		CreatedAt:        u.CreatedAt,
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

// =============================================================================
// Register / Login / Logout
// =============================================================================

type registerRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	InviteCode string `json:"invite_code"`
}

// Register handles POST /api/auth/register. On success the new user is
// signed in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	const op = "auth.register"

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if h.invites != nil && h.invites.IsEnabled() && !h.invites.ValidateCode(req.InviteCode) {
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "invite_code", "Invalid invite code"))
		return
	}

	user, err := h.userService.Register(r.Context(), domain.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.userService.Login(r.Context(), user.Email, req.Password)
	if err != nil {
		h.logger.Error("auto-login after registration failed", "user_id", user.ID, "error", err)
		writeJSON(w, http.StatusCreated, map[string]any{"user": newUserResponse(user)})
		return
	}

	session.SetCookie(w, result.Token, h.cfg.SessionDuration, h.cfg.Secure)
	writeJSON(w, http.StatusCreated, map[string]any{"user": newUserResponse(result.User)})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/auth/login. Failed attempts count against the
// client's login rate limit.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	ip := ClientIP(r)
	result, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if h.limiter != nil && domain.ErrorCode(err) == domain.EUNAUTHORIZED {
			h.limiter.RecordFailedLogin(ip)
		}
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if h.limiter != nil {
		h.limiter.ResetLogin(ip)
	}

	session.SetCookie(w, result.Token, h.cfg.SessionDuration, h.cfg.Secure)
	writeJSON(w, http.StatusOK, map[string]any{"user": newUserResponse(result.User)})
}

// Logout handles POST /api/auth/logout. Always succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := session.Token(r); token != "" {
		if err := h.userService.Logout(r.Context(), token); err != nil {
			h.logger.Warn("logout failed", "error", err)
		}
	}
	session.ClearCookie(w, h.cfg.Secure)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": newUserResponse(user)})
}

// =============================================================================
// Email Codes
// =============================================================================

type emailRequest struct {
	Email string `json:"email"`
}

// SendOTP handles POST /api/auth/otp/send. The response is the same whether
// or not the email belongs to an account.
func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if err := h.userService.SendOTP(r.Context(), req.Email); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, messageResponse{
		Message: "If an account exists for that email, a verification code has been sent.",
	})
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// VerifyOTP handles POST /api/auth/otp/verify and signs the user in.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.userService.VerifyOTP(r.Context(), domain.VerifyOTPParams{
		Email: req.Email,
		Code:  req.Code,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	session.SetCookie(w, result.Token, h.cfg.SessionDuration, h.cfg.Secure)
	writeJSON(w, http.StatusOK, map[string]any{"user": newUserResponse(result.User)})
}

// =============================================================================
// Password Reset
// =============================================================================

// ForgotPassword handles POST /api/auth/password/forgot. The response is the
// same whether or not the email belongs to an account.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if err := h.userService.RequestPasswordReset(r.Context(), req.Email); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, messageResponse{
		Message: "If an account exists for that email, a password reset link has been sent.",
	})
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// ResetPassword handles POST /api/auth/password/reset. Every session of the
// user ends, including the caller's.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.userService.ResetPassword(r.Context(), domain.ResetPasswordParams{
		Token:       req.Token,
		NewPassword: req.Password,
	}); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	session.ClearCookie(w, h.cfg.Secure)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Your password has been reset. Please sign in."})
}
