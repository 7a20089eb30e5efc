// Package service contains the business logic layer.
//
// Services orchestrate interactions between repositories, external APIs,
// and domain logic. They are responsible for:
// - Input validation
// - Business rule enforcement
// - Transaction coordination
// - Error translation (database errors -> domain errors)
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/DukeRupert/adcraft/internal/domain"
	"github.com/DukeRupert/adcraft/internal/email"
	"github.com/DukeRupert/adcraft/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// =============================================================================
// Configuration Constants
// =============================================================================

const (
	// BcryptCost is the cost factor for bcrypt password hashing.
	// Not configurable at runtime so it cannot be weakened by accident.
	BcryptCost = 12

	// SessionTokenBytes is the number of random bytes for session tokens.
	// The token is hex-encoded to 64 characters.
	SessionTokenBytes = 32

	// DefaultSessionDuration is used when no duration is configured.
	DefaultSessionDuration = 24 * time.Hour

	// MinSessionDuration and MaxSessionDuration bound SESSION_DURATION.
	MinSessionDuration = 15 * time.Minute
	MaxSessionDuration = 30 * 24 * time.Hour

	// MinPasswordLength is the minimum password length (NIST SP 800-63B).
	MinPasswordLength = 8

	// MaxPasswordLength is the bcrypt input limit.
	MaxPasswordLength = 72

	// MinNameLength is the minimum display name length.
	MinNameLength = 2
)

// Generic messages for credential and token failures. They never reveal
// whether an account or token exists.
const (
	ErrMsgInvalidCredentials = "Invalid email or password"
	ErrMsgInvalidCode        = "Invalid or expired code"
	ErrMsgInvalidResetLink   = "Invalid or expired reset link"
	ErrMsgInvalidSession     = "Invalid or expired session"
)

// dummyHash is a bcrypt hash compared against when the email is unknown so
// the response time does not reveal whether the account exists.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// commonPasswords holds lowercase passwords that pass the character rules but
// are rejected anyway.
var commonPasswords = map[string]struct{}{
	"password1":   {},
	"password12":  {},
	"password123": {},
	"passw0rd":    {},
	"qwerty123":   {},
	"qwerty12":    {},
	"letmein1":    {},
	"letmein123":  {},
	"welcome1":    {},
	"welcome123":  {},
	"admin123":    {},
	"abc12345":    {},
	"abcd1234":    {},
	"iloveyou1":   {},
	"monkey123":   {},
	"dragon123":   {},
	"sunshine1":   {},
	"football1":   {},
	"baseball1":   {},
	"trustno1":    {},
}

// =============================================================================
// Interface Definition
// =============================================================================

// UserService handles accounts, sessions, email codes and password resets.
type UserService interface {
	// Register creates a new user account.
	// Returns domain.ECONFLICT if the email already exists and a
	// ValidationError for invalid input.
	Register(ctx context.Context, params domain.RegisterParams) (*domain.User, error)

	// Login authenticates a user and creates a new session.
	// Returns domain.EUNAUTHORIZED for invalid credentials.
	Login(ctx context.Context, email, password string) (*domain.LoginResult, error)

	// Logout invalidates a session by its raw token. Idempotent.
	Logout(ctx context.Context, token string) error

	// GetByID retrieves a user by ID.
	// Returns domain.ENOTFOUND if the user does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetBySessionToken validates a raw session token and returns its user.
	// Returns domain.EUNAUTHORIZED if the token is invalid or expired.
	GetBySessionToken(ctx context.Context, token string) (*domain.User, error)

	// SendOTP emails a one-time code to the address. Succeeds silently for
	// unknown emails.
	SendOTP(ctx context.Context, email string) error

	// VerifyOTP checks a code, marks the email verified and starts a session.
	VerifyOTP(ctx context.Context, params domain.VerifyOTPParams) (*domain.LoginResult, error)

	// RequestPasswordReset emails a reset link. Succeeds silently for unknown
	// emails.
	RequestPasswordReset(ctx context.Context, email string) error

	// ResetPassword sets a new password from a reset token and signs the user
	// out everywhere.
	ResetPassword(ctx context.Context, params domain.ResetPasswordParams) error

	// DeleteExpiredSessions removes expired sessions and returns how many.
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// UserServiceConfig holds optional settings for the user service.
type UserServiceConfig struct {
	// SessionDuration is how long a session remains valid. Zero uses
	// DefaultSessionDuration; values are clamped to [15m, 30d].
	SessionDuration time.Duration
}

// =============================================================================
// Implementation
// =============================================================================

type userService struct {
	store           repository.TxQuerier
	mailer          email.EmailService
	logger          *slog.Logger
	sessionDuration time.Duration
	now             func() time.Time
}

var _ UserService = (*userService)(nil)

// NewUserService creates a new UserService.
func NewUserService(store repository.TxQuerier, mailer email.EmailService, logger *slog.Logger, cfg UserServiceConfig) UserService {
	return &userService{
		store:           store,
		mailer:          mailer,
		logger:          logger,
		sessionDuration: NormalizeSessionDuration(cfg.SessionDuration),
		now:             time.Now,
	}
}

// NormalizeSessionDuration applies the default and clamps to the allowed range.
func NormalizeSessionDuration(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultSessionDuration
	case d < MinSessionDuration:
		return MinSessionDuration
	case d > MaxSessionDuration:
		return MaxSessionDuration
	default:
		return d
	}
}

// =============================================================================
// Register
// =============================================================================

// Register validates input, hashes the password and creates the user.
//
// Duplicate emails still pay the bcrypt cost so the response time does not
// reveal that the address is registered.
func (s *userService) Register(ctx context.Context, params domain.RegisterParams) (*domain.User, error) {
	const op = "user.register"

	params.Email = normalizeEmail(params.Email)
	params.Name = strings.TrimSpace(params.Name)

	fields := map[string]string{}
	if err := validateEmail(params.Email); err != nil {
		fields["email"] = domain.ErrorMessage(err)
	}
	if len([]rune(params.Name)) < MinNameLength {
		fields["name"] = fmt.Sprintf("Name must be at least %d characters", MinNameLength)
	}
	if err := validatePassword(params.Password); err != nil {
		fields["password"] = domain.ErrorMessage(err)
	}
	if len(fields) > 0 {
		return nil, &domain.ValidationError{Op: op, Fields: fields}
	}

	_, err := s.store.GetUserByEmail(ctx, params.Email)
	if err == nil {
		_, _ = bcrypt.GenerateFromPassword([]byte(params.Password), BcryptCost)
		return nil, domain.Conflict(op, "Email already registered")
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Internal(err, op, "Failed to check email availability")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(params.Password), BcryptCost)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to hash password")
	}

	repoUser, err := s.store.CreateUser(ctx, repository.CreateUserParams{
		Email:        params.Email,
		PasswordHash: string(passwordHash),
		Name:         params.Name,
		Role:         string(domain.RoleUser),
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, domain.Conflict(op, "Email already registered")
		}
		return nil, domain.Internal(err, op, "Failed to create user")
	}

	user := repoUserToDomain(repoUser)
	user.PasswordHash = ""

	s.logger.Info("user registered", "user_id", user.ID, "email", user.Email)
	return user, nil
}

// =============================================================================
// Login / Logout
// =============================================================================

// Login authenticates a user and creates a new session.
//
// Flow:
// 1. Look up user by email (dummy bcrypt compare when unknown)
// 2. Compare password hash
// 3. Create a session storing only the SHA-256 of the token
// 4. Return user and raw token
func (s *userService) Login(ctx context.Context, email, password string) (*domain.LoginResult, error) {
	const op = "user.login"

	repoUser, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return nil, domain.Unauthorized(op, ErrMsgInvalidCredentials)
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(repoUser.PasswordHash), []byte(password)); err != nil {
		return nil, domain.Unauthorized(op, ErrMsgInvalidCredentials)
	}

	result, err := s.startSession(ctx, s.store, repoUser)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to create session")
	}

	s.logger.Info("user logged in", "user_id", result.User.ID)
	return result, nil
}

// Logout deletes the session for token. Invalid tokens are ignored.
func (s *userService) Logout(ctx context.Context, token string) error {
	if !isWellFormedToken(token) {
		return nil
	}
	if err := s.store.DeleteSessionByTokenHash(ctx, hashToken(token)); err != nil {
		s.logger.Warn("failed to delete session", "error", err)
	}
	s.logger.Debug("session invalidated")
	return nil
}

// =============================================================================
// Lookups
// =============================================================================

func (s *userService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const op = "user.get"

	repoUser, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "user", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	user := repoUserToDomain(repoUser)
	user.PasswordHash = ""
	return user, nil
}

// GetBySessionToken hashes the raw token and loads the session's user. The
// query rejects expired sessions.
func (s *userService) GetBySessionToken(ctx context.Context, token string) (*domain.User, error) {
	const op = "user.session"

	if !isWellFormedToken(token) {
		return nil, domain.Unauthorized(op, ErrMsgInvalidSession)
	}

	repoUser, err := s.store.GetUserBySessionToken(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.Unauthorized(op, ErrMsgInvalidSession)
		}
		return nil, domain.Internal(err, op, "Failed to retrieve session")
	}

	user := repoUserToDomain(repoUser)
	user.PasswordHash = ""
	return user, nil
}

func (s *userService) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	const op = "user.delete_expired_sessions"

	n, err := s.store.DeleteExpiredSessions(ctx)
	if err != nil {
		return 0, domain.Internal(err, op, "Failed to delete expired sessions")
	}
	if n > 0 {
		s.logger.Info("expired sessions cleaned up", "count", n)
	}
	return n, nil
}

// =============================================================================
// Email OTP
// =============================================================================

// SendOTP generates a 6-digit code, stores its hash (replacing any previous
// code and resetting attempts) and emails it.
//
// Unknown emails and delivery failures are logged, not returned, so the
// response is identical whether or not the account exists.
func (s *userService) SendOTP(ctx context.Context, address string) error {
	const op = "user.send_otp"

	address = normalizeEmail(address)
	if err := validateEmail(address); err != nil {
		return domain.Wrap(err, domain.EINVALID, op, domain.ErrorMessage(err))
	}

	repoUser, err := s.store.GetUserByEmail(ctx, address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Debug("otp requested for unknown email")
			return nil
		}
		return domain.Internal(err, op, "Failed to retrieve user")
	}

	code, err := generateOTP()
	if err != nil {
		return domain.Internal(err, op, "Failed to generate code")
	}

	err = s.store.UpsertEmailOTP(ctx, repository.UpsertEmailOTPParams{
		UserID:    repoUser.ID,
		CodeHash:  hashOTP(repoUser.ID, code),
		ExpiresAt: s.now().Add(domain.OTPDuration),
	})
	if err != nil {
		return domain.Internal(err, op, "Failed to store code")
	}

	if err := s.mailer.SendOTPEmail(ctx, repoUser.Email, repoUser.Name, code); err != nil {
		s.logger.Error("failed to send otp email", "user_id", repoUser.ID, "error", err)
		return nil
	}

	s.logger.Info("otp sent", "user_id", repoUser.ID)
	return nil
}

// VerifyOTP checks the code for the email. Every failure returns the same
// message. A wrong code counts against OTPMaxAttempts; expired or exhausted
// codes are deleted.
func (s *userService) VerifyOTP(ctx context.Context, params domain.VerifyOTPParams) (*domain.LoginResult, error) {
	const op = "user.verify_otp"
	invalid := domain.Unauthorized(op, ErrMsgInvalidCode)

	code := strings.TrimSpace(params.Code)
	if len(code) != domain.OTPDigits || !isDigits(code) {
		return nil, invalid
	}

	repoUser, err := s.store.GetUserByEmail(ctx, normalizeEmail(params.Email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invalid
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	otp, err := s.store.GetEmailOTP(ctx, repoUser.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invalid
		}
		return nil, domain.Internal(err, op, "Failed to retrieve code")
	}

	stored := domain.EmailOTP{
		UserID:    otp.UserID,
		CodeHash:  otp.CodeHash,
		Attempts:  int(otp.Attempts),
		ExpiresAt: otp.ExpiresAt,
	}
	if stored.IsExpired(s.now()) || stored.IsExhausted() {
		if err := s.store.DeleteEmailOTP(ctx, repoUser.ID); err != nil {
			s.logger.Warn("failed to delete stale otp", "user_id", repoUser.ID, "error", err)
		}
		return nil, invalid
	}

	if subtle.ConstantTimeCompare([]byte(stored.CodeHash), []byte(hashOTP(repoUser.ID, code))) != 1 {
		if err := s.store.IncrementEmailOTPAttempts(ctx, repoUser.ID); err != nil {
			return nil, domain.Internal(err, op, "Failed to record attempt")
		}
		s.logger.Info("otp mismatch", "user_id", repoUser.ID, "attempts", stored.Attempts+1)
		return nil, invalid
	}

	var result *domain.LoginResult
	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		if err := q.DeleteEmailOTP(ctx, repoUser.ID); err != nil {
			return err
		}
		if err := q.MarkEmailVerified(ctx, repoUser.ID); err != nil {
			return err
		}
		verified, err := q.GetUserByID(ctx, repoUser.ID)
		if err != nil {
			return err
		}
		result, err = s.startSession(ctx, q, verified)
		return err
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to verify code")
	}

	s.logger.Info("email verified via otp", "user_id", repoUser.ID)
	return result, nil
}

// =============================================================================
// Password Reset
// =============================================================================

// RequestPasswordReset replaces any unused reset tokens with a new one valid
// for one hour and emails the link.
func (s *userService) RequestPasswordReset(ctx context.Context, address string) error {
	const op = "user.request_password_reset"

	address = normalizeEmail(address)
	if err := validateEmail(address); err != nil {
		return domain.Wrap(err, domain.EINVALID, op, domain.ErrorMessage(err))
	}

	repoUser, err := s.store.GetUserByEmail(ctx, address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Debug("password reset requested for unknown email")
			return nil
		}
		return domain.Internal(err, op, "Failed to retrieve user")
	}

	rawToken, err := generateToken()
	if err != nil {
		return domain.Internal(err, op, "Failed to generate token")
	}

	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		if err := q.DeleteUnusedPasswordResetTokens(ctx, repoUser.ID); err != nil {
			return err
		}
		_, err := q.CreatePasswordResetToken(ctx, repository.CreatePasswordResetTokenParams{
			UserID:    repoUser.ID,
			TokenHash: hashToken(rawToken),
			ExpiresAt: s.now().Add(domain.PasswordResetTokenDuration),
		})
		return err
	})
	if err != nil {
		return domain.Internal(err, op, "Failed to create password reset token")
	}

	if err := s.mailer.SendPasswordResetEmail(ctx, repoUser.Email, repoUser.Name, rawToken); err != nil {
		s.logger.Error("failed to send password reset email", "user_id", repoUser.ID, "error", err)
		return nil
	}

	s.logger.Info("password reset requested", "user_id", repoUser.ID)
	return nil
}

// ResetPassword validates the token, sets the new password, marks the token
// used and deletes every session of the user, all in one transaction.
func (s *userService) ResetPassword(ctx context.Context, params domain.ResetPasswordParams) error {
	const op = "user.reset_password"
	invalid := domain.Invalid(op, ErrMsgInvalidResetLink)

	if !isWellFormedToken(params.Token) {
		return invalid
	}
	if err := validatePassword(params.NewPassword); err != nil {
		return &domain.ValidationError{Op: op, Fields: map[string]string{"password": domain.ErrorMessage(err)}}
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(params.NewPassword), BcryptCost)
	if err != nil {
		return domain.Internal(err, op, "Failed to hash new password")
	}

	var userID uuid.UUID
	err = s.store.ExecTx(ctx, func(q repository.Querier) error {
		token, err := q.GetPasswordResetToken(ctx, hashToken(params.Token))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return invalid
			}
			return err
		}
		rt := domain.PasswordResetToken{ExpiresAt: token.ExpiresAt, UsedAt: domain.NullTimeValue(token.UsedAt)}
		if rt.UsedAt != nil || s.now().After(rt.ExpiresAt) {
			return invalid
		}
		userID = token.UserID

		if err := q.UpdateUserPassword(ctx, repository.UpdateUserPasswordParams{
			ID:           token.UserID,
			PasswordHash: string(passwordHash),
		}); err != nil {
			return err
		}
		if err := q.MarkPasswordResetTokenUsed(ctx, token.ID); err != nil {
			return err
		}
		return q.DeleteUserSessions(ctx, token.UserID)
	})
	if err != nil {
		if domain.ErrorCode(err) == domain.EINVALID {
			return err
		}
		return domain.Internal(err, op, "Failed to reset password")
	}

	s.logger.Info("password reset completed", "user_id", userID)
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// startSession creates a session row for u and returns the raw token.
func (s *userService) startSession(ctx context.Context, q repository.Querier, u repository.User) (*domain.LoginResult, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	_, err = q.CreateSession(ctx, repository.CreateSessionParams{
		UserID:    u.ID,
		TokenHash: hashToken(token),
		ExpiresAt: s.now().Add(s.sessionDuration),
	})
	if err != nil {
		return nil, err
	}

	user := repoUserToDomain(u)
	user.PasswordHash = ""
	return &domain.LoginResult{User: user, Token: token}, nil
}

// generateToken returns 32 random bytes hex-encoded to 64 characters.
func generateToken() (string, error) {
	b := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// hashToken returns the SHA-256 of a high-entropy token. Tokens are random,
// so a fast hash is enough.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func isWellFormedToken(token string) bool {
	if len(token) != SessionTokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}

// generateOTP returns a uniformly random zero-padded 6-digit code.
func generateOTP() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", domain.OTPDigits, n.Int64()), nil
}

// hashOTP binds the code to the user so equal codes hash differently.
func hashOTP(userID uuid.UUID, code string) string {
	sum := sha256.Sum256([]byte(userID.String() + ":" + code))
	return hex.EncodeToString(sum[:])
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// repoUserToDomain converts a repository.User to domain.User.
func repoUserToDomain(u repository.User) *domain.User {
	user := &domain.User{
		ID:                   u.ID,
		Email:                u.Email,
		PasswordHash:         u.PasswordHash,
		Name:                 u.Name,
		Role:                 domain.Role(u.Role),
		StripeCustomerID:     domain.NullStringValue(u.StripeCustomerID),
		SubscriptionTier:     domain.SubscriptionTier(u.SubscriptionTier),
		SubscriptionID:       domain.NullStringValue(u.SubscriptionID),
		SubscriptionSyncedAt: domain.NullTimeValue(u.SubscriptionSyncedAt),
		GenerationsToday:     int(u.GenerationsToday),
		LastGenerationDay:    domain.NullTimeValue(u.LastGenerationDay),
		EmailVerified:        u.EmailVerified,
		EmailVerifiedAt:      domain.NullTimeValue(u.EmailVerifiedAt),
		CreatedAt:            u.CreatedAt,
		UpdatedAt:            u.UpdatedAt,
	}
	if user.Role == "" {
		user.Role = domain.RoleUser
	}
	return user
}

// validateEmail checks length and RFC 5322 syntax. The address must be bare
// (no display name) and its domain must contain a dot.
func validateEmail(address string) error {
	if address == "" {
		return domain.Invalid("", "Email is required")
	}
	if len(address) > 254 {
		return domain.Invalid("", "Email must be 254 characters or less")
	}
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address {
		return domain.Invalid("", "Please enter a valid email address")
	}
	at := strings.LastIndex(address, "@")
	if !strings.Contains(address[at+1:], ".") || strings.Contains(address, "..") {
		return domain.Invalid("", "Please enter a valid email address")
	}
	return nil
}

// validatePassword validates password strength requirements.
//
// Rules:
// - 8 to 72 characters
// - at least one letter and one number
// - not a well-known password
func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return domain.Invalid("", fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > MaxPasswordLength {
		return domain.Invalid("", fmt.Sprintf("Password must be %d characters or less", MaxPasswordLength))
	}

	var hasLetter, hasNumber bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasNumber = true
		}
	}
	if !hasLetter {
		return domain.Invalid("", "Password must contain at least one letter")
	}
	if !hasNumber {
		return domain.Invalid("", "Password must contain at least one number")
	}

	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		return domain.Invalid("", "Password is too common, please choose another")
	}
	return nil
}
