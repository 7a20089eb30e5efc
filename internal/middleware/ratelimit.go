package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/DukeRupert/adcraft/internal/domain"
	"github.com/DukeRupert/adcraft/internal/handler"
)

// =============================================================================
// Rate Limiter
// =============================================================================

// RateLimiter counts attempts per key inside a fixed window that starts at
// the key's first attempt.
type RateLimiter struct {
	maxAttempts int
	window      time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.Mutex
	entries map[string]*rateLimitEntry

	stopOnce sync.Once
	stop     chan struct{}
}

type rateLimitEntry struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop.
// Call Stop to end the loop.
func NewRateLimiter(maxAttempts int, window time.Duration, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		logger:      logger,
		now:         time.Now,
		entries:     make(map[string]*rateLimitEntry),
		stop:        make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Allow records an attempt for key and reports whether it is within the limit.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry := rl.current(key)
	if entry.count >= rl.maxAttempts {
		return false
	}
	entry.count++
	return true
}

// RecordFailure counts an attempt without checking the limit.
func (rl *RateLimiter) RecordFailure(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.current(key).count++
}

// Reset clears the count for a key.
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.entries, key)
}

// TimeUntilReset returns how long until the window for key ends.
func (rl *RateLimiter) TimeUntilReset(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.entries[key]
	if !ok {
		return 0
	}
	elapsed := rl.now().Sub(entry.windowStart)
	if elapsed >= rl.window {
		return 0
	}
	return rl.window - elapsed
}

// Stop ends the cleanup loop. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// current returns the live entry for key, starting a new window when the
// old one has expired. Caller holds mu.
func (rl *RateLimiter) current(key string) *rateLimitEntry {
	now := rl.now()
	entry, ok := rl.entries[key]
	if !ok || now.Sub(entry.windowStart) >= rl.window {
		entry = &rateLimitEntry{windowStart: now}
		rl.entries[key] = entry
	}
	return entry
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, entry := range rl.entries {
				if now.Sub(entry.windowStart) >= rl.window {
					delete(rl.entries, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// =============================================================================
// Rate Limit Middleware
// =============================================================================

// RateLimitMiddleware limits requests per client IP.
type RateLimitMiddleware struct {
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewRateLimitMiddleware creates a new rate limit middleware.
func NewRateLimitMiddleware(limiter *RateLimiter, logger *slog.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		logger:  logger,
	}
}

// Limit returns middleware that answers 429 with Retry-After once the
// client's window is used up.
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := handler.ClientIP(r)

		if !m.limiter.Allow(clientIP) {
			m.logger.Warn("rate limit exceeded",
				"ip", clientIP,
				"path", r.URL.Path,
				"method", r.Method,
			)

			retryAfter := int(m.limiter.TimeUntilReset(clientIP).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			handler.ErrorResponse(w, r, m.logger, domain.RateLimit("ratelimit"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Auth Rate Limiter
// =============================================================================

// AuthRateLimiter holds the per-action limits for authentication endpoints.
type AuthRateLimiter struct {
	loginLimiter         *RateLimiter
	registerLimiter      *RateLimiter
	passwordResetLimiter *RateLimiter
	otpLimiter           *RateLimiter
	logger               *slog.Logger
}

// NewAuthRateLimiter creates the auth limiters:
//   - login: 5 attempts per 15 minutes
//   - register: 3 per hour
//   - password reset: 3 per hour
//   - OTP send: 3 per hour
func NewAuthRateLimiter(logger *slog.Logger) *AuthRateLimiter {
	return &AuthRateLimiter{
		loginLimiter:         NewRateLimiter(5, 15*time.Minute, logger),
		registerLimiter:      NewRateLimiter(3, time.Hour, logger),
		passwordResetLimiter: NewRateLimiter(3, time.Hour, logger),
		otpLimiter:           NewRateLimiter(3, time.Hour, logger),
		logger:               logger,
	}
}

// LimitLogin rate limits login attempts.
func (a *AuthRateLimiter) LimitLogin(next http.Handler) http.Handler {
	return NewRateLimitMiddleware(a.loginLimiter, a.logger).Limit(next)
}

// LimitRegister rate limits registrations.
func (a *AuthRateLimiter) LimitRegister(next http.Handler) http.Handler {
	return NewRateLimitMiddleware(a.registerLimiter, a.logger).Limit(next)
}

// LimitPasswordReset rate limits password reset requests.
func (a *AuthRateLimiter) LimitPasswordReset(next http.Handler) http.Handler {
	return NewRateLimitMiddleware(a.passwordResetLimiter, a.logger).Limit(next)
}

// LimitOTP rate limits one-time code requests.
func (a *AuthRateLimiter) LimitOTP(next http.Handler) http.Handler {
	return NewRateLimitMiddleware(a.otpLimiter, a.logger).Limit(next)
}

// RecordFailedLogin counts a failed login for ip.
func (a *AuthRateLimiter) RecordFailedLogin(ip string) {
	a.loginLimiter.RecordFailure(ip)
}

// ResetLogin clears the login count for ip after a successful login.
func (a *AuthRateLimiter) ResetLogin(ip string) {
	a.loginLimiter.Reset(ip)
}

// Stop ends every limiter's cleanup loop.
func (a *AuthRateLimiter) Stop() {
	a.loginLimiter.Stop()
	a.registerLimiter.Stop()
	a.passwordResetLimiter.Stop()
	a.otpLimiter.Stop()
}
