package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLimiter returns a limiter whose clock the test controls.
func newTestLimiter(t *testing.T, max int, window time.Duration) (*RateLimiter, *time.Time) {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(max, window, newTestLogger())
	rl.now = func() time.Time { return now }
	t.Cleanup(rl.Stop)
	return rl, &now
}

// =============================================================================
// RateLimiter
// =============================================================================

func TestRateLimiter_Allow(t *testing.T) {
	rl, _ := newTestLimiter(t, 3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "attempt %d", i+1)
	}
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "other keys have their own window")
}

func TestRateLimiter_WindowExpires(t *testing.T) {
	rl, now := newTestLimiter(t, 1, time.Minute)

	require.True(t, rl.Allow("ip"))
	require.False(t, rl.Allow("ip"))

	*now = now.Add(30 * time.Second)
	assert.Equal(t, 30*time.Second, rl.TimeUntilReset("ip"))

	*now = now.Add(30 * time.Second)
	assert.Zero(t, rl.TimeUntilReset("ip"))
	assert.True(t, rl.Allow("ip"))
}

func TestRateLimiter_RecordFailureAndReset(t *testing.T) {
	rl, _ := newTestLimiter(t, 2, time.Minute)

	rl.RecordFailure("ip")
	rl.RecordFailure("ip")
	assert.False(t, rl.Allow("ip"))

	rl.Reset("ip")
	assert.True(t, rl.Allow("ip"))
	assert.Zero(t, rl.TimeUntilReset("unknown"))
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl, _ := newTestLimiter(t, 50, time.Minute)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("ip") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, newTestLogger())
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}

// =============================================================================
// RateLimitMiddleware
// =============================================================================

func TestRateLimitMiddleware_Limit(t *testing.T) {
	rl, _ := newTestLimiter(t, 2, time.Hour)
	h := NewRateLimitMiddleware(rl, newTestLogger()).Limit(okHandler(nil))

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/contact", nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("203.0.113.7").Code)
	assert.Equal(t, http.StatusOK, send("203.0.113.7").Code)

	rec := send("203.0.113.7")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"rate_limit"`)
	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Equal(t, 3600, retry)

	assert.Equal(t, http.StatusOK, send("198.51.100.1").Code)
}

func TestRateLimitMiddleware_UsesForwardedFor(t *testing.T) {
	rl, _ := newTestLimiter(t, 1, time.Hour)
	h := NewRateLimitMiddleware(rl, newTestLogger()).Limit(okHandler(nil))

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/newsletter", nil)
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("192.0.2.1, 10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, send("192.0.2.1"))
	assert.Equal(t, http.StatusOK, send("192.0.2.2"))
}

// =============================================================================
// AuthRateLimiter
// =============================================================================

func TestAuthRateLimiter_LoginFailures(t *testing.T) {
	a := NewAuthRateLimiter(newTestLogger())
	t.Cleanup(a.Stop)

	for i := 0; i < 5; i++ {
		a.RecordFailedLogin("192.0.2.9")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
	req.RemoteAddr = "192.0.2.9:1234"
	rec := httptest.NewRecorder()
	a.LimitLogin(okHandler(nil)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	a.ResetLogin("192.0.2.9")
	rec = httptest.NewRecorder()
	a.LimitLogin(okHandler(nil)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRateLimiter_OTP(t *testing.T) {
	a := NewAuthRateLimiter(newTestLogger())
	t.Cleanup(a.Stop)
	h := a.LimitOTP(okHandler(nil))

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/otp/send", nil)
		req.RemoteAddr = "192.0.2.10:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{200, 200, 200, 429}, codes)
}
