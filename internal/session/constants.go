// Package session owns the session cookie shared by the auth handlers and
// the auth middleware.
package session

import (
	"net/http"
	"time"
)

const (
	// CookieName is the name of the cookie that stores the session token.
	CookieName = "adcraft_session"

	// CookiePath ensures the cookie is sent with all requests.
	CookiePath = "/"
)

// SetCookie writes the session cookie. maxAge should match the server-side
// session duration.
func SetCookie(w http.ResponseWriter, token string, maxAge time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     CookiePath,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func ClearCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Token returns the raw session token from the request, or "".
func Token(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
