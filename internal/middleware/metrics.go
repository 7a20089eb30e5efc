package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/adcraft/internal/handler"
)

// MetricsAuth guards the Prometheus scrape endpoint with basic auth. With no
// credentials configured the endpoint is open, which config validation only
// allows in development.
func MetricsAuth(username, password string, logger *slog.Logger) func(http.Handler) http.Handler {
	if username == "" && password == "" {
		return func(next http.Handler) http.Handler { return next }
	}

	// Comparing digests keeps the comparison constant-time in the length of
	// the configured secrets too.
	wantUser := sha256.Sum256([]byte(username))
	wantPass := sha256.Sum256([]byte(password))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if ok {
				gotUser := sha256.Sum256([]byte(user))
				gotPass := sha256.Sum256([]byte(pass))
				userOK := subtle.ConstantTimeCompare(gotUser[:], wantUser[:])
				passOK := subtle.ConstantTimeCompare(gotPass[:], wantPass[:])
				if userOK&passOK == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}

			logger.Warn("metrics scrape rejected",
				"ip", handler.ClientIP(r),
				"credentials_sent", ok,
			)
			w.Header().Set("WWW-Authenticate", `Basic realm="adcraft metrics", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
}
