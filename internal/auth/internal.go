// Package auth guards the internal operations endpoints with a shared
// secret and identifies end users from HS256 bearer tokens.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/albapepper/pitlane/internal/api/respond"
	"github.com/albapepper/pitlane/internal/apperr"
)

// Headers checked for the internal secret, after the bearer token.
const (
	HeaderSettlementSecret = "X-Settlement-Secret"
	HeaderCronSecret       = "X-Cron-Secret"
)

// SuppliedSecret extracts the caller's secret: bearer token first, then the
// settlement and cron headers.
func SuppliedSecret(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if v := r.Header.Get(HeaderSettlementSecret); v != "" {
		return v
	}
	return r.Header.Get(HeaderCronSecret)
}

// CheckSecret compares supplied against configured in constant time.
func CheckSecret(configured, supplied string) bool {
	if configured == "" || supplied == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(supplied)) == 1
}

// InternalOnly rejects requests without the configured secret. An
// unconfigured secret is a server error, not an auth failure.
func InternalOnly(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				respond.WriteError(w, http.StatusInternalServerError, apperr.CodeInternal,
					"Internal secret is not configured")
				return
			}
			if !CheckSecret(secret, SuppliedSecret(r)) {
				respond.WriteError(w, http.StatusUnauthorized, apperr.CodeUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
