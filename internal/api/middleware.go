/**
 * @description
 * Authorization middleware for the internal API surface.
 */
package api

import (
	"crypto/subtle"
	"net/http"
)

// InternalAuthMiddleware validates the internal API key for server-to-server
// calls. An empty configured key disables the check (local development).
// The comparison is constant-time, same as the webhook clientState check.
func InternalAuthMiddleware(requiredKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requiredKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get("X-Internal-API-Key")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(requiredKey)) != 1 {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
