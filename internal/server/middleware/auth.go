// Package middleware provides HTTP middleware for the trainercal server.
package middleware

import (
	"net/http"
	"strings"

	"github.com/dtorcivia/trainercal/internal/crypto"
	"github.com/dtorcivia/trainercal/internal/response"
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// TokenAuth returns middleware that accepts only requests carrying the
// trainer API token whose HMAC matches tokenHash. Every request is charged
// against limiter before the token is checked, keyed by the connection's
// remote address, so failed guesses are throttled too.
func TokenAuth(hasher *crypto.TokenHasher, tokenHash string, limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Check rate limits; proxy headers are ignored here
			if limiter != nil && !limiter.Allow(RemoteIP(r)) {
				response.WriteRateLimited(w, limiter.RetryAfter())
				return
			}

			// Validate bearer token
			token, ok := BearerToken(r)
			if !ok || !hasher.Verify(token, tokenHash) {
				response.WriteUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
