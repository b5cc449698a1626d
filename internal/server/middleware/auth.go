package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Auth rejects requests that do not carry apiKey as a Bearer token or an
// X-API-Key header. Paths in open bypass the check. An empty apiKey
// disables authentication.
func Auth(apiKey string, open ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || isOpen(r.URL.Path, open) {
				next.ServeHTTP(w, r)
				return
			}

			token := extractToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing authentication token")
				return
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid authentication token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isOpen(path string, open []string) bool {
	for _, p := range open {
		if path == p {
			return true
		}
	}
	return false
}

// extractToken reads "Authorization: Bearer <token>", then X-API-Key.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
