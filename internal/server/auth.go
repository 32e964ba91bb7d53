package server

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/ternarybob/runpack/internal/handlers"
)

// Credential roles. Submit, runner, and admin are independent secrets;
// admin endpoints additionally accept the runner credential so runners
// can inspect coordinator state.
const (
	roleSubmit = "submit"
	roleRunner = "runner"
	roleAdmin  = "admin"
)

// requireRole wraps a handler with bearer-token authentication for one
// credential role.
func (s *Server) requireRole(role string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			handlers.WriteError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		if !s.tokenMatchesRole(token, role) {
			handlers.WriteError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		next(w, r)
	}
}

func (s *Server) tokenMatchesRole(token, role string) bool {
	switch role {
	case roleSubmit:
		return secretEqual(token, s.config.Auth.SubmitKey)
	case roleRunner:
		return secretEqual(token, s.config.Auth.RunnerKey)
	case roleAdmin:
		return secretEqual(token, s.config.Auth.AdminKey) ||
			secretEqual(token, s.config.Auth.RunnerKey)
	default:
		return false
	}
}

// secretEqual compares a presented token against a configured secret in
// constant time. An unconfigured secret never matches.
func secretEqual(token, secret string) bool {
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	token := strings.TrimSpace(auth[len(prefix):])
	return token, token != ""
}

// Rate-limit classes. Submit and status are keyed per client IP, runner
// endpoints per runner id. Admin endpoints are unbounded.
const (
	limitSubmit = "submit"
	limitStatus = "status"
	limitRunner = "runner"
)

// rateLimit wraps a handler with the fixed-window limiter for one class.
func (s *Server) rateLimit(class string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var key string
		var limit int

		switch class {
		case limitSubmit:
			key = "submit:" + clientIP(r)
			limit = s.config.RateLimit.SubmitPerWindow
		case limitStatus:
			key = "status:" + clientIP(r)
			limit = s.config.RateLimit.StatusPerWindow
		case limitRunner:
			id := r.Header.Get(handlers.RunnerIDHeader)
			if id == "" {
				id = clientIP(r)
			}
			key = "runner:" + id
			limit = s.config.RateLimit.RunnerPerWindow
		default:
			next(w, r)
			return
		}

		ok, resetAt := s.limiter.Allow(key, limit)
		if !ok {
			handlers.WriteJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"error":    "rate limit exceeded",
				"reset_at": resetAt.UnixMilli(),
			})
			return
		}

		next(w, r)
	}
}

// clientIP extracts the remote host, ignoring the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
