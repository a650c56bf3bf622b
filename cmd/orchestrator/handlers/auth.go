package handlers

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/logger"
)

// TokenAuth guards endpoints with a bearer token checked against a bcrypt hash.
type TokenAuth struct {
	hash   []byte
	logger logger.Logger
}

// NewTokenAuth creates the middleware. An empty hash disables the check.
func NewTokenAuth(hash string, log logger.Logger) *TokenAuth {
	return &TokenAuth{hash: []byte(hash), logger: log}
}

// HashToken returns the bcrypt hash to configure for token.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Handler wraps an HTTP handler with bearer token authentication.
func (m *TokenAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.hash) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		rawToken := strings.TrimPrefix(authHeader, "Bearer ")
		if err := bcrypt.CompareHashAndPassword(m.hash, []byte(rawToken)); err != nil {
			m.logger.Warn(r.Context(), "invalid bearer token", map[string]interface{}{
				"path": r.URL.Path,
			})
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}
