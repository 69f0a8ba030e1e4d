package middleware

import (
	"net/http"
	"strings"

	"github.com/kiranshivaraju/questforge/internal/api/response"
)

// SecretHeader carries the worker secret on operator and producer routes.
const SecretHeader = "X-Worker-Secret"

// Verifier checks a supplied shared secret.
type Verifier interface {
	Verify(supplied string) bool
}

// Auth guards internal routes with the shared worker secret.
type Auth struct {
	verifier Verifier
}

// NewAuth creates a new Auth middleware.
func NewAuth(v Verifier) *Auth {
	return &Auth{verifier: v}
}

// Authenticate accepts the secret from X-Worker-Secret or a Bearer token.
// A missing secret is 401, a wrong one 403.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := extractSecret(r)
		if secret == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing worker secret", nil)
			return
		}
		if !a.verifier.Verify(secret) {
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "Invalid worker secret", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractSecret(r *http.Request) string {
	if s := strings.TrimSpace(r.Header.Get(SecretHeader)); s != "" {
		return s
	}
	return extractBearerToken(r)
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
