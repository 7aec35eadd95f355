package middleware

import (
	"net/http"
	"strings"

	"github.com/kiranshivaraju/imgjobs/internal/api/response"
	"golang.org/x/crypto/bcrypt"
)

// Principal names recorded in the request context.
const (
	PrincipalConsole   = "console"
	PrincipalAnonymous = "anonymous"
)

// Auth checks the console bearer token against a bcrypt hash.
// With no hash configured every request passes as anonymous.
type Auth struct {
	tokenHash []byte
}

// NewAuth creates a new Auth middleware.
func NewAuth(tokenHash string) *Auth {
	a := &Auth{}
	if tokenHash != "" {
		a.tokenHash = []byte(tokenHash)
	}
	return a
}

// Enabled reports whether a token is required.
func (a *Auth) Enabled() bool {
	return a.tokenHash != nil
}

// Authenticate validates the bearer token and sets the principal in the
// request context. Browsers cannot set headers on a websocket upgrade, so
// an access_token query parameter is accepted as well.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r.WithContext(setPrincipal(r.Context(), PrincipalAnonymous)))
			return
		}

		token := extractBearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("access_token")
		}
		if token == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if bcrypt.CompareHashAndPassword(a.tokenHash, []byte(token)) != nil {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid console token", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(setPrincipal(r.Context(), PrincipalConsole)))
	})
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
