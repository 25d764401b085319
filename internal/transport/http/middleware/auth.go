package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-enroll-api/internal/domain"
	jwtinfra "github.com/go-enroll-api/internal/infrastructure/jwt"
)

type contextKey string

const claimsKey contextKey = "claims"

type tokenVerifier interface {
	Verify(tokenStr string) (*jwtinfra.Claims, error)
}

// SessionLookup resolves the session named in a bearer token.
type SessionLookup interface {
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
}

// Auth returns middleware that validates the Bearer JWT and injects claims into context.
// When sessions is non-nil the token's session must still be enabled, so logout, block
// and password reset take effect before the token expires.
func Auth(provider tokenVerifier, sessions SessionLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				abort(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
			claims, err := provider.Verify(tokenStr)
			if err != nil {
				abort(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			if sessions != nil {
				sess, err := sessions.Get(r.Context(), claims.SessionID())
				if err != nil || !sess.Enable {
					abort(w, http.StatusUnauthorized, "session revoked")
					return
				}
			}
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext extracts JWT claims from the request context.
func ClaimsFromContext(ctx context.Context) (*jwtinfra.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*jwtinfra.Claims)
	return c, ok
}

// WithClaims returns ctx carrying claims. Handlers under test use it to skip token signing.
func WithClaims(ctx context.Context, claims *jwtinfra.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}
