package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/freightlane/auth-core/internal/application/session"
	"github.com/freightlane/auth-core/internal/domain"
	"github.com/rs/zerolog/log"
)

type contextKey string

const PrincipalKey contextKey = "principal"

// Authenticator resolves a bearer token to the calling account.
type Authenticator interface {
	Authenticate(ctx context.Context, bearer string) (*session.Principal, error)
}

// Auth returns middleware that validates the Bearer token and injects the principal into context.
func Auth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeJSONError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}
			tokenStr := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			p, err := authn.Authenticate(r.Context(), tokenStr)
			if err != nil {
				if errors.Is(err, domain.ErrUnauthorized) {
					writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
					return
				}
				log.Ctx(r.Context()).Error().Err(err).Msg("authenticate bearer token")
				writeJSONError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			ctx := context.WithValue(r.Context(), PrincipalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext extracts the authenticated caller from the request context.
func PrincipalFromContext(ctx context.Context) (*session.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(*session.Principal)
	return p, ok
}
