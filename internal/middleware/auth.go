// Package middleware provides the HTTP middleware chain: identity
// extraction, request logging, and metrics.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/keza/ikimina/internal/auth"
	"github.com/keza/ikimina/internal/models"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// identityKey is the context key for the authenticated caller identity.
const identityKey contextKey = "identity"

// IdentityFrom extracts the caller identity from the context. ok is
// false when the request was not authenticated.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityKey).(models.Identity)
	return id, ok
}

// WithIdentity returns a context carrying the given identity. Exposed
// for tests that call services without the HTTP stack.
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// RequireAuth validates the session token and adds the caller identity
// to the request context. The token comes from the Authorization header
// (Bearer scheme) or, for websocket upgrades where browsers cannot set
// headers, the "token" query parameter. Requests without a valid token
// get 401 and never reach the handler.
func RequireAuth(jwtManager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := bearerToken(r)
			if tokenString == "" {
				tokenString = r.URL.Query().Get("token")
			}
			if tokenString == "" {
				unauthenticated(w, auth.ErrMissingToken.Error())
				return
			}

			claims, err := jwtManager.Validate(tokenString)
			if err != nil {
				unauthenticated(w, auth.ErrInvalidToken.Error())
				return
			}

			ctx := WithIdentity(r.Context(), claims.Identity())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

func unauthenticated(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
