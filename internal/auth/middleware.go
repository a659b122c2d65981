package auth

import (
	"context"
	"net/http"
)

// contextKey is unexported so no other package can collide with our keys.
type contextKey string

const claimsKey contextKey = "sessionClaims"

// RequireAuth rejects requests without a valid session token with 401 and
// stores the token's claims in the context otherwise.
//
// It checks the token only. Routes that need the reconciled role use the
// session middleware in internal/middleware instead.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := claimsFromRequest(r, tokens)
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth stores the claims when a valid token is present and passes
// every request through.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if claims, ok := claimsFromRequest(r, tokens); ok {
				r = r.WithContext(WithClaims(r.Context(), claims))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *SessionClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the session claims stored by RequireAuth or
// OptionalAuth.
func ClaimsFromContext(ctx context.Context) (*SessionClaims, bool) {
	c, ok := ctx.Value(claimsKey).(*SessionClaims)
	return c, ok && c != nil
}

func claimsFromRequest(r *http.Request, tokens *TokenService) (*SessionClaims, bool) {
	raw, ok := SessionToken(r)
	if !ok {
		return nil, false
	}
	claims, err := tokens.Validate(raw)
	if err != nil {
		return nil, false
	}
	return claims, true
}
