package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/contribhub/internal/apperror"
	"github.com/sakif/contribhub/internal/auth"
	"github.com/sakif/contribhub/internal/service"
)

// Rehydrator rebuilds a session from its token.
type Rehydrator interface {
	Rehydrate(ctx context.Context, token string) (*service.Session, error)
}

type contextKey string

const sessionKey contextKey = "session"

// WithSession returns a copy of ctx carrying sess.
func WithSession(ctx context.Context, sess *service.Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// SessionFromContext returns the session stored by Session.
func SessionFromContext(ctx context.Context) (*service.Session, bool) {
	sess, ok := ctx.Value(sessionKey).(*service.Session)
	return sess, ok && sess != nil
}

// Session rehydrates the session for every request that carries the session
// cookie. On success the session is put in the context and the cookie is
// refreshed; an invalid token clears the cookie. Requests without a cookie
// pass through untouched.
func Session(rh Rehydrator, cookie auth.CookieConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.SessionToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := rh.Rehydrate(r.Context(), token)
			if err != nil {
				if errors.Is(err, apperror.ErrUnauthenticated) {
					auth.ClearSessionCookie(w, cookie)
				} else {
					logger.Error("session rehydration failed", slog.String("error", err.Error()))
				}
				next.ServeHTTP(w, r)
				return
			}

			auth.SetSessionCookie(w, sess.Token, cookie)
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}
