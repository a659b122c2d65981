package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/sakif/contribhub/internal/apperror"
	"github.com/sakif/contribhub/internal/auth"
	"github.com/sakif/contribhub/internal/metrics"
	"github.com/sakif/contribhub/internal/middleware"
	"github.com/sakif/contribhub/internal/model"
	"github.com/sakif/contribhub/internal/service"
)

// SignInErrorPath is where a failed sign-in lands. The existing session
// cookie, if any, is left alone.
const SignInErrorPath = "/?auth=error"

// Sessions is the part of service.SessionService the handlers use.
type Sessions interface {
	SignIn(ctx context.Context, res *auth.SignInResult) (*service.Session, error)
	SignOut(ctx context.Context, uid string)
	Profile(ctx context.Context, uid string) (*model.Profile, error)
}

// Exchanger completes the OAuth code flow for a named provider.
type Exchanger interface {
	Get(name model.Provider) (auth.Provider, error)
	Exchange(ctx context.Context, name model.Provider, code string) (*auth.SignInResult, error)
}

// AuthHandler runs the sign-in flow and exposes the current session.
//
//   - HandleLogin    → redirect to the provider
//   - HandleCallback → exchange the code, sign in, set the session cookie
//   - HandleLogout   → clear the session cookie
//   - HandleSession  → the rehydrated session
//   - HandleMe       → the stored profile
type AuthHandler struct {
	providers Exchanger
	sessions  Sessions
	cookie    auth.CookieConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewAuthHandler(
	providers Exchanger,
	sessions Sessions,
	cookie auth.CookieConfig,
	logger *slog.Logger,
	m *metrics.Metrics,
) *AuthHandler {
	return &AuthHandler{
		providers: providers,
		sessions:  sessions,
		cookie:    cookie,
		logger:    logger,
		metrics:   m,
	}
}

// providerParam resolves the {provider} URL parameter to a configured provider.
func (h *AuthHandler) providerParam(r *http.Request) (model.Provider, auth.Provider, error) {
	raw := chi.URLParam(r, "provider")
	name, ok := model.ParseProvider(raw)
	if !ok {
		return "", nil, apperror.NotFound("provider", raw)
	}
	p, err := h.providers.Get(name)
	if err != nil {
		return "", nil, apperror.NotFound("provider", raw)
	}
	return name, p, nil
}

// HandleLogin redirects the browser to the provider's consent page.
//
// HTTP: GET /auth/{provider}/login
//
// A random state is stored in a short-lived cookie and checked on callback.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	_, p, err := h.providerParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     auth.StateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, p.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleCallback completes the sign-in.
//
// HTTP: GET /auth/{provider}/callback?code=xxx&state=yyy
//
//  1. Check the state cookie
//  2. Exchange the code for a SignInResult
//  3. Sign in (resolve role, store profile, issue token)
//  4. Set the session cookie and redirect to the role's dashboard
//
// Every failure redirects to SignInErrorPath.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	name, _, err := h.providerParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	log := h.logger.With(slog.String("provider", string(name)))

	fail := func(reason string, attrs ...any) {
		h.metrics.RecordSignIn(string(name), reason)
		log.Warn("sign-in failed", append([]any{slog.String("reason", reason)}, attrs...)...)
		http.Redirect(w, r, SignInErrorPath, http.StatusSeeOther)
	}

	stateCookie, err := r.Cookie(auth.StateCookieName)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		fail("state_mismatch")
		return
	}

	// The state is single use.
	http.SetCookie(w, &http.Cookie{
		Name:   auth.StateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		fail("denied", slog.String("error", errParam))
		return
	}

	res, err := h.providers.Exchange(r.Context(), name, r.URL.Query().Get("code"))
	if err != nil {
		reason := "exchange_error"
		if errors.Is(err, auth.ErrAuthFailed) {
			reason = "rejected"
		}
		fail(reason, slog.String("error", err.Error()))
		return
	}

	sess, err := h.sessions.SignIn(r.Context(), res)
	if err != nil {
		fail("sign_in_error", slog.String("error", err.Error()))
		return
	}

	h.metrics.RecordSignIn(string(name), "success")
	auth.SetSessionCookie(w, sess.Token, h.cookie)
	http.Redirect(w, r, sess.DashboardBase(), http.StatusSeeOther)
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// Auth: auth.OptionalAuth. Tokens are stateless, so the token stays valid
// until it expires; without the cookie the browser no longer sends it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		h.sessions.SignOut(r.Context(), claims.UID())
	}
	auth.ClearSessionCookie(w, h.cookie)

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// SessionResponse is the body of GET /api/session.
type SessionResponse struct {
	Profile   *model.Profile `json:"profile"`
	Role      model.Role     `json:"role"`
	Provider  model.Provider `json:"provider,omitempty"`
	Dashboard string         `json:"dashboard"`
	Degraded  bool           `json:"degraded,omitempty"`
}

// HandleSession returns the rehydrated session.
//
// HTTP: GET /api/session
// Auth: middleware.Session must run first; no session → 401.
//
// The session cookie is HttpOnly, so browser code cannot read it. Clients
// call this endpoint instead of inspecting the cookie.
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated("no active session"))
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		Profile:   sess.Profile,
		Role:      sess.Role,
		Provider:  sess.Provider,
		Dashboard: sess.DashboardBase(),
		Degraded:  sess.Degraded || sess.Fallback,
	})
}

// HandleMe returns the stored profile of the signed-in user.
//
// HTTP: GET /api/me
// Auth: auth.RequireAuth
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated("valid authentication required"))
		return
	}

	profile, err := h.sessions.Profile(r.Context(), claims.UID())
	if err != nil {
		h.logger.Error("HandleMe: profile lookup failed",
			slog.String("uid", claims.UID()),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}
