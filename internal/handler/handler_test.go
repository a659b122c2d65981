package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/contribhub/internal/apperror"
	"github.com/sakif/contribhub/internal/auth"
	"github.com/sakif/contribhub/internal/handler"
	"github.com/sakif/contribhub/internal/metrics"
	"github.com/sakif/contribhub/internal/middleware"
	"github.com/sakif/contribhub/internal/model"
	"github.com/sakif/contribhub/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeProvider builds its consent URL from the state.
type fakeProvider struct{}

func (fakeProvider) AuthURL(state string) string {
	return "https://idp.example.com/authorize?state=" + state
}

func (fakeProvider) Exchange(context.Context, string) (*auth.SignInResult, error) {
	return nil, errors.New("not used")
}

type fakeExchanger struct {
	result *auth.SignInResult
	err    error
	codes  []string
}

func (f *fakeExchanger) Get(name model.Provider) (auth.Provider, error) {
	if name != model.ProviderGitHub {
		return nil, auth.ErrProviderNotFound
	}
	return fakeProvider{}, nil
}

func (f *fakeExchanger) Exchange(_ context.Context, _ model.Provider, code string) (*auth.SignInResult, error) {
	f.codes = append(f.codes, code)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeSessions struct {
	session  *service.Session
	err      error
	profiles map[string]*model.Profile
	signOuts []string
}

func (f *fakeSessions) SignIn(context.Context, *auth.SignInResult) (*service.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func (f *fakeSessions) SignOut(_ context.Context, uid string) {
	f.signOuts = append(f.signOuts, uid)
}

func (f *fakeSessions) Profile(_ context.Context, uid string) (*model.Profile, error) {
	p, ok := f.profiles[uid]
	if !ok {
		return nil, apperror.NotFound("profile", uid)
	}
	return p, nil
}

type testEnv struct {
	router    chi.Router
	exchanger *fakeExchanger
	sessions  *fakeSessions
	metrics   *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		exchanger: &fakeExchanger{result: &auth.SignInResult{Provider: model.ProviderGitHub, StableUserID: "github:1"}},
		sessions: &fakeSessions{
			session: &service.Session{
				Profile: &model.Profile{UID: "github:1", Role: model.RoleMaintainer},
				Role:    model.RoleMaintainer,
				Token:   "signed-token",
			},
			profiles: map[string]*model.Profile{
				"github:1": {UID: "github:1", Email: "octo@example.com", Role: model.RoleMaintainer},
			},
		},
		metrics: metrics.New(nil),
	}

	h := handler.NewAuthHandler(env.exchanger, env.sessions, auth.CookieConfig{TTL: time.Hour}, testLogger(), env.metrics)

	r := chi.NewRouter()
	r.Get("/auth/{provider}/login", h.HandleLogin)
	r.Get("/auth/{provider}/callback", h.HandleCallback)
	r.Post("/auth/logout", h.HandleLogout)
	r.Get("/api/session", h.HandleSession)
	r.Get("/api/me", h.HandleMe)
	env.router = r
	return env
}

func (env *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func callbackRequest(state, cookieState string, extra url.Values) *http.Request {
	q := url.Values{"code": {"abc"}, "state": {state}}
	for k, v := range extra {
		q[k] = v
	}
	req := httptest.NewRequest(http.MethodGet, "/auth/github/callback?"+q.Encode(), nil)
	if cookieState != "" {
		req.AddCookie(&http.Cookie{Name: auth.StateCookieName, Value: cookieState})
	}
	return req
}

// =========================================================================
// LOGIN TESTS
// =========================================================================

func TestHandleLogin_RedirectsWithState(t *testing.T) {
	env := newTestEnv(t)

	rr := env.serve(httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
	state := findCookie(rr, auth.StateCookieName)
	require.NotNil(t, state)
	assert.NotEmpty(t, state.Value)
	assert.True(t, state.HttpOnly)
	assert.Equal(t, "https://idp.example.com/authorize?state="+state.Value, rr.Header().Get("Location"))
}

func TestHandleLogin_UnknownProvider(t *testing.T) {
	env := newTestEnv(t)

	for _, p := range []string{"gitlab", "google"} {
		rr := env.serve(httptest.NewRequest(http.MethodGet, "/auth/"+p+"/login", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code, p)
	}
}

// =========================================================================
// CALLBACK TESTS
// =========================================================================

func TestHandleCallback_Success(t *testing.T) {
	env := newTestEnv(t)

	rr := env.serve(callbackRequest("s1", "s1", nil))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/dashboard/maintainer", rr.Header().Get("Location"))
	assert.Equal(t, []string{"abc"}, env.exchanger.codes)

	sess := findCookie(rr, auth.SessionCookieName)
	require.NotNil(t, sess)
	assert.Equal(t, "signed-token", sess.Value)
	assert.Equal(t, 3600, sess.MaxAge)
	assert.True(t, sess.HttpOnly, "session cookie must not be readable by scripts")

	state := findCookie(rr, auth.StateCookieName)
	require.NotNil(t, state)
	assert.True(t, state.MaxAge < 0, "state cookie must be consumed")

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.SignInsTotal.WithLabelValues("github", "success")))
}

func TestHandleCallback_FailuresLeaveSessionAlone(t *testing.T) {
	tests := []struct {
		name        string
		state       string
		cookieState string
		extra       url.Values
		exchangeErr error
		signInErr   error
		reason      string
	}{
		{name: "missing state cookie", state: "s1", reason: "state_mismatch"},
		{name: "state mismatch", state: "s1", cookieState: "s2", reason: "state_mismatch"},
		{name: "user denied", state: "s1", cookieState: "s1", extra: url.Values{"error": {"access_denied"}}, reason: "denied"},
		{name: "provider rejected code", state: "s1", cookieState: "s1", exchangeErr: auth.ErrAuthFailed, reason: "rejected"},
		{name: "exchange transport error", state: "s1", cookieState: "s1", exchangeErr: errors.New("dial tcp: refused"), reason: "exchange_error"},
		{name: "sign-in failed", state: "s1", cookieState: "s1", signInErr: apperror.ValidationFailed("uid", "missing uid"), reason: "sign_in_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.exchanger.err = tt.exchangeErr
			env.sessions.err = tt.signInErr

			req := callbackRequest(tt.state, tt.cookieState, tt.extra)
			req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "existing"})
			rr := env.serve(req)

			assert.Equal(t, http.StatusSeeOther, rr.Code)
			assert.Equal(t, handler.SignInErrorPath, rr.Header().Get("Location"))
			assert.Nil(t, findCookie(rr, auth.SessionCookieName), "existing session cookie must not be touched")
			assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.SignInsTotal.WithLabelValues("github", tt.reason)))
		})
	}
}

func TestHandleCallback_DeniedSkipsExchange(t *testing.T) {
	env := newTestEnv(t)

	env.serve(callbackRequest("s1", "s1", url.Values{"error": {"access_denied"}}))

	assert.Empty(t, env.exchanger.codes)
}

// =========================================================================
// LOGOUT / SESSION / ME TESTS
// =========================================================================

func TestHandleLogout_ClearsCookie(t *testing.T) {
	env := newTestEnv(t)

	rr := env.serve(withClaims(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), "github:1"))

	assert.Equal(t, http.StatusOK, rr.Code)
	c := findCookie(rr, auth.SessionCookieName)
	require.NotNil(t, c)
	assert.True(t, c.MaxAge < 0)
	assert.Equal(t, []string{"github:1"}, env.sessions.signOuts)
}

func TestHandleLogout_WithoutSession(t *testing.T) {
	env := newTestEnv(t)

	rr := env.serve(httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, env.sessions.signOuts)
}

func TestHandleSession(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	sess := &service.Session{
		Profile:  &model.Profile{UID: "github:7", Role: model.RoleAdmin},
		Provider: model.ProviderGitHub,
		Role:     model.RoleContributor,
		Degraded: true,
	}
	req = req.WithContext(middleware.WithSession(req.Context(), sess))
	rr := env.serve(req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body handler.SessionResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "github:7", body.Profile.UID)
	assert.Equal(t, model.RoleContributor, body.Role)
	assert.Equal(t, "/dashboard/contributor", body.Dashboard)
	assert.True(t, body.Degraded)
}

func TestHandleSession_NoSession(t *testing.T) {
	env := newTestEnv(t)

	rr := env.serve(httptest.NewRequest(http.MethodGet, "/api/session", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	var body handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "unauthenticated", body.Error)
}

func withClaims(req *http.Request, uid string) *http.Request {
	claims := &auth.SessionClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: uid}}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

func TestHandleMe(t *testing.T) {
	env := newTestEnv(t)

	rr := env.serve(withClaims(httptest.NewRequest(http.MethodGet, "/api/me", nil), "github:1"))

	require.Equal(t, http.StatusOK, rr.Code)
	var p model.Profile
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&p))
	assert.Equal(t, "octo@example.com", p.Email)
}

func TestHandleMe_Errors(t *testing.T) {
	env := newTestEnv(t)

	rr := env.serve(httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.serve(withClaims(httptest.NewRequest(http.MethodGet, "/api/me", nil), "github:404"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// =========================================================================
// DASHBOARD / HEALTH TESTS
// =========================================================================

func TestHandleEntry(t *testing.T) {
	h := handler.NewDashboardHandler(testLogger())

	tests := []struct {
		name string
		sess *service.Session
		want string
	}{
		{name: "no session", want: "/"},
		{name: "admin", sess: &service.Session{Profile: &model.Profile{UID: "a"}, Role: model.RoleAdmin}, want: "/dashboard/admin"},
		{name: "contributor", sess: &service.Session{Profile: &model.Profile{UID: "c"}, Role: model.RoleContributor}, want: "/dashboard/contributor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
			if tt.sess != nil {
				req = req.WithContext(middleware.WithSession(req.Context(), tt.sess))
			}
			rr := httptest.NewRecorder()
			h.HandleEntry(rr, req)

			assert.Equal(t, http.StatusFound, rr.Code)
			assert.Equal(t, tt.want, rr.Header().Get("Location"))
		})
	}
}

func TestHandleSection(t *testing.T) {
	h := handler.NewDashboardHandler(testLogger())
	sess := &service.Session{Profile: &model.Profile{UID: "github:9"}, Role: model.RoleMaintainer}

	req := httptest.NewRequest(http.MethodGet, "/dashboard/maintainer/reviews", nil)
	req = req.WithContext(middleware.WithSession(req.Context(), sess))
	rr := httptest.NewRecorder()
	h.HandleSection("maintainer")(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body handler.SectionResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, handler.SectionResponse{
		Section: "maintainer",
		Path:    "/dashboard/maintainer/reviews",
		UID:     "github:9",
		Role:    "maintainer",
	}, body)

	rr = httptest.NewRecorder()
	h.HandleSection("maintainer")(rr, httptest.NewRequest(http.MethodGet, "/dashboard/maintainer", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

type pinger struct{ err error }

func (p pinger) Ping() error { return p.err }

func TestHandleHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	handler.NewHealthHandler(pinger{}, testLogger()).HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.NewHealthHandler(pinger{err: errors.New("disk gone")}, testLogger()).HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
