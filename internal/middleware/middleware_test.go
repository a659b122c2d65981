package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/contribhub/internal/apperror"
	"github.com/sakif/contribhub/internal/auth"
	"github.com/sakif/contribhub/internal/gate"
	"github.com/sakif/contribhub/internal/metrics"
	"github.com/sakif/contribhub/internal/model"
	"github.com/sakif/contribhub/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRehydrator maps tokens to sessions.
type fakeRehydrator struct {
	sessions map[string]*service.Session
	err      error
}

func (f *fakeRehydrator) Rehydrate(_ context.Context, token string) (*service.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	sess, ok := f.sessions[token]
	if !ok {
		return nil, apperror.Unauthenticated("session is missing or expired")
	}
	return sess, nil
}

func sessionFor(uid string, r model.Role, email string) *service.Session {
	return &service.Session{
		Profile: &model.Profile{UID: uid, Role: r, Email: email},
		Role:    r,
		Token:   "fresh-" + uid,
	}
}

type emails map[string]bool

func (e emails) HasEmail(email string) bool { return e[email] }

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok")
})

// =========================================================================
// ROUTE BOUNDARY TESTS
// =========================================================================

func TestRouteBoundary_NoCookieRedirectsHome(t *testing.T) {
	h := RouteBoundary(auth.SessionCookieName)(okHandler)

	for _, path := range []string{"/dashboard", "/dashboard/admin", "/dashboard/contributor/forms?tab=open&x=1"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		assert.Equal(t, http.StatusFound, rec.Code, path)
		assert.Equal(t, "/", rec.Header().Get("Location"), "query must be dropped for %s", path)
	}
}

func TestRouteBoundary_AnyCookieValuePasses(t *testing.T) {
	h := RouteBoundary(auth.SessionCookieName)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/dashboard/admin", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "not-even-a-jwt"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouteBoundary_EmptyCookieRedirects(t *testing.T) {
	h := RouteBoundary(auth.SessionCookieName)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: ""})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
}

// =========================================================================
// SESSION TESTS
// =========================================================================

func TestSession_RehydratesAndRefreshesCookie(t *testing.T) {
	rh := &fakeRehydrator{sessions: map[string]*service.Session{
		"tok": sessionFor("github:1", model.RoleMaintainer, ""),
	}}

	var got *service.Session
	h := Session(rh, auth.CookieConfig{TTL: time.Hour}, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = SessionFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "tok"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.NotNil(t, got)
	assert.Equal(t, "github:1", got.Profile.UID)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "fresh-github:1", cookies[0].Value)
}

func TestSession_InvalidTokenClearsCookie(t *testing.T) {
	rh := &fakeRehydrator{sessions: map[string]*service.Session{}}

	var had bool
	h := Session(rh, auth.CookieConfig{TTL: time.Hour}, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, had = SessionFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "expired"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.False(t, had)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].MaxAge < 0)
}

func TestSession_OtherErrorsKeepCookie(t *testing.T) {
	rh := &fakeRehydrator{err: errors.New("token service exploded")}

	h := Session(rh, auth.CookieConfig{}, discardLogger())(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "tok"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestSession_NoCookiePassesThrough(t *testing.T) {
	rh := &fakeRehydrator{err: errors.New("must not be called")}

	h := Session(rh, auth.CookieConfig{}, discardLogger())(okHandler)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

// =========================================================================
// REQUIRE ROLE TESTS
// =========================================================================

func serveGated(t *testing.T, req gate.Requirement, admins gate.EmailAllowlist, sess *service.Session) (*httptest.ResponseRecorder, Denial) {
	t.Helper()
	h := RequireRole(req, admins, metrics.New(nil), discardLogger())(okHandler)

	r := httptest.NewRequest(http.MethodGet, "/dashboard/admin", nil)
	if sess != nil {
		r = r.WithContext(WithSession(r.Context(), sess))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	var d Denial
	if rec.Code != http.StatusOK {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&d))
	}
	return rec, d
}

func TestRequireRole_Unauthenticated(t *testing.T) {
	rec, d := serveGated(t, gate.Requirement{Surface: "admin", Roles: []model.Role{model.RoleAdmin}}, nil, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", d.Error)
	assert.Equal(t, "sign in to continue", d.Message)
	assert.Equal(t, ActionSignIn, d.Action)
	assert.Empty(t, d.Dashboard)
}

func TestRequireRole_WrongRole(t *testing.T) {
	rec, d := serveGated(t,
		gate.Requirement{Surface: "admin", Roles: []model.Role{model.RoleAdmin}},
		nil,
		sessionFor("github:2", model.RoleMaintainer, ""),
	)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apperror.ErrForbidden.Error(), d.Error)
	assert.Equal(t, "your role does not grant access to this section", d.Message)
	assert.Equal(t, ActionSignOutAndRetry, d.Action)
	assert.Equal(t, "maintainer", d.Role)
	assert.Equal(t, "/dashboard/maintainer", d.Dashboard)
}

func TestDenial_UsesSentinelText(t *testing.T) {
	d := denial(apperror.Forbidden("not yours"), ActionSignOutAndRetry)

	assert.Equal(t, Denial{Error: "forbidden", Message: "not yours", Action: ActionSignOutAndRetry}, d)
}

func TestRequireRole_Authorized(t *testing.T) {
	rec, _ := serveGated(t,
		gate.Requirement{Surface: "admin", Roles: []model.Role{model.RoleAdmin}},
		nil,
		sessionFor("github:3", model.RoleAdmin, ""),
	)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRequireRole_AdminEmail(t *testing.T) {
	req := gate.Requirement{Surface: "admin-tools", Roles: []model.Role{model.RoleAdmin}, AllowAdminEmail: true}
	allow := emails{"ops@example.com": true}

	rec, _ := serveGated(t, req, allow, sessionFor("google:1", model.RoleContributor, "ops@example.com"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = serveGated(t, req, allow, sessionFor("google:2", model.RoleContributor, "nope@example.com"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =========================================================================
// LOGGER TESTS
// =========================================================================

func TestLogger_CountsRequests(t *testing.T) {
	m := metrics.New(nil)
	h := Logger(discardLogger(), m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)

	mrec := httptest.NewRecorder()
	m.Handler().ServeHTTP(mrec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, mrec.Body.String(), `contribhub_http_requests_total{method="GET",status="418"} 1`)
}
