package auth

import (
	"net/http"
	"time"
)

// SessionCookieName is the cookie the route boundary checks for.
const SessionCookieName = "__session"

// StateCookieName holds the OAuth state between login and callback.
const StateCookieName = "oauth_state"

// CookieConfig controls the session cookie attributes.
type CookieConfig struct {
	Secure bool
	TTL    time.Duration
}

// SetSessionCookie mirrors token into the session cookie.
func SetSessionCookie(w http.ResponseWriter, token string, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionToken returns the raw session token carried by r, if any.
func SessionToken(r *http.Request) (string, bool) {
	c, err := r.Cookie(SessionCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}
