package middleware

import "net/http"

// RouteBoundary redirects to "/" when the request has no cookieName cookie.
//
// Only the cookie's presence is checked; the value is never decoded.
// RequireRole does the role check. The redirect carries no query string.
func RouteBoundary(cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(cookieName); err != nil || c.Value == "" {
				http.Redirect(w, r, "/", http.StatusFound)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
