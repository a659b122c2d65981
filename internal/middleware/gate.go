package middleware

import (
	"log/slog"
	"net/http"

	"github.com/sakif/contribhub/internal/apperror"
	"github.com/sakif/contribhub/internal/gate"
	"github.com/sakif/contribhub/internal/metrics"
)

// Denial is the body of a 401 or 403 from a gated surface. Action tells the
// client which recovery to offer.
type Denial struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Action    string `json:"action"`
	Role      string `json:"role,omitempty"`
	Dashboard string `json:"dashboard,omitempty"`
}

const (
	ActionSignIn          = "sign_in"
	ActionSignOutAndRetry = "sign_out_and_retry"
)

// denial turns err into a response body. Error carries the sentinel's text.
func denial(err *apperror.AppError, action string) Denial {
	return Denial{Error: err.Err.Error(), Message: err.Message, Action: action}
}

// RequireRole guards a surface with req. It must run after Session.
//
// Each request gets a fresh gate that observes the rehydrated session once:
//
//	no session          → 401, action sign_in
//	role not admitted   → 403, action sign_out_and_retry, own dashboard
//	admitted            → next
func RequireRole(req gate.Requirement, admins gate.EmailAllowlist, m *metrics.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, _ := SessionFromContext(r.Context())

			g := gate.New(req, admins)
			state := g.Observe(sess.Subject())
			m.RecordGateDecision(req.Surface, state.String())

			switch state {
			case gate.Authorized:
				next.ServeHTTP(w, r)
			case gate.AuthenticatedUnauthorized:
				err := apperror.Forbidden("your role does not grant access to this section")
				logger.Info("access denied",
					slog.String("surface", req.Surface),
					slog.String("uid", sess.Profile.UID),
					slog.String("role", string(sess.Role)),
					slog.String("error", err.Error()),
				)
				d := denial(err, ActionSignOutAndRetry)
				d.Role = string(sess.Role)
				d.Dashboard = sess.DashboardBase()
				writeJSON(w, http.StatusForbidden, d)
			default:
				err := apperror.Unauthenticated("sign in to continue")
				writeJSON(w, http.StatusUnauthorized, denial(err, ActionSignIn))
			}
		})
	}
}
