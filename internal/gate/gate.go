// Package gate decides whether a session may see a protected surface.
//
// A Gate starts in Checking and moves to one of the three settled states on
// its first observation. Later observations move it between the settled
// states; nothing moves it back to Checking.
package gate

import (
	"slices"
	"sync"

	"github.com/sakif/contribhub/internal/model"
)

// State is where a Gate currently stands.
type State int

const (
	Checking State = iota
	Unauthenticated
	AuthenticatedUnauthorized
	Authorized
)

func (s State) String() string {
	switch s {
	case Checking:
		return "checking"
	case Unauthenticated:
		return "unauthenticated"
	case AuthenticatedUnauthorized:
		return "unauthorized"
	case Authorized:
		return "authorized"
	}
	return "unknown"
}

// EmailAllowlist reports whether an email is admin-qualified.
type EmailAllowlist interface {
	HasEmail(email string) bool
}

// Requirement describes who may see a surface.
type Requirement struct {
	// Surface names the protected area in logs and metrics.
	Surface string
	// Roles that are admitted. Empty admits any signed-in session.
	Roles []model.Role
	// AllowAdminEmail also admits a session whose email is on the admin
	// allowlist, whatever its role.
	AllowAdminEmail bool
}

// Subject is what the gate observes about a session.
type Subject struct {
	UID   string
	Role  model.Role
	Email string
}

// Gate is the per-surface state machine. It is safe for concurrent use.
type Gate struct {
	req    Requirement
	admins EmailAllowlist

	mu    sync.Mutex
	state State
}

// New creates a Gate in the Checking state. admins may be nil when the
// requirement does not use AllowAdminEmail.
func New(req Requirement, admins EmailAllowlist) *Gate {
	return &Gate{req: req, admins: admins, state: Checking}
}

// State returns the current state without observing anything.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Observe evaluates a session notification. A nil subject means no one is
// signed in.
func (g *Gate) Observe(s *Subject) State {
	next := g.evaluate(s)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = next
	return next
}

func (g *Gate) evaluate(s *Subject) State {
	if s == nil || s.UID == "" {
		return Unauthenticated
	}
	if g.Admits(s) {
		return Authorized
	}
	return AuthenticatedUnauthorized
}

// Admits reports whether s satisfies the requirement. It does not change state.
func (g *Gate) Admits(s *Subject) bool {
	if s == nil || s.UID == "" {
		return false
	}
	if len(g.req.Roles) == 0 || slices.Contains(g.req.Roles, s.Role) {
		return true
	}
	return g.req.AllowAdminEmail && g.admins != nil && s.Email != "" && g.admins.HasEmail(s.Email)
}
