// Package model defines the data structures used throughout the application.
package model

import "strings"

// Role is the access level granted to a signed-in participant.
//
// There are exactly three roles. Anything else read from storage is treated
// as RoleContributor; see ParseRole.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleMaintainer  Role = "maintainer"
	RoleContributor Role = "contributor"
)

// ParseRole converts a stored value into a Role.
// Unknown and empty values become RoleContributor.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleMaintainer:
		return RoleMaintainer
	default:
		return RoleContributor
	}
}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMaintainer || r == RoleContributor
}

func (r Role) String() string {
	return string(r)
}

// Dashboard routes. Each role lands on its own section of /dashboard.
const (
	DashboardRoot        = "/dashboard"
	DashboardAdmin       = "/dashboard/admin"
	DashboardMaintainer  = "/dashboard/maintainer"
	DashboardContributor = "/dashboard/contributor"
)

// DashboardBase returns the landing path for the given role.
// Unknown roles land on the contributor dashboard.
func (r Role) DashboardBase() string {
	switch r {
	case RoleAdmin:
		return DashboardAdmin
	case RoleMaintainer:
		return DashboardMaintainer
	default:
		return DashboardContributor
	}
}
