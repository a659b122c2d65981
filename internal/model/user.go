package model

import "time"

// Provider identifies the federated identity provider a session came from.
type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderGoogle Provider = "google"
)

// ParseProvider returns the Provider named by s, or false for anything else.
func ParseProvider(s string) (Provider, bool) {
	switch Provider(s) {
	case ProviderGitHub, ProviderGoogle:
		return Provider(s), true
	}
	return "", false
}

// Profile is the durable record kept for every identity that has signed in.
//
// UID is the provider-assigned stable user id (e.g. "github:583231" or
// "google:1094..."). It is the primary key and, together with CreatedAt, never
// changes once the row exists.
//
// WHY *string FOR GitHubUsername?
// Google-only participants have no GitHub identity at all. A nil pointer keeps
// "no username on file" distinct from "username is the empty string", and maps
// directly onto a NULL column.
type Profile struct {
	UID            string    `json:"uid"            db:"uid"`
	Email          string    `json:"email"          db:"email"`
	PhotoURL       string    `json:"photoURL"       db:"photo_url"`
	GitHubUsername *string   `json:"githubUsername" db:"github_username"`
	Role           Role      `json:"role"           db:"role"`
	Points         int       `json:"points"         db:"points"`
	CreatedAt      time.Time `json:"createdAt"      db:"created_at"`
	LastLoginAt    time.Time `json:"lastLoginAt"    db:"last_login_at"`
}

// HasGitHubUsername reports whether a non-empty GitHub username is on file.
func (p *Profile) HasGitHubUsername() bool {
	return p != nil && p.GitHubUsername != nil && *p.GitHubUsername != ""
}

// ProfileFields are the values used when a profile is first created.
type ProfileFields struct {
	Email          string
	PhotoURL       string
	GitHubUsername *string
	Role           Role
}

// ProfilePatch is a partial update. Nil fields are left untouched.
type ProfilePatch struct {
	Email          *string
	PhotoURL       *string
	GitHubUsername *string
	Role           *Role
	TouchLogin     bool // set last_login_at to now
}

// Empty reports whether the patch would change nothing.
func (p ProfilePatch) Empty() bool {
	return p.Email == nil && p.PhotoURL == nil && p.GitHubUsername == nil && p.Role == nil && !p.TouchLogin
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// RolePtr returns a pointer to r.
func RolePtr(r Role) *Role {
	return &r
}
