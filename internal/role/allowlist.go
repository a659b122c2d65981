// Package role decides which role an identity qualifies for and keeps the
// stored role in step with that decision.
package role

import "strings"

// AdminAllowlist is the set of admin-qualified identities, loaded once from
// configuration. Entries containing '@' are emails, everything else is a
// GitHub username. It is never mutated after ParseAllowlist returns.
type AdminAllowlist struct {
	usernames map[string]struct{}
	emails    map[string]struct{}
}

// ParseAllowlist builds an allowlist from comma-separated lists. Entries are
// trimmed and lower-cased; empty entries are dropped. An entry with '@' in
// the usernames list is treated as an email, and vice versa.
func ParseAllowlist(usernamesCSV, emailsCSV string) *AdminAllowlist {
	a := &AdminAllowlist{
		usernames: make(map[string]struct{}),
		emails:    make(map[string]struct{}),
	}
	for _, csv := range []string{usernamesCSV, emailsCSV} {
		for _, entry := range strings.Split(csv, ",") {
			entry = normalize(entry)
			if entry == "" {
				continue
			}
			if strings.Contains(entry, "@") {
				a.emails[entry] = struct{}{}
			} else {
				a.usernames[entry] = struct{}{}
			}
		}
	}
	return a
}

// HasUsername reports whether the GitHub username is an admin.
func (a *AdminAllowlist) HasUsername(username string) bool {
	if a == nil {
		return false
	}
	_, ok := a.usernames[normalize(username)]
	return ok
}

// HasEmail reports whether the email belongs to an admin.
func (a *AdminAllowlist) HasEmail(email string) bool {
	if a == nil {
		return false
	}
	_, ok := a.emails[normalize(email)]
	return ok
}

// Len returns the total number of entries.
func (a *AdminAllowlist) Len() int {
	if a == nil {
		return 0
	}
	return len(a.usernames) + len(a.emails)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
