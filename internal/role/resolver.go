package role

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sakif/contribhub/internal/metrics"
	"github.com/sakif/contribhub/internal/model"
	"github.com/sakif/contribhub/internal/repository"
)

// Source names what decided a Resolution.
type Source string

const (
	SourceNoUsername     Source = "no_username"
	SourceAdminAllowlist Source = "admin_allowlist"
	SourceWhitelist      Source = "whitelist"
	SourceDefault        Source = "default"
	SourceLookupFailed   Source = "lookup_failed"
)

// Resolution is the outcome of resolving a role for one identity.
//
// Degraded is true when the whitelist could not be consulted and Role is the
// contributor fallback rather than an authoritative answer.
type Resolution struct {
	Role     model.Role
	Source   Source
	Degraded bool
}

// Resolver maps a GitHub username to a role and reconciles stored profiles
// against that mapping.
//
//	admin allowlist (local) → whitelist store → contributor
type Resolver struct {
	admins    *AdminAllowlist
	whitelist repository.WhitelistRepository
	profiles  repository.ProfileRepository
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewResolver wires a Resolver. m may be nil.
func NewResolver(
	admins *AdminAllowlist,
	whitelist repository.WhitelistRepository,
	profiles repository.ProfileRepository,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Resolver {
	return &Resolver{
		admins:    admins,
		whitelist: whitelist,
		profiles:  profiles,
		logger:    logger,
		metrics:   m,
	}
}

// ResolveRole returns the role githubUsername qualifies for. It never fails:
// a whitelist error degrades to contributor.
func (r *Resolver) ResolveRole(ctx context.Context, githubUsername *string) model.Role {
	return r.Resolve(ctx, githubUsername).Role
}

// Resolve is ResolveRole with the deciding source attached.
func (r *Resolver) Resolve(ctx context.Context, githubUsername *string) Resolution {
	res := r.resolve(ctx, githubUsername)
	r.metrics.RecordResolution(string(res.Role), string(res.Source))
	return res
}

func (r *Resolver) resolve(ctx context.Context, githubUsername *string) Resolution {
	if githubUsername == nil {
		return Resolution{Role: model.RoleContributor, Source: SourceNoUsername}
	}
	username := strings.ToLower(strings.TrimSpace(*githubUsername))
	if username == "" {
		return Resolution{Role: model.RoleContributor, Source: SourceNoUsername}
	}

	if r.admins.HasUsername(username) {
		return Resolution{Role: model.RoleAdmin, Source: SourceAdminAllowlist}
	}

	ok, err := r.whitelist.IsWhitelisted(ctx, username)
	if err != nil {
		r.metrics.RecordWhitelistFailure()
		r.logger.Warn("whitelist lookup failed, falling back to contributor",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		return Resolution{Role: model.RoleContributor, Source: SourceLookupFailed, Degraded: true}
	}
	if ok {
		return Resolution{Role: model.RoleMaintainer, Source: SourceWhitelist}
	}

	return Resolution{Role: model.RoleContributor, Source: SourceDefault}
}
