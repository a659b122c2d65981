// Package service holds the session business logic.
//
//	AuthHandler (HTTP) → SessionService → ProfileRepository (SQLite)
//	                                    ↘ role.Resolver (allowlist, whitelist)
//	                                    ↘ TokenService (JWT)
//
// SessionService never touches HTTP. The handler exchanges the OAuth code,
// hands the SignInResult here, and sets whatever cookie comes back.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/contribhub/internal/apperror"
	"github.com/sakif/contribhub/internal/auth"
	"github.com/sakif/contribhub/internal/gate"
	"github.com/sakif/contribhub/internal/model"
	"github.com/sakif/contribhub/internal/repository"
	"github.com/sakif/contribhub/internal/role"
)

// DefaultTouchInterval bounds how often rehydration bumps lastLoginAt.
const DefaultTouchInterval = 5 * time.Minute

// Session is a signed-in identity paired with its profile.
type Session struct {
	Profile  *model.Profile
	Provider model.Provider
	// Role is the role gates should use. It equals Profile.Role except when
	// the whitelist could not be consulted, where it drops to contributor.
	Role model.Role
	// Token is a freshly issued session token for the cookie.
	Token string
	// Degraded is set when the whitelist lookup failed.
	Degraded bool
	// Fallback is set when the profile store failed and Profile was built
	// from the identity claims alone.
	Fallback bool
}

// DashboardBase is where this session's dashboard lives.
func (s *Session) DashboardBase() string {
	return s.Role.DashboardBase()
}

// Subject is the view of the session the access gate observes.
func (s *Session) Subject() *gate.Subject {
	if s == nil || s.Profile == nil {
		return nil
	}
	return &gate.Subject{UID: s.Profile.UID, Role: s.Role, Email: s.Profile.Email}
}

// SessionService signs identities in and rehydrates their sessions.
type SessionService struct {
	profiles      repository.ProfileRepository
	resolver      *role.Resolver
	usernames     *auth.UsernameExtractor
	tokens        *auth.TokenService
	logger        *slog.Logger
	touchInterval time.Duration
	now           func() time.Time
}

// NewSessionService wires a SessionService.
func NewSessionService(
	profiles repository.ProfileRepository,
	resolver *role.Resolver,
	usernames *auth.UsernameExtractor,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *SessionService {
	return &SessionService{
		profiles:      profiles,
		resolver:      resolver,
		usernames:     usernames,
		tokens:        tokens,
		logger:        logger,
		touchInterval: DefaultTouchInterval,
		now:           time.Now,
	}
}

// SignIn turns a provider sign-in into a session.
//
//  1. Work out the GitHub username (GitHub sign-ins only)
//  2. Resolve the role it qualifies for
//  3. Create the profile, or refresh it and reconcile the stored role
//  4. Issue the session token
//
// Only a missing identity is an error. Store failures produce a contributor
// session built from the claims so sign-in is never blocked.
func (s *SessionService) SignIn(ctx context.Context, res *auth.SignInResult) (*Session, error) {
	if res == nil || res.StableUserID == "" {
		return nil, apperror.ValidationFailed("uid", "sign-in result has no stable user id")
	}
	log := s.logger.With(slog.String("uid", res.StableUserID), slog.String("provider", string(res.Provider)))

	username := s.usernames.ExtractGitHubUsername(ctx, res)
	resolution := s.resolver.Resolve(ctx, username)

	profile, err := s.upsertOnSignIn(ctx, res, username, resolution)
	if err != nil {
		log.Error("profile store unavailable during sign-in, using fallback profile",
			slog.String("error", err.Error()),
		)
		return s.fallbackSession(res.Identity(), username)
	}

	// No username in this sign-in's claims does not mean none is on file.
	if username == nil && profile.HasGitHubUsername() {
		resolution = s.resolver.Resolve(ctx, profile.GitHubUsername)
	}
	profile, _, _ = s.resolver.ReconcileStoredRole(ctx, profile, resolution)

	sess, err := s.newSession(res.Identity(), profile, resolution.Degraded)
	if err != nil {
		return nil, err
	}

	log.Info("user signed in",
		slog.String("role", string(sess.Role)),
		slog.String("source", string(resolution.Source)),
	)
	return sess, nil
}

// upsertOnSignIn creates the profile, or merges the sign-in's fresh fields
// into an existing one, and returns what is stored afterwards.
func (s *SessionService) upsertOnSignIn(ctx context.Context, res *auth.SignInResult, username *string, resolution role.Resolution) (*model.Profile, error) {
	created, err := s.profiles.CreateProfileIfAbsent(ctx, res.StableUserID, model.ProfileFields{
		Email:          res.Email,
		PhotoURL:       res.PhotoURL,
		GitHubUsername: username,
		Role:           resolution.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("service/session: creating profile: %w", err)
	}

	if !created {
		patch := model.ProfilePatch{TouchLogin: true}
		if res.Email != "" {
			patch.Email = &res.Email
		}
		if res.PhotoURL != "" {
			patch.PhotoURL = &res.PhotoURL
		}
		if username != nil {
			patch.GitHubUsername = username
		}
		if err := s.profiles.MergeProfile(ctx, res.StableUserID, patch); err != nil {
			return nil, fmt.Errorf("service/session: refreshing profile: %w", err)
		}
	}

	profile, err := s.profiles.GetProfile(ctx, res.StableUserID)
	if err != nil {
		return nil, fmt.Errorf("service/session: reading profile: %w", err)
	}
	return profile, nil
}

// Rehydrate rebuilds the session for a token carried by an incoming request.
//
// It is the server-side counterpart of a session-change notification: the
// profile is ensured, the stored role reconciled, and a fresh token issued.
// An invalid or expired token returns apperror.ErrUnauthenticated.
func (s *SessionService) Rehydrate(ctx context.Context, token string) (*Session, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, apperror.Unauthenticated("session is missing or expired")
	}
	id := auth.Identity{
		UID:      claims.UID(),
		Email:    claims.Email,
		PhotoURL: claims.PhotoURL,
		Provider: claims.Provider,
	}
	log := s.logger.With(slog.String("uid", id.UID))

	profile, err := s.ensureProfile(ctx, id)
	if err != nil {
		log.Warn("profile store unavailable during rehydration, using fallback profile",
			slog.String("error", err.Error()),
		)
		return s.fallbackSession(id, nil)
	}

	degraded := false
	if profile.HasGitHubUsername() {
		resolution := s.resolver.Resolve(ctx, profile.GitHubUsername)
		profile, _, _ = s.resolver.ReconcileStoredRole(ctx, profile, resolution)
		degraded = resolution.Degraded
	}

	return s.newSession(id, profile, degraded)
}

// ensureProfile reads the profile, creating it when it is missing and
// bumping lastLoginAt at most once per touch interval.
func (s *SessionService) ensureProfile(ctx context.Context, id auth.Identity) (*model.Profile, error) {
	profile, err := s.profiles.GetProfile(ctx, id.UID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/session: reading profile: %w", err)
	}

	if profile == nil {
		if _, err := s.profiles.CreateProfileIfAbsent(ctx, id.UID, model.ProfileFields{
			Email:    id.Email,
			PhotoURL: id.PhotoURL,
			Role:     model.RoleContributor,
		}); err != nil {
			return nil, fmt.Errorf("service/session: creating profile: %w", err)
		}
		return s.readProfile(ctx, id.UID)
	}

	if s.now().Sub(profile.LastLoginAt) >= s.touchInterval {
		if err := s.profiles.MergeProfile(ctx, id.UID, model.ProfilePatch{TouchLogin: true}); err != nil {
			// Only the timestamp is at stake; carry on with what was read.
			s.logger.Warn("bumping lastLoginAt failed",
				slog.String("uid", id.UID),
				slog.String("error", err.Error()),
			)
			return profile, nil
		}
		return s.readProfile(ctx, id.UID)
	}

	return profile, nil
}

func (s *SessionService) readProfile(ctx context.Context, uid string) (*model.Profile, error) {
	profile, err := s.profiles.GetProfile(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("service/session: reading profile: %w", err)
	}
	return profile, nil
}

// Profile returns the stored profile for uid, for /api/me.
func (s *SessionService) Profile(ctx context.Context, uid string) (*model.Profile, error) {
	if uid == "" {
		return nil, apperror.ValidationFailed("uid", "uid must not be empty")
	}
	return s.readProfile(ctx, uid)
}

// SignOut records the end of a session. Tokens are stateless, so there is
// nothing to revoke; the handler clears the cookie.
func (s *SessionService) SignOut(_ context.Context, uid string) {
	if uid == "" {
		return
	}
	s.logger.Info("user signed out", slog.String("uid", uid))
}

func (s *SessionService) newSession(id auth.Identity, profile *model.Profile, degraded bool) (*Session, error) {
	token, err := s.tokens.Issue(auth.Identity{
		UID:      profile.UID,
		Email:    profile.Email,
		PhotoURL: profile.PhotoURL,
		Provider: id.Provider,
	})
	if err != nil {
		return nil, fmt.Errorf("service/session: issuing token for %s: %w", profile.UID, err)
	}

	return &Session{
		Profile:  profile,
		Provider: id.Provider,
		Role:     effectiveRole(profile.Role, degraded),
		Token:    token,
		Degraded: degraded,
	}, nil
}

// effectiveRole drops a stored maintainer to contributor while the whitelist
// cannot confirm it. A stored admin is kept.
func effectiveRole(stored model.Role, degraded bool) model.Role {
	if degraded && stored != model.RoleAdmin {
		return model.RoleContributor
	}
	return stored
}

// fallbackSession builds a contributor session from the identity alone.
func (s *SessionService) fallbackSession(id auth.Identity, username *string) (*Session, error) {
	now := s.now().UTC()
	profile := &model.Profile{
		UID:            id.UID,
		Email:          id.Email,
		PhotoURL:       id.PhotoURL,
		GitHubUsername: username,
		Role:           model.RoleContributor,
		CreatedAt:      now,
		LastLoginAt:    now,
	}

	sess, err := s.newSession(id, profile, false)
	if err != nil {
		return nil, err
	}
	sess.Fallback = true
	return sess, nil
}
