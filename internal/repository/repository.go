package repository

import (
	"context"

	"github.com/sakif/contribhub/internal/model"
)

// ProfileRepository persists one Profile per stable user id.
//
// Implementations return an error wrapping apperror.ErrNotFound when a uid
// has no profile.
type ProfileRepository interface {
	// GetProfile reads the current profile.
	GetProfile(ctx context.Context, uid string) (*model.Profile, error)

	// CreateProfileIfAbsent inserts a new profile with the given initial
	// fields. It reports whether a row was created; an existing profile is
	// left untouched.
	CreateProfileIfAbsent(ctx context.Context, uid string, fields model.ProfileFields) (bool, error)

	// MergeProfile applies a partial update to an existing profile.
	MergeProfile(ctx context.Context, uid string, patch model.ProfilePatch) error

	// SwapRole sets the role to next only if the stored role is still
	// expected. A stored role that moved on (or a missing profile) returns
	// an error wrapping apperror.ErrConflict.
	SwapRole(ctx context.Context, uid string, expected, next model.Role) error
}

// WhitelistRepository answers maintainer-whitelist membership questions.
// Usernames are compared case-insensitively.
type WhitelistRepository interface {
	IsWhitelisted(ctx context.Context, username string) (bool, error)
}
