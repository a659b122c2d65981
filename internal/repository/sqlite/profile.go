package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/contribhub/internal/apperror"
	"github.com/sakif/contribhub/internal/model"
	"github.com/sakif/contribhub/internal/repository"
)

// compile-time check that *DB implements repository.ProfileRepository
var _ repository.ProfileRepository = (*DB)(nil)

// now is the clock used for created_at / last_login_at. Tests may replace it.
var now = func() time.Time { return time.Now().UTC() }

// GetProfile retrieves a profile by its stable user id.
// Returns apperror.ErrNotFound if no profile exists with that uid.
func (db *DB) GetProfile(ctx context.Context, uid string) (*model.Profile, error) {
	var (
		p        model.Profile
		username sql.NullString
		role     string
	)

	err := db.conn.QueryRowContext(ctx,
		`SELECT uid, email, photo_url, github_username, role, points, created_at, last_login_at
		 FROM profiles WHERE uid = ?`,
		uid,
	).Scan(
		&p.UID,
		&p.Email,
		&p.PhotoURL,
		&username,
		&role,
		&p.Points,
		&p.CreatedAt,
		&p.LastLoginAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("profile", uid)
		}
		return nil, fmt.Errorf("sqlite: getting profile %s: %w", uid, err)
	}

	if username.Valid && username.String != "" {
		p.GitHubUsername = &username.String
	}
	p.Role = model.ParseRole(role)

	return &p, nil
}

// CreateProfileIfAbsent inserts a profile for uid unless one already exists.
//
// ON CONFLICT DO NOTHING makes the insert a no-op for an existing uid, so the
// stored uid and created_at can never be overwritten here. RowsAffected
// tells us which branch we took.
func (db *DB) CreateProfileIfAbsent(ctx context.Context, uid string, fields model.ProfileFields) (bool, error) {
	if uid == "" {
		return false, apperror.ValidationFailed("uid", "uid is required")
	}

	role := fields.Role
	if !role.Valid() {
		role = model.RoleContributor
	}

	var username any
	if fields.GitHubUsername != nil && *fields.GitHubUsername != "" {
		username = *fields.GitHubUsername
	}

	ts := now()
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO profiles (uid, email, photo_url, github_username, role, points, created_at, last_login_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		 ON CONFLICT(uid) DO NOTHING`,
		uid,
		fields.Email,
		fields.PhotoURL,
		username,
		string(role),
		ts,
		ts,
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: creating profile %s: %w", uid, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// MergeProfile applies the non-nil fields of patch to an existing profile.
//
// uid and created_at are never part of the SET clause.
func (db *DB) MergeProfile(ctx context.Context, uid string, patch model.ProfilePatch) error {
	if patch.Empty() {
		return nil
	}

	var (
		sets []string
		args []any
	)
	if patch.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *patch.Email)
	}
	if patch.PhotoURL != nil {
		sets = append(sets, "photo_url = ?")
		args = append(args, *patch.PhotoURL)
	}
	if patch.GitHubUsername != nil {
		sets = append(sets, "github_username = ?")
		if *patch.GitHubUsername == "" {
			args = append(args, nil)
		} else {
			args = append(args, *patch.GitHubUsername)
		}
	}
	if patch.Role != nil {
		if !patch.Role.Valid() {
			return apperror.ValidationFailed("role", fmt.Sprintf("unknown role %q", *patch.Role))
		}
		sets = append(sets, "role = ?")
		args = append(args, string(*patch.Role))
	}
	if patch.TouchLogin {
		sets = append(sets, "last_login_at = ?")
		args = append(args, now())
	}
	args = append(args, uid)

	result, err := db.conn.ExecContext(ctx,
		`UPDATE profiles SET `+strings.Join(sets, ", ")+` WHERE uid = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: merging profile %s: %w", uid, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("profile", uid)
	}

	return nil
}

// SwapRole is a conditional write: the role only changes if nobody else
// changed it since the caller read `expected`. Losing that race returns
// apperror.ErrConflict.
func (db *DB) SwapRole(ctx context.Context, uid string, expected, next model.Role) error {
	if !next.Valid() {
		return apperror.ValidationFailed("role", fmt.Sprintf("unknown role %q", next))
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE profiles SET role = ? WHERE uid = ? AND role = ?`,
		string(next),
		uid,
		string(expected),
	)
	if err != nil {
		return fmt.Errorf("sqlite: swapping role for %s: %w", uid, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.Conflict("profile", uid)
	}

	return nil
}
