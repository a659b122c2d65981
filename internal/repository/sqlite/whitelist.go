package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/sakif/contribhub/internal/apperror"
	"github.com/sakif/contribhub/internal/repository"
)

// compile-time check that *DB implements repository.WhitelistRepository
var _ repository.WhitelistRepository = (*DB)(nil)

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// IsWhitelisted reports whether username is on the maintainer whitelist.
func (db *DB) IsWhitelisted(ctx context.Context, username string) (bool, error) {
	username = normalizeUsername(username)
	if username == "" {
		return false, nil
	}

	var exists bool
	err := db.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM whitelist WHERE username = ?)`,
		username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking whitelist for %s: %w", username, err)
	}

	return exists, nil
}

// AddToWhitelist inserts username. Adding an existing entry is a no-op.
func (db *DB) AddToWhitelist(ctx context.Context, username string) error {
	username = normalizeUsername(username)
	if username == "" {
		return apperror.ValidationFailed("username", "username is required")
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO whitelist (username, added_at) VALUES (?, ?)
		 ON CONFLICT(username) DO NOTHING`,
		username,
		now(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding %s to whitelist: %w", username, err)
	}

	return nil
}
