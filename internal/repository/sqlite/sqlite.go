// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// Two tables live here:
//   - profiles: one row per stable user id
//   - whitelist: GitHub usernames eligible for the maintainer role
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary builds
// without a C toolchain. Use ":memory:" as the path for tests.
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/contribhub.db" → file-based database (persistent)
//   - ":memory:"           → in-memory database, gone on Close
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every new connection to ":memory:" is a brand-new, empty database.
	// Pin the pool to a single connection so all queries see the same tables.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in flight.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Concurrent writers wait instead of failing with SQLITE_BUSY.
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the database is reachable. Used by the health endpoint.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// migrate runs all database migrations.
//
// CREATE TABLE IF NOT EXISTS is safe to run on every start.
func (db *DB) migrate() error {
	// role is constrained to the three known values; points can never go negative.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			uid             TEXT PRIMARY KEY,
			email           TEXT NOT NULL DEFAULT '',
			photo_url       TEXT NOT NULL DEFAULT '',
			github_username TEXT,
			role            TEXT NOT NULL DEFAULT 'contributor'
			                CHECK (role IN ('admin', 'maintainer', 'contributor')),
			points          INTEGER NOT NULL DEFAULT 0 CHECK (points >= 0),
			created_at      DATETIME NOT NULL,
			last_login_at   DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_profiles_github_username ON profiles(github_username);
	`)
	if err != nil {
		return fmt.Errorf("creating profiles table: %w", err)
	}

	// Usernames are stored lower-cased; COLLATE NOCASE covers rows written by hand.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS whitelist (
			username TEXT PRIMARY KEY COLLATE NOCASE,
			added_at DATETIME NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("creating whitelist table: %w", err)
	}

	return nil
}
