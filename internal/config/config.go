// Package config reads the server configuration from the environment.
//
// A .env file in the working directory is loaded first when present; real
// environment variables win over it. Configuration is read once at start.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingSecret = errors.New("config: SESSION_SECRET is required")

type Config struct {
	Port     int
	LogLevel slog.Level
	DBPath   string

	Session   SessionConfig
	Admins    AdminConfig
	GitHub    OAuthConfig
	Google    OAuthConfig
	Whitelist WhitelistConfig

	CORSOrigins []string
}

type SessionConfig struct {
	Secret       string
	TTL          time.Duration
	CookieSecure bool
}

// AdminConfig holds the raw admin allowlists, comma-separated.
type AdminConfig struct {
	Usernames string
	Emails    string
}

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// Enabled reports whether both client credentials are set.
func (c OAuthConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// WhitelistConfig controls the whitelist caches. An empty RedisURL disables
// the shared cache. Seed usernames are added to the whitelist at startup;
// entries already present are left alone.
type WhitelistConfig struct {
	RedisURL  string
	CacheTTL  time.Duration
	CacheSize int
	Seed      []string
}

// FromEnv builds a Config from the current environment.
func FromEnv() Config {
	port := envInt("PORT", 8080)

	return Config{
		Port:     port,
		LogLevel: envLevel("LOG_LEVEL", slog.LevelInfo),
		DBPath:   envString("DB_PATH", "data/contribhub.db"),
		Session: SessionConfig{
			Secret:       os.Getenv("SESSION_SECRET"),
			TTL:          envDuration("SESSION_TTL", time.Hour),
			CookieSecure: envBool("SESSION_COOKIE_SECURE", false),
		},
		Admins: AdminConfig{
			Usernames: os.Getenv("ADMIN_USERNAMES"),
			Emails:    os.Getenv("ADMIN_EMAILS"),
		},
		GitHub: OAuthConfig{
			ClientID:     os.Getenv("GITHUB_CLIENT_ID"),
			ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
			CallbackURL:  envString("GITHUB_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/github/callback", port)),
		},
		Google: OAuthConfig{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			CallbackURL:  envString("GOOGLE_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/google/callback", port)),
		},
		Whitelist: WhitelistConfig{
			RedisURL:  os.Getenv("REDIS_URL"),
			CacheTTL:  envDuration("WHITELIST_CACHE_TTL", 5*time.Minute),
			CacheSize: envInt("WHITELIST_CACHE_SIZE", 1024),
			Seed:      envList("WHITELIST_SEED"),
		},
		CORSOrigins: envList("CORS_ORIGINS"),
	}
}

// Load reads the optional .env files (default ".env") and then the
// environment, and validates the result.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: loading env file: %w", err)
	}

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	if c.Session.Secret == "" {
		return ErrMissingSecret
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid PORT %d", c.Port)
	}
	if !c.GitHub.Enabled() && !c.Google.Enabled() {
		return errors.New("config: no identity provider configured")
	}
	return nil
}
