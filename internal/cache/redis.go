package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/contribhub/internal/metrics"
	"github.com/sakif/contribhub/internal/repository"
)

const (
	layerRedis = "redis"
	keyPrefix  = "whitelist:"
)

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: connecting to redis: %w", err)
	}

	return client, nil
}

// Redis is a whitelist cache shared by every instance of the service.
//
// Redis being down is not a whitelist failure: the lookup goes straight to the
// next layer and the error is only logged.
type Redis struct {
	client  *redis.Client
	next    repository.WhitelistRepository
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

var _ repository.WhitelistRepository = (*Redis)(nil)

// NewRedis caches answers from next in client for ttl.
func NewRedis(client *redis.Client, next repository.WhitelistRepository, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *Redis {
	return &Redis{
		client:  client,
		next:    next,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
	}
}

func (c *Redis) IsWhitelisted(ctx context.Context, username string) (bool, error) {
	name := strings.ToLower(strings.TrimSpace(username))
	if name == "" {
		return false, nil
	}
	key := keyPrefix + name

	val, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		c.metrics.RecordCacheHit(layerRedis)
		return val == "1", nil
	case errors.Is(err, redis.Nil):
		c.metrics.RecordCacheMiss(layerRedis)
	default:
		c.metrics.RecordCacheMiss(layerRedis)
		c.logger.Warn("whitelist cache read failed",
			slog.String("username", name),
			slog.String("error", err.Error()),
		)
	}

	ok, err := c.next.IsWhitelisted(ctx, name)
	if err != nil {
		return false, err
	}

	val = "0"
	if ok {
		val = "1"
	}
	if err := c.client.Set(ctx, key, val, c.ttl).Err(); err != nil {
		c.logger.Warn("whitelist cache write failed",
			slog.String("username", name),
			slog.String("error", err.Error()),
		)
	}

	return ok, nil
}
