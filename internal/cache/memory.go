// Package cache wraps a repository.WhitelistRepository with caching layers.
//
// The whitelist is read on every sign-in and every session rehydration, and
// changes rarely. Two decorators are stacked in front of SQLite:
//
//	Memory (per process, LRU + TTL) -> Redis (shared, TTL) -> SQLite
//
// Only successful answers are cached. A failed lookup is never remembered, so
// a transient store outage does not pin anyone to contributor.
package cache

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/sakif/contribhub/internal/metrics"
	"github.com/sakif/contribhub/internal/repository"
)

const layerMemory = "memory"

// Memory is an in-process whitelist cache.
type Memory struct {
	next    repository.WhitelistRepository
	entries *lru.LRU[string, bool]
	group   singleflight.Group
	metrics *metrics.Metrics
}

var _ repository.WhitelistRepository = (*Memory)(nil)

// NewMemory caches up to size answers from next, each for ttl.
func NewMemory(next repository.WhitelistRepository, size int, ttl time.Duration, m *metrics.Metrics) *Memory {
	if size < 1 {
		size = 1
	}
	return &Memory{
		next:    next,
		entries: lru.NewLRU[string, bool](size, nil, ttl),
		metrics: m,
	}
}

// IsWhitelisted answers from the cache when it can. Concurrent misses for the
// same username share a single call to the next layer.
func (c *Memory) IsWhitelisted(ctx context.Context, username string) (bool, error) {
	key := strings.ToLower(strings.TrimSpace(username))
	if key == "" {
		return false, nil
	}

	if ok, found := c.entries.Get(key); found {
		c.metrics.RecordCacheHit(layerMemory)
		return ok, nil
	}
	c.metrics.RecordCacheMiss(layerMemory)

	// The shared lookup outlives any one caller's cancellation.
	v, err, _ := c.group.Do(key, func() (any, error) {
		ok, err := c.next.IsWhitelisted(context.WithoutCancel(ctx), key)
		if err != nil {
			return false, err
		}
		c.entries.Add(key, ok)
		return ok, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Len returns the number of live entries.
func (c *Memory) Len() int {
	return c.entries.Len()
}
