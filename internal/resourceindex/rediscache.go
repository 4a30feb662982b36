package resourceindex

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
)

// ReadThroughCache is an optional distributed cache sitting in front
// of Index.Get: same TTL-entry shape as an in-process cache, but
// backed by Redis so multiple service instances share one cache.
type ReadThroughCache struct {
	rdb             *redis.Client
	keyPrefix       string
	ttl             time.Duration
	refreshCooldown time.Duration
}

// NewReadThroughCache constructs a cache using rdb, namespacing keys
// under keyPrefix. ttl defaults to 30s if zero.
func NewReadThroughCache(rdb *redis.Client, keyPrefix string, ttl time.Duration) *ReadThroughCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ReadThroughCache{rdb: rdb, keyPrefix: keyPrefix, ttl: ttl, refreshCooldown: 10 * time.Second}
}

func (c *ReadThroughCache) cacheKey(id string) string { return c.keyPrefix + ":" + id }

// Get returns the cached raw resource payload, or nil if absent/
// expired (Redis handles expiry natively via the TTL set by Set, so
// there is no explicit "approaching expiration" branch; entries are
// not refreshed in the background).
func (c *ReadThroughCache) Get(ctx context.Context, id string) (json.RawMessage, bool, error) {
	data, err := c.rdb.Get(ctx, c.cacheKey(id)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, faults.Transientf("redis get %s: %v", id, err)
	}
	return json.RawMessage(data), true, nil
}

// Set stores payload for id with the cache's configured TTL.
func (c *ReadThroughCache) Set(ctx context.Context, id string, payload json.RawMessage) error {
	if err := c.rdb.Set(ctx, c.cacheKey(id), []byte(payload), c.ttl).Err(); err != nil {
		return faults.Transientf("redis set %s: %v", id, err)
	}
	return nil
}

// Invalidate removes id from the cache, used after a Put so stale
// reads aren't served from cache.
func (c *ReadThroughCache) Invalidate(ctx context.Context, id string) error {
	if err := c.rdb.Del(ctx, c.cacheKey(id)).Err(); err != nil {
		return faults.Transientf("redis del %s: %v", id, err)
	}
	return nil
}
