package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResponseCache memoizes fetched bodies by URL so a retry-storm or a
// monitor re-run within the TTL window doesn't re-hit the origin.
type ResponseCache interface {
	Get(ctx context.Context, url string) (string, bool)
	Set(ctx context.Context, url, body string, ttl time.Duration)
}

// RedisCache backs ResponseCache with a shared Redis instance (SPEC_FULL
// addition; ANNEX4_CACHE_REDIS_URL wires this in cmd/annex4parser).
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache constructs a RedisCache over an existing client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, url string) (string, bool) {
	val, err := c.client.Get(ctx, cacheKey(url)).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, url, body string, ttl time.Duration) {
	c.client.Set(ctx, cacheKey(url), body, ttl)
}

func cacheKey(url string) string {
	return "annex4parser:fetch:" + url
}

// InProcessCache is the dependency-free fallback used when no Redis URL is
// configured (local dev, tests).
type InProcessCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	body      string
	expiresAt time.Time
}

// NewInProcessCache builds an empty in-memory ResponseCache.
func NewInProcessCache() *InProcessCache {
	return &InProcessCache{entries: make(map[string]cacheEntry)}
}

func (c *InProcessCache) Get(ctx context.Context, url string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[url]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.body, true
}

func (c *InProcessCache) Set(ctx context.Context, url, body string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = cacheEntry{body: body, expiresAt: time.Now().Add(ttl)}
}
