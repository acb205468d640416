package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL bounds how stale a resolved capability set may get when no
// mutation ever touches its key.
const DefaultCacheTTL = 5 * time.Minute

// Cache stores resolved capability sets per (principal, agent). Entries are
// never the source of truth and may be dropped at any time; mutations only
// ever evict, they never install values.
type Cache interface {
	Get(ctx context.Context, principalID int64, agent Agent) (*Resolution, error)
	Put(ctx context.Context, principalID int64, agent Agent, res Resolution) error
	Invalidate(ctx context.Context, principalID int64, agent Agent) error
	InvalidateAll(ctx context.Context, principalID int64) error
}

func cacheKey(principalID int64, agent Agent) string {
	return fmt.Sprintf("authz:resolved:%d:%s", principalID, agent)
}

// RedisCache is the production Cache backed by Redis with a per-entry TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache constructs a RedisCache. A non-positive ttl falls back to
// DefaultCacheTTL.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached resolution, or nil on a miss.
func (c *RedisCache) Get(ctx context.Context, principalID int64, agent Agent) (*Resolution, error) {
	payload, err := c.client.Get(ctx, cacheKey(principalID, agent)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var res Resolution
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Put stores a resolution under the configured TTL. Concurrent writers to the
// same key may race harmlessly; both values derive from the same durable
// state and a later invalidation on true mutation clears any staleness.
func (c *RedisCache) Put(ctx context.Context, principalID int64, agent Agent, res Resolution) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(principalID, agent), payload, c.ttl).Err()
}

// Invalidate evicts a single (principal, agent) entry.
func (c *RedisCache) Invalidate(ctx context.Context, principalID int64, agent Agent) error {
	return c.client.Del(ctx, cacheKey(principalID, agent)).Err()
}

// InvalidateAll evicts every agent entry for a principal. The agent set is
// closed, so this is a bounded DEL rather than a key scan.
func (c *RedisCache) InvalidateAll(ctx context.Context, principalID int64) error {
	keys := make([]string, 0, len(Agents()))
	for _, agent := range Agents() {
		keys = append(keys, cacheKey(principalID, agent))
	}
	return c.client.Del(ctx, keys...).Err()
}

var _ Cache = (*RedisCache)(nil)

// MemoryCache is an in-process Cache with lazy TTL expiry, used in tests and
// single-node deployments.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
}

type memoryEntry struct {
	res       Resolution
	expiresAt time.Time
}

// NewMemoryCache constructs a MemoryCache.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{ttl: ttl, entries: make(map[string]memoryEntry)}
}

// Get returns the cached resolution, or nil on a miss. Expiry is checked on
// read; no sweeper goroutine is required.
func (c *MemoryCache) Get(ctx context.Context, principalID int64, agent Agent) (*Resolution, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(principalID, agent)
	entry, ok := c.entries[key]
	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, nil
	}
	res := entry.res
	return &res, nil
}

// Put stores a resolution.
func (c *MemoryCache) Put(ctx context.Context, principalID int64, agent Agent, res Resolution) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(principalID, agent)] = memoryEntry{res: res, expiresAt: time.Now().Add(c.ttl)}
	return nil
}

// Invalidate evicts a single entry.
func (c *MemoryCache) Invalidate(ctx context.Context, principalID int64, agent Agent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(principalID, agent))
	return nil
}

// InvalidateAll evicts every agent entry for a principal.
func (c *MemoryCache) InvalidateAll(ctx context.Context, principalID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, agent := range Agents() {
		delete(c.entries, cacheKey(principalID, agent))
	}
	return nil
}

var _ Cache = (*MemoryCache)(nil)
