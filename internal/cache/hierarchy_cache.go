// Package cache memoizes the read-heavy navigation queries of the tenant
// tree. Two levels: a small in-process map in front of Redis. Any
// structural mutation invalidates the whole cache; there is no
// fine-grained invalidation, correctness under concurrent writers beats
// read efficiency here.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"console-service/internal/models"
)

// ErrCacheMiss is returned when a key is present in neither level
var ErrCacheMiss = errors.New("cache miss")

const keyPrefix = "hierarchy:"

// HierarchyCache provides multi-level caching for tenant tree reads
type HierarchyCache struct {
	redis  *redis.Client
	local  *localCache
	logger *logrus.Logger

	tenantTTL time.Duration
	treeTTL   time.Duration
	localTTL  time.Duration

	mu     sync.RWMutex
	hits   int64
	misses int64
	errs   int64
}

// Config holds configuration for the hierarchy cache
type Config struct {
	RedisClient  *redis.Client // nil degrades to local-only caching
	Logger       *logrus.Logger
	TenantTTL    time.Duration // single-tenant entries (default: 10 minutes)
	TreeTTL      time.Duration // list entries (default: 5 minutes)
	LocalTTL     time.Duration // in-process entries (default: 30 seconds)
	LocalMaxSize int           // max items in local cache (default: 1000)
}

type localCache struct {
	mu      sync.RWMutex
	items   map[string]*localItem
	maxSize int
	order   []string // FIFO eviction order
}

type localItem struct {
	value     []byte
	expiresAt time.Time
}

// New creates a hierarchy cache
func New(cfg Config) *HierarchyCache {
	if cfg.TenantTTL == 0 {
		cfg.TenantTTL = 10 * time.Minute
	}
	if cfg.TreeTTL == 0 {
		cfg.TreeTTL = 5 * time.Minute
	}
	if cfg.LocalTTL == 0 {
		cfg.LocalTTL = 30 * time.Second
	}
	if cfg.LocalMaxSize == 0 {
		cfg.LocalMaxSize = 1000
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	return &HierarchyCache{
		redis:     cfg.RedisClient,
		logger:    cfg.Logger,
		tenantTTL: cfg.TenantTTL,
		treeTTL:   cfg.TreeTTL,
		localTTL:  cfg.LocalTTL,
		local: &localCache{
			items:   make(map[string]*localItem),
			maxSize: cfg.LocalMaxSize,
			order:   make([]string, 0, cfg.LocalMaxSize),
		},
	}
}

// Key builders for the cached read operations

func KeyTenant(id string) string      { return keyPrefix + "id:" + id }
func KeySlug(slug string) string      { return keyPrefix + "slug:" + slug }
func KeyRoots() string                { return keyPrefix + "roots" }
func KeyChildren(id string) string    { return keyPrefix + "children:" + id }
func KeyDescendants(id string) string { return keyPrefix + "descendants:" + id }
func KeyAncestors(id string) string   { return keyPrefix + "ancestors:" + id }

// GetTenant retrieves a single cached tenant
func (c *HierarchyCache) GetTenant(ctx context.Context, key string) (*models.Tenant, error) {
	data := c.get(ctx, key)
	if data == nil {
		c.recordMiss()
		return nil, ErrCacheMiss
	}

	var tenant models.Tenant
	if err := json.Unmarshal(data, &tenant); err != nil {
		c.recordError()
		return nil, ErrCacheMiss
	}
	c.recordHit()
	return &tenant, nil
}

// SetTenant caches a single tenant
func (c *HierarchyCache) SetTenant(ctx context.Context, key string, tenant *models.Tenant) {
	data, err := json.Marshal(tenant)
	if err != nil {
		return
	}
	c.set(ctx, key, data, c.tenantTTL)
}

// GetTenantList retrieves a cached navigation result
func (c *HierarchyCache) GetTenantList(ctx context.Context, key string) ([]*models.Tenant, error) {
	data := c.get(ctx, key)
	if data == nil {
		c.recordMiss()
		return nil, ErrCacheMiss
	}

	var tenants []*models.Tenant
	if err := json.Unmarshal(data, &tenants); err != nil {
		c.recordError()
		return nil, ErrCacheMiss
	}
	c.recordHit()
	return tenants, nil
}

// SetTenantList caches a navigation result
func (c *HierarchyCache) SetTenantList(ctx context.Context, key string, tenants []*models.Tenant) {
	data, err := json.Marshal(tenants)
	if err != nil {
		return
	}
	c.set(ctx, key, data, c.treeTTL)
}

// InvalidateAll drops every hierarchy entry from both levels. Called after
// each structural mutation commits.
func (c *HierarchyCache) InvalidateAll(ctx context.Context) {
	c.local.mu.Lock()
	c.local.items = make(map[string]*localItem)
	c.local.order = c.local.order[:0]
	c.local.mu.Unlock()

	if c.redis == nil {
		return
	}

	iter := c.redis.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.recordError()
		c.logger.WithError(err).Warn("Failed to scan hierarchy cache keys")
		return
	}
	if len(keys) > 0 {
		if err := c.redis.Del(ctx, keys...).Err(); err != nil {
			c.recordError()
			c.logger.WithError(err).Warn("Failed to invalidate hierarchy cache")
		}
	}
}

func (c *HierarchyCache) get(ctx context.Context, key string) []byte {
	if data := c.getLocal(key); data != nil {
		return data
	}

	if c.redis != nil {
		data, err := c.redis.Get(ctx, key).Bytes()
		if err == nil {
			c.setLocal(key, data)
			return data
		}
		if err != redis.Nil {
			c.recordError()
		}
	}

	return nil
}

func (c *HierarchyCache) set(ctx context.Context, key string, data []byte, ttl time.Duration) {
	c.setLocal(key, data)

	if c.redis != nil {
		if err := c.redis.Set(ctx, key, data, ttl).Err(); err != nil {
			c.recordError()
			c.logger.WithError(err).Warn("Failed to set hierarchy cache entry in Redis")
		}
	}
}

func (c *HierarchyCache) getLocal(key string) []byte {
	c.local.mu.RLock()
	defer c.local.mu.RUnlock()

	item, exists := c.local.items[key]
	if !exists || time.Now().After(item.expiresAt) {
		return nil
	}
	return item.value
}

func (c *HierarchyCache) setLocal(key string, value []byte) {
	c.local.mu.Lock()
	defer c.local.mu.Unlock()

	// An overwrite moves the key to the back of the eviction order; only
	// a genuinely new key may need to make room
	if _, exists := c.local.items[key]; exists {
		c.local.removeFromOrder(key)
	} else if len(c.local.items) >= c.local.maxSize {
		c.local.makeRoom()
	}

	c.local.items[key] = &localItem{
		value:     value,
		expiresAt: time.Now().Add(c.localTTL),
	}
	c.local.order = append(c.local.order, key)
}

// makeRoom drops expired entries first and falls back to evicting the
// oldest live one. Caller holds the lock.
func (l *localCache) makeRoom() {
	now := time.Now()
	for key, item := range l.items {
		if now.After(item.expiresAt) {
			delete(l.items, key)
			l.removeFromOrder(key)
		}
	}
	if len(l.items) < l.maxSize {
		return
	}
	if len(l.order) > 0 {
		oldest := l.order[0]
		delete(l.items, oldest)
		l.order = l.order[1:]
	}
}

// removeFromOrder drops the key's slot from the eviction order. Caller
// holds the lock; each key appears at most once.
func (l *localCache) removeFromOrder(key string) {
	for i, k := range l.order {
		if k == key {
			l.order = append(l.order[:i], l.order[i+1:]...)
			return
		}
	}
}

func (c *HierarchyCache) recordHit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *HierarchyCache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

func (c *HierarchyCache) recordError() {
	c.mu.Lock()
	c.errs++
	c.mu.Unlock()
}

// Hits returns the cumulative hit count
func (c *HierarchyCache) Hits() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits
}

// Misses returns the cumulative miss count
func (c *HierarchyCache) Misses() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.misses
}

// Stats returns cache hit/miss statistics
func (c *HierarchyCache) Stats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	c.local.mu.RLock()
	localSize := len(c.local.items)
	c.local.mu.RUnlock()

	total := c.hits + c.misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return map[string]interface{}{
		"hits":          c.hits,
		"misses":        c.misses,
		"errors":        c.errs,
		"hit_rate":      hitRate,
		"local_size":    localSize,
		"redis_enabled": c.redis != nil,
	}
}

// String implements fmt.Stringer for stats logging
func (c *HierarchyCache) String() string {
	stats := c.Stats()
	parts := make([]string, 0, len(stats))
	for k, v := range stats {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, " ")
}
