package vendorhttp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache keeps vendor payloads in Redis with the same tenant scoping as
// the SQL cache. Useful when multiple worker processes share one cache.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache connects and pings; the caller decides whether a failure
// falls back to the SQL cache.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}
	return &RedisCache{rdb: rdb}, nil
}

func cacheKey(tenantID, vendor, key string) string {
	return fmt.Sprintf("vendor:%s:%s:%s", tenantID, vendor, key)
}

func (c *RedisCache) Get(ctx context.Context, tenantID, vendor, key string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, cacheKey(tenantID, vendor, key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Put(ctx context.Context, tenantID, vendor, key string, payload []byte, ttlMinutes int) error {
	return c.rdb.Set(ctx, cacheKey(tenantID, vendor, key), payload, time.Duration(ttlMinutes)*time.Minute).Err()
}

func (c *RedisCache) Close() error { return c.rdb.Close() }

var _ Cache = (*RedisCache)(nil)

// MemCache is the in-process fallback cache.
type MemCache struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

type memEntry struct {
	payload   []byte
	expiresAt time.Time
}

func NewMemCache() *MemCache {
	return &MemCache{entries: make(map[string]memEntry)}
}

func (c *MemCache) Get(_ context.Context, tenantID, vendor, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey(tenantID, vendor, key)]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.payload, true, nil
}

func (c *MemCache) Put(_ context.Context, tenantID, vendor, key string, payload []byte, ttlMinutes int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(tenantID, vendor, key)] = memEntry{
		payload:   payload,
		expiresAt: time.Now().Add(time.Duration(ttlMinutes) * time.Minute),
	}
	return nil
}

var _ Cache = (*MemCache)(nil)

// VendorCacheStore is the SQL-backed cache surface.
type VendorCacheStore interface {
	VendorCacheGet(ctx context.Context, tenantID, vendor, key string) ([]byte, bool, error)
	VendorCachePut(ctx context.Context, tenantID, vendor, key string, payload []byte, ttlMinutes int) error
}

// SQLCache adapts the datastore's vendor cache rows to the Cache interface.
type SQLCache struct {
	Store VendorCacheStore
}

func (c SQLCache) Get(ctx context.Context, tenantID, vendor, key string) ([]byte, bool, error) {
	return c.Store.VendorCacheGet(ctx, tenantID, vendor, key)
}

func (c SQLCache) Put(ctx context.Context, tenantID, vendor, key string, payload []byte, ttlMinutes int) error {
	return c.Store.VendorCachePut(ctx, tenantID, vendor, key, payload, ttlMinutes)
}

var _ Cache = SQLCache{}
