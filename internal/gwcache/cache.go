// Package gwcache backs the distributor's last-snapshot cache with an
// optional Redis store, so late-subscriber replay can survive a gateway
// restart or be shared across gateway instances when configured.
package gwcache

import (
	"context"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Cache stores serialized snapshot bytes keyed by instrument id. The
// distributor owns the in-process decision of "replay before any live
// update"; this interface only supplies the byte storage.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, val []byte, ttl time.Duration)
}

type memory struct {
	mu sync.RWMutex
	m  map[string]entry
}

type entry struct {
	b   []byte
	exp time.Time
}

// New returns an in-process, unbounded-TTL-capable cache.
func New() Cache { return &memory{m: make(map[string]entry)} }

func (c *memory) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.m[key]
	if !ok || (!e.exp.IsZero() && time.Now().After(e.exp)) {
		return nil, false
	}
	return e.b, true
}

func (c *memory) Set(key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.m[key] = e
}

type redisCache struct {
	r       *redis.Client
	timeout time.Duration
}

// NewRedis returns a Cache backed by a Redis instance at addr.
func NewRedis(addr string) Cache {
	return &redisCache{
		r:       redis.NewClient(&redis.Options{Addr: addr}),
		timeout: 500 * time.Millisecond,
	}
}

// NewAuto returns a Redis-backed cache when addr is non-empty, otherwise
// the in-process default.
func NewAuto(addr string) Cache {
	if addr != "" {
		return NewRedis(addr)
	}
	return New()
}

func (r *redisCache) Get(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	v, err := r.r.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

func (r *redisCache) Set(key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	_ = r.r.Set(ctx, key, val, ttl).Err()
}
