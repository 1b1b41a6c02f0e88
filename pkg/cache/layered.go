package cache

import (
	"context"
	"encoding/json"
	"time"
)

type LayeredOption func(*LayeredCache)

// WithLayeredMemorySize bounds the in-process layer.
func WithLayeredMemorySize(n int) LayeredOption {
	return func(l *LayeredCache) { l.local = NewMemoryCache(WithMemoryMaxSize(n)) }
}

// WithLayeredMemoryTTL caps how long the in-process layer may serve a value
// without asking Redis.
func WithLayeredMemoryTTL(ttl time.Duration) LayeredOption {
	return func(l *LayeredCache) { l.localTTL = ttl }
}

// LayeredCache reads through a short lived in-process copy to Redis. Writes
// go to Redis first. Locks live in Redis only.
type LayeredCache struct {
	local    *MemoryCache
	shared   *RedisCache
	localTTL time.Duration
}

func NewLayeredCache(shared *RedisCache, opts ...LayeredOption) *LayeredCache {
	l := &LayeredCache{shared: shared, localTTL: 30 * time.Second}
	for _, opt := range opts {
		opt(l)
	}
	if l.local == nil {
		l.local = NewMemoryCache()
	}
	return l
}

// localFor never lets the local copy outlive the shared one.
func (l *LayeredCache) localFor(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < l.localTTL {
		return ttl
	}
	return l.localTTL
}

func (l *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := l.shared.setRaw(ctx, key, raw, expiration); err != nil {
		return err
	}
	l.local.put(key, raw, l.localFor(expiration))
	return nil
}

func (l *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if l.local.Get(ctx, key, dest) == nil {
		return nil
	}
	raw, err := l.shared.getRaw(ctx, key)
	if err != nil {
		return err
	}
	l.local.put(key, raw, l.localTTL)
	return json.Unmarshal(raw, dest)
}

func (l *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = l.local.Delete(ctx, keys...)
	return l.shared.Delete(ctx, keys...)
}

func (l *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) error {
	_ = l.local.DeleteByPattern(ctx, pattern)
	return l.shared.DeleteByPattern(ctx, pattern)
}

func (l *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.shared.TryLock(ctx, key, ttl)
}

func (l *LayeredCache) Unlock(ctx context.Context, key string) error {
	return l.shared.Unlock(ctx, key)
}

// Close releases both layers, including the Redis connection.
func (l *LayeredCache) Close() error {
	_ = l.local.Close()
	return l.shared.Close()
}
