package cache

import (
	"context"
	"encoding/json"
	"path"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// defaultMemoryTTL applies when Set is called without an expiration.
const defaultMemoryTTL = 7 * 24 * time.Hour

type MemoryOption func(*MemoryCache)

// WithMemoryMaxSize bounds the number of entries. When full, the entry
// closest to expiry makes room for a new key.
func WithMemoryMaxSize(n int) MemoryOption {
	return func(m *MemoryCache) { m.maxSize = n }
}

// MemoryCache is a process local Service backed by go-cache. Values are kept
// as JSON so reads never alias a caller's value.
type MemoryCache struct {
	items   *gocache.Cache
	maxSize int

	// writes hold mu so the size bound and TryLock stay atomic
	mu sync.Mutex
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	m := &MemoryCache{maxSize: 1000}
	for _, opt := range opts {
		opt(m)
	}
	m.items = gocache.New(defaultMemoryTTL, 5*time.Minute)
	return m
}

func (m *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.put(key, raw, expiration)
	return nil
}

func (m *MemoryCache) put(key string, raw []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.makeRoom(key)
	m.items.Set(key, raw, ttl)
}

// makeRoom evicts one entry if key is new and the cache is full. Caller
// holds mu.
func (m *MemoryCache) makeRoom(key string) {
	if m.maxSize <= 0 || m.items.ItemCount() < m.maxSize {
		return
	}
	if _, ok := m.items.Get(key); ok {
		return
	}
	m.items.DeleteExpired()
	if m.items.ItemCount() < m.maxSize {
		return
	}
	var victim string
	var soonest int64
	for k, it := range m.items.Items() {
		if victim == "" || it.Expiration < soonest {
			victim, soonest = k, it.Expiration
		}
	}
	m.items.Delete(victim)
}

func (m *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	v, ok := m.items.Get(key)
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(v.([]byte), dest)
}

func (m *MemoryCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.items.Delete(k)
	}
	return nil
}

// DeleteByPattern matches keys with Redis style globs.
func (m *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return err
	}
	for k := range m.items.Items() {
		if ok, _ := path.Match(pattern, k); ok {
			m.items.Delete(k)
		}
	}
	return nil
}

func (m *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.makeRoom(key)
	return m.items.Add(key, []byte(`"locked"`), ttl) == nil, nil
}

func (m *MemoryCache) Unlock(ctx context.Context, key string) error {
	return m.Delete(ctx, key)
}

// Close drops every entry. The janitor goroutine ends once the cache is
// collected.
func (m *MemoryCache) Close() error {
	m.items.Flush()
	return nil
}
