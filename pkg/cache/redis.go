package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type RedisOption func(*redis.Options, *string)

func WithRedisAddr(addr string) RedisOption {
	return func(o *redis.Options, _ *string) { o.Addr = addr }
}

func WithRedisPassword(password string) RedisOption {
	return func(o *redis.Options, _ *string) { o.Password = password }
}

func WithRedisDB(db int) RedisOption {
	return func(o *redis.Options, _ *string) { o.DB = db }
}

// WithRedisPrefix namespaces every key, e.g. "srlevels" stores "a" as
// "srlevels:a".
func WithRedisPrefix(prefix string) RedisOption {
	return func(_ *redis.Options, p *string) { *p = prefix }
}

// releaseLock deletes a lock only while it still holds our token, so a lock
// that expired and was taken by another instance is left alone.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// unlinkBatch is how many scanned keys are removed per UNLINK.
const unlinkBatch = 100

// RedisCache is the shared Service used across instances.
type RedisCache struct {
	client *redis.Client
	prefix string
	tokens sync.Map // lock key -> token we set
}

// NewRedisCache connects and pings before returning.
func NewRedisCache(opts ...RedisOption) (*RedisCache, error) {
	o := &redis.Options{
		Addr:         "localhost:6379",
		PoolSize:     10,
		PoolTimeout:  30 * time.Second,
		MinIdleConns: 2,
	}
	prefix := "srlevels"
	for _, opt := range opts {
		opt(o, &prefix)
	}

	client := redis.NewClient(o)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", o.Addr, err)
	}
	return &RedisCache{client: client, prefix: prefix}, nil
}

// Client exposes the connection so the job queue can share it.
func (c *RedisCache) Client() *redis.Client { return c.client }

func (c *RedisCache) Close() error { return c.client.Close() }

func (c *RedisCache) key(k string) string { return c.prefix + ":" + k }

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.setRaw(ctx, key, raw, expiration)
}

func (c *RedisCache) setRaw(ctx context.Context, key string, raw []byte, expiration time.Duration) error {
	return c.client.Set(ctx, c.key(key), raw, expiration).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, err := c.getRaw(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func (c *RedisCache) getRaw(ctx context.Context, key string) ([]byte, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return raw, err
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.client.Unlink(ctx, full...).Err()
}

// DeleteByPattern walks the keyspace with SCAN rather than KEYS so a large
// database is never blocked.
func (c *RedisCache) DeleteByPattern(ctx context.Context, pattern string) error {
	it := c.client.Scan(ctx, 0, c.key(pattern), unlinkBatch).Iterator()
	batch := make([]string, 0, unlinkBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := c.client.Unlink(ctx, batch...).Err()
		batch = batch[:0]
		return err
	}
	for it.Next(ctx) {
		batch = append(batch, it.Val())
		if len(batch) == unlinkBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	return flush()
}

// TryLock takes key for ttl with SET NX. The token is remembered so Unlock
// only releases a lock this process still owns.
func (c *RedisCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, c.key(key), token, ttl).Result()
	if err != nil || !ok {
		return false, err
	}
	c.tokens.Store(key, token)
	return true, nil
}

func (c *RedisCache) Unlock(ctx context.Context, key string) error {
	token, ok := c.tokens.LoadAndDelete(key)
	if !ok {
		return nil
	}
	return releaseLock.Run(ctx, c.client, []string{c.key(key)}, token).Err()
}
