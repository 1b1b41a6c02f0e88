package queue

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var errEmpty = errors.New("queue empty")

// store holds the three lists a queue needs: pending messages, delayed
// retries ordered by due time, and dead letters.
type store interface {
	ping(ctx context.Context) error
	push(ctx context.Context, key string, data []byte) error
	pop(ctx context.Context, key string, timeout time.Duration) ([]byte, error)
	schedule(ctx context.Context, key string, data []byte, at time.Time) error
	due(ctx context.Context, key string, now time.Time) ([]string, error)
	promote(ctx context.Context, from, to, member string) error
	length(ctx context.Context, key string) (int64, error)
}

type redisStore struct {
	client *redis.Client
}

func (s redisStore) ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s redisStore) push(ctx context.Context, key string, data []byte) error {
	return s.client.LPush(ctx, key, data).Err()
}

func (s redisStore) pop(ctx context.Context, key string, timeout time.Duration) ([]byte, error) {
	res, err := s.client.BRPop(ctx, timeout, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, errEmpty
	}
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, errEmpty
	}
	return []byte(res[1]), nil
}

func (s redisStore) schedule(ctx context.Context, key string, data []byte, at time.Time) error {
	return s.client.ZAdd(ctx, key, redis.Z{Score: float64(at.Unix()), Member: data}).Err()
}

func (s redisStore) due(ctx context.Context, key string, now time.Time) ([]string, error) {
	return s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
}

// promote requeues member only if this caller removed it from the retry set.
func (s redisStore) promote(ctx context.Context, from, to, member string) error {
	removed, err := s.client.ZRem(ctx, from, member).Result()
	if err != nil || removed == 0 {
		return err
	}
	return s.client.LPush(ctx, to, member).Err()
}

func (s redisStore) length(ctx context.Context, key string) (int64, error) {
	return s.client.LLen(ctx, key).Result()
}
