package data

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueryCache keeps cacheable query results in Redis so they are shared
// between processes. Generations are Redis counters, so an invalidation in
// one process is seen by all of them.
type RedisQueryCache struct {
	client redis.UniversalClient
}

func NewRedisQueryCache(client redis.UniversalClient) *RedisQueryCache {
	return &RedisQueryCache{client: client}
}

func (r *RedisQueryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (r *RedisQueryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisQueryCache) Generation(ctx context.Context, namespace string) (int64, error) {
	generation, err := r.client.Get(ctx, cacheGenerationPrefix+namespace).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return generation, err
}

func (r *RedisQueryCache) Invalidate(ctx context.Context, namespace string) error {
	return r.client.Incr(ctx, cacheGenerationPrefix+namespace).Err()
}
