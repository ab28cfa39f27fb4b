package query

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces keys written by RedisStore.
const DefaultRedisPrefix = "datatable:query:"

// RedisStore shares cache entries between processes through Redis.
// Entries are JSON encoded and expire after ttl.
type RedisStore[T any] struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store. An empty prefix uses DefaultRedisPrefix;
// a zero ttl keeps entries until deleted.
func NewRedisStore[T any](client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore[T] {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore[T]{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore[T]) Get(ctx context.Context, key string) (Entry[T], bool, error) {
	var e Entry[T]
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return e, false, nil
	}
	if err != nil {
		return e, false, err
	}
	if err := json.Unmarshal(raw, &e); err != nil {
		return e, false, err
	}
	return e, true, nil
}

func (r *RedisStore[T]) Set(ctx context.Context, key string, e Entry[T]) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.prefix+key, raw, r.ttl).Err()
}

func (r *RedisStore[T]) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}
