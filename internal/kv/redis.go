package kv

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pulse/pkg/metrics"
)

const backendRedis = "redis"

type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore namespaces every key with prefix; a zero ttl keeps keys forever.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	r.observe("get", start, err)
	if stderrors.Is(err, redis.Nil) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET failed: %w", err)
	}
	return v, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err()
	r.observe("set", start, err)
	if err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := r.client.Del(ctx, r.prefix+key).Err()
	r.observe("delete", start, err)
	if err != nil {
		return fmt.Errorf("redis DEL failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil && !stderrors.Is(err, redis.Nil) {
		status = "error"
	}
	metrics.IncKVOperation(backendRedis, op, status)
	metrics.ObserveKVOperationDuration(backendRedis, op, time.Since(start))
}
