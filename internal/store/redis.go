package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisState keeps local state in redis under a key prefix. It offers the same
// Get/Set/Delete contract as the sqlite local_state table.
type RedisState struct {
	client *redis.Client
	prefix string
}

// NewRedisState connects to addr and verifies the connection.
func NewRedisState(ctx context.Context, addr, password, prefix string) (*RedisState, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisState{client: client, prefix: prefix}, nil
}

func (r *RedisState) key(k string) string {
	return r.prefix + k
}

// Get returns the value stored under key. The boolean is false when the key is absent.
func (r *RedisState) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set stores value under key with no expiry.
func (r *RedisState) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.key(key), value, 0).Err()
}

// Delete removes key.
func (r *RedisState) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Close closes the redis client.
func (r *RedisState) Close() error {
	return r.client.Close()
}
