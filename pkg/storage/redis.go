package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ghgcast:snapshot:"

// RedisStore is a Store shared by all server replicas. It owns a go-redis
// connection pool and must be closed when no longer needed.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store backed by the Redis server at addr.
//
// No connection is made here. The go-redis client dials lazily, so callers
// that want to fail fast should call Ping before serving.
//
// Parameters:
//
//   - addr: host:port of the Redis server. Required.
//   - password: AUTH password, empty when Redis has none.
//   - db: logical database number.
//   - ttl: expiry applied to every Put. Zero keeps entries until Redis
//     evicts them.
//
// Keys are namespaced as "ghgcast:snapshot:<kind>:<key>".
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: client, ttl: ttl}, nil
}

// Ping checks connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Put stores s with the configured ttl.
func (r *RedisStore) Put(ctx context.Context, s Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+storeKey(s.Kind, s.Key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Get returns the snapshot for kind and key.
func (r *RedisStore) Get(ctx context.Context, kind, key string) (Snapshot, bool, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+storeKey(kind, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("redis get: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, false, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return s, true, nil
}
