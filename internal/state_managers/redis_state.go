package state_managers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// RedisOptions configures the Redis backend.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStateManager stores values as plain string keys under a common prefix.
type RedisStateManager struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewRedisStateManager connects and pings the server before returning.
func NewRedisStateManager(ctx context.Context, opts RedisOptions, logger zerolog.Logger) (*RedisStateManager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisStateManager{client: client, prefix: opts.KeyPrefix, logger: logger}, nil
}

func (sm *RedisStateManager) key(k string) string {
	if sm.prefix == "" {
		return k
	}
	return sm.prefix + ":" + k
}

// Get returns the value stored under key.
func (sm *RedisStateManager) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := sm.client.Get(ctx, sm.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set stores a single value.
func (sm *RedisStateManager) Set(ctx context.Context, key, value string) error {
	return sm.client.Set(ctx, sm.key(key), value, 0).Err()
}

// SetAll stores every value with a single MSET, which Redis applies atomically.
func (sm *RedisStateManager) SetAll(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	pairs := make([]interface{}, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, sm.key(k), v)
	}
	return sm.client.MSet(ctx, pairs...).Err()
}

// Ping checks the server connection.
func (sm *RedisStateManager) Ping(ctx context.Context) error {
	return sm.client.Ping(ctx).Err()
}

// Close closes the client.
func (sm *RedisStateManager) Close() error {
	return sm.client.Close()
}
