package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisDialTimeout  = 5 * time.Second
	redisReadTimeout  = 3 * time.Second
	redisWriteTimeout = 3 * time.Second
	redisScanCount    = 256
)

// Redis is a Storage backed by a Redis server, shared across processes.
type Redis struct {
	client *redis.Client
}

// OpenRedis connects to addr and verifies the connection.
func OpenRedis(ctx context.Context, addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisReadTimeout,
		WriteTimeout: redisWriteTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: connect to redis at %s: %w", ErrOpen, addr, err)
	}
	return &Redis{client: client}, nil
}

// Read implements Storage.
func (r *Redis) Read(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: read %s: %w", ErrBackend, key, err)
	}
	return v, true, nil
}

// Write implements Storage. Entries carry their own timestamp so no Redis TTL is set.
func (r *Redis) Write(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrBackend, key, err)
	}
	return nil
}

// Remove implements Storage.
func (r *Redis) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: remove %s: %w", ErrBackend, key, err)
	}
	return nil
}

// Keys implements Lister using SCAN.
func (r *Redis) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	iter := r.client.Scan(ctx, 0, prefix+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan %s: %w", ErrBackend, prefix, err)
	}
	sort.Strings(out)
	return out, nil
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
