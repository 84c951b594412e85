// Package redis adapts a redis client to the cache capability.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shammaa/url-shortener/internal/cache"
	"github.com/shammaa/url-shortener/internal/config"
)

type Cache struct {
	client *redis.Client
}

// New connects to redis and verifies the connection with a bounded ping.
func New(ctx context.Context, cfg config.Redis) (*Cache, error) {
	const op = "cache.redis.New"

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("%s: failed to connect to redis: %w", op, err)
	}

	return &Cache{client: client}, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	const op = "cache.redis.Cache.Get"

	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", op, cache.ErrMiss)
		}

		return nil, fmt.Errorf("%s: failed to get key: %w", op, err)
	}

	return val, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	const op = "cache.redis.Cache.Set"

	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%s: failed to set key: %w", op, err)
	}

	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	const op = "cache.redis.Cache.Delete"

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%s: failed to delete key: %w", op, err)
	}

	return nil
}

// FlushPrefix removes every key under the given prefix. Used by the
// cache-flush CLI rather than the request path.
func (c *Cache) FlushPrefix(ctx context.Context, prefix string) (int64, error) {
	const op = "cache.redis.Cache.FlushPrefix"

	var deleted int64

	iter := c.client.Scan(ctx, 0, prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return deleted, fmt.Errorf("%s: failed to delete key %q: %w", op, iter.Val(), err)
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("%s: scan failed: %w", op, err)
	}

	return deleted, nil
}
