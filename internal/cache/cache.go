// Package cache defines the narrow cache capability the service layer
// consumes. A nil or disabled cache degrades to always-miss.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned when a key is not present in the cache.
var ErrMiss = errors.New("cache miss")

// Cache is a minimal get/set/delete surface with per-entry TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
