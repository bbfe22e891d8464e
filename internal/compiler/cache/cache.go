// Package cache stores compiled bindings between compilations. Entries are
// keyed by a content hash of the generated IDL, so equal features compile once.
// Backends: an in-process LRU with expiry and Redis for sharing across processes.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Cache defines the interface for all cache backends
type Cache interface {
	// Get retrieves a value from the cache
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with a TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache
	Delete(ctx context.Context, key string) error

	// Clear removes all values from the cache
	Clear(ctx context.Context) error

	// Exists checks if a key exists in the cache
	Exists(ctx context.Context, key string) (bool, error)
}

// Config holds common configuration for cache backends
type Config struct {
	// DefaultTTL is the default time-to-live for cached items
	DefaultTTL time.Duration
	// Prefix is prepended to all cache keys
	Prefix string
	// Size bounds the number of entries of the memory backend
	Size int
}

// DefaultConfig returns a default cache configuration
func DefaultConfig() Config {
	return Config{
		DefaultTTL: time.Hour,
		Prefix:     "silac:binding:",
		Size:       256,
	}
}

// ErrCacheMiss is returned when a key is not found in the cache
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	var miss ErrCacheMiss
	return errors.As(err, &miss)
}

// Backend names accepted by New
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNone   = "none"
)

// New creates the cache backend with the given name
func New(backend string, config Config, redisConfig RedisConfig) (Cache, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemoryCacheWithConfig(config), nil
	case BackendRedis:
		redisConfig.CacheConfig = config
		return NewRedisCacheWithConfig(redisConfig)
	case BackendNone:
		return NopCache{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}

// NopCache stores nothing; every lookup misses
type NopCache struct{}

func (NopCache) Get(_ context.Context, key string) ([]byte, error) { return nil, ErrCacheMiss{Key: key} }

func (NopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NopCache) Delete(context.Context, string) error { return nil }

func (NopCache) Clear(context.Context) error { return nil }

func (NopCache) Exists(context.Context, string) (bool, error) { return false, nil }
