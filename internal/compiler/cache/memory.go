package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryCache is a size bounded in-process cache whose entries expire after
// the configured default TTL
type MemoryCache struct {
	lru    *expirable.LRU[string, []byte]
	config Config
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithConfig(DefaultConfig())
}

// NewMemoryCacheWithConfig creates a new in-memory cache with custom configuration
func NewMemoryCacheWithConfig(config Config) *MemoryCache {
	if config.Size <= 0 {
		config.Size = DefaultConfig().Size
	}
	return &MemoryCache{
		lru:    expirable.NewLRU[string, []byte](config.Size, nil, config.DefaultTTL),
		config: config,
	}
}

// Get retrieves a value from the cache
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	value, ok := m.lru.Get(m.config.Prefix + key)
	if !ok {
		return nil, ErrCacheMiss{Key: key}
	}
	return value, nil
}

// Set stores a value. The memory backend expires every entry after the
// default TTL; ttl is accepted for interface compatibility.
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.lru.Add(m.config.Prefix+key, value)
	return nil
}

// Delete removes a value from the cache
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.lru.Remove(m.config.Prefix + key)
	return nil
}

// Clear removes all values from the cache
func (m *MemoryCache) Clear(ctx context.Context) error {
	m.lru.Purge()
	return nil
}

// Exists checks if a key exists in the cache
func (m *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := m.lru.Peek(m.config.Prefix + key)
	return ok, nil
}

// Len returns the number of entries, expired ones included until evicted
func (m *MemoryCache) Len() int {
	return m.lru.Len()
}
