package interfaces

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations
type Cache interface {
	// Get retrieves a value by key. A missing or expired key returns ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with optional TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists
	Exists(ctx context.Context, key string) (bool, error)

	// TTL returns the remaining TTL for a key
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Clear removes all keys
	Clear(ctx context.Context) error

	// Size returns the number of keys
	Size(ctx context.Context) (int64, error)

	// Stats returns cache statistics
	Stats(ctx context.Context) (*CacheStats, error)

	// Health checks cache health
	Health(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// CacheStats contains cache performance statistics
type CacheStats struct {
	Hits       int64         `json:"hits"`
	Misses     int64         `json:"misses"`
	Sets       int64         `json:"sets"`
	Deletes    int64         `json:"deletes"`
	Evictions  int64         `json:"evictions"`
	Errors     int64         `json:"errors"`
	KeyCount   int64         `json:"key_count"`
	Uptime     time.Duration `json:"uptime"`
	HitRate    float64       `json:"hit_rate"`
	LastAccess time.Time     `json:"last_access"`
}

// CacheConfig contains configuration shared by cache implementations
type CacheConfig struct {
	DefaultTTL time.Duration `json:"default_ttl" yaml:"default_ttl" mapstructure:"default_ttl"`
	MaxKeys    int           `json:"max_keys" yaml:"max_keys" mapstructure:"max_keys"`
	KeyPrefix  string        `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`
}

// DefaultCacheConfig returns default cache configuration
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		DefaultTTL: time.Hour,
		MaxKeys:    10000,
		KeyPrefix:  "contentscore:",
	}
}
