package cache

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/internal/storage/interfaces"
	"github.com/inferloop/contentscore/pkg/errors"
)

// MemoryCache is an in-process interfaces.Cache with per-key expiry. When
// MaxKeys is reached the oldest entry is evicted.
type MemoryCache struct {
	config    *interfaces.CacheConfig
	data      map[string]*entry
	mu        sync.RWMutex
	logger    *logrus.Logger
	clock     func() time.Time
	stats     interfaces.CacheStats
	startTime time.Time
	closed    bool
}

type entry struct {
	value     []byte
	createdAt time.Time
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewMemoryCache creates an in-memory cache. A nil config uses DefaultCacheConfig.
func NewMemoryCache(config *interfaces.CacheConfig, logger *logrus.Logger) *MemoryCache {
	if config == nil {
		config = interfaces.DefaultCacheConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &MemoryCache{
		config:    config,
		data:      make(map[string]*entry),
		logger:    logger,
		clock:     time.Now,
		startTime: time.Now(),
	}
}

// Get retrieves a value by key
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errClosed()
	}

	now := c.clock()
	c.stats.LastAccess = now
	e, ok := c.data[key]
	if !ok {
		c.stats.Misses++
		return nil, errors.ErrCacheMiss
	}
	if e.expired(now) {
		delete(c.data, key)
		c.stats.Evictions++
		c.stats.Misses++
		return nil, errors.ErrCacheMiss
	}

	c.stats.Hits++
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set stores a value. A zero ttl uses the configured default; a negative ttl never expires.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClosed()
	}

	if ttl == 0 {
		ttl = c.config.DefaultTTL
	}
	now := c.clock()
	e := &entry{
		value:     append([]byte(nil), value...),
		createdAt: now,
	}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}

	if _, exists := c.data[key]; !exists && c.config.MaxKeys > 0 && len(c.data) >= c.config.MaxKeys {
		c.evictOldest(now)
	}
	c.data[key] = e
	c.stats.Sets++
	return nil
}

// Delete removes a key
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClosed()
	}
	if _, ok := c.data[key]; ok {
		delete(c.data, key)
		c.stats.Deletes++
	}
	return nil
}

// Exists checks if a live key exists
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return false, errClosed()
	}
	e, ok := c.data[key]
	return ok && !e.expired(c.clock()), nil
}

// TTL returns the remaining TTL for a key, zero when the key never expires
func (c *MemoryCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0, errClosed()
	}
	now := c.clock()
	e, ok := c.data[key]
	if !ok || e.expired(now) {
		return 0, errors.ErrCacheMiss
	}
	if e.expiresAt.IsZero() {
		return 0, nil
	}
	return e.expiresAt.Sub(now), nil
}

// Clear removes all keys
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errClosed()
	}
	c.stats.Deletes += int64(len(c.data))
	c.data = make(map[string]*entry)
	return nil
}

// Size returns the number of live keys
func (c *MemoryCache) Size(ctx context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.clock()
	var n int64
	for _, e := range c.data {
		if !e.expired(now) {
			n++
		}
	}
	return n, nil
}

// Stats returns cache statistics
func (c *MemoryCache) Stats(ctx context.Context) (*interfaces.CacheStats, error) {
	size, _ := c.Size(ctx)

	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.KeyCount = size
	stats.Uptime = time.Since(c.startTime)
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	return &stats, nil
}

// Health reports an error once the cache is closed
func (c *MemoryCache) Health(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return errClosed()
	}
	return nil
}

// Close drops all entries
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[string]*entry)
	c.closed = true
	return nil
}

// PruneExpired removes expired entries and returns how many were dropped
func (c *MemoryCache) PruneExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	removed := 0
	for key, e := range c.data {
		if e.expired(now) {
			delete(c.data, key)
			removed++
		}
	}
	c.stats.Evictions += int64(removed)
	if removed > 0 {
		c.logger.WithField("removed", removed).Debug("Pruned expired cache entries")
	}
	return removed
}

// evictOldest prefers an expired entry, then the oldest by creation time.
func (c *MemoryCache) evictOldest(now time.Time) {
	var oldestKey string
	var oldestTime time.Time
	for key, e := range c.data {
		if e.expired(now) {
			oldestKey = key
			break
		}
		if oldestKey == "" || e.createdAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.createdAt
		}
	}
	if oldestKey != "" {
		delete(c.data, oldestKey)
		c.stats.Evictions++
	}
}

func errClosed() error {
	return errors.NewAppError(errors.ErrorTypeCache, errors.CodeNotConnected, "cache is closed")
}

var _ interfaces.Cache = (*MemoryCache)(nil)
