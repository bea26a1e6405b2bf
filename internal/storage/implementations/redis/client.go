package redis

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/contentscore/internal/storage/interfaces"
	"github.com/inferloop/contentscore/pkg/errors"
)

// RedisConfig holds configuration for the Redis cache
type RedisConfig struct {
	Addr          string        `json:"addr" yaml:"addr" mapstructure:"addr"`
	Password      string        `json:"password" yaml:"password" mapstructure:"password"`
	DB            int           `json:"db" yaml:"db" mapstructure:"db"`
	DialTimeout   time.Duration `json:"dial_timeout" yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout   time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	PoolSize      int           `json:"pool_size" yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns  int           `json:"min_idle_conns" yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	MaxRetries    int           `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	IdleTimeout   time.Duration `json:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`
	TTL           time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
	KeyPrefix     string        `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`
	UseClustering bool          `json:"use_clustering" yaml:"use_clustering" mapstructure:"use_clustering"`
	ClusterAddrs  []string      `json:"cluster_addrs" yaml:"cluster_addrs" mapstructure:"cluster_addrs"`
}

// RedisCache implements interfaces.Cache on Redis. All keys live under the
// configured prefix so Clear and Size never touch foreign keys.
type RedisCache struct {
	config    *RedisConfig
	client    redis.UniversalClient
	logger    *logrus.Logger
	mu        sync.RWMutex
	stats     cacheCounters
	startTime time.Time
	closed    bool
}

type cacheCounters struct {
	hits       int64
	misses     int64
	sets       int64
	deletes    int64
	errors     int64
	lastAccess atomic.Value
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(config *RedisConfig, logger *logrus.Logger) (*RedisCache, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "Redis config cannot be nil")
	}

	if config.Addr == "" && len(config.ClusterAddrs) == 0 {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "Redis address or cluster addresses are required")
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &RedisCache{
		config:    config,
		logger:    logger,
		startTime: time.Now(),
	}, nil
}

// Connect establishes connection to Redis
func (r *RedisCache) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return nil // Already connected
	}

	var client redis.UniversalClient

	if r.config.UseClustering && len(r.config.ClusterAddrs) > 0 {
		// Redis Cluster
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        r.config.ClusterAddrs,
			Password:     r.config.Password,
			DialTimeout:  r.config.DialTimeout,
			ReadTimeout:  r.config.ReadTimeout,
			WriteTimeout: r.config.WriteTimeout,
			PoolSize:     r.config.PoolSize,
			MinIdleConns: r.config.MinIdleConns,
			MaxRetries:   r.config.MaxRetries,
			IdleTimeout:  r.config.IdleTimeout,
		})
	} else {
		// Single Redis instance
		client = redis.NewClient(&redis.Options{
			Addr:         r.config.Addr,
			Password:     r.config.Password,
			DB:           r.config.DB,
			DialTimeout:  r.config.DialTimeout,
			ReadTimeout:  r.config.ReadTimeout,
			WriteTimeout: r.config.WriteTimeout,
			PoolSize:     r.config.PoolSize,
			MinIdleConns: r.config.MinIdleConns,
			MaxRetries:   r.config.MaxRetries,
			IdleTimeout:  r.config.IdleTimeout,
		})
	}

	// Test connection
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return errors.WrapError(err, errors.ErrorTypeCache, errors.CodeConnectionFailed, "Failed to connect to Redis")
	}

	r.client = client
	r.closed = false

	r.logger.WithFields(logrus.Fields{
		"addr":       r.config.Addr,
		"db":         r.config.DB,
		"clustering": r.config.UseClustering,
		"key_prefix": r.config.KeyPrefix,
	}).Info("Connected to Redis")

	return nil
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	r.closed = true
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeCache, errors.CodeConnectionFailed, "Failed to close Redis connection")
	}

	r.logger.Info("Redis connection closed")
	return nil
}

// Health pings Redis
func (r *RedisCache) Health(ctx context.Context) error {
	client, err := r.conn()
	if err != nil {
		return err
	}
	if _, err := client.Ping(ctx).Result(); err != nil {
		atomic.AddInt64(&r.stats.errors, 1)
		return errors.WrapError(err, errors.ErrorTypeCache, errors.CodeConnectionFailed, "Redis ping failed")
	}
	return nil
}

// Get retrieves a value by key
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	client, err := r.conn()
	if err != nil {
		return nil, err
	}
	r.stats.lastAccess.Store(time.Now())

	value, err := client.Get(ctx, r.generateKey(key)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		atomic.AddInt64(&r.stats.misses, 1)
		return nil, errors.ErrCacheMiss
	}
	if err != nil {
		atomic.AddInt64(&r.stats.errors, 1)
		return nil, errors.WrapError(err, errors.ErrorTypeCache, errors.CodeReadFailed, "Failed to read from Redis")
	}

	atomic.AddInt64(&r.stats.hits, 1)
	return value, nil
}

// Set stores a value. A zero ttl uses the configured default.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	client, err := r.conn()
	if err != nil {
		return err
	}
	if ttl == 0 {
		ttl = r.config.TTL
	}

	if err := client.Set(ctx, r.generateKey(key), value, ttl).Err(); err != nil {
		atomic.AddInt64(&r.stats.errors, 1)
		return errors.WrapError(err, errors.ErrorTypeCache, errors.CodeWriteFailed, "Failed to write to Redis")
	}

	atomic.AddInt64(&r.stats.sets, 1)
	r.logger.WithFields(logrus.Fields{
		"key":   key,
		"bytes": len(value),
		"ttl":   ttl,
	}).Debug("Cached value in Redis")
	return nil
}

// Delete removes a key
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	client, err := r.conn()
	if err != nil {
		return err
	}
	if err := client.Del(ctx, r.generateKey(key)).Err(); err != nil {
		atomic.AddInt64(&r.stats.errors, 1)
		return errors.WrapError(err, errors.ErrorTypeCache, errors.CodeWriteFailed, "Failed to delete from Redis")
	}
	atomic.AddInt64(&r.stats.deletes, 1)
	return nil
}

// Exists checks if a key exists
func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	client, err := r.conn()
	if err != nil {
		return false, err
	}
	n, err := client.Exists(ctx, r.generateKey(key)).Result()
	if err != nil {
		atomic.AddInt64(&r.stats.errors, 1)
		return false, errors.WrapError(err, errors.ErrorTypeCache, errors.CodeReadFailed, "Failed to check key in Redis")
	}
	return n > 0, nil
}

// TTL returns the remaining TTL for a key, zero when the key never expires
func (r *RedisCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	client, err := r.conn()
	if err != nil {
		return 0, err
	}
	ttl, err := client.TTL(ctx, r.generateKey(key)).Result()
	if err != nil {
		atomic.AddInt64(&r.stats.errors, 1)
		return 0, errors.WrapError(err, errors.ErrorTypeCache, errors.CodeReadFailed, "Failed to read TTL from Redis")
	}
	return normalizeTTL(ttl)
}

// Clear removes every key under the prefix
func (r *RedisCache) Clear(ctx context.Context) error {
	client, err := r.conn()
	if err != nil {
		return err
	}

	keys, err := r.scanKeys(ctx, client)
	if err != nil {
		return err
	}
	for start := 0; start < len(keys); start += 500 {
		end := start + 500
		if end > len(keys) {
			end = len(keys)
		}
		// DEL per key keeps cluster slots apart
		pipe := client.Pipeline()
		for _, k := range keys[start:end] {
			pipe.Del(ctx, k)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			atomic.AddInt64(&r.stats.errors, 1)
			return errors.WrapError(err, errors.ErrorTypeCache, errors.CodeWriteFailed, "Failed to clear Redis keys")
		}
	}
	atomic.AddInt64(&r.stats.deletes, int64(len(keys)))

	r.logger.WithField("keys", len(keys)).Info("Cleared Redis cache")
	return nil
}

// Size returns the number of keys under the prefix
func (r *RedisCache) Size(ctx context.Context) (int64, error) {
	client, err := r.conn()
	if err != nil {
		return 0, err
	}
	keys, err := r.scanKeys(ctx, client)
	if err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}

// Stats returns cache statistics
func (r *RedisCache) Stats(ctx context.Context) (*interfaces.CacheStats, error) {
	stats := &interfaces.CacheStats{
		Hits:    atomic.LoadInt64(&r.stats.hits),
		Misses:  atomic.LoadInt64(&r.stats.misses),
		Sets:    atomic.LoadInt64(&r.stats.sets),
		Deletes: atomic.LoadInt64(&r.stats.deletes),
		Errors:  atomic.LoadInt64(&r.stats.errors),
		Uptime:  time.Since(r.startTime),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	if t, ok := r.stats.lastAccess.Load().(time.Time); ok {
		stats.LastAccess = t
	}
	if size, err := r.Size(ctx); err == nil {
		stats.KeyCount = size
	}
	return stats, nil
}

// Helper methods

func (r *RedisCache) conn() (redis.UniversalClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed || r.client == nil {
		return nil, errors.NewAppError(errors.ErrorTypeCache, errors.CodeNotConnected, "Redis not connected")
	}
	return r.client, nil
}

func (r *RedisCache) generateKey(key string) string {
	if r.config.KeyPrefix != "" {
		return fmt.Sprintf("%s:%s", r.config.KeyPrefix, key)
	}
	return key
}

func (r *RedisCache) keyPattern() string {
	return r.generateKey("*")
}

func (r *RedisCache) scanKeys(ctx context.Context, client redis.UniversalClient) ([]string, error) {
	var (
		mu   sync.Mutex
		keys []string
	)
	scan := func(ctx context.Context, c *redis.Client) error {
		iter := c.Scan(ctx, 0, r.keyPattern(), 500).Iterator()
		for iter.Next(ctx) {
			mu.Lock()
			keys = append(keys, iter.Val())
			mu.Unlock()
		}
		return iter.Err()
	}

	var err error
	switch c := client.(type) {
	case *redis.ClusterClient:
		err = c.ForEachMaster(ctx, scan)
	case *redis.Client:
		err = scan(ctx, c)
	default:
		return nil, errors.NewAppError(errors.ErrorTypeCache, errors.CodeInternalError, "unsupported Redis client")
	}
	if err != nil {
		atomic.AddInt64(&r.stats.errors, 1)
		return nil, errors.WrapError(err, errors.ErrorTypeCache, errors.CodeQueryFailed, "Failed to scan Redis keys")
	}
	return keys, nil
}

// normalizeTTL maps the Redis TTL sentinels: -2 missing key, -1 no expiry.
func normalizeTTL(ttl time.Duration) (time.Duration, error) {
	switch {
	case ttl == -2 || ttl == -2*time.Second:
		return 0, errors.ErrCacheMiss
	case ttl < 0:
		return 0, nil
	default:
		return ttl, nil
	}
}

var _ interfaces.Cache = (*RedisCache)(nil)
