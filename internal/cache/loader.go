package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/inferloop/contentscore/internal/storage/interfaces"
	"github.com/inferloop/contentscore/pkg/errors"
)

// Observer receives cache lookup outcomes per namespace.
type Observer interface {
	ObserveCache(namespace string, hit bool)
}

// Loader memoizes computed values of type T in a Cache. At most one
// computation per key runs at a time; concurrent callers share its result.
type Loader[T any] struct {
	cache     interfaces.Cache
	namespace string
	ttl       time.Duration
	timeout   time.Duration
	group     singleflight.Group
	logger    *logrus.Logger
	observer  Observer
}

// DefaultComputeTimeout bounds a shared computation once it no longer follows
// the caller that started it.
const DefaultComputeTimeout = 30 * time.Second

// LoaderOption customizes a Loader.
type LoaderOption[T any] func(*Loader[T])

// WithObserver attaches a hit/miss observer.
func WithObserver[T any](o Observer) LoaderOption[T] {
	return func(l *Loader[T]) { l.observer = o }
}

// WithComputeTimeout sets the deadline of a shared computation.
func WithComputeTimeout[T any](d time.Duration) LoaderOption[T] {
	return func(l *Loader[T]) { l.timeout = d }
}

// NewLoader creates a loader storing JSON-encoded values under namespace.
// A nil cache disables memoization but keeps single-flight.
func NewLoader[T any](cache interfaces.Cache, namespace string, ttl time.Duration, logger *logrus.Logger, opts ...LoaderOption[T]) *Loader[T] {
	if logger == nil {
		logger = logrus.New()
	}
	l := &Loader[T]{
		cache:     cache,
		namespace: namespace,
		ttl:       ttl,
		timeout:   DefaultComputeTimeout,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key returns the cache key for id within the loader namespace.
func (l *Loader[T]) Key(id string) string {
	return fmt.Sprintf("%s:%s", l.namespace, id)
}

// Get returns the cached value for id or computes, stores and returns it.
// The second return reports whether the value came from the cache.
// compute runs detached from the cancellation of ctx, so a caller that gives
// up does not fail the others waiting on the same key.
func (l *Loader[T]) Get(ctx context.Context, id string, compute func(context.Context) (T, error)) (T, bool, error) {
	key := l.Key(id)

	if value, ok := l.lookup(ctx, key); ok {
		l.observe(true)
		return value, true, nil
	}
	l.observe(false)

	flight := l.group.DoChan(key, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()

		// A concurrent flight may have filled the cache in the meantime
		if value, ok := l.lookup(flightCtx, key); ok {
			return value, nil
		}
		value, err := compute(flightCtx)
		if err != nil {
			return value, err
		}
		l.store(flightCtx, key, value)
		return value, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return zero, false, res.Err
		}
		if res.Shared {
			l.logger.WithField("key", key).Debug("Shared in-flight computation")
		}
		return res.Val.(T), false, nil
	}
}

// Invalidate drops the cached value for id.
func (l *Loader[T]) Invalidate(ctx context.Context, id string) error {
	if l.cache == nil {
		return nil
	}
	return l.cache.Delete(ctx, l.Key(id))
}

func (l *Loader[T]) lookup(ctx context.Context, key string) (T, bool) {
	var value T
	if l.cache == nil {
		return value, false
	}

	raw, err := l.cache.Get(ctx, key)
	if err != nil {
		if !stderrors.Is(err, errors.ErrCacheMiss) {
			l.logger.WithError(err).WithField("key", key).Warn("Cache read failed, recomputing")
		}
		return value, false
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		l.logger.WithError(err).WithField("key", key).Warn("Discarding undecodable cache entry")
		_ = l.cache.Delete(ctx, key)
		var zero T
		return zero, false
	}
	return value, true
}

func (l *Loader[T]) store(ctx context.Context, key string, value T) {
	if l.cache == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		l.logger.WithError(err).WithField("key", key).Warn("Value is not cacheable")
		return
	}
	if err := l.cache.Set(ctx, key, raw, l.ttl); err != nil {
		l.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
	}
}

func (l *Loader[T]) observe(hit bool) {
	if l.observer != nil {
		l.observer.ObserveCache(l.namespace, hit)
	}
}
