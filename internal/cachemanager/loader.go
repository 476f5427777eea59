package cachemanager

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader reads through a Cache, loading and storing keys it misses.
// Concurrent misses on one key share a single load. Errors are not cached.
type Loader[K ~string, V any, I any] struct {
	cache Cache[K, V]
	ttl   time.Duration
	load  func(ctx context.Context, input I) (V, error)
	group singleflight.Group
}

// NewLoader returns a loader storing values in cache for ttl. A nil cache
// disables caching: every Get calls load.
func NewLoader[K ~string, V any, I any](cache Cache[K, V], ttl time.Duration, load func(ctx context.Context, input I) (V, error)) *Loader[K, V, I] {
	return &Loader[K, V, I]{cache: cache, ttl: ttl, load: load}
}

// Get returns the cached value for key or loads it from input.
func (l *Loader[K, V, I]) Get(ctx context.Context, key K, input I) (V, error) {
	if l.cache == nil {
		return l.load(ctx, input)
	}
	if v, ok := l.cache.Get(ctx, key); ok {
		return v, nil
	}
	return l.fill(ctx, key, input)
}

// GetTouch is Get with sliding expiry: a hit restarts the entry's ttl.
func (l *Loader[K, V, I]) GetTouch(ctx context.Context, key K, input I) (V, error) {
	if l.cache == nil {
		return l.load(ctx, input)
	}
	if v, ok := l.cache.Touch(ctx, key, l.ttl); ok {
		return v, nil
	}
	return l.fill(ctx, key, input)
}

// Invalidate drops key so the next Get loads it again.
func (l *Loader[K, V, I]) Invalidate(ctx context.Context, key K) {
	if l.cache == nil {
		return
	}
	l.group.Forget(string(key))
	l.cache.Delete(ctx, key)
}

func (l *Loader[K, V, I]) fill(ctx context.Context, key K, input I) (V, error) {
	res, err, _ := l.group.Do(string(key), func() (any, error) {
		v, err := l.load(ctx, input)
		if err == nil {
			l.cache.Set(ctx, key, v, l.ttl)
		}
		return v, err
	})
	v, _ := res.(V)
	return v, err
}
