package cachemanager

import (
	"context"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/szhem/osgi-utils/internal/log"
)

// Memory is a Cache held in process memory by go-cache.
type Memory[K ~string, V any] struct {
	name  string
	items *gocache.Cache

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

var (
	_ Cache[string, any] = (*Memory[string, any])(nil)
	_ StatsReporter      = (*Memory[string, any])(nil)
)

// NewMemory creates a cache whose entries expire ttl after they are set.
// With a ttl of zero or less entries never expire and no cleanup runs.
func NewMemory[K ~string, V any](name string, ttl time.Duration) *Memory[K, V] {
	cleanup := DefaultCleanupInterval
	if ttl <= 0 {
		ttl, cleanup = gocache.NoExpiration, 0
	}
	m := &Memory[K, V]{name: name, items: gocache.New(ttl, cleanup)}
	// go-cache reports both expiry and explicit deletes here.
	m.items.OnEvicted(func(string, any) { m.evictions.Add(1) })
	return m
}

func (m *Memory[K, V]) Get(_ context.Context, key K) (V, bool) {
	var zero V
	raw, found := m.items.Get(string(key))
	if !found {
		m.misses.Add(1)
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		log.Error(log.CatCache, "cached value has unexpected type", "cache", m.name, "key", key)
		m.misses.Add(1)
		return zero, false
	}
	m.hits.Add(1)
	return v, true
}

func (m *Memory[K, V]) Touch(ctx context.Context, key K, ttl time.Duration) (V, bool) {
	v, ok := m.Get(ctx, key)
	if ok {
		m.Set(ctx, key, v, ttl)
	}
	return v, ok
}

// Set stores value. A ttl of zero uses the expiry given to NewMemory.
func (m *Memory[K, V]) Set(_ context.Context, key K, value V, ttl time.Duration) {
	m.items.Set(string(key), value, ttl)
}

func (m *Memory[K, V]) Delete(_ context.Context, keys ...K) {
	for _, key := range keys {
		m.items.Delete(string(key))
	}
}

// Flush empties the cache. Counters are kept.
func (m *Memory[K, V]) Flush(context.Context) {
	m.items.Flush()
	log.Debug(log.CatCache, "cache flushed", "cache", m.name)
}

func (m *Memory[K, V]) Stats() Stats {
	return Stats{
		Name:      m.name,
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Evictions: m.evictions.Load(),
		Items:     m.items.ItemCount(),
	}
}
