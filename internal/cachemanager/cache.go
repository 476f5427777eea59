// Package cachemanager provides the expiring caches shared by the registry
// (compiled filters) and the resolvers (loaded types and resources).
package cachemanager

import (
	"context"
	"time"
)

const (
	// DefaultExpiration is how long an unused entry is kept.
	DefaultExpiration = 10 * time.Minute
	// DefaultCleanupInterval is how often expired entries are purged.
	DefaultCleanupInterval = 30 * time.Minute
)

// Cache is a keyed store with per-entry expiry.
type Cache[K ~string, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	// Touch is Get that also restarts the entry's expiry at ttl.
	Touch(ctx context.Context, key K, ttl time.Duration) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K)
	Flush(ctx context.Context)
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Name      string
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Items     int
}

// StatsReporter is implemented by caches that count hits and misses.
type StatsReporter interface {
	Stats() Stats
}
