// Package cachemanager provides a small caching layer used for derived
// metadata that is expensive to recompute and safe to throw away.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is the read/write surface shared by cache implementations.
type CacheManager[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
}
