// Package cache provides byte-level caching of registry responses.
//
// The [Cache] interface is implemented by several backends:
//   - [FileCache]: one JSON file per entry under a local directory (CLI default)
//   - [NullCache]: never stores anything (--no-cache)
//   - [RedisCache]: shared cache for CI runners and build farms
//   - [MongoCache]: shared cache backed by a TTL-indexed collection
//
// Wrap any backend with [NewScoped] to namespace keys, for example by
// registry URL so two registries never share entries.
//
// The package also carries the retry helpers used by the registry client:
// errors wrapped with [Retryable] are retried by [RetryWithBackoff].
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values under string keys with an optional TTL.
//
// Get returns (nil, false, nil) on a miss; expired entries are misses.
// A ttl of 0 passed to Set means the entry never expires.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Clearer is implemented by backends that can drop every entry they own.
// Clear returns the number of entries removed.
type Clearer interface {
	Clear(ctx context.Context) (int, error)
}

// Clear removes all entries from c if the backend supports it.
// Backends without [Clearer] report zero entries removed.
func Clear(ctx context.Context, c Cache) (int, error) {
	if cl, ok := c.(Clearer); ok {
		return cl.Clear(ctx)
	}
	return 0, nil
}
