package cache

import (
	"context"
	"time"
)

// Scoped wraps a Cache and prefixes every key.
// The registry client scopes its entries by registry URL so two registries
// sharing one backend never see each other's metadata.
//
//	npm := cache.NewScoped(backend, "https://registry.npmjs.org:")
//	mirror := cache.NewScoped(backend, "http://localhost:4873:")
type Scoped struct {
	inner  Cache
	prefix string
}

// NewScoped creates a prefixed view of inner. A nil inner behaves like
// [NullCache].
func NewScoped(inner Cache, prefix string) *Scoped {
	if inner == nil {
		inner = NullCache{}
	}
	return &Scoped{inner: inner, prefix: prefix}
}

// Prefix returns the key prefix applied by this view.
func (s *Scoped) Prefix() string { return s.prefix }

func (s *Scoped) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

func (s *Scoped) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return s.inner.Set(ctx, s.prefix+key, data, ttl)
}

func (s *Scoped) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.prefix+key)
}

// Close closes the wrapped cache.
func (s *Scoped) Close() error {
	return s.inner.Close()
}

var _ Cache = (*Scoped)(nil)
