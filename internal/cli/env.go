package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/matzehuels/stackpm/internal/config"
	"github.com/matzehuels/stackpm/pkg/cache"
	"github.com/matzehuels/stackpm/pkg/observability"
	"github.com/matzehuels/stackpm/pkg/pipeline"
	"github.com/matzehuels/stackpm/pkg/registry"
)

// =============================================================================
// Runtime Environment
// =============================================================================

// env holds the per-command resources built from the configuration.
// Commands open one with [CLI.openEnv] and must Close it.
type env struct {
	cfg     config.Config
	cache   cache.Cache
	client  *registry.Client
	runner  *pipeline.Runner
	metrics *observability.Prometheus
}

// openEnv connects the cache backend, installs metrics hooks when a
// metrics file is configured, and builds the registry client.
func (c *CLI) openEnv(ctx context.Context) (*env, error) {
	e := &env{cfg: c.cfg}

	backend, err := c.newCache(ctx)
	if err != nil {
		return nil, err
	}
	e.cache = backend

	if c.cfg.MetricsFile != "" {
		e.metrics = observability.NewPrometheus(prometheus.NewRegistry())
		observability.SetAll(e.metrics)
	}

	client, err := registry.NewClient(c.cfg.Registry,
		registry.WithCache(backend, c.cfg.CacheTTL.Duration),
		registry.WithRefresh(c.flags.refresh),
		registry.WithLogger(c.Logger),
	)
	if err != nil {
		backend.Close()
		return nil, err
	}
	e.client = client
	e.runner = pipeline.NewRunner(client, c.Logger)
	return e, nil
}

// Close flushes metrics and releases the cache backend.
func (e *env) Close() error {
	var firstErr error
	if e.metrics != nil {
		if err := e.metrics.WriteToTextfile(e.cfg.MetricsFile); err != nil {
			firstErr = fmt.Errorf("write metrics: %w", err)
		}
		observability.Reset()
	}
	if err := e.cache.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// newCache opens the configured metadata cache backend.
func (c *CLI) newCache(ctx context.Context) (cache.Cache, error) {
	cc := c.cfg.Cache
	switch cc.Backend {
	case config.BackendNone:
		return cache.NewNullCache(), nil
	case config.BackendRedis:
		c.Logger.Debug("using redis cache", "addr", cc.RedisAddr)
		return cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cc.RedisAddr,
			Password: cc.RedisPassword,
			DB:       cc.RedisDB,
		})
	case config.BackendMongo:
		c.Logger.Debug("using mongo cache", "database", cc.MongoDatabase)
		return cache.NewMongoCache(ctx, cache.MongoConfig{
			URI:      cc.MongoURI,
			Database: cc.MongoDatabase,
		})
	default:
		dir, err := c.cfg.CacheDir()
		if err != nil {
			c.Logger.Warn("cache disabled", "err", err)
			return cache.NewNullCache(), nil
		}
		return cache.NewFileCache(dir)
	}
}
