// Package config loads the stackpm TOML configuration file.
//
// Values are layered: built-in defaults, then the config file, then the
// STACKPM_REGISTRY environment variable. Command-line flags are applied on
// top by the CLI.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	pkgerr "github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/manifest"
	"github.com/matzehuels/stackpm/pkg/registry"
)

// AppName names the config and cache directories.
const AppName = "stackpm"

// EnvRegistry overrides the registry URL from the file.
const EnvRegistry = "STACKPM_REGISTRY"

// Cache backend names.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendMongo = "mongo"
	BackendNone  = "none"
)

// Config is the decoded config file.
type Config struct {
	Registry    string   `toml:"registry"`
	Manifest    string   `toml:"manifest"`
	Store       string   `toml:"store"`
	CacheTTL    Duration `toml:"cache_ttl"`
	MetricsFile string   `toml:"metrics_file"`
	Cache       Cache    `toml:"cache"`

	// Path is the file the config was read from; empty when defaults only.
	Path string `toml:"-"`
}

// Cache selects and configures the metadata cache backend.
type Cache struct {
	Backend       string `toml:"backend"`
	Dir           string `toml:"dir"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	MongoURI      string `toml:"mongo_uri"`
	MongoDatabase string `toml:"mongo_database"`
}

// Duration decodes TOML strings such as "12h" or "30m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Registry: registry.DefaultURL,
		Manifest: manifest.DefaultFile,
		Store:    "node_modules",
		CacheTTL: Duration{registry.DefaultCacheTTL},
		Cache: Cache{
			Backend:       BackendFile,
			RedisAddr:     "localhost:6379",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: AppName,
		},
	}
}

// Load reads the config at path. When path is empty the default location
// is used and a missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return cfg, err
		}
		path = p
	}

	md, err := toml.DecodeFile(path, &cfg)
	switch {
	case err == nil:
		cfg.Path = path
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return cfg, pkgerr.New(pkgerr.ErrCodeInvalidInput, "%s: unknown key %q", path, undecoded[0].String())
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	case errors.Is(err, fs.ErrNotExist):
		return cfg, pkgerr.Wrap(pkgerr.ErrCodeNotFound, err, "config %s", path)
	default:
		return cfg, pkgerr.Wrap(pkgerr.ErrCodeInvalidInput, err, "config %s", path)
	}

	if v := os.Getenv(EnvRegistry); v != "" {
		cfg.Registry = v
	}
	return cfg, cfg.Validate()
}

// Validate checks values that cannot be caught by decoding.
func (c Config) Validate() error {
	if err := pkgerr.ValidateURL(c.Registry); err != nil {
		return err
	}
	switch c.Cache.Backend {
	case BackendFile, BackendRedis, BackendMongo, BackendNone:
	default:
		return pkgerr.New(pkgerr.ErrCodeInvalidInput, "unknown cache backend %q (file, redis, mongo or none)", c.Cache.Backend)
	}
	if c.CacheTTL.Duration < 0 {
		return pkgerr.New(pkgerr.ErrCodeInvalidInput, "cache_ttl must not be negative")
	}
	return nil
}

// DefaultPath returns $XDG_CONFIG_HOME/stackpm/config.toml, falling back
// to ~/.config.
func DefaultPath() (string, error) {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "locate home directory")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, AppName, "config.toml"), nil
}

// CacheDir returns the file cache directory: the configured one, or
// $XDG_CACHE_HOME/stackpm falling back to ~/.cache/stackpm.
func (c Config) CacheDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.Cache.Dir, nil
	}
	dir := os.Getenv("XDG_CACHE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "locate home directory")
		}
		dir = filepath.Join(home, ".cache")
	}
	return filepath.Join(dir, AppName), nil
}
