package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackpm/internal/config"
	"github.com/matzehuels/stackpm/pkg/cache"
)

// cacheCommand creates the cache management command.
func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the registry metadata cache",
	}

	cmd.AddCommand(c.cacheClearCommand())
	cmd.AddCommand(c.cachePathCommand())

	return cmd
}

// cacheClearCommand creates the "cache clear" subcommand.
func (c *CLI) cacheClearCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached registry metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Cache.Backend == config.BackendNone {
				printInfo("Cache is disabled")
				return nil
			}
			backend, err := c.newCache(cmd.Context())
			if err != nil {
				return err
			}
			defer backend.Close()

			count, err := cache.Clear(cmd.Context(), backend)
			if err != nil {
				return err
			}
			printSuccess("Cleared %d cached entries", count)
			printKeyValue("backend", cacheLocation(c.cfg))
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func (c *CLI) cachePathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print where the cache lives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), cacheLocation(c.cfg))
			return nil
		},
	}
}

// cacheLocation describes the configured backend: a directory for the
// file cache, otherwise the server address.
func cacheLocation(cfg config.Config) string {
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		return "redis://" + cfg.Cache.RedisAddr
	case config.BackendMongo:
		return cfg.Cache.MongoURI + "/" + cfg.Cache.MongoDatabase
	case config.BackendNone:
		return "disabled"
	}
	dir, err := cfg.CacheDir()
	if err != nil {
		return "unavailable: " + err.Error()
	}
	return dir
}
