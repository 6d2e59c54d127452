// Package cli implements the stackpm command-line interface.
package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackpm/internal/config"
	"github.com/matzehuels/stackpm/pkg/buildinfo"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = config.AppName

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	flags globalFlags
	cfg   config.Config
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath  string
	registry    string
	metricsFile string
	noCache     bool
	refresh     bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		cfg:    config.Default(),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// Config returns the effective configuration after flags were applied.
func (c *CLI) Config() config.Config { return c.cfg }

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "stackpm installs npm-style packages into a local store",
		Long:         `stackpm reads a package.json manifest, resolves every declared dependency to a single version, and extracts the resolved packages into a package store directory.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig()
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	pf := root.PersistentFlags()
	pf.StringVar(&c.flags.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/stackpm/config.toml)")
	pf.StringVar(&c.flags.registry, "registry", "", "registry URL (overrides config and $"+config.EnvRegistry+")")
	pf.StringVar(&c.flags.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	pf.BoolVar(&c.flags.noCache, "no-cache", false, "disable the metadata cache")
	pf.BoolVar(&c.flags.refresh, "refresh", false, "ignore cached metadata and refetch")

	// Register all subcommands
	root.AddCommand(c.installCommand())
	root.AddCommand(c.addCommand())
	root.AddCommand(c.resolveCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())
	registerCompletions(root)

	return root
}

// loadConfig reads the config file and layers flag values on top.
func (c *CLI) loadConfig() error {
	cfg, err := config.Load(c.flags.configPath)
	if err != nil {
		return err
	}
	if c.flags.registry != "" {
		cfg.Registry = c.flags.registry
	}
	if c.flags.metricsFile != "" {
		cfg.MetricsFile = c.flags.metricsFile
	}
	if c.flags.noCache {
		cfg.Cache.Backend = config.BackendNone
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg
	if cfg.Path != "" {
		c.Logger.Debug("loaded config", "path", cfg.Path)
	}
	return nil
}
