package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	pkgerr "github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/install"
	"github.com/matzehuels/stackpm/pkg/pipeline"
)

// installOpts holds flags shared by commands that read a manifest.
type installOpts struct {
	manifest string
	store    string
	tui      bool
}

func (c *CLI) pipelineOptions(o installOpts) pipeline.Options {
	opts := pipeline.Options{Manifest: o.manifest, Store: o.store}
	if opts.Manifest == "" {
		opts.Manifest = c.cfg.Manifest
	}
	if opts.Store == "" {
		opts.Store = c.cfg.Store
	}
	return opts.WithDefaults()
}

// installCommand creates the install command.
func (c *CLI) installCommand() *cobra.Command {
	var opts installOpts

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Resolve the manifest and install every package into the store",
		Long: `Resolve every dependency declared in the manifest to a single version and
extract each resolved package into the store as {name}-{version}.

The store is emptied before anything is written. A package that fails to
download or extract is reported and skipped; the others are still installed.`,
		Example: `  stackpm install
  stackpm install --store vendor/js --manifest app/package.json
  stackpm install --tui`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInstall(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.manifest, "manifest", "m", "", "manifest file (default from config, package.json)")
	cmd.Flags().StringVarP(&opts.store, "store", "s", "", "package store directory (default from config, node_modules)")
	cmd.Flags().BoolVar(&opts.tui, "tui", false, "show an interactive progress view")

	return cmd
}

func (c *CLI) runInstall(ctx context.Context, o installOpts) error {
	e, err := c.openEnv(ctx)
	if err != nil {
		return err
	}
	defer c.closeEnv(e)

	opts := c.pipelineOptions(o)

	var result *pipeline.Result
	if o.tui {
		result, err = runInstallTUI(ctx, e.runner.Execute, opts)
	} else {
		result, err = c.runInstallPlain(ctx, e.runner, opts)
	}
	if err != nil {
		return err
	}

	c.printInstallResult(result, opts.Store)
	if n := len(result.Report.Failed); n > 0 {
		return fmt.Errorf("%d of %d packages failed to install", n, result.Stats.Packages)
	}
	return nil
}

func (c *CLI) runInstallPlain(ctx context.Context, runner *pipeline.Runner, opts pipeline.Options) (*pipeline.Result, error) {
	prog := newProgress(c.Logger)
	spinner := newSpinner(ctx, "Resolving dependencies...")
	spinner.Start()

	opts.Progress = func(ev install.Event) {
		if ev.Kind == install.EventStart {
			spinner.SetMessage(fmt.Sprintf("Installing %s@%s (%d/%d)", ev.Name, ev.Version, ev.Index+1, ev.Total))
		}
	}
	result, err := runner.Execute(ctx, opts)
	if err != nil {
		spinner.Stop()
		return nil, err
	}
	spinner.StopWithSuccess("Resolved %d packages", result.Stats.Packages)
	prog.done("install finished", "packages", result.Stats.Packages)
	return result, nil
}

func (c *CLI) printInstallResult(result *pipeline.Result, store string) {
	for _, cf := range result.Resolution.Conflicts {
		printWarning("%s: %s and %s requested, using %s", cf.Name, cf.Existing, cf.Proposed, cf.Chosen)
	}
	for _, f := range result.Report.Failed {
		printError("%s@%s: %s", f.Name, f.Version, pkgerr.UserMessage(f.Err))
	}

	if result.Stats.Installed > 0 || result.Stats.Failed == 0 {
		printSuccess("Installed %d packages", result.Stats.Installed)
		printFile(store)
	}
	printStats(
		dimStat(result.Stats.Conflicts, "conflicts"),
		dimStat(result.Stats.Fetches, "metadata requests"),
		stat{result.Stats.Failed, "failed", StyleError},
	)
}

// closeEnv releases command resources and logs, rather than returns,
// any error so the command's own result is preserved.
func (c *CLI) closeEnv(e *env) {
	if err := e.Close(); err != nil {
		c.Logger.Warn("cleanup failed", "err", err)
	}
}
