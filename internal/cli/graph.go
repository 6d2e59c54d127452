package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	pkgerr "github.com/matzehuels/stackpm/pkg/errors"
	"github.com/matzehuels/stackpm/pkg/render"
)

type graphOpts struct {
	manifest string
	output   string
	format   string
	detailed bool
}

// graphCommand creates the graph command.
func (c *CLI) graphCommand() *cobra.Command {
	var opts graphOpts

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Draw the resolved dependency graph",
		Long: `Resolve the manifest and draw the result as a node-link diagram.

DOT output can be piped into Graphviz; svg, png and jpg are rendered in
process. Packages that had a version conflict are drawn dashed.`,
		Example: `  stackpm graph | dot -Tpdf > deps.pdf
  stackpm graph --format svg -o deps.svg --detailed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runGraph(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.manifest, "manifest", "m", "", "manifest file (default from config, package.json)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", render.FormatDOT, "output format: dot, svg, png, jpg")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "list versions that lost a conflict in node labels")

	return cmd
}

func (c *CLI) runGraph(ctx context.Context, w io.Writer, o graphOpts) error {
	if err := render.ValidateFormat(o.format); err != nil {
		return err
	}

	e, err := c.openEnv(ctx)
	if err != nil {
		return err
	}
	defer c.closeEnv(e)

	result, err := e.runner.Resolve(ctx, c.pipelineOptions(installOpts{manifest: o.manifest}))
	if err != nil {
		return err
	}

	dot := render.ToDOT(result.Resolution, render.Options{
		Root:     result.Manifest.Name(),
		Detailed: o.detailed,
	})
	data, err := render.Render(ctx, dot, o.format)
	if err != nil {
		return err
	}

	if o.output == "" {
		_, err := w.Write(data)
		return err
	}
	if err := os.WriteFile(o.output, data, 0o644); err != nil {
		return pkgerr.Wrap(pkgerr.ErrCodeFilesystem, err, "write %s", o.output)
	}
	printSuccess("Rendered %d packages", len(result.Resolution.Resolved))
	printFile(o.output)
	return nil
}
