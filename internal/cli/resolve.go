package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackpm/pkg/registry"
	"github.com/matzehuels/stackpm/pkg/resolve"
)

type resolveOpts struct {
	manifest   string
	json       bool
	compatible bool
}

// resolveOutput is the --json document.
type resolveOutput struct {
	Resolved   map[string]string `json:"resolved"`
	Conflicts  []conflictOutput  `json:"conflicts"`
	Compatible map[string]string `json:"compatible,omitempty"`
}

type conflictOutput struct {
	Name     string `json:"name"`
	Existing string `json:"existing"`
	Proposed string `json:"proposed"`
	Chosen   string `json:"chosen"`
}

// resolveCommand creates the resolve command.
func (c *CLI) resolveCommand() *cobra.Command {
	var opts resolveOpts

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the resolved dependency set without installing",
		Long: `Resolve the manifest's dependencies and print one version per package.

With --compatible, each resolved package is also checked against the
registry for the most recently published version with the same major
version. This is informational only and never changes the resolution.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runResolve(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.manifest, "manifest", "m", "", "manifest file (default from config, package.json)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print machine-readable JSON")
	cmd.Flags().BoolVar(&opts.compatible, "compatible", false, "also report newer same-major versions")

	return cmd
}

func (c *CLI) runResolve(ctx context.Context, w io.Writer, o resolveOpts) error {
	e, err := c.openEnv(ctx)
	if err != nil {
		return err
	}
	defer c.closeEnv(e)

	result, err := e.runner.Resolve(ctx, c.pipelineOptions(installOpts{manifest: o.manifest}))
	if err != nil {
		return err
	}
	res := result.Resolution

	var compatible map[string]string
	if o.compatible {
		compatible, err = newerCompatible(ctx, e.client, res.Resolved)
		if err != nil {
			return err
		}
	}

	if o.json {
		return writeResolveJSON(w, res, compatible)
	}

	printSuccess("Resolved %d packages", len(res.Resolved))
	for _, name := range res.Resolved.Names() {
		printPackage(name, res.Resolved[name])
		if v, ok := compatible[name]; ok {
			printDetail("%s %s available", iconArrow, v)
		}
	}
	for _, cf := range res.Conflicts {
		printWarning("%s: %s and %s requested, using %s", cf.Name, cf.Existing, cf.Proposed, cf.Chosen)
	}
	printStats(dimStat(result.Stats.Fetches, "metadata requests"), dimStat(len(res.Conflicts), "conflicts"))
	return nil
}

// newerCompatible maps each package to a newer same-major version, when
// the registry has one.
func newerCompatible(ctx context.Context, client *registry.Client, resolved resolve.Resolved) (map[string]string, error) {
	out := make(map[string]string)
	for _, name := range resolved.Names() {
		v, err := client.CompatibleVersion(ctx, name, resolved[name])
		if err != nil {
			return nil, err
		}
		if v != registry.VersionNotFound && resolve.Compare(v, resolved[name]) > 0 {
			out[name] = v
		}
	}
	return out, nil
}

func writeResolveJSON(w io.Writer, res *resolve.Result, compatible map[string]string) error {
	doc := resolveOutput{
		Resolved:   res.Resolved,
		Conflicts:  make([]conflictOutput, 0, len(res.Conflicts)),
		Compatible: compatible,
	}
	for _, cf := range res.Conflicts {
		doc.Conflicts = append(doc.Conflicts, conflictOutput(cf))
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

