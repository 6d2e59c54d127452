package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/stackpm/pkg/manifest"
)

// addCommand creates the add command.
func (c *CLI) addCommand() *cobra.Command {
	var manifestPath string

	cmd := &cobra.Command{
		Use:   "add <name[@version]>...",
		Short: "Add dependencies to the manifest",
		Long: `Record one or more dependencies in the manifest's "dependencies" object.

When no version is given, the registry's "latest" tag is used. Other keys in
the manifest are preserved. Run "stackpm install" afterwards to install.`,
		Example: `  stackpm add express
  stackpm add lodash@4.17.21 @types/node@^20.1.0`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if manifestPath == "" {
				manifestPath = c.cfg.Manifest
			}
			e, err := c.openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer c.closeEnv(e)

			for _, spec := range args {
				name, version, err := manifest.ParseSpec(spec)
				if err != nil {
					return err
				}
				written, err := e.runner.Add(cmd.Context(), manifestPath, name, version)
				if err != nil {
					return err
				}
				printSuccess("Added %s@%s", name, written)
			}
			printFile(manifestPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "manifest file (default from config, package.json)")
	return cmd
}
