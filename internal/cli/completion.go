package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/stackpm/pkg/render"
)

var shells = []string{"bash", "zsh", "fish", "powershell"}

// completionCommand creates the completion command.
func (c *CLI) completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion <shell>",
		Short: "Print a shell completion script",
		Long: `Print a completion script for bash, zsh, fish or powershell.

Besides command and flag names, the scripts complete graph output formats
and offer only .json files for --manifest and directories for --store.`,
		Example: `  source <(stackpm completion bash)
  stackpm completion zsh > "${fpath[1]}/_stackpm"
  stackpm completion fish > ~/.config/fish/completions/stackpm.fish`,
		DisableFlagsInUseLine: true,
		ValidArgs:             shells,
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			root := cmd.Root()
			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(w, true)
			case "zsh":
				return root.GenZshCompletion(w)
			case "fish":
				return root.GenFishCompletion(w, true)
			case "powershell":
				return root.GenPowerShellCompletionWithDesc(w)
			}
			return fmt.Errorf("unsupported shell %q", args[0])
		},
	}
}

// registerCompletions attaches value completion to the flags of every
// subcommand of root.
func registerCompletions(root *cobra.Command) {
	for _, cmd := range root.Commands() {
		if cmd.Flags().Lookup("manifest") != nil {
			_ = cmd.MarkFlagFilename("manifest", "json")
		}
		if cmd.Flags().Lookup("store") != nil {
			_ = cmd.MarkFlagDirname("store")
		}
		if cmd.Flags().Lookup("format") != nil {
			_ = cmd.RegisterFlagCompletionFunc("format", cobra.FixedCompletions(render.Formats, cobra.ShellCompDirectiveNoFileComp))
		}
	}
	_ = root.MarkPersistentFlagFilename("config", "toml")
	_ = root.MarkPersistentFlagFilename("metrics-file", "prom")
}
