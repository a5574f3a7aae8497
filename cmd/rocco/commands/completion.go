package commands

import (
	"os"

	"github.com/spf13/cobra"
)

// newCompletionCmd creates the `rocco completion` command that generates
// shell completion scripts for bash, zsh, fish, and powershell.
func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell auto-completion scripts for rocco.

To load completions:

Bash:
  $ source <(rocco completion bash)
  # To load completions for each session, add to ~/.bashrc:
  echo 'source <(rocco completion bash)' >> ~/.bashrc

Zsh:
  $ source <(rocco completion zsh)
  # To load completions for each session, add to ~/.zshrc:
  echo 'source <(rocco completion zsh)' >> ~/.zshrc

Fish:
  $ rocco completion fish | source
  # To load completions for each session:
  rocco completion fish > ~/.config/fish/completions/rocco.fish

PowerShell:
  PS> rocco completion powershell | Out-String | Invoke-Expression
  # To load completions for each session, add to your profile:
  rocco completion powershell | Out-String | Invoke-Expression`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(os.Stdout, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}
	return cmd
}
