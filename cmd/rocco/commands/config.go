package commands

import (
	"fmt"
	"os"

	"github.com/jholhewres/rocco/pkg/rocco/copilot"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// newConfigCmd creates the `rocco config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration",
		Long: `Manage Rocco's configuration.

Examples:
  rocco config init
  rocco config show`,
	}

	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigShowCmd(),
	)
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, _ := cmd.Flags().GetString("output")
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(target); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", target)
			}

			cfg := copilot.DefaultConfig()
			cfg.API.APIKey = "${" + copilot.GetProviderKeyName(copilot.DetectProvider(cfg.API.BaseURL)) + "}"
			cfg.Channels.Discord.Token = "${DISCORD_BOT_TOKEN}"
			if err := copilot.SaveConfigToFile(cfg, target); err != nil {
				return err
			}
			fmt.Printf("Configuration written to %s\n", target)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "config.yaml", "where to write the configuration")
	cmd.Flags().Bool("force", false, "overwrite an existing file")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			cfg.API.APIKey = maskSecret(cfg.API.APIKey)
			cfg.Channels.Discord.Token = maskSecret(cfg.Channels.Discord.Token)

			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshaling config: %w", err)
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

// maskSecret keeps the last four characters of a secret.
func maskSecret(s string) string {
	switch {
	case s == "":
		return "(not set)"
	case len(s) <= 8:
		return "****"
	default:
		return "****" + s[len(s)-4:]
	}
}
