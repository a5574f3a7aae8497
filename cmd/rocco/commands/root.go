// Package commands implements the rocco CLI commands using cobra.
package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jholhewres/rocco/pkg/rocco/copilot"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command with every subcommand registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rocco",
		Short: "Rocco - a ginger cat on Discord",
		Long: `Rocco is a Discord bot that talks like an 8-year-old ginger cat,
sends pictures of himself and sings in voice channels.

Examples:
  rocco setup
  rocco serve
  rocco serve --config ./config.yaml
  rocco chat`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newSetupCmd(),
		newConfigCmd(),
		newCompletionCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logs")

	return rootCmd
}

// resolveConfig loads the config from --config, a discovered file or the
// environment, then resolves secrets.
func resolveConfig(cmd *cobra.Command) (*copilot.Config, *slog.Logger, error) {
	configPath, _ := cmd.Root().PersistentFlags().GetString("config")
	if configPath == "" {
		configPath = copilot.FindConfigFile()
	}

	var cfg *copilot.Config
	if configPath != "" {
		loaded, err := copilot.LoadConfigFromFile(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("loading config from %s: %w", configPath, err)
		}
		cfg = loaded
	} else {
		cfg = copilot.LoadConfigFromEnv()
	}

	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logger := newLogger(cfg.Logging, verbose)
	slog.SetDefault(logger)

	if configPath != "" {
		logger.Info("config loaded", "path", configPath)
	} else {
		logger.Info("no config file found, using defaults and environment")
	}

	// Audit before resolving so only values written in the file are checked.
	copilot.AuditSecrets(cfg, logger)
	copilot.ResolveSecrets(cfg, logger)

	return cfg, logger, nil
}

// newLogger builds the process logger from the logging config.
func newLogger(cfg copilot.LoggingConfig, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
