package commands

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/jholhewres/rocco/pkg/rocco/copilot"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// newSetupCmd creates the `rocco setup` command for interactive configuration.
func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		Long: `Starts an interactive wizard that writes config.yaml.
The API key and the Discord token go to the OS keyring when it is
available, so the config file only holds ${VAR} references.

Examples:
  rocco setup
  rocco setup --output ./configs/config.yaml`,
		RunE: runSetup,
	}
	cmd.Flags().StringP("output", "o", "config.yaml", "where to write the configuration")
	return cmd
}

// setupAnswers collects the wizard input.
type setupAnswers struct {
	name         string
	baseURL      string
	model        string
	apiKey       string
	discordToken string
	playlistDir  string
	useKeyring   bool
}

func runSetup(cmd *cobra.Command, _ []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("setup needs an interactive terminal; write config.yaml by hand instead (see config.example.yaml)")
	}
	target, _ := cmd.Flags().GetString("output")

	cfg := copilot.DefaultConfig()
	keyringOK := copilot.KeyringAvailable()
	ans := setupAnswers{
		name:        cfg.Name,
		baseURL:     cfg.API.BaseURL,
		model:       cfg.Model,
		playlistDir: cfg.Music.PlaylistDir,
		useKeyring:  keyringOK,
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Bot name").
				Value(&ans.name),
			huh.NewInput().
				Title("API base URL").
				Description("Any OpenAI-compatible endpoint. Groq is the default.").
				Value(&ans.baseURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Model").
				Value(&ans.model).
				Validate(notEmpty("model")),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("API key").
				Description("Leave empty to set it later through the environment.").
				EchoMode(huh.EchoModePassword).
				Value(&ans.apiKey),
			huh.NewInput().
				Title("Discord bot token").
				EchoMode(huh.EchoModePassword).
				Value(&ans.discordToken),
			huh.NewConfirm().
				Title("Store secrets in the OS keyring?").
				Description(keyringHint(keyringOK)).
				Value(&ans.useKeyring),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Playlist directory").
				Description("MP3 files played in voice channels, relative to the config file.").
				Value(&ans.playlistDir),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("Setup cancelled.")
			return nil
		}
		return fmt.Errorf("setup form: %w", err)
	}

	cfg.Name = strings.TrimSpace(ans.name)
	cfg.API.BaseURL = strings.TrimSpace(ans.baseURL)
	cfg.Model = strings.TrimSpace(ans.model)
	cfg.Music.PlaylistDir = strings.TrimSpace(ans.playlistDir)

	cfg.API.Provider = copilot.DetectProvider(cfg.API.BaseURL)
	keyEnv := copilot.GetProviderKeyName(cfg.API.Provider)

	storedInKeyring := ans.useKeyring && keyringOK
	cfg.API.APIKey = storeSecret(copilot.KeyringAPIKey, ans.apiKey, keyEnv, storedInKeyring)
	cfg.Channels.Discord.Token = storeSecret(copilot.KeyringDiscordToken, ans.discordToken, "DISCORD_BOT_TOKEN", storedInKeyring)

	if _, err := os.Stat(target); err == nil {
		overwrite := false
		if err := huh.NewConfirm().
			Title(fmt.Sprintf("%s already exists. Overwrite?", target)).
			Value(&overwrite).
			Run(); err != nil || !overwrite {
			fmt.Println("Setup cancelled. Existing file kept.")
			return nil
		}
	}

	if err := copilot.SaveConfigToFile(cfg, target); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\n%s created (permissions: 600).\n\n", target)
	switch {
	case storedInKeyring && (ans.apiKey != "" || ans.discordToken != ""):
		fmt.Println("Secrets are stored in the OS keyring.")
	case ans.apiKey != "" || ans.discordToken != "":
		fmt.Println("Secrets are written in the config file. Keep it private.")
	default:
		fmt.Printf("Set %s and DISCORD_BOT_TOKEN before starting.\n", keyEnv)
	}
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Put MP3 files in %s\n", cfg.Music.PlaylistDir)
	fmt.Println("  2. Run: rocco serve")
	fmt.Println()
	return nil
}

// storeSecret saves value in the keyring and returns the reference to write
// in the config, or the value itself when the keyring is not used.
func storeSecret(key, value, envVar string, useKeyring bool) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "${" + envVar + "}"
	}
	if !useKeyring {
		return value
	}
	if err := copilot.StoreKeyring(key, value); err != nil {
		fmt.Printf("  [!] Could not store %s in the keyring: %v\n", key, err)
		return value
	}
	return "${" + envVar + "}"
}

func keyringHint(available bool) string {
	if available {
		return "Recommended. The config file then only references the secrets."
	}
	return "No OS keyring was found; secrets will be written to the config file."
}

func validateURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("enter a full URL, e.g. https://api.groq.com/openai/v1")
	}
	return nil
}

func notEmpty(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}
