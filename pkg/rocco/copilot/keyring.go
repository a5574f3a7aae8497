// Package copilot – keyring.go provides credential storage using the
// operating system's native keyring (Linux: Secret Service/GNOME Keyring,
// macOS: Keychain, Windows: Credential Manager).
//
// Priority for resolving secrets:
//  1. config.yaml value (after ${VAR} expansion)
//  2. Environment variable (DISCORD_BOT_TOKEN, GROQ_API_KEY, API_KEY, ...)
//  3. OS keyring (service "rocco")
package copilot

import (
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "rocco"

	// KeyringAPIKey is the key name for the LLM API key.
	KeyringAPIKey = "api_key"

	// KeyringDiscordToken is the key name for the Discord bot token.
	KeyringDiscordToken = "discord_token"
)

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring.
// Returns empty string if not found.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// KeyringAvailable checks if the OS keyring is accessible.
func KeyringAvailable() bool {
	testKey := "__rocco_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}

// ResolveSecrets fills in the LLM API key and the Discord token, updating
// cfg in place. Missing secrets are left empty; callers decide which ones
// they need.
func ResolveSecrets(cfg *Config, logger *slog.Logger) {
	if cfg.API.Provider == "" {
		cfg.API.Provider = DetectProvider(cfg.API.BaseURL)
	}

	cfg.API.APIKey = resolveSecret(cfg.API.APIKey, KeyringAPIKey, logger, "api_key",
		GetProviderKeyName(cfg.API.Provider), "API_KEY")
	cfg.Channels.Discord.Token = resolveSecret(cfg.Channels.Discord.Token, KeyringDiscordToken, logger, "discord_token",
		"DISCORD_BOT_TOKEN", "DISCORD_TOKEN")

	if cfg.API.APIKey == "" {
		logger.Warn("no API key found", "hint", "set "+GetProviderKeyName(cfg.API.Provider)+" or run: rocco setup")
	}
}

// resolveSecret walks config value → env vars → keyring.
func resolveSecret(current, keyringKey string, logger *slog.Logger, name string, envVars ...string) string {
	if current != "" && !IsEnvReference(current) {
		logger.Debug("secret loaded from config", "secret", name)
		return current
	}
	for _, env := range envVars {
		if val := os.Getenv(env); val != "" {
			logger.Debug("secret loaded from environment", "secret", name, "env", env)
			return val
		}
	}
	if val := GetKeyring(keyringKey); val != "" {
		logger.Debug("secret loaded from OS keyring", "secret", name)
		return val
	}
	return ""
}
