// Package copilot – loader.go handles loading configuration from YAML files
// with credential resolution via environment variables, .env files and the
// OS keyring.
package copilot

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches environment variable patterns in config values:
//   - ${VAR_NAME}          - simple variable
//   - ${VAR_NAME:-default} - default value if not set
//   - ${VAR_NAME:?error}   - error message if not set
//
// Capture groups: 1 = variable name, 2 = modifier ("-" or "?"), 3 = value.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::(-|\?)([^}]*))?\}`)

// LoadConfigFromFile reads and parses a YAML configuration file.
// Automatically loads .env files and expands environment variables.
// Returns an error if any ${VAR:?error} pattern has its variable unset.
func LoadConfigFromFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded, err := expandEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding environment variables: %w", err)
	}

	cfg, err := ParseConfig([]byte(expanded))
	if err != nil {
		return nil, err
	}

	resolveRelativePaths(cfg, path)
	checkFilePermissions(path)
	return cfg, nil
}

// LoadConfigFromEnv builds a configuration from defaults and the process
// environment only. Used when no config file exists.
func LoadConfigFromEnv() *Config {
	loadEnvFiles()
	return DefaultConfig()
}

// ParseConfig parses YAML bytes into a Config.
// Starts with defaults and overlays values from the YAML.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("mapping config: %w", err)
	}

	// yaml.v3 merges into the default emoji map; a configured vocabulary
	// replaces it instead.
	if persona, ok := raw["persona"].(map[string]any); ok {
		if _, set := persona["emojis"]; set {
			fromFile, _ := persona["emojis"].(map[string]any)
			for name := range cfg.Persona.Emojis {
				if _, ok := fromFile[name]; !ok {
					delete(cfg.Persona.Emojis, name)
				}
			}
		}
	}

	cfg.Fallback = cfg.Fallback.Effective()
	return cfg, nil
}

// SaveConfigToFile writes a Config as YAML to the specified path with
// owner-only permissions. Secrets are written as env var references.
func SaveConfigToFile(cfg *Config, path string) error {
	sanitized := *cfg
	sanitized.API.APIKey = sanitizeSecret(cfg.API.APIKey, GetProviderKeyName(cfg.API.Provider))
	sanitized.Channels.Discord.Token = sanitizeSecret(cfg.Channels.Discord.Token, "DISCORD_BOT_TOKEN")

	data, err := yaml.Marshal(&sanitized)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// FindConfigFile searches for config files in standard locations.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"rocco.yaml",
		"rocco.yml",
		"configs/config.yaml",
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// AuditSecrets checks for hardcoded secrets and logs warnings.
func AuditSecrets(cfg *Config, logger *slog.Logger) {
	if looksLikeRealKey(cfg.API.APIKey) {
		logger.Warn("API key appears to be hardcoded in config",
			"hint", "Set 'api_key: ${"+GetProviderKeyName(cfg.API.Provider)+"}' or run: rocco setup")
	}
	if looksLikeRealKey(cfg.Channels.Discord.Token) {
		logger.Warn("Discord token appears to be hardcoded in config",
			"hint", "Set 'token: ${DISCORD_BOT_TOKEN}' or run: rocco setup")
	}
}

// IsEnvReference checks if a string is an unexpanded environment variable reference.
func IsEnvReference(s string) bool {
	return strings.HasPrefix(s, "${")
}

// ---------- Internal ----------

// loadEnvFiles loads .env files from standard locations.
// godotenv does NOT overwrite existing env vars.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces ${VAR}, ${VAR:-default} and ${VAR:?error}
// references with their environment variable values. Unset plain references
// are kept verbatim so secret resolution can fill them in later.
func expandEnvVars(input string) (string, error) {
	var firstErr error
	out := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		name, modifier, value := sub[1], sub[2], sub[3]

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		switch modifier {
		case "-":
			return value
		case "?":
			if firstErr == nil {
				if value == "" {
					value = "required environment variable not set"
				}
				firstErr = fmt.Errorf("config error: %s - %s", name, value)
			}
			return ""
		}
		return match
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// resolveRelativePaths resolves the playlist directory against the config
// file's directory.
func resolveRelativePaths(cfg *Config, configPath string) {
	cfg.Music.PlaylistDir = resolvePathFromConfig(cfg.Music.PlaylistDir, filepath.Dir(configPath))
}

// resolvePathFromConfig converts a path to absolute, resolving relative paths
// against the config file's directory. Expands ~ to home directory.
func resolvePathFromConfig(path, configDir string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		path = filepath.Join(home, path[2:])
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(configDir, path)
}

// sanitizeSecret replaces a secret with an env var reference when that env
// var holds the same value.
func sanitizeSecret(value, envVar string) string {
	if value == "" || IsEnvReference(value) {
		return value
	}
	if os.Getenv(envVar) == value {
		return "${" + envVar + "}"
	}
	return value
}

// looksLikeRealKey heuristically checks if a string looks like a real secret
// (not a placeholder or env var reference).
func looksLikeRealKey(s string) bool {
	if s == "" || IsEnvReference(s) {
		return false
	}
	if strings.HasPrefix(s, "gsk_") || strings.HasPrefix(s, "sk-") {
		return true
	}
	return len(s) > 20
}

// checkFilePermissions warns if config file is group or world readable.
func checkFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}

	mode := info.Mode().Perm()
	if mode&0o044 != 0 {
		slog.Warn("config file has open permissions, consider restricting",
			"path", path,
			"current", fmt.Sprintf("%04o", mode),
			"recommended", "0600",
			"fix", fmt.Sprintf("chmod 600 %s", path),
		)
	}
}
