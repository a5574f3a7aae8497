// Package copilot implements Rocco's conversational core: it turns chat
// history into model turns, composes the persona prompt, lets the model pick
// at most one action, and rewrites the model's output before delivery.
package copilot

import (
	"strings"

	"github.com/jholhewres/rocco/pkg/rocco/channels/discord"
	"github.com/jholhewres/rocco/pkg/rocco/media"
	"github.com/jholhewres/rocco/pkg/rocco/voice"
)

// providerKeyNames maps provider names to their conventional env var.
var providerKeyNames = map[string]string{
	"groq":       "GROQ_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"mistral":    "MISTRAL_API_KEY",
	"xai":        "XAI_API_KEY",
	"cerebras":   "CEREBRAS_API_KEY",
}

// GetProviderKeyName returns the env var that holds the API key of a provider.
func GetProviderKeyName(provider string) string {
	if name, ok := providerKeyNames[strings.ToLower(provider)]; ok {
		return name
	}
	return "ROCCO_API_KEY"
}

// Config holds the whole bot configuration.
type Config struct {
	// Name is the persona name used in logs.
	Name string `yaml:"name"`

	// Model is the primary chat model.
	Model string `yaml:"model"`

	API      APIConfig      `yaml:"api"`
	Fallback FallbackConfig `yaml:"fallback"`
	Persona  PersonaConfig  `yaml:"persona"`
	Music    voice.Config   `yaml:"music"`
	Media    media.Config   `yaml:"media"`
	Channels ChannelsConfig `yaml:"channels"`
	Workers  WorkersConfig  `yaml:"workers"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// APIConfig configures the LLM provider endpoint and credentials.
type APIConfig struct {
	// BaseURL is the OpenAI-compatible API base URL.
	// Examples:
	//   https://api.groq.com/openai/v1   (Groq)
	//   https://api.openai.com/v1        (OpenAI)
	//   http://localhost:11434/v1        (Ollama)
	BaseURL string `yaml:"base_url"`

	// APIKey is the authentication key for the provider.
	APIKey string `yaml:"api_key"`

	// Provider is auto-detected from base_url if omitted.
	Provider string `yaml:"provider"`

	// TimeoutSeconds bounds a single completion request.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// FallbackConfig configures model fallback and retry behavior.
type FallbackConfig struct {
	// Models is the ordered list of fallback models to try on failure.
	Models []string `yaml:"models"`

	// MaxRetries per model before moving to next (default: 2).
	MaxRetries int `yaml:"max_retries"`

	// InitialBackoffMs is the initial retry delay in ms (default: 500).
	InitialBackoffMs int `yaml:"initial_backoff_ms"`

	// MaxBackoffMs caps the backoff (default: 8000).
	MaxBackoffMs int `yaml:"max_backoff_ms"`
}

// Effective returns a copy with default values filled in for zero fields.
func (f FallbackConfig) Effective() FallbackConfig {
	out := f
	if out.MaxRetries == 0 {
		out.MaxRetries = 2
	}
	if out.InitialBackoffMs == 0 {
		out.InitialBackoffMs = 500
	}
	if out.MaxBackoffMs == 0 {
		out.MaxBackoffMs = 8000
	}
	return out
}

// PersonaConfig configures who Rocco is and how replies are rendered.
type PersonaConfig struct {
	// BotUserID is the bot's own user ID, rendered as its mention token.
	BotUserID string `yaml:"bot_user_id"`

	// Instructions replaces the built-in persona block when set.
	Instructions string `yaml:"instructions"`

	// Emojis is the custom emoji vocabulary offered to the model.
	Emojis map[string]Emoji `yaml:"emojis"`

	// FallbackReply is sent when the model call fails. Empty sends nothing.
	FallbackReply string `yaml:"fallback_reply"`
}

// ChannelsConfig holds configuration for all channels.
type ChannelsConfig struct {
	Discord discord.Config `yaml:"discord"`
}

// WorkersConfig sizes the pool that runs conversational turns.
type WorkersConfig struct {
	TurnPoolSize int `yaml:"turn_pool_size"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the log format ("json", "text").
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:  "Rocco",
		Model: "openai/gpt-oss-120b",
		API: APIConfig{
			BaseURL:        "https://api.groq.com/openai/v1",
			TimeoutSeconds: 60,
		},
		Fallback: FallbackConfig{}.Effective(),
		Persona: PersonaConfig{
			Emojis:        DefaultEmojis(),
			FallbackReply: "I'm sorry, I don't know what to say. Please try again later.",
		},
		Music: voice.DefaultConfig(),
		Media: media.DefaultConfig(),
		Channels: ChannelsConfig{
			Discord: discord.DefaultConfig(),
		},
		Workers: WorkersConfig{TurnPoolSize: 16},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}
