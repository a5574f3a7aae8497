package copilot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("ROCCO_TEST_SET", "meow")

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr string
	}{
		{"simple", "key: ${ROCCO_TEST_SET}", "key: meow", ""},
		{"set wins over default", "${ROCCO_TEST_SET:-purr}", "meow", ""},
		{"default", "${ROCCO_TEST_UNSET:-purr}", "purr", ""},
		{"empty default", "x${ROCCO_TEST_UNSET:-}y", "xy", ""},
		{"unset kept verbatim", "${ROCCO_TEST_UNSET}", "${ROCCO_TEST_UNSET}", ""},
		{"required set", "${ROCCO_TEST_SET:?need it}", "meow", ""},
		{"required unset", "${ROCCO_TEST_UNSET:?token missing}", "", "token missing"},
		{"required unset no message", "${ROCCO_TEST_UNSET:?}", "", "required environment variable not set"},
		{"no references", "plain: value", "plain: value", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnvVars(tt.in)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := ParseConfig([]byte("model: llama-3.3-70b\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model != "llama-3.3-70b" {
		t.Errorf("model = %q", cfg.Model)
	}
	if cfg.API.BaseURL != "https://api.groq.com/openai/v1" {
		t.Errorf("base url = %q", cfg.API.BaseURL)
	}
	if cfg.Persona.FallbackReply == "" {
		t.Error("fallback reply should default to the apology")
	}
	if _, ok := cfg.Persona.Emojis["roccomeem"]; !ok {
		t.Error("default emoji vocabulary missing")
	}
	if cfg.Fallback.MaxRetries != 2 || cfg.Fallback.InitialBackoffMs != 500 {
		t.Errorf("fallback = %+v", cfg.Fallback)
	}
	if cfg.Channels.Discord.HistoryLimit != 10 || !cfg.Channels.Discord.SendTyping {
		t.Errorf("discord = %+v", cfg.Channels.Discord)
	}
	if cfg.Music.Bitrate != 96000 {
		t.Errorf("music = %+v", cfg.Music)
	}
}

func TestParseConfig_Overrides(t *testing.T) {
	t.Parallel()

	data := `
persona:
  fallback_reply: ""
  emojis:
    roccosleep:
      mention: "<:roccosleep:99>"
      description: "sleepy"
channels:
  discord:
    allowed_guilds: ["1", "2"]
    history_limit: 25
fallback:
  models: [llama-3.1-8b-instant]
`
	cfg, err := ParseConfig([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Persona.FallbackReply != "" {
		t.Errorf("fallback reply = %q, want disabled", cfg.Persona.FallbackReply)
	}
	if len(cfg.Persona.Emojis) != 1 {
		t.Errorf("emojis = %v, want only the configured one", cfg.Persona.Emojis)
	}
	if e := cfg.Persona.Emojis["roccosleep"]; e.Mention != "<:roccosleep:99>" || e.Description != "sleepy" {
		t.Errorf("roccosleep = %+v", e)
	}
	if got := cfg.Channels.Discord.AllowedGuilds; len(got) != 2 {
		t.Errorf("allowed guilds = %v", got)
	}
	if cfg.Channels.Discord.HistoryLimit != 25 {
		t.Errorf("history limit = %d", cfg.Channels.Discord.HistoryLimit)
	}
	if len(cfg.Fallback.Models) != 1 || cfg.Fallback.MaxRetries != 2 {
		t.Errorf("fallback = %+v", cfg.Fallback)
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	t.Parallel()

	if _, err := ParseConfig([]byte("model: [unclosed")); err == nil {
		t.Error("expected a parse error")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Setenv("ROCCO_TEST_KEY", "gsk_test")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "api:\n  api_key: ${ROCCO_TEST_KEY}\nmusic:\n  playlist_dir: songs\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.API.APIKey != "gsk_test" {
		t.Errorf("api key = %q", cfg.API.APIKey)
	}
	if want := filepath.Join(dir, "songs"); cfg.Music.PlaylistDir != want {
		t.Errorf("playlist dir = %q, want %q", cfg.Music.PlaylistDir, want)
	}
}

func TestSaveConfigToFile_UsesEnvReferences(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk_secret")
	t.Setenv("DISCORD_BOT_TOKEN", "discord-secret")

	cfg := DefaultConfig()
	cfg.API.Provider = "groq"
	cfg.API.APIKey = "gsk_secret"
	cfg.Channels.Discord.Token = "discord-secret"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := SaveConfigToFile(cfg, path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if strings.Contains(text, "gsk_secret") || strings.Contains(text, "discord-secret") {
		t.Errorf("secrets written in clear:\n%s", text)
	}
	if !strings.Contains(text, "${GROQ_API_KEY}") || !strings.Contains(text, "${DISCORD_BOT_TOKEN}") {
		t.Errorf("env references missing:\n%s", text)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}
	if cfg.API.APIKey != "gsk_secret" {
		t.Error("SaveConfigToFile must not modify the caller's config")
	}
}

func TestFindConfigFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	if got := FindConfigFile(); got != "" {
		t.Errorf("FindConfigFile() = %q in an empty dir", got)
	}

	if err := os.WriteFile("rocco.yaml", []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := FindConfigFile(); got != "rocco.yaml" {
		t.Errorf("FindConfigFile() = %q, want rocco.yaml", got)
	}

	if err := os.WriteFile("config.yaml", []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := FindConfigFile(); got != "config.yaml" {
		t.Errorf("FindConfigFile() = %q, want config.yaml first", got)
	}
}

func TestLooksLikeRealKey(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]bool{
		"":                         false,
		"${GROQ_API_KEY}":          false,
		"gsk_abc":                  true,
		"sk-abc":                   true,
		"short":                    false,
		"MTIzNDU2Nzg5MDEyMzQ1Njc4": true,
	} {
		if got := looksLikeRealKey(in); got != want {
			t.Errorf("looksLikeRealKey(%q) = %v, want %v", in, got, want)
		}
	}
}
