package commands

import (
	"testing"

	"github.com/jholhewres/rocco/pkg/rocco/channels"
)

func TestNewRootCmd(t *testing.T) {
	root := NewRootCmd("test")
	for _, name := range []string{"serve", "chat", "setup", "config", "completion"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("--config flag missing")
	}
}

func TestMaskSecret(t *testing.T) {
	for in, want := range map[string]string{
		"":                     "(not set)",
		"short":                "****",
		"gsk_abcdefghijklmnop": "****mnop",
	} {
		if got := maskSecret(in); got != want {
			t.Errorf("maskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStoreSecretWithoutKeyring(t *testing.T) {
	if got := storeSecret("api_key", "", "GROQ_API_KEY", false); got != "${GROQ_API_KEY}" {
		t.Errorf("empty secret = %q, want env reference", got)
	}
	if got := storeSecret("api_key", " gsk_x ", "GROQ_API_KEY", false); got != "gsk_x" {
		t.Errorf("secret = %q", got)
	}
}

func TestValidateURL(t *testing.T) {
	if err := validateURL("https://api.groq.com/openai/v1"); err != nil {
		t.Errorf("valid URL rejected: %v", err)
	}
	for _, bad := range []string{"", "api.groq.com", "://nope"} {
		if validateURL(bad) == nil {
			t.Errorf("validateURL(%q) accepted", bad)
		}
	}
}

func TestChatSessionHistoryWindow(t *testing.T) {
	s := &chatSession{limit: 3}
	for _, text := range []string{"a", "b", "c", "d"} {
		s.push(&channels.HistoryMessage{Text: text})
	}

	if len(s.history) != 3 {
		t.Fatalf("history len = %d, want 3", len(s.history))
	}
	// Most-recent-first.
	if s.history[0].Text != "d" || s.history[2].Text != "b" {
		t.Errorf("history order = %s %s %s", s.history[0].Text, s.history[1].Text, s.history[2].Text)
	}
	if s.history[0].ID != "4" {
		t.Errorf("newest id = %q", s.history[0].ID)
	}
}
