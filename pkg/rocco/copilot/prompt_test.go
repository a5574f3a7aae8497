package copilot

import (
	"strings"
	"testing"
)

func TestPromptComposer_Compose(t *testing.T) {
	t.Parallel()

	p := NewPromptComposer("Rocco", "", "1234", NewEmojiVocabulary(DefaultEmojis()))
	prompt, err := p.Compose()
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{
		"You are **Rocco**",
		":roccomeem: - ",
		"Your own user ID is `<@1234>`",
		"You MUST use the corresponding tool.",
		"what song Rocco is playing",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt is missing %q", want)
		}
	}
	if strings.Contains(prompt, "1429492351952486502") {
		t.Error("prompt leaks the native emoji id")
	}
}

func TestPromptComposer_Optional(t *testing.T) {
	t.Parallel()

	p := NewPromptComposer("", "You are a teapot.", "", nil)
	prompt, err := p.Compose()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(prompt, "You are a teapot.") {
		t.Errorf("custom persona not used: %q", prompt[:40])
	}
	if strings.Contains(prompt, "custom emojis") || strings.Contains(prompt, "Your own user ID") {
		t.Error("empty sections should be omitted")
	}

	prompt, _ = NewPromptComposer("", "You are a teapot.", "55", nil).Compose()
	if !strings.Contains(prompt, "<@55>") {
		t.Error("bot id not rendered")
	}
}
