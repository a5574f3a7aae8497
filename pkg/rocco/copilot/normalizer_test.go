package copilot

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/jholhewres/rocco/pkg/rocco/channels"
)

func TestNormalizeHistory_ReversesAndAssignsRoles(t *testing.T) {
	t.Parallel()

	// Most-recent-first, as the platform returns it.
	history := []*channels.HistoryMessage{
		{ID: "3", Author: channels.Author{ID: "u1", Username: "uv1k", DisplayName: "UV"}, Text: "sing for me"},
		{ID: "2", Author: channels.Author{ID: "bot", Username: "rocco", IsBot: true}, Text: "Meow!"},
		{ID: "1", Author: channels.Author{ID: "u2", Username: "mara"}, Text: "hi rocco",
			Attachments: []channels.Attachment{{Size: 1024}, {Size: 2048}}},
	}

	turns := NormalizeHistory(history)
	if len(turns) != len(history) {
		t.Fatalf("got %d turns, want %d", len(turns), len(history))
	}

	wantRoles := []Role{RoleUser, RoleAssistant, RoleUser}
	for i, want := range wantRoles {
		if turns[i].Role != want {
			t.Errorf("turn %d role = %s, want %s", i, turns[i].Role, want)
		}
	}

	if turns[1].Content != "Meow!" {
		t.Errorf("assistant turn content = %q, want plain text", turns[1].Content)
	}

	var first userPayload
	if err := json.Unmarshal([]byte(turns[0].Content), &first); err != nil {
		t.Fatalf("user turn is not a JSON payload: %v", err)
	}
	if first.ID != "1" || first.Content != "hi rocco" || first.Author.Username != "mara" {
		t.Errorf("unexpected payload %+v", first)
	}
	if len(first.Attachments) != 2 || first.Attachments[1].Size != 2048 {
		t.Errorf("attachments = %+v", first.Attachments)
	}

	var last userPayload
	if err := json.Unmarshal([]byte(turns[2].Content), &last); err != nil {
		t.Fatal(err)
	}
	if last.ID != "3" || last.Author.DisplayName != "UV" || last.Author.ID != "u1" {
		t.Errorf("unexpected payload %+v", last)
	}
}

func TestNormalizeHistory_PayloadShape(t *testing.T) {
	t.Parallel()

	turns := NormalizeHistory([]*channels.HistoryMessage{
		{ID: "9", Author: channels.Author{ID: "1", Username: "a", DisplayName: "A"}, Text: "<@7> & you"},
	})

	want := `{"author":{"username":"a","displayName":"A","id":"1"},"content":"<@7> & you","attachments":[],"id":"9"}`
	if turns[0].Content != want {
		t.Errorf("payload =\n%s\nwant\n%s", turns[0].Content, want)
	}
}

func TestNormalizeHistory_Lengths(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 2, 7, 10} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			history := make([]*channels.HistoryMessage, n)
			for i := range history {
				history[i] = &channels.HistoryMessage{
					ID:     fmt.Sprint(n - i),
					Author: channels.Author{ID: "u", IsBot: i%2 == 0},
					Text:   fmt.Sprint(n - i),
				}
			}

			turns := NormalizeHistory(history)
			if len(turns) != n {
				t.Fatalf("got %d turns, want %d", len(turns), n)
			}
			for i, turn := range turns {
				src := history[n-1-i]
				wantRole := RoleUser
				if src.Author.IsBot {
					wantRole = RoleAssistant
				}
				if turn.Role != wantRole {
					t.Errorf("turn %d role = %s, want %s", i, turn.Role, wantRole)
				}
			}
		})
	}
}
