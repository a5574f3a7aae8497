package copilot

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/jholhewres/rocco/pkg/rocco/channels"
)

// Role is the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one model-ready message.
type ConversationTurn struct {
	Role    Role
	Content string
}

// userPayload is the provenance record a user turn carries, so the model can
// tell who said what without treating platform markup as instructions.
type userPayload struct {
	Author struct {
		Username    string `json:"username"`
		DisplayName string `json:"displayName"`
		ID          string `json:"id"`
	} `json:"author"`
	Content     string              `json:"content"`
	Attachments []attachmentPayload `json:"attachments"`
	ID          string              `json:"id"`
}

type attachmentPayload struct {
	Size int `json:"size"`
}

// NormalizeHistory turns most-recent-first chat history into chronological
// conversation turns. Bot-authored messages become assistant turns with their
// rendered text; everything else becomes a user turn carrying a JSON payload.
func NormalizeHistory(history []*channels.HistoryMessage) []ConversationTurn {
	turns := make([]ConversationTurn, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg == nil {
			continue
		}
		if msg.Author.IsBot {
			turns = append(turns, ConversationTurn{Role: RoleAssistant, Content: msg.Text})
			continue
		}
		turns = append(turns, ConversationTurn{Role: RoleUser, Content: encodeUserPayload(msg)})
	}
	return turns
}

func encodeUserPayload(msg *channels.HistoryMessage) string {
	var p userPayload
	p.Author.Username = msg.Author.Username
	p.Author.DisplayName = msg.Author.DisplayName
	p.Author.ID = msg.Author.ID
	p.Content = msg.Text
	p.ID = msg.ID
	p.Attachments = make([]attachmentPayload, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		p.Attachments = append(p.Attachments, attachmentPayload{Size: a.Size})
	}

	// Keep markup such as <@123> readable instead of \u003c@123\u003e.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return msg.Text
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
