// Package channels defines the interfaces and types for Rocco's chat
// platform surface. A channel delivers triggering messages, exposes the
// recent history of a conversation, resolves where a requester is connected
// for voice, and delivers the final text or image reply.
package channels

import (
	"context"
	"errors"
	"time"
)

// MessageType identifies the kind of message content.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageAudio    MessageType = "audio"
	MessageVideo    MessageType = "video"
	MessageDocument MessageType = "document"
)

// Channel defines the interface that every chat platform must implement.
type Channel interface {
	// Name returns the channel identifier (e.g. "discord").
	Name() string

	// Connect establishes the connection to the messaging platform.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Receive returns a Go channel that emits messages addressed to the bot.
	Receive() <-chan *IncomingMessage

	// History returns up to limit messages of a chat, most-recent-first.
	History(ctx context.Context, chatID string, limit int) ([]*HistoryMessage, error)

	// VoiceChannelOf returns the voice channel the user is currently
	// connected to in the given room, or "" when there is none.
	VoiceChannelOf(roomID, userID string) string

	// Send sends a text message to the specified chat.
	Send(ctx context.Context, to string, message *OutgoingMessage) error

	// SendMedia sends a media message (image) to the specified chat.
	SendMedia(ctx context.Context, to string, media *MediaMessage) error

	// IsConnected returns true if the channel is connected.
	IsConnected() bool
}

// PresenceChannel extends Channel with typing indicators.
type PresenceChannel interface {
	Channel

	// SendTyping sends a "typing..." indicator to the chat.
	SendTyping(ctx context.Context, to string) error
}

// Author identifies who wrote a message.
type Author struct {
	ID          string
	Username    string
	DisplayName string
	IsBot       bool
}

// Attachment describes a file attached to a message.
type Attachment struct {
	Filename string
	Size     int
	URL      string
}

// HistoryMessage is one entry of a chat's recent history.
type HistoryMessage struct {
	// ID is the platform message identifier.
	ID string

	Author Author

	// Text is the rendered content with user and channel mentions resolved
	// to readable names.
	Text string

	Attachments []Attachment

	Timestamp time.Time
}

// IncomingMessage represents a message that should trigger a reply.
type IncomingMessage struct {
	// ID is the unique message identifier in the source channel.
	ID string

	// Channel identifies the source channel (e.g. "discord").
	Channel string

	// RoomID is the guild (server) identifier; empty for direct messages.
	RoomID string

	// ChatID is the text channel or DM identifier.
	ChatID string

	From     string
	FromName string

	Content   string
	Timestamp time.Time
}

// OutgoingMessage represents a text message to be sent through a channel.
type OutgoingMessage struct {
	Content string

	// ReplyTo contains the ID of the message to reply to.
	ReplyTo string
}

// MediaMessage represents a media file to be sent.
type MediaMessage struct {
	Type MessageType

	// Data is the raw media bytes.
	Data []byte

	MimeType string
	Filename string
	Caption  string

	// ReplyTo contains the ID of the message to reply to.
	ReplyTo string
}

// Errors.
var (
	ErrChannelDisconnected = errors.New("channel is not connected")
	ErrSendFailed          = errors.New("failed to send message")
	ErrConnectionFailed    = errors.New("failed to connect to channel")
)
