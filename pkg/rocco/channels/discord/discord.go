// Package discord implements the Discord channel for Rocco using discordgo.
//
// Features:
//   - Replies when mentioned, when a message replies to the bot, or in DMs
//   - Recent history lookup with mentions rendered as readable names
//   - Voice channel lookup for music requests
//   - Text and image delivery, typing indicators
//   - Slash commands answered with a deferred follow-up
//   - Voice disconnect notifications for the playback manager
//   - Guild and channel allowlists
package discord

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	"github.com/jholhewres/rocco/pkg/rocco/channels"
)

// maxMessageLen is Discord's per-message character limit.
const maxMessageLen = 2000

// Config holds Discord channel configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string `yaml:"token"`

	// AllowedGuilds restricts which guild (server) IDs the bot responds in.
	// Empty means respond in all guilds.
	AllowedGuilds []string `yaml:"allowed_guilds"`

	// AllowedChannels restricts which channel IDs the bot responds in.
	// Empty means respond in all channels.
	AllowedChannels []string `yaml:"allowed_channels"`

	// HistoryLimit is how many recent messages are handed to the model.
	HistoryLimit int `yaml:"history_limit"`

	// SendTyping sends "typing..." indicators while processing.
	SendTyping bool `yaml:"send_typing"`

	// RegisterCommands registers slash commands on connect.
	RegisterCommands bool `yaml:"register_commands"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		HistoryLimit:     10,
		SendTyping:       true,
		RegisterCommands: true,
	}
}

// CommandEvent describes a slash command invocation.
type CommandEvent struct {
	Name      string
	UserID    string
	Username  string
	ChannelID string
	GuildID   string
}

// CommandHandler answers a slash command. The returned media is sent as the
// follow-up; a media message without Data is sent as text from its Caption.
type CommandHandler func(ctx context.Context, evt *CommandEvent) (*channels.MediaMessage, error)

type slashCommand struct {
	description string
	handler     CommandHandler
}

// Discord implements channels.Channel and channels.PresenceChannel.
type Discord struct {
	cfg     Config
	logger  *slog.Logger
	session *discordgo.Session

	// messages is the channel for incoming messages forwarded to the assistant.
	messages chan *channels.IncomingMessage

	// connected tracks connection state.
	connected atomic.Bool

	// lastMsg tracks the last message timestamp.
	lastMsg atomic.Value // time.Time

	commands          map[string]slashCommand
	onVoiceDisconnect func(roomID string)

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.RWMutex
}

// New creates a new Discord channel instance.
func New(cfg Config, logger *slog.Logger) *Discord {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultConfig().HistoryLimit
	}
	return &Discord{
		cfg:      cfg,
		logger:   logger.With("component", "discord"),
		messages: make(chan *channels.IncomingMessage, 256),
		commands: make(map[string]slashCommand),
	}
}

// HistoryLimit returns the configured number of history messages per turn.
func (d *Discord) HistoryLimit() int { return d.cfg.HistoryLimit }

// RegisterCommand adds a slash command. Must be called before Connect.
func (d *Discord) RegisterCommand(name, description string, handler CommandHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands[name] = slashCommand{description: description, handler: handler}
}

// OnVoiceDisconnect sets the callback invoked with the guild ID when the bot
// is removed from a voice channel.
func (d *Discord) OnVoiceDisconnect(fn func(roomID string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onVoiceDisconnect = fn
}

// Session returns the underlying gateway session (nil before Connect).
func (d *Discord) Session() *discordgo.Session { return d.session }

// ---------- Channel Interface ----------

// Name returns "discord".
func (d *Discord) Name() string { return "discord" }

// Connect opens the Discord gateway WebSocket connection.
func (d *Discord) Connect(ctx context.Context) error {
	if d.cfg.Token == "" {
		return fmt.Errorf("discord: bot token is required")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	session, err := discordgo.New("Bot " + d.cfg.Token)
	if err != nil {
		return fmt.Errorf("discord: creating session: %w", err)
	}

	// Voice states are needed to find the requester's voice channel.
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildVoiceStates

	session.AddHandler(d.onMessageCreate)
	session.AddHandler(d.onInteractionCreate)
	session.AddHandler(d.onVoiceStateUpdate)

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord: opening gateway: %w", err)
	}

	d.session = session
	d.connected.Store(true)

	user := session.State.User
	d.logger.Info("discord: connected", "bot", user.Username, "id", user.ID)

	if d.cfg.RegisterCommands {
		d.registerCommands()
	}
	return nil
}

// Disconnect closes the Discord gateway connection.
func (d *Discord) Disconnect() error {
	if d.cancel != nil {
		d.cancel()
	}
	if d.session != nil {
		d.session.Close()
	}
	d.connected.Store(false)
	d.logger.Info("discord: disconnected")
	return nil
}

// Receive returns the incoming messages channel.
func (d *Discord) Receive() <-chan *channels.IncomingMessage {
	return d.messages
}

// IsConnected returns true if the bot is connected.
func (d *Discord) IsConnected() bool { return d.connected.Load() }

// BotUserID returns the bot's own user ID once connected.
func (d *Discord) BotUserID() string {
	if d.session == nil || d.session.State == nil || d.session.State.User == nil {
		return ""
	}
	return d.session.State.User.ID
}

// History returns up to limit messages of a chat, most-recent-first.
func (d *Discord) History(ctx context.Context, chatID string, limit int) ([]*channels.HistoryMessage, error) {
	if d.session == nil {
		return nil, channels.ErrChannelDisconnected
	}
	if limit <= 0 || limit > 100 {
		limit = d.cfg.HistoryLimit
	}

	msgs, err := d.session.ChannelMessages(chatID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord: fetching history: %w", err)
	}

	history := make([]*channels.HistoryMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Author == nil {
			continue
		}
		history = append(history, toHistoryMessage(m))
	}
	return history, nil
}

// VoiceChannelOf returns the voice channel userID is connected to in the
// guild, or "" when the user is not in voice.
func (d *Discord) VoiceChannelOf(roomID, userID string) string {
	if d.session == nil || roomID == "" {
		return ""
	}
	vs, err := d.session.State.VoiceState(roomID, userID)
	if err != nil || vs == nil {
		return ""
	}
	return vs.ChannelID
}

// Send sends a text message to the specified channel.
func (d *Discord) Send(ctx context.Context, to string, message *channels.OutgoingMessage) error {
	if d.session == nil {
		return channels.ErrChannelDisconnected
	}

	chunks := splitDiscordMessage(message.Content, maxMessageLen)
	for i, chunk := range chunks {
		msgSend := &discordgo.MessageSend{Content: chunk}
		if i == 0 && message.ReplyTo != "" {
			msgSend.Reference = &discordgo.MessageReference{MessageID: message.ReplyTo, ChannelID: to}
		}
		if _, err := d.session.ChannelMessageSendComplex(to, msgSend, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("%w: %w", channels.ErrSendFailed, err)
		}
	}
	return nil
}

// SendMedia sends an image attachment to the specified channel.
func (d *Discord) SendMedia(ctx context.Context, to string, media *channels.MediaMessage) error {
	if d.session == nil {
		return channels.ErrChannelDisconnected
	}
	if len(media.Data) == 0 {
		return fmt.Errorf("discord: no media data")
	}

	msgSend := &discordgo.MessageSend{
		Content: media.Caption,
		Files:   []*discordgo.File{toFile(media)},
	}
	if media.ReplyTo != "" {
		msgSend.Reference = &discordgo.MessageReference{MessageID: media.ReplyTo, ChannelID: to}
	}

	if _, err := d.session.ChannelMessageSendComplex(to, msgSend, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("%w: %w", channels.ErrSendFailed, err)
	}
	return nil
}

// ---------- PresenceChannel Interface ----------

// SendTyping sends a typing indicator to the channel.
func (d *Discord) SendTyping(ctx context.Context, to string) error {
	if d.session == nil || !d.cfg.SendTyping {
		return nil
	}
	return d.session.ChannelTyping(to, discordgo.WithContext(ctx))
}

// ---------- Event Handlers ----------

// onMessageCreate forwards messages addressed to the bot.
func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	botID := s.State.User.ID
	if m.Author.ID == botID {
		return
	}

	if !d.allowed(m.GuildID, m.ChannelID) {
		return
	}
	if !addressedToBot(m.Message, botID) {
		return
	}

	incoming := &channels.IncomingMessage{
		ID:        m.ID,
		Channel:   "discord",
		RoomID:    m.GuildID,
		ChatID:    m.ChannelID,
		From:      m.Author.ID,
		FromName:  displayName(m.Author),
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}

	d.lastMsg.Store(time.Now())

	select {
	case d.messages <- incoming:
	default:
		d.logger.Warn("discord: message buffer full, dropping message", "msg_id", incoming.ID)
	}
}

// onInteractionCreate answers registered slash commands.
func (d *Discord) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	data := i.ApplicationCommandData()
	d.mu.RLock()
	cmd, ok := d.commands[data.Name]
	d.mu.RUnlock()
	if !ok {
		return
	}

	evt := &CommandEvent{
		Name:      data.Name,
		ChannelID: i.ChannelID,
		GuildID:   i.GuildID,
	}
	if i.Member != nil && i.Member.User != nil {
		evt.UserID, evt.Username = i.Member.User.ID, i.Member.User.Username
	} else if i.User != nil {
		evt.UserID, evt.Username = i.User.ID, i.User.Username
	}

	// Acknowledge immediately to satisfy Discord's 3s limit.
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}); err != nil {
		d.logger.Warn("discord: failed to ack command", "command", data.Name, "error", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(d.ctx, 30*time.Second)
		defer cancel()

		params := &discordgo.WebhookParams{}
		media, err := cmd.handler(ctx, evt)
		switch {
		case err != nil:
			d.logger.Warn("discord: command handler error", "command", data.Name, "error", err)
			params.Content = "Meow? Something went wrong."
		case media == nil:
			params.Content = "Meow."
		case len(media.Data) == 0:
			params.Content = media.Caption
		default:
			params.Content = media.Caption
			params.Files = []*discordgo.File{toFile(media)}
		}

		if _, err := s.FollowupMessageCreate(i.Interaction, true, params); err != nil {
			d.logger.Warn("discord: failed to send command follow-up", "command", data.Name, "error", err)
		}
	}()
}

// onVoiceStateUpdate reports when the bot itself leaves a voice channel.
func (d *Discord) onVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.VoiceState == nil || s.State.User == nil {
		return
	}
	if v.UserID != s.State.User.ID || v.ChannelID != "" {
		return
	}

	d.mu.RLock()
	fn := d.onVoiceDisconnect
	d.mu.RUnlock()
	if fn != nil {
		d.logger.Debug("discord: bot left voice", "guild", v.GuildID)
		fn(v.GuildID)
	}
}

// registerCommands creates every registered slash command globally.
func (d *Discord) registerCommands() {
	d.mu.RLock()
	defer d.mu.RUnlock()

	appID := d.session.State.User.ID
	for name, cmd := range d.commands {
		_, err := d.session.ApplicationCommandCreate(appID, "", &discordgo.ApplicationCommand{
			Name:        name,
			Description: cmd.description,
		})
		if err != nil {
			d.logger.Warn("discord: failed to register command", "command", name, "error", err)
			continue
		}
		d.logger.Info("discord: command registered", "command", name)
	}
}

// ---------- Helpers ----------

func (d *Discord) allowed(guildID, channelID string) bool {
	if len(d.cfg.AllowedGuilds) > 0 && guildID != "" && !slices.Contains(d.cfg.AllowedGuilds, guildID) {
		return false
	}
	if len(d.cfg.AllowedChannels) > 0 && !slices.Contains(d.cfg.AllowedChannels, channelID) {
		return false
	}
	return true
}

// addressedToBot reports whether m mentions the bot, replies to it, or is a DM.
func addressedToBot(m *discordgo.Message, botID string) bool {
	if m.GuildID == "" {
		return true
	}
	for _, u := range m.Mentions {
		if u != nil && u.ID == botID {
			return true
		}
	}
	ref := m.ReferencedMessage
	return ref != nil && ref.Author != nil && ref.Author.ID == botID
}

func toHistoryMessage(m *discordgo.Message) *channels.HistoryMessage {
	hm := &channels.HistoryMessage{
		ID: m.ID,
		Author: channels.Author{
			ID:          m.Author.ID,
			Username:    m.Author.Username,
			DisplayName: displayName(m.Author),
			IsBot:       m.Author.Bot,
		},
		Text:      m.ContentWithMentionsReplaced(),
		Timestamp: m.Timestamp,
	}
	for _, att := range m.Attachments {
		hm.Attachments = append(hm.Attachments, channels.Attachment{
			Filename: att.Filename,
			Size:     att.Size,
			URL:      att.URL,
		})
	}
	return hm
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func toFile(media *channels.MediaMessage) *discordgo.File {
	name := media.Filename
	if name == "" {
		name = "file"
	}
	return &discordgo.File{
		Name:        name,
		ContentType: media.MimeType,
		Reader:      bytes.NewReader(media.Data),
	}
}

// splitDiscordMessage splits a message into chunks respecting the 2000 char limit.
func splitDiscordMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}
		// Try to split at a newline.
		cutAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > maxLen/2 {
			cutAt = idx + 1
		} else {
			// Never cut through a multi-byte rune.
			for cutAt > 0 && !utf8.RuneStart(text[cutAt]) {
				cutAt--
			}
		}
		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	return chunks
}

// Compile-time interface verification.
var (
	_ channels.Channel         = (*Discord)(nil)
	_ channels.PresenceChannel = (*Discord)(nil)
)
