package copilot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/jholhewres/rocco/pkg/rocco/channels"
	"github.com/jholhewres/rocco/pkg/rocco/media"
	"github.com/panjf2000/ants/v2"
)

const (
	// turnTimeout bounds one conversational turn end to end.
	turnTimeout = 2 * time.Minute

	// typingInterval re-sends the typing indicator before Discord's 10s expiry.
	typingInterval = 8 * time.Second
)

// ImageSource provides the picture that replaces the self-image placeholder.
type ImageSource interface {
	SelfImage(ctx context.Context) (*media.Image, error)
}

// Assistant connects a chat channel to the agent: it picks up messages
// addressed to the bot, gathers history, runs a turn and delivers the reply.
type Assistant struct {
	channel      channels.Channel
	agent        *Agent
	images       ImageSource
	historyLimit int
	pool         *ants.Pool
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAssistant creates an assistant. Turns run on a pool of poolSize workers.
func NewAssistant(channel channels.Channel, agent *Agent, images ImageSource, historyLimit, poolSize int, logger *slog.Logger) (*Assistant, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if poolSize <= 0 {
		poolSize = 16
	}
	if historyLimit <= 0 {
		historyLimit = 10
	}
	a := &Assistant{
		channel:      channel,
		agent:        agent,
		images:       images,
		historyLimit: historyLimit,
		logger:       logger.With("component", "assistant"),
		done:         make(chan struct{}),
	}

	pool, err := ants.NewPool(poolSize, ants.WithPanicHandler(func(p any) {
		a.logger.Error("turn panicked", "panic", p, "stack", string(debug.Stack()))
	}))
	if err != nil {
		return nil, fmt.Errorf("creating turn pool: %w", err)
	}
	a.pool = pool
	return a, nil
}

// Start begins consuming messages from the channel. It returns immediately.
func (a *Assistant) Start(ctx context.Context) {
	a.ctx, a.cancel = context.WithCancel(ctx)
	go a.messageLoop()
	a.logger.Info("assistant started", "channel", a.channel.Name(), "workers", a.pool.Cap())
}

// Stop stops accepting messages and waits briefly for running turns.
func (a *Assistant) Stop() {
	if a.cancel != nil {
		a.cancel()
		<-a.done
	}
	if err := a.pool.ReleaseTimeout(10 * time.Second); err != nil {
		a.logger.Warn("turns still running at shutdown", "error", err)
	}
	a.logger.Info("assistant stopped")
}

func (a *Assistant) messageLoop() {
	defer close(a.done)
	for {
		select {
		case msg, ok := <-a.channel.Receive():
			if !ok {
				return
			}
			if err := a.pool.Submit(func() { a.handleMessage(a.ctx, msg) }); err != nil {
				a.logger.Warn("dropping message, turn pool unavailable", "msg_id", msg.ID, "error", err)
			}

		case <-a.ctx.Done():
			return
		}
	}
}

// handleMessage runs one turn. Nothing escapes it: errors are logged and
// panics recovered.
func (a *Assistant) handleMessage(ctx context.Context, msg *channels.IncomingMessage) {
	logger := a.logger.With(
		"channel", msg.Channel,
		"room", msg.RoomID,
		"chat_id", msg.ChatID,
		"from", msg.From,
		"msg_id", msg.ID,
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("turn panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, turnTimeout)
	defer cancel()

	start := time.Now()
	logger.Info("incoming message", "content_preview", truncate(msg.Content, 50))

	stopTyping := a.keepTyping(ctx, msg.ChatID)
	defer stopTyping()

	history, err := a.channel.History(ctx, msg.ChatID, a.historyLimit)
	if err != nil || len(history) == 0 {
		if err != nil {
			logger.Warn("could not fetch history, using the trigger message only", "error", err)
		}
		history = []*channels.HistoryMessage{{
			ID:        msg.ID,
			Author:    channels.Author{ID: msg.From, Username: msg.FromName, DisplayName: msg.FromName},
			Text:      msg.Content,
			Timestamp: msg.Timestamp,
		}}
	}

	room := RoomContext{
		RoomID:         msg.RoomID,
		ChatID:         msg.ChatID,
		RequesterID:    msg.From,
		RequesterName:  msg.FromName,
		VoiceChannelID: a.channel.VoiceChannelOf(msg.RoomID, msg.From),
	}

	reply := a.agent.Run(ctx, history, room)
	stopTyping()

	if err := a.deliver(ctx, msg, reply); err != nil {
		logger.Error("failed to deliver reply", "error", err)
		return
	}
	logger.Info("turn handled", "duration_ms", time.Since(start).Milliseconds())
}

// deliver sends the reply, swapping the self-image placeholder for a picture.
func (a *Assistant) deliver(ctx context.Context, msg *channels.IncomingMessage, reply string) error {
	if reply == "" {
		return nil
	}

	if reply == SelfImagePlaceholder {
		if a.images == nil {
			return fmt.Errorf("no image source configured")
		}
		img, err := a.images.SelfImage(ctx)
		if err != nil {
			return fmt.Errorf("fetching self image: %w", err)
		}
		return a.channel.SendMedia(ctx, msg.ChatID, &channels.MediaMessage{
			Type:     channels.MessageImage,
			Data:     img.Data,
			MimeType: img.MimeType,
			Filename: img.Filename,
			ReplyTo:  msg.ID,
		})
	}

	return a.channel.Send(ctx, msg.ChatID, &channels.OutgoingMessage{
		Content: reply,
		ReplyTo: msg.ID,
	})
}

// keepTyping shows the typing indicator until the returned func is called.
func (a *Assistant) keepTyping(ctx context.Context, chatID string) func() {
	pc, ok := a.channel.(channels.PresenceChannel)
	if !ok {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()
		for {
			if err := pc.SendTyping(ctx, chatID); err != nil {
				a.logger.Debug("typing indicator failed", "chat_id", chatID, "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return cancel
}
