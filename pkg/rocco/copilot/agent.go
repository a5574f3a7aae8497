package copilot

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jholhewres/rocco/pkg/rocco/channels"
)

// AgentConfig wires the orchestrator's collaborators.
type AgentConfig struct {
	Completer Completer
	Executor  *ActionExecutor
	Composer  *PromptComposer
	Post      *PostProcessor

	// Playback backs the music actions; nil answers them as if nothing plays.
	Playback Playback

	// FallbackReply is returned when the model call fails. Empty returns no
	// reply at all.
	FallbackReply string
}

// Agent drives one conversational turn: it normalizes history, asks the
// model for a reply with the action set on offer, runs at most one action
// and post-processes the result.
type Agent struct {
	cfg    AgentConfig
	logger *slog.Logger
}

// NewAgent creates an orchestrator.
func NewAgent(cfg AgentConfig, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Post == nil {
		cfg.Post = NewPostProcessor(nil)
	}
	return &Agent{cfg: cfg, logger: logger.With("component", "agent")}
}

// Run produces the user-visible reply for a most-recent-first history. An
// empty string means nothing should be sent. Run never fails: provider
// errors are logged and answered with the configured fallback reply.
func (a *Agent) Run(ctx context.Context, history []*channels.HistoryMessage, room RoomContext) string {
	logger := a.logger.With(
		"turn_id", uuid.NewString(),
		"room", room.RoomID,
		"chat", room.ChatID,
	)

	turns := NormalizeHistory(history)

	system, err := a.cfg.Composer.Compose()
	if err != nil {
		logger.Error("failed to compose system prompt", "error", err)
		return a.cfg.FallbackReply
	}

	handlers := BindActions(room, a.cfg.Playback, logger)

	resp, err := a.cfg.Completer.Complete(ctx, &CompletionRequest{
		SystemPrompt: system,
		Turns:        turns,
		Tools:        a.cfg.Executor.Definitions(),
		ToolChoice:   "auto",
	})
	if err != nil {
		logger.Error("model call failed", "error", err, "fallback_sent", a.cfg.FallbackReply != "")
		return a.cfg.FallbackReply
	}

	reply := a.selectReply(ctx, resp, handlers, logger)
	out := a.cfg.Post.Process(reply)

	logger.Info("turn complete",
		"history", len(turns),
		"source", reply.Source.String(),
		"model", resp.ModelUsed,
		"reply_len", len(out),
	)
	return out
}

// selectReply reduces the model response to one Reply. Only the first
// requested action runs; its message replaces the model's prose. A failed
// action falls back to the prose.
func (a *Agent) selectReply(ctx context.Context, resp *LLMResponse, handlers map[string]ActionHandlerFunc, logger *slog.Logger) Reply {
	if len(resp.ToolCalls) == 0 {
		return Reply{Source: ReplyText, Text: resp.Content}
	}

	call := resp.ToolCalls[0]
	if extra := resp.ToolCalls[1:]; len(extra) > 0 {
		names := make([]string, 0, len(extra))
		for _, c := range extra {
			names = append(names, c.Function.Name)
		}
		logger.Info("discarding additional action calls", "kept", call.Function.Name, "discarded", names)
	}

	result, err := a.cfg.Executor.Execute(ctx, call, handlers)
	if err != nil {
		logger.Warn("action failed", "action", call.Function.Name, "error", err)
		return Reply{Source: ReplyText, Text: resp.Content}
	}

	logger.Debug("action executed", "action", call.Function.Name)
	return Reply{Source: ReplyAction, Text: result.Message}
}
