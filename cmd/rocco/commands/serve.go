package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jholhewres/rocco/pkg/rocco/channels"
	"github.com/jholhewres/rocco/pkg/rocco/channels/discord"
	"github.com/jholhewres/rocco/pkg/rocco/copilot"
	"github.com/jholhewres/rocco/pkg/rocco/media"
	"github.com/jholhewres/rocco/pkg/rocco/voice"
	"github.com/spf13/cobra"
)

// newServeCmd creates the `rocco serve` command that runs the Discord bot.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Discord bot",
		Long: `Connect to Discord and answer every message that mentions Rocco,
replies to him or reaches him in a DM.

Examples:
  rocco serve
  rocco serve --config ./config.yaml`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Channels.Discord.Token == "" {
		return fmt.Errorf("discord token not configured. Set DISCORD_BOT_TOKEN or run: rocco setup")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Channel ──
	fetcher := media.NewFetcher(cfg.Media, logger)
	dc := discord.New(cfg.Channels.Discord, logger)
	dc.RegisterCommand("rocco", "Sends a random image of Rocco", func(ctx context.Context, _ *discord.CommandEvent) (*channels.MediaMessage, error) {
		img, err := fetcher.SelfImage(ctx)
		if err != nil {
			return nil, err
		}
		return &channels.MediaMessage{
			Type:     channels.MessageImage,
			Data:     img.Data,
			MimeType: img.MimeType,
			Filename: img.Filename,
		}, nil
	})

	if err := dc.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to discord: %w", err)
	}

	// ── Voice ──
	manager := voice.NewManager(cfg.Music, voice.NewDiscordTransport(dc.Session(), cfg.Music.Bitrate, logger), logger)
	dc.OnVoiceDisconnect(manager.HandleDisconnect)

	reconciler, err := voice.NewReconciler(manager, cfg.Music.ReconcileEvery, logger)
	if err != nil {
		_ = dc.Disconnect()
		return fmt.Errorf("scheduling voice reconcile: %w", err)
	}
	reconciler.Start()

	// ── Orchestrator ──
	botID := cfg.Persona.BotUserID
	if botID == "" {
		botID = dc.BotUserID()
	}
	agent, err := buildAgent(cfg, manager, botID, logger)
	if err != nil {
		reconciler.Stop()
		_ = dc.Disconnect()
		return err
	}

	assistant, err := copilot.NewAssistant(dc, agent, fetcher, dc.HistoryLimit(), cfg.Workers.TurnPoolSize, logger)
	if err != nil {
		reconciler.Stop()
		_ = dc.Disconnect()
		return err
	}
	assistant.Start(ctx)

	logger.Info("Rocco is running. Press Ctrl+C to stop.",
		"name", cfg.Name,
		"model", cfg.Model,
		"bot_user_id", botID,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping...")

	done := make(chan struct{})
	go func() {
		assistant.Stop()
		reconciler.Stop()
		manager.StopAll()
		if err := dc.Disconnect(); err != nil {
			logger.Warn("discord disconnect failed", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(15 * time.Second):
		logger.Warn("shutdown timed out after 15s, forcing exit")
	}
	return nil
}

// buildAgent wires the orchestrator from config. playback may be nil.
func buildAgent(cfg *copilot.Config, playback copilot.Playback, botUserID string, logger *slog.Logger) (*copilot.Agent, error) {
	executor, err := copilot.NewActionExecutor(logger)
	if err != nil {
		return nil, fmt.Errorf("building action set: %w", err)
	}

	vocab := copilot.NewEmojiVocabulary(cfg.Persona.Emojis)

	return copilot.NewAgent(copilot.AgentConfig{
		Completer:     copilot.NewLLMClient(cfg, logger),
		Executor:      executor,
		Composer:      copilot.NewPromptComposer(cfg.Name, cfg.Persona.Instructions, botUserID, vocab),
		Post:          copilot.NewPostProcessor(vocab),
		Playback:      playback,
		FallbackReply: cfg.Persona.FallbackReply,
	}, logger), nil
}
