package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/jholhewres/rocco/pkg/rocco/channels"
	"github.com/jholhewres/rocco/pkg/rocco/copilot"
	"github.com/spf13/cobra"
)

// localBotID identifies Rocco's own turns in a local session.
const localBotID = "rocco"

// newChatCmd creates the `rocco chat` command for local conversations.
func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to Rocco from the terminal",
		Long: `Talk to Rocco without Discord. Send a single message or start an
interactive session (no arguments). Music actions are not available here.

Examples:
  rocco chat "what do you think of Airbus?"
  rocco chat`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}

	cmd.Flags().StringP("model", "m", "", "override the chat model")
	cmd.Flags().StringP("user", "u", os.Getenv("USER"), "username shown to Rocco")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, logger, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.Model = model
	}
	username, _ := cmd.Flags().GetString("user")
	if username == "" {
		username = "human"
	}

	// The REPL owns the terminal; keep logs to warnings unless asked.
	if verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose"); !verbose {
		cfg.Logging.Level = "warn"
		cfg.Logging.Format = "text"
		logger = newLogger(cfg.Logging, false)
	}

	agent, err := buildAgent(cfg, nil, cfg.Persona.BotUserID, logger)
	if err != nil {
		return err
	}

	s := &chatSession{
		agent:    agent,
		username: username,
		limit:    cfg.Channels.Discord.HistoryLimit,
		imageURL: cfg.Media.SelfImageURL,
	}

	if len(args) > 0 {
		fmt.Println(s.turn(cmd.Context(), args[0]))
		return nil
	}
	return s.repl(cmd.Context())
}

// chatSession keeps a synthetic channel history for local turns.
type chatSession struct {
	agent    *copilot.Agent
	username string
	limit    int
	imageURL string

	// history is most-recent-first, like a platform fetch.
	history []*channels.HistoryMessage
	seq     int
}

func (s *chatSession) repl(ctx context.Context) error {
	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".rocco_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("starting prompt: %w", err)
	}
	defer rl.Close()

	fmt.Println("Talking to Rocco. Type /exit or press Ctrl+D to leave.")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			s.history = nil
			fmt.Println("(history cleared)")
			continue
		}

		fmt.Printf("rocco> %s\n", s.turn(ctx, line))
	}
}

// turn appends the user's line, runs the orchestrator and records the reply.
func (s *chatSession) turn(ctx context.Context, text string) string {
	if ctx == nil {
		ctx = context.Background()
	}
	s.push(&channels.HistoryMessage{
		Author: channels.Author{ID: "local-user", Username: s.username, DisplayName: s.username},
		Text:   text,
	})

	reply := s.agent.Run(ctx, s.history, copilot.RoomContext{
		ChatID:        "local",
		RequesterID:   "local-user",
		RequesterName: s.username,
	})
	if reply == "" {
		return "(no reply)"
	}

	// On Discord the picture is an attachment with no text.
	sent, shown := reply, reply
	if reply == copilot.SelfImagePlaceholder {
		sent, shown = "", "*sends a picture of himself* "+s.imageURL
	}
	s.push(&channels.HistoryMessage{
		Author: channels.Author{ID: localBotID, Username: localBotID, IsBot: true},
		Text:   sent,
	})
	return shown
}

func (s *chatSession) push(m *channels.HistoryMessage) {
	s.seq++
	m.ID = strconv.Itoa(s.seq)
	m.Timestamp = time.Now()

	s.history = append([]*channels.HistoryMessage{m}, s.history...)
	if s.limit > 0 && len(s.history) > s.limit {
		s.history = s.history[:s.limit]
	}
}
