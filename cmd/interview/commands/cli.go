// ABOUTME: CLI command runs an interactive terminal session with the worker pools
// ABOUTME: The session user comes from --user or is created fresh
package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/media"
	"github.com/harper/interview-assistant/internal/runtime"
	"github.com/harper/interview-assistant/internal/transport/terminal"
	"github.com/harper/interview-assistant/internal/util"
	"github.com/spf13/cobra"
)

// NewCLICmd creates the cli command
func NewCLICmd() *cobra.Command {
	var userFlag string

	cmd := &cobra.Command{
		Use:   "cli",
		Short: "Chat with the assistant in the terminal",
		Long: `Chat with the assistant in the terminal

Reads messages from stdin and prints replies. Type /help for the chat
commands, /exit to leave, or /exit_N to wait N seconds for background
extraction before leaving.`,
		Example: `  # Start as a new user
  interview cli

  # Resume as an existing user
  interview cli --user 0190f3a4-5b6c-7d8e-9f01-23456789abcd`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCLI(cmd, userFlag)
		},
	}

	cmd.Flags().StringVar(&userFlag, "user", "", "User ID to resume (default: new user)")
	return cmd
}

func runCLI(cmd *cobra.Command, userFlag string) error {
	userID, err := parseUserFlag(userFlag)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	// voice input never arrives from a terminal, so ffmpeg is optional here
	transcoder, _ := media.NewTranscoder()

	a, err := newApp(cfg, transcoder)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := terminal.EnsureUser(ctx, a.db, userID); err != nil {
		_ = a.db.Close()
		return err
	}

	pending := runtime.NewPending()
	session := terminal.NewSession(a.hub, pending, userID, cmd.InOrStdin(), cmd.OutOrStdout())
	return a.run(ctx, pending, session.Run)
}

func parseUserFlag(value string) (uuid.UUID, error) {
	if value == "" {
		return util.NewID(), nil
	}
	id, err := util.ParseUUID(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--user: %w", err)
	}
	return id, nil
}
