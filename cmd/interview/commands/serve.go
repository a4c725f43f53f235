// ABOUTME: Serve command runs the Telegram bot together with the worker pools
// ABOUTME: Polling or webhook mode comes from TELEGRAM_MODE
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harper/interview-assistant/internal/media"
	"github.com/harper/interview-assistant/internal/runtime"
	"github.com/harper/interview-assistant/internal/transport/telegram"
	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot",
		Long: `Run the Telegram bot

Starts the auth, interview and extract worker pools and connects them to
Telegram. Requires TELEGRAM_BOT_TOKEN and ffmpeg on PATH for voice and
video notes.`,
		Example: `  # Long polling (default)
  interview serve

  # Webhook mode
  TELEGRAM_MODE=webhook TELEGRAM_WEBHOOK_URL=https://bot.example.com/webhook interview serve`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if err := cfg.ValidateTelegram(); err != nil {
		return err
	}

	transcoder, err := media.NewTranscoder()
	if err != nil {
		return err
	}

	bot, err := telegram.NewBot(cfg.TelegramToken, nil)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, transcoder)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pending := runtime.NewPending()
	tr := telegram.New(bot, a.hub, pending)
	a.logger.Info("telegram bot authorized", "username", bot.Self.UserName, "mode", cfg.TelegramMode)

	return a.run(ctx, pending, func(ctx context.Context) error {
		switch cfg.TelegramMode {
		case "webhook":
			return tr.RunWebhook(ctx, telegram.WebhookConfig{
				Host:   cfg.TelegramWebhookHost,
				Port:   cfg.TelegramWebhookPort,
				Path:   cfg.TelegramWebhookPath,
				URL:    cfg.TelegramWebhookURL,
				Secret: cfg.TelegramWebhookSecret,
			})
		case "polling":
			return tr.RunPolling(ctx)
		}
		return fmt.Errorf("unknown telegram mode %q", cfg.TelegramMode)
	})
}
