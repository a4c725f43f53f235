// ABOUTME: Telegram transport: turns updates into hub requests and replies to the chat
// ABOUTME: Runs in long-polling or webhook mode; each message is handled in its own goroutine
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harper/interview-assistant/internal/media"
	"github.com/harper/interview-assistant/internal/models"
	"github.com/harper/interview-assistant/internal/runtime"
)

const (
	// Provider is the auth provider name for Telegram identities
	Provider = "telegram"
	// AuthTimeout bounds the wait for an auth worker reply
	AuthTimeout = 30 * time.Second

	// GreetingMessage answers /start without involving the interview graph
	GreetingMessage = "Hello! I'm your interview assistant.\n\n" +
		"Send me a text or voice message to start a conversation."
	// TimeoutMessage is sent when auth or the hub did not answer in time
	TimeoutMessage = "Service temporarily unavailable. Please try again."

	voiceDownloadFailed = "Failed to download voice message"
	videoDownloadFailed = "Failed to download video message"

	maxDownloadBytes = 50 << 20
)

// Transport connects a bot to the runtime hub
type Transport struct {
	bot         BotAPI
	hub         *runtime.Hub
	pending     *runtime.Pending
	sender      *Sender
	client      *http.Client
	authTimeout time.Duration
	wg          sync.WaitGroup
	logger      *slog.Logger
}

// New creates a transport. Responses for its requests arrive through pending,
// which the caller must pass to runtime.Listen.
func New(bot BotAPI, hub *runtime.Hub, pending *runtime.Pending) *Transport {
	return &Transport{
		bot:         bot,
		hub:         hub,
		pending:     pending,
		sender:      NewSender(bot),
		client:      &http.Client{Timeout: 60 * time.Second},
		authTimeout: AuthTimeout,
		logger:      slog.Default().With("component", "telegram"),
	}
}

// Sender exposes the outbound side, mainly for tuning retries in tests
func (t *Transport) Sender() *Sender {
	return t.sender
}

// RunPolling long-polls for updates until ctx is cancelled
func (t *Transport) RunPolling(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)
	t.logger.Info("telegram polling started")

	defer func() {
		t.bot.StopReceivingUpdates()
		t.wg.Wait()
		t.logger.Info("telegram polling stopped")
	}()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.Dispatch(ctx, update)
		case <-ctx.Done():
			return nil
		}
	}
}

// Dispatch handles one update in the background
func (t *Transport) Dispatch(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil {
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.HandleMessage(ctx, update.Message)
	}()
}

// Wait blocks until every dispatched message has been handled
func (t *Transport) Wait() {
	t.wg.Wait()
}

// HandleMessage runs one inbound message through auth and the interview
// workers and sends the reply. Failures are answered in the chat.
func (t *Transport) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if msg.IsCommand() && msg.Command() == "start" {
		t.sender.Reply(ctx, msg.Chat.ID, msg.MessageID, GreetingMessage)
		return
	}
	if msg.Text == "" && msg.Voice == nil && msg.VideoNote == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic handling telegram message", "panic", r)
			t.sender.Reply(ctx, msg.Chat.ID, msg.MessageID, models.GenericErrorMessage)
		}
	}()

	stopTyping := t.sender.Typing(ctx, msg.Chat.ID)
	reply, err := t.process(ctx, msg)
	stopTyping()

	switch {
	case err == nil:
		if err := t.sender.SendText(ctx, msg.Chat.ID, reply); err != nil {
			t.logger.Error("failed to send response", "chat_id", msg.Chat.ID, "error", err)
		}
	case errors.Is(err, errDownload):
		t.sender.Reply(ctx, msg.Chat.ID, msg.MessageID, reply)
	case errors.Is(err, context.DeadlineExceeded):
		t.logger.Warn("telegram request timed out", "chat_id", msg.Chat.ID, "error", err)
		t.sender.Reply(ctx, msg.Chat.ID, msg.MessageID, TimeoutMessage)
	case errors.Is(err, context.Canceled):
		t.logger.Info("dropping telegram message on shutdown", "chat_id", msg.Chat.ID)
	default:
		t.logger.Error("failed to process telegram message", "chat_id", msg.Chat.ID, "error", err)
		t.sender.Reply(ctx, msg.Chat.ID, msg.MessageID, models.GenericErrorMessage)
	}
}

var errDownload = errors.New("download failed")

func (t *Transport) process(ctx context.Context, msg *tgbotapi.Message) (string, error) {
	payload, failure, err := t.payload(ctx, msg)
	if err != nil {
		t.logger.Warn("media download failed", "chat_id", msg.Chat.ID, "error", err)
		return failure, fmt.Errorf("%w: %v", errDownload, err)
	}

	userID, err := t.hub.ResolveUser(ctx, Provider, strconv.FormatInt(msg.From.ID, 10), displayName(msg.From), t.authTimeout)
	if err != nil {
		return "", fmt.Errorf("resolve user: %w", err)
	}
	return t.hub.Ask(ctx, t.pending, userID, payload)
}

// payload builds the hub payload; on download failure it also returns the
// user-facing explanation
func (t *Transport) payload(ctx context.Context, msg *tgbotapi.Message) (runtime.Payload, string, error) {
	switch {
	case msg.Voice != nil:
		data, err := t.download(ctx, msg.Voice.FileID)
		if err != nil {
			return runtime.Payload{}, voiceDownloadFailed, err
		}
		mime := msg.Voice.MimeType
		if mime == "" {
			mime = "audio/ogg"
		}
		return runtime.Payload{Media: &media.Media{Kind: media.KindVoice, Data: data, MimeType: mime}}, "", nil
	case msg.VideoNote != nil:
		data, err := t.download(ctx, msg.VideoNote.FileID)
		if err != nil {
			return runtime.Payload{}, videoDownloadFailed, err
		}
		return runtime.Payload{Media: &media.Media{Kind: media.KindVideoNote, Data: data, MimeType: "video/mp4"}}, "", nil
	}
	return runtime.TextPayload(msg.Text), "", nil
}

func (t *Transport) download(ctx context.Context, fileID string) ([]byte, error) {
	link, err := t.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get telegram file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download telegram file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download telegram file: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("read telegram file body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("telegram file is empty")
	}
	return data, nil
}

// displayName prefers the @username, then the first name
func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName)
}
