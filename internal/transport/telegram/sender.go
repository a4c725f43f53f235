// ABOUTME: Outbound side of the bot: rate-limited sends with retry and message splitting
// ABOUTME: Also drives the periodic "typing" chat action while a turn is in flight
package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/harper/interview-assistant/internal/metrics"
	"github.com/harper/interview-assistant/internal/util"
	"golang.org/x/time/rate"
)

const (
	// MaxMessageLength is Telegram's per-message character limit
	MaxMessageLength = 4096
	// TypingInterval is how often the typing action is refreshed
	TypingInterval = 4 * time.Second

	// Telegram allows roughly 30 messages per second per bot
	sendRate  = 30
	sendBurst = 30
)

// DefaultSendPolicy retries network failures 3 times starting at 1s
func DefaultSendPolicy() util.Policy {
	return util.Policy{MaxAttempts: 3, InitialWait: time.Second, MaxWait: 4 * time.Second}
}

// Sender writes to Telegram chats
type Sender struct {
	bot     BotAPI
	limiter *rate.Limiter
	policy  util.Policy
	logger  *slog.Logger
}

// NewSender wraps bot with a global rate limit and the default retry policy
func NewSender(bot BotAPI) *Sender {
	return &Sender{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(sendRate), sendBurst),
		policy:  DefaultSendPolicy(),
		logger:  slog.Default().With("component", "telegram_sender"),
	}
}

// SetPolicy overrides the send retry policy
func (s *Sender) SetPolicy(p util.Policy) {
	s.policy = p
}

// SendText delivers text to chatID, split into chunks that fit one message
func (s *Sender) SendText(ctx context.Context, chatID int64, text string) error {
	for _, chunk := range SplitMessage(text, MaxMessageLength) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if err := s.send(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// Reply answers a specific message and only logs delivery failures
func (s *Sender) Reply(ctx context.Context, chatID int64, replyTo int, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	if err := s.send(ctx, msg); err != nil {
		s.logger.Warn("could not send reply", "chat_id", chatID, "error", err)
	}
}

func (s *Sender) send(ctx context.Context, msg tgbotapi.MessageConfig) error {
	policy := s.policy
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		metrics.RetriesTotal.WithLabelValues("telegram").Inc()
		s.logger.Warn("network error sending message, retrying",
			"chat_id", msg.ChatID, "attempt", attempt, "wait", wait, "error", err)
	}
	return util.RetryErr(ctx, policy, isNetworkError, func(ctx context.Context) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		_, err := s.bot.Send(msg)
		return err
	})
}

// Typing shows the typing indicator in chatID until the returned stop is called
func (s *Sender) Typing(ctx context.Context, chatID int64) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(TypingInterval)
		defer ticker.Stop()
		for {
			// chat actions return true rather than a Message, so Request not Send
			if _, err := s.bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
				s.logger.Debug("typing action failed", "chat_id", chatID, "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// isNetworkError reports whether err is worth retrying. The Bot API's own
// refusals (bad request, blocked by user) come back as tgbotapi.Error.
func isNetworkError(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter > 0
	}
	var apiVal tgbotapi.Error
	if errors.As(err, &apiVal) {
		return apiVal.RetryAfter > 0
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// SplitMessage breaks text into chunks of at most maxLen characters,
// preferring to cut at the last space inside the limit
func SplitMessage(text string, maxLen int) []string {
	if utf8.RuneCountInString(text) <= maxLen {
		return []string{text}
	}
	var chunks []string
	runes := []rune(text)
	for len(runes) > 0 {
		if len(runes) <= maxLen {
			chunks = append(chunks, string(runes))
			break
		}
		cut := lastSpace(runes[:maxLen])
		if cut <= 0 {
			cut = maxLen
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = []rune(strings.TrimLeft(string(runes[cut:]), " "))
	}
	return chunks
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return -1
}
