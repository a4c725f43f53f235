// ABOUTME: Webhook mode: registers the public URL with Telegram and serves update posts
// ABOUTME: Requests must carry the configured secret in X-Telegram-Bot-Api-Secret-Token
package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SecretHeader carries the webhook secret on every update Telegram posts
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookConfig describes where updates are received
type WebhookConfig struct {
	Host   string
	Port   int
	Path   string
	URL    string
	Secret string
}

// RunWebhook registers the webhook, serves updates until ctx is cancelled,
// then removes the webhook
func (t *Transport) RunWebhook(ctx context.Context, cfg WebhookConfig) error {
	if cfg.URL == "" {
		return fmt.Errorf("webhook url is required")
	}
	if err := t.setWebhook(cfg); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, t.WebhookHandler(ctx, cfg.Secret))
	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		t.logger.Info("telegram webhook listening", "addr", srv.Addr, "path", cfg.Path, "url", cfg.URL)
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		t.logger.Warn("webhook server shutdown failed", "error", err)
	}
	if _, err := t.bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		t.logger.Warn("failed to delete webhook", "error", err)
	}
	t.wg.Wait()
	return serveErr
}

// setWebhook goes through MakeRequest because the library's WebhookConfig
// has no secret_token field
func (t *Transport) setWebhook(cfg WebhookConfig) error {
	params := tgbotapi.Params{"url": cfg.URL}
	params.AddNonEmpty("secret_token", cfg.Secret)
	if _, err := t.bot.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

// WebhookHandler accepts update posts and dispatches them under ctx.
// An empty secret disables the header check.
func (t *Transport) WebhookHandler(ctx context.Context, secret string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if secret != "" {
			got := r.Header.Get(SecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				t.logger.Warn("rejected webhook request with bad secret", "remote", r.RemoteAddr)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}

		var update tgbotapi.Update
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&update); err != nil {
			t.logger.Warn("malformed webhook update", "error", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		t.Dispatch(ctx, update)
		w.WriteHeader(http.StatusOK)
	})
}
