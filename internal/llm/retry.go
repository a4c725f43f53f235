// ABOUTME: Retry classification and wrapper for model calls
// ABOUTME: Network errors, timeouts, 429, 5xx and bad structured output are transient
package llm

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/harper/interview-assistant/internal/metrics"
	"github.com/harper/interview-assistant/internal/models"
	"github.com/harper/interview-assistant/internal/util"
	openai "github.com/sashabaranov/go-openai"
)

// RetryPolicy returns the retry policy for model calls
func RetryPolicy(maxAttempts int, initial, maxWait time.Duration) util.Policy {
	return util.Policy{
		MaxAttempts: maxAttempts,
		InitialWait: initial,
		MaxWait:     maxWait,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			metrics.RetriesTotal.WithLabelValues("llm").Inc()
			slog.Default().Warn("model call failed, retrying",
				"component", "llm", "attempt", attempt, "wait", wait, "error", err)
		},
	}
}

// DefaultRetryPolicy is 3 attempts from 1s up to 10s
func DefaultRetryPolicy() util.Policy {
	return RetryPolicy(3, time.Second, 10*time.Second)
}

// IsTransient reports whether a failed model call is worth retrying
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrStructuredOutput) || errors.Is(err, ErrTruncated) || errors.Is(err, ErrEmptyResponse) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == 0 {
			return true
		}
		return retryableStatus(reqErr.HTTPStatusCode)
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	return code == 429 || code >= 500
}

// InvokeWithRetry runs op under policy, retrying transient failures.
// Context cancellation is never retried.
func InvokeWithRetry[T any](ctx context.Context, policy util.Policy, op func(ctx context.Context) (T, error)) (T, error) {
	return util.Retry(ctx, policy, IsTransient, op)
}

// Invoke is Chat.Complete with retries
func Invoke(ctx context.Context, chat Chat, policy util.Policy, req Request) (models.Message, error) {
	return InvokeWithRetry(ctx, policy, func(ctx context.Context) (models.Message, error) {
		return chat.Complete(ctx, req)
	})
}
