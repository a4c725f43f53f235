// ABOUTME: Worker pool runner and the shared consume loop
// ABOUTME: Pools drain on shutdown; a handler already running is allowed to finish
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/harper/interview-assistant/internal/metrics"
)

// DefaultCheckInterval is how often pools and loops re-check shutdown
const DefaultCheckInterval = 500 * time.Millisecond

// WorkerFunc runs one worker until its context is cancelled or shutdown is set
type WorkerFunc func(ctx context.Context, workerID int) error

// RunPool starts size workers and blocks until they have all returned.
// When shutdown is set (or ctx is done) the worker context is cancelled and
// the pool waits for every worker. Worker errors and panics are logged only.
func RunPool(ctx context.Context, name string, workerFn WorkerFunc, size int, shutdown *ShutdownFlag, checkInterval time.Duration) {
	if checkInterval <= 0 {
		checkInterval = DefaultCheckInterval
	}
	logger := slog.Default().With("component", "pool", "pool", name)
	logger.Info("starting worker pool", "pool_size", size)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for id := 0; id < size; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					metrics.WorkerErrors.WithLabelValues(name).Inc()
					logger.Error("worker panicked", "worker_id", id, "panic", r, "stack", string(debug.Stack()))
				}
			}()
			if err := workerFn(workerCtx, id); err != nil {
				metrics.WorkerErrors.WithLabelValues(name).Inc()
				logger.Error("worker exited with error", "worker_id", id, "error", err)
			}
		}(id)
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-allDone:
			logger.Info("worker pool finished")
			return
		case <-ticker.C:
			if !shutdown.IsSet() && ctx.Err() == nil {
				continue
			}
		case <-shutdown.Done():
		case <-ctx.Done():
		}
		logger.Info("shutting down worker pool")
		cancel()
		<-allDone
		return
	}
}

// Handler processes one dequeued item
type Handler[T any] func(ctx context.Context, item T) error

// Consume is the common worker loop: wait for an item with a bounded poll,
// re-check shutdown on every timeout, and process items with recovery.
// Handlers run on a context that is not cancelled by shutdown, so an
// in-flight turn completes before the worker exits.
func Consume[T any](ctx context.Context, pool string, queue <-chan T, shutdown *ShutdownFlag, pollTimeout time.Duration, handle Handler[T]) error {
	if pollTimeout <= 0 {
		pollTimeout = DefaultCheckInterval
	}
	logger := slog.Default().With("component", "worker", "pool", pool)
	handlerCtx := context.WithoutCancel(ctx)

	timer := time.NewTimer(pollTimeout)
	defer timer.Stop()

	for {
		if shutdown.IsSet() || ctx.Err() != nil {
			return nil
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(pollTimeout)

		select {
		case item, ok := <-queue:
			if !ok {
				return nil
			}
			process(handlerCtx, pool, logger, item, handle)
		case <-timer.C:
		case <-shutdown.Done():
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func process[T any](ctx context.Context, pool string, logger *slog.Logger, item T, handle Handler[T]) {
	start := time.Now()
	metrics.MessagesTotal.WithLabelValues(pool, "in").Inc()
	defer func() {
		if r := recover(); r != nil {
			metrics.WorkerErrors.WithLabelValues(pool).Inc()
			logger.Error("handler panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
		metrics.HandlerDuration.WithLabelValues(pool).Observe(time.Since(start).Seconds())
		metrics.TasksDone.WithLabelValues(pool).Inc()
	}()

	if err := handle(ctx, item); err != nil {
		metrics.WorkerErrors.WithLabelValues(pool).Inc()
		logger.Error("handler failed", "error", err)
	}
}
