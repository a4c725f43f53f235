// ABOUTME: Process wiring shared by serve and cli: store, model client, graph and pools
// ABOUTME: run drives the pools, the response listener and maintenance around one transport
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	slashcmd "github.com/harper/interview-assistant/internal/commands"
	"github.com/harper/interview-assistant/internal/config"
	"github.com/harper/interview-assistant/internal/extract"
	"github.com/harper/interview-assistant/internal/interview"
	"github.com/harper/interview-assistant/internal/interview/leaf"
	"github.com/harper/interview-assistant/internal/llm"
	"github.com/harper/interview-assistant/internal/media"
	"github.com/harper/interview-assistant/internal/runtime"
	"github.com/harper/interview-assistant/internal/storage/sqlite"
	"github.com/harper/interview-assistant/internal/util"
	"github.com/harper/interview-assistant/internal/workers"
)

const (
	checkpointSpec = "@every 5m"
	sweepSpec      = "@every 1m"
)

// app is one running assistant process
type app struct {
	cfg     *config.Config
	db      *sqlite.DB
	hub     *runtime.Hub
	tokens  *slashcmd.TokenStore
	workers *workers.Workers
	logger  *slog.Logger
}

// newLLMClient builds the OpenRouter-backed client from cfg
func newLLMClient(cfg *config.Config) (*llm.OpenAIClient, error) {
	return llm.NewOpenAIClientWithConfig(&llm.ClientConfig{
		APIKey:              cfg.APIKey,
		BaseURL:             cfg.BaseURL,
		ChatModel:           cfg.ChatModel,
		EmbeddingModel:      cfg.EmbeddingModel,
		TranscriptionModel:  cfg.TranscriptionModel,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		Timeout:             cfg.LLMTimeout,
	})
}

func retryPolicy(cfg *config.Config) util.Policy {
	return llm.RetryPolicy(cfg.RetryMaxAttempts, cfg.RetryInitialWait, cfg.RetryMaxWait)
}

// newApp opens the store and wires the graph and workers. transcoder may
// be nil, in which case media turns fail with the media error reply.
func newApp(cfg *config.Config, transcoder *media.Transcoder) (*app, error) {
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	client, err := newLLMClient(cfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create model client: %w", err)
	}

	policy := retryPolicy(cfg)
	tokens := slashcmd.NewTokenStore(config.ConfirmTokenTTL)
	deps := interview.Deps{
		DB:           db,
		Chat:         client,
		Embedder:     client,
		Transcriber:  client,
		Commands:     slashcmd.NewRegistry(db, tokens),
		Policy:       policy,
		EmbeddingDim: cfg.EmbeddingDimensions,
		Paths:        leaf.NewPathCache(leaf.DefaultPathTTL),
	}
	if transcoder != nil {
		deps.Transcoder = transcoder
	}

	hub := runtime.NewHub(cfg.ChannelCapacity)
	pipeline := extract.New(db, client, client, policy, cfg.EmbeddingDimensions)
	return &app{
		cfg:     cfg,
		db:      db,
		hub:     hub,
		tokens:  tokens,
		workers: workers.New(hub, db, interview.New(deps), pipeline, cfg.PollTimeout),
		logger:  slog.Default().With("component", "app"),
	}, nil
}

// run starts maintenance, the pools and the response listener, then runs
// transport in the foreground. When transport returns (or ctx is cancelled)
// the shutdown flag is set and run waits for in-flight turns to finish.
func (a *app) run(ctx context.Context, pending *runtime.Pending, transport func(ctx context.Context) error) error {
	defer func() {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("error closing database", "error", err)
		}
	}()

	stopMaintenance, err := runtime.StartMaintenance(ctx,
		runtime.CheckpointJob(checkpointSpec, a.db.Checkpoint),
		runtime.SweepJob(sweepSpec, a.tokens.DeleteExpired),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}
	defer stopMaintenance()

	// the listener outlives ctx and stops only after the pools have exited,
	// so replies to in-flight turns still land
	poolsStopped := make(chan struct{})
	listenCtx, stopListening := context.WithCancel(context.WithoutCancel(ctx))
	listenDone := make(chan struct{})
	go func() {
		defer close(listenDone)
		runtime.Listen(listenCtx, a.hub.Responses, poolsStopped, pending)
	}()

	poolsDone := make(chan error, 1)
	go func() {
		err := runtime.New(a.hub, a.cfg.ShutdownCheckInterval).Run(ctx, a.workers.Pools(workers.PoolSizes{
			Interview: a.cfg.InterviewPoolSize,
			Extract:   a.cfg.ExtractPoolSize,
			Auth:      a.cfg.AuthPoolSize,
		})...)
		close(poolsStopped)
		poolsDone <- err
	}()

	transportErr := transport(ctx)
	a.hub.Shutdown.Set()
	a.logger.Info("waiting for workers to finish")

	poolErr := <-poolsDone
	<-listenDone
	stopListening()

	if errors.Is(transportErr, context.Canceled) {
		transportErr = nil
	}
	return errors.Join(transportErr, poolErr)
}
