// ABOUTME: Auth, interview and extract workers consuming the runtime hub
// ABOUTME: Every request gets exactly one response carrying its correlation id
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/extract"
	"github.com/harper/interview-assistant/internal/interview"
	"github.com/harper/interview-assistant/internal/models"
	"github.com/harper/interview-assistant/internal/runtime"
	"github.com/harper/interview-assistant/internal/storage/sqlite"
	"github.com/harper/interview-assistant/internal/util"
)

// MediaErrorMessage is the reply when a voice or video message cannot be used
const MediaErrorMessage = "Sorry, I couldn't process that audio. Please try again or send a text message."

const (
	// ExtractEnqueueWait bounds how long a finished turn waits for room in the extract queue
	ExtractEnqueueWait = 2 * time.Second
	// ResponseWait bounds how long a worker waits for room in the response queue
	ResponseWait = 30 * time.Second
)

// PoolSizes sets the number of workers per pool
type PoolSizes struct {
	Interview int
	Extract   int
	Auth      int
}

// Workers holds what the worker pools share
type Workers struct {
	hub         *runtime.Hub
	db          *sqlite.DB
	graph       *interview.Graph
	pipeline    *extract.Pipeline
	pollTimeout time.Duration
	logger      *slog.Logger
}

// New creates the worker set
func New(hub *runtime.Hub, db *sqlite.DB, graph *interview.Graph, pipeline *extract.Pipeline, pollTimeout time.Duration) *Workers {
	return &Workers{
		hub:         hub,
		db:          db,
		graph:       graph,
		pipeline:    pipeline,
		pollTimeout: pollTimeout,
		logger:      slog.Default().With("component", "workers"),
	}
}

// Pools returns the three pools ready for runtime.Run
func (w *Workers) Pools(sizes PoolSizes) []runtime.Pool {
	return []runtime.Pool{
		{Name: "auth", Size: sizes.Auth, Worker: w.Auth},
		{Name: "interview", Size: sizes.Interview, Worker: w.Interview},
		{Name: "extract", Size: sizes.Extract, Worker: w.Extract},
	}
}

// Auth resolves external identities until shutdown
func (w *Workers) Auth(ctx context.Context, _ int) error {
	return runtime.Consume(ctx, "auth", w.hub.AuthRequests, w.hub.Shutdown, w.pollTimeout, w.handleAuth)
}

// Interview runs graph turns until shutdown
func (w *Workers) Interview(ctx context.Context, _ int) error {
	return runtime.Consume(ctx, "interview", w.hub.Requests, w.hub.Shutdown, w.pollTimeout, w.handleRequest)
}

// Extract runs the extraction pipeline until shutdown
func (w *Workers) Extract(ctx context.Context, _ int) error {
	return runtime.Consume(ctx, "extract", w.hub.Extract, w.hub.Shutdown, w.pollTimeout, w.handleExtract)
}

func (w *Workers) handleAuth(ctx context.Context, req runtime.AuthRequest) (err error) {
	res := runtime.AuthResult{}
	// the caller is waiting on Reply even if this handler panics
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("auth panic: %v", r)
		}
		if err != nil {
			res = runtime.AuthResult{Err: err}
		}
		select {
		case req.Reply <- res:
		default:
		}
	}()

	if req.Provider == "" || req.ExternalID == "" {
		return fmt.Errorf("%w: provider and external id are required", models.ErrValidation)
	}

	userID := util.UserIDFor(req.Provider, req.ExternalID)
	name := req.DisplayName
	if name == "" {
		name = util.DefaultDisplayName(req.Provider, req.ExternalID)
	}

	var created bool
	err = w.db.Transaction(ctx, func(r *sqlite.Repos) error {
		var err error
		created, err = r.Users.CreateIfNotExists(ctx, &models.User{ID: userID, Name: name, Mode: models.ModeAuto})
		return err
	})
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}
	if created {
		w.logger.Info("created user", "user_id", userID, "provider", req.Provider)
	}
	res.UserID = userID
	return nil
}

func (w *Workers) handleRequest(ctx context.Context, req runtime.Request) error {
	text, err := w.turn(ctx, req)
	if err != nil {
		text = replyForError(err)
	}
	w.respond(runtime.Response{CorrelationID: req.CorrelationID, Text: text})
	if err != nil {
		return fmt.Errorf("turn %s: %w", req.CorrelationID, err)
	}
	return nil
}

func (w *Workers) turn(ctx context.Context, req runtime.Request) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("turn panic: %v", r)
		}
	}()

	user, err := w.db.Repos().Users.GetByID(ctx, req.UserID)
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return "", fmt.Errorf("user %s: %w", req.UserID, models.ErrNotFound)
	}

	state := interview.NewState(user, req.Payload)
	if err := w.graph.Run(ctx, state); err != nil {
		return "", err
	}
	if state.PendingSummaryID != nil {
		w.enqueueExtract(*state.PendingSummaryID)
	}

	text = state.ResponseText()
	if text == "" {
		return "", errors.New("turn produced no reply")
	}
	return text, nil
}

func replyForError(err error) string {
	if errors.Is(err, models.ErrMediaProcessing) {
		return MediaErrorMessage
	}
	return models.GenericErrorMessage
}

func (w *Workers) enqueueExtract(summaryID uuid.UUID) {
	timer := time.NewTimer(ExtractEnqueueWait)
	defer timer.Stop()
	select {
	case w.hub.Extract <- runtime.ExtractTask{SummaryID: summaryID}:
	case <-timer.C:
		w.logger.Warn("extract queue full, dropping task", "summary_id", summaryID)
	}
}

func (w *Workers) respond(resp runtime.Response) {
	timer := time.NewTimer(ResponseWait)
	defer timer.Stop()
	select {
	case w.hub.Responses <- resp:
	case <-timer.C:
		w.logger.Error("response queue full, dropping response", "correlation_id", resp.CorrelationID)
	}
}

func (w *Workers) handleExtract(ctx context.Context, task runtime.ExtractTask) error {
	if _, err := w.pipeline.Run(ctx, task.SummaryID); err != nil {
		return fmt.Errorf("extract %s: %w", task.SummaryID, err)
	}
	return nil
}
