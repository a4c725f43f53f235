// ABOUTME: Bounded tool-calling loop for managing life areas
// ABOUTME: Alternates model turns and tool execution until the model stops calling tools
package areas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/config"
	"github.com/harper/interview-assistant/internal/llm"
	"github.com/harper/interview-assistant/internal/models"
	"github.com/harper/interview-assistant/internal/prompts"
	"github.com/harper/interview-assistant/internal/storage/sqlite"
	"github.com/harper/interview-assistant/internal/util"
)

// ErrRecursionLimit is returned when the model keeps calling tools past the bound
var ErrRecursionLimit = errors.New("area loop exceeded its step limit")

// Result is the outcome of one loop run
type Result struct {
	// Messages are the new AI and tool messages, in order
	Messages []models.Message
	Success  bool
}

// Loop runs the area management conversation
type Loop struct {
	chat     llm.Chat
	db       *sqlite.DB
	registry *Registry
	policy   util.Policy
	maxNodes int
	logger   *slog.Logger
}

// NewLoop creates a loop bound to the registry's tools
func NewLoop(chat llm.Chat, db *sqlite.DB, registry *Registry, policy util.Policy) *Loop {
	return &Loop{
		chat:     chat,
		db:       db,
		registry: registry,
		policy:   policy,
		maxNodes: config.MaxAreaRecursion,
		logger:   slog.Default().With("component", "area_loop"),
	}
}

// Run drives the loop for userID starting from history, which should end
// with the user's message. Each tool call commits in its own transaction.
func (l *Loop) Run(ctx context.Context, userID uuid.UUID, history []models.Message) (*Result, error) {
	res := &Result{}
	conversation := append([]models.Message(nil), history...)
	system := prompts.AreaChat(userID.String())
	visits := 0

	for {
		visits++
		if visits > l.maxNodes {
			return res, fmt.Errorf("%w (%d node visits)", ErrRecursionLimit, l.maxNodes)
		}

		reply, err := llm.Invoke(ctx, l.chat, l.policy, llm.Request{
			System:   system,
			Messages: util.StripOrphanToolMessages(conversation),
			Tools:    l.registry.Tools(),
		})
		if err != nil {
			return res, fmt.Errorf("area chat: %w", err)
		}
		conversation = append(conversation, reply)
		res.Messages = append(res.Messages, reply)

		if len(reply.ToolCalls) == 0 {
			res.Success = true
			l.logger.Debug("area loop finished", "node_visits", visits)
			return res, nil
		}

		visits++
		if visits > l.maxNodes {
			return res, fmt.Errorf("%w (%d node visits)", ErrRecursionLimit, l.maxNodes)
		}
		for _, call := range reply.ToolCalls {
			msg, err := l.execute(ctx, userID, call)
			if err != nil {
				return res, err
			}
			conversation = append(conversation, msg)
			res.Messages = append(res.Messages, msg)
		}
	}
}

// execute runs one call in its own write transaction. Tool failures are
// reported back to the model; only cancellation aborts the loop.
func (l *Loop) execute(ctx context.Context, userID uuid.UUID, call models.ToolCall) (models.Message, error) {
	l.logger.Info("calling tool", "tool", call.Name, "user_id", userID)

	var out string
	err := l.db.Transaction(ctx, func(repos *sqlite.Repos) error {
		var err error
		out, err = l.registry.Execute(ctx, repos, userID, call)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return models.Message{}, ctx.Err()
		}
		l.logger.Warn("tool failed", "tool", call.Name, "error", err)
		out = "tool_error: " + err.Error()
	}
	return models.ToolMessage(call.ID, call.Name, out), nil
}
