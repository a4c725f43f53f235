// ABOUTME: Graph nodes from transcription through the three turn handlers
// ABOUTME: Each node reads and mutates State; persistence happens in save_history
package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harper/interview-assistant/internal/config"
	"github.com/harper/interview-assistant/internal/interview/leaf"
	"github.com/harper/interview-assistant/internal/llm"
	"github.com/harper/interview-assistant/internal/metrics"
	"github.com/harper/interview-assistant/internal/models"
	"github.com/harper/interview-assistant/internal/prompts"
	"github.com/harper/interview-assistant/internal/util"
)

// targetChoice is the structured output of the router
type targetChoice struct {
	Target models.Target `json:"target" validate:"required,oneof=conduct_interview manage_areas small_talk"`
}

func (g *Graph) transcribe(ctx context.Context, s *State) error {
	if !s.Payload.IsMedia() {
		s.Text = s.Payload.Text
		return nil
	}
	if g.transcoder == nil || g.transcriber == nil {
		return fmt.Errorf("%w: media input is not enabled", models.ErrMediaProcessing)
	}

	wavPath, cleanup, err := g.transcoder.ToWAV(ctx, *s.Payload.Media)
	if err != nil {
		return err
	}
	defer cleanup()

	text, err := llm.InvokeWithRetry(ctx, g.policy, func(ctx context.Context) (string, error) {
		return g.transcriber.Transcribe(ctx, wavPath)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.LLMCalls.WithLabelValues("transcribe", "error").Inc()
		return fmt.Errorf("%w: transcription: %v", models.ErrMediaProcessing, err)
	}
	metrics.LLMCalls.WithLabelValues("transcribe", "ok").Inc()

	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("%w: empty transcription", models.ErrMediaProcessing)
	}
	s.Text = text
	g.logger.Info("transcribed media", "user_id", s.User.ID, "kind", s.Payload.Media.Kind, "chars", len(text))
	return nil
}

func (g *Graph) handleCommand(ctx context.Context, s *State) error {
	if g.commands == nil {
		return nil
	}
	reply, handled, err := g.commands.Handle(ctx, s.User, s.Text)
	if err != nil {
		return err
	}
	if handled {
		s.Reply = reply
		s.Handled = true
	}
	return nil
}

func (g *Graph) loadHistory(ctx context.Context, s *State) error {
	rows, err := g.db.Repos().Histories.ListRecentByUser(ctx, s.User.ID, config.HistoryLimitGlobal)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	messages := make([]models.Message, 0, len(rows)+1)
	for _, row := range rows {
		msg := row.Message
		if !msg.Role.Valid() {
			g.logger.Warn("dropping history row with unknown role", "history_id", row.ID, "role", msg.Role)
			continue
		}
		if msg.Role == models.RoleAI && msg.ToolCalls == nil {
			msg.ToolCalls = []models.ToolCall{}
		}
		messages = append(messages, msg)
	}
	s.Messages = messages
	return nil
}

func (g *Graph) buildUserMessage(_ context.Context, s *State) error {
	msg := models.HumanMessage(s.Text)
	s.Messages = append(s.Messages, msg)
	s.MessagesToSave = s.MessagesToSave.Add(s.now(), msg)
	return nil
}

func (g *Graph) extractTarget(ctx context.Context, s *State) error {
	if target, ok := models.TargetForMode(s.User.Mode); ok {
		s.Target = target
		return nil
	}

	recent := util.StripOrphanToolMessages(util.LastN(s.Messages, config.HistoryLimitExtractTarget))
	choice, err := llm.Structured[targetChoice](ctx, g.chat, g.policy, "target", llm.Request{
		System:      prompts.ExtractTarget(g.areaTools.Describe()),
		Messages:    recent,
		Temperature: llm.Temperature(0),
	})
	if err != nil {
		return g.fail(ctx, s, "extract_target", err)
	}
	metrics.LLMCalls.WithLabelValues("extract_target", "ok").Inc()
	s.Target = choice.Target
	g.logger.Debug("routed turn", "user_id", s.User.ID, "target", s.Target)
	return nil
}

func (g *Graph) smallTalk(ctx context.Context, s *State) error {
	metrics.TurnsTotal.WithLabelValues(string(models.TargetSmallTalk)).Inc()
	recent := util.LastN(util.FilterToolMessages(s.Messages), config.HistoryLimitExtractTarget)
	reply, err := llm.Invoke(ctx, g.chat, g.policy, llm.Request{
		System:   prompts.SmallTalk,
		Messages: recent,
	})
	if err != nil {
		return g.fail(ctx, s, "small_talk", err)
	}
	metrics.LLMCalls.WithLabelValues("small_talk", "ok").Inc()
	g.record(s, models.AIMessage(strings.TrimSpace(reply.Content)))
	return nil
}

func (g *Graph) manageAreas(ctx context.Context, s *State) error {
	metrics.TurnsTotal.WithLabelValues(string(models.TargetManageAreas)).Inc()
	res, err := g.areaLoop.Run(ctx, s.User.ID, s.Messages)
	if err != nil {
		return g.fail(ctx, s, "manage_areas", err)
	}
	for _, msg := range res.Messages {
		g.record(s, msg)
	}
	return nil
}

func (g *Graph) conductInterview(ctx context.Context, s *State) error {
	metrics.TurnsTotal.WithLabelValues(string(models.TargetConductInterview)).Inc()
	ls := &leaf.State{
		UserID:         s.User.ID,
		RootID:         s.AreaID,
		Messages:       s.Messages,
		Now:            s.now,
		MessagesToSave: s.MessagesToSave,
	}
	if err := g.leaf.Run(ctx, ls); err != nil {
		return err
	}
	s.Leaf = ls
	s.Messages = ls.Messages
	s.MessagesToSave = ls.MessagesToSave
	s.Success = ls.Success
	return nil
}

// record appends msg to the conversation and to the messages saved this turn
func (g *Graph) record(s *State, msg models.Message) {
	s.Messages = append(s.Messages, msg)
	s.MessagesToSave = s.MessagesToSave.Add(s.now(), msg)
}

// fail ends the turn unsaved with an apology. Cancellation is passed up.
func (g *Graph) fail(ctx context.Context, s *State, node string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	metrics.LLMCalls.WithLabelValues(node, "error").Inc()
	g.logger.Error("turn failed", "node", node, "user_id", s.User.ID, "error", err)
	s.Success = false
	s.Messages = append(s.Messages, models.AIMessage(models.UnavailableMessage))
	return nil
}
