// ABOUTME: Node implementations of the leaf interview subgraph
// ABOUTME: Context load, answer evaluation, coverage, leaf selection and replies
package leaf

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/config"
	"github.com/harper/interview-assistant/internal/llm"
	"github.com/harper/interview-assistant/internal/metrics"
	"github.com/harper/interview-assistant/internal/models"
	"github.com/harper/interview-assistant/internal/prompts"
	"github.com/harper/interview-assistant/internal/storage/sqlite"
	"github.com/harper/interview-assistant/internal/util"
)

// EvaluationFailedReason marks a verdict substituted after the evaluator failed
const EvaluationFailedReason = "Evaluation failed"

// ResetCommand is the command that reopens a finished area
func ResetCommand(rootID uuid.UUID) string {
	return "/reset_area_" + rootID.String()
}

// leavesOf returns the leaf areas below rootID in id order
func leavesOf(ctx context.Context, repos *sqlite.Repos, rootID uuid.UUID) ([]util.SubAreaInfo, error) {
	descendants, err := repos.Areas.GetDescendants(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("list descendants: %w", err)
	}
	return util.LeafAreas(util.BuildSubAreaInfo(descendants, rootID)), nil
}

func (g *Subgraph) loadInterviewContext(ctx context.Context, s *State) error {
	repos := g.db.Repos()
	root, err := repos.Areas.GetByID(ctx, s.RootID)
	if err != nil {
		return err
	}
	if root != nil && root.ExtractedAt != nil {
		s.AreaAlreadyExtracted = true
		g.logger.Info("area already extracted", "area_id", s.RootID)
		return nil
	}

	leaves, err := leavesOf(ctx, repos, s.RootID)
	if err != nil {
		return err
	}
	if len(leaves) == 0 {
		s.NoLeaves = true
		s.AllLeavesDone = true
		g.logger.Info("no leaf areas", "area_id", s.RootID)
		return nil
	}
	g.paths.Remember(s.RootID, leaves)

	leafIDs := make([]uuid.UUID, 0, len(leaves))
	inTree := make(map[uuid.UUID]bool, len(leaves))
	for _, info := range leaves {
		leafIDs = append(leafIDs, info.Area.ID)
		inTree[info.Area.ID] = true
	}

	return g.db.Transaction(ctx, func(r *sqlite.Repos) error {
		if err := r.Coverage.EnsurePending(ctx, s.RootID, leafIDs); err != nil {
			return err
		}

		current, err := r.Contexts.GetByUser(ctx, s.UserID)
		if err != nil {
			return err
		}
		if current != nil && current.RootAreaID == s.RootID && inTree[current.ActiveLeafID] {
			s.ActiveLeafID = current.ActiveLeafID
			s.QuestionText = current.QuestionText
			if current.QuestionText != "" {
				s.EvaluatedLeafID = current.ActiveLeafID
			}
			g.logger.Info("loaded interview context", "user_id", s.UserID, "leaf_id", s.ActiveLeafID)
			return nil
		}

		coverage, err := r.Coverage.ListByRoot(ctx, s.RootID)
		if err != nil {
			return err
		}
		var next uuid.UUID
		for _, id := range leafIDs {
			if !coverage[id].Status.Closed() {
				next = id
				break
			}
		}
		if next == uuid.Nil {
			s.AllLeavesDone = true
			g.logger.Info("all leaves covered", "area_id", s.RootID)
			if current != nil {
				return r.Contexts.DeleteByUser(ctx, s.UserID)
			}
			return nil
		}

		// a context for another root may have left one of these leaves active
		for id, c := range coverage {
			if c.Status == models.CoverageActive && id != next {
				if err := r.Coverage.UpdateStatus(ctx, s.RootID, id, models.CoveragePending); err != nil {
					return err
				}
			}
		}
		if err := r.Contexts.Create(ctx, &models.ActiveInterviewContext{
			UserID:       s.UserID,
			RootAreaID:   s.RootID,
			ActiveLeafID: next,
		}); err != nil {
			return err
		}
		if err := r.Coverage.UpdateStatus(ctx, s.RootID, next, models.CoverageActive); err != nil {
			return err
		}
		s.ActiveLeafID = next
		s.QuestionText = ""
		g.logger.Info("created interview context", "user_id", s.UserID, "leaf_id", next)
		return nil
	})
}

// currentAnswer is the user message being evaluated
func currentAnswer(s *State) (models.Message, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == models.RoleUser {
			return s.Messages[i], true
		}
	}
	return models.Message{}, false
}

// leafConversation is the leaf's stored exchange plus the current answer
func (g *Subgraph) leafConversation(ctx context.Context, repos *sqlite.Repos, s *State, leafID uuid.UUID) ([]models.Message, error) {
	rows, err := repos.LeafHistory.ListMessages(ctx, leafID)
	if err != nil {
		return nil, fmt.Errorf("leaf history: %w", err)
	}
	msgs := make([]models.Message, 0, len(rows)+1)
	for _, h := range rows {
		msgs = append(msgs, h.Message)
	}
	msgs = util.FilterToolMessages(msgs)
	if answer, ok := currentAnswer(s); ok {
		msgs = append(msgs, answer)
	}
	return msgs, nil
}

func (g *Subgraph) quickEvaluate(ctx context.Context, s *State) error {
	repos := g.db.Repos()
	leafID := s.EvaluatedLeafID

	conversation, err := g.leafConversation(ctx, repos, s, leafID)
	if err != nil {
		return err
	}
	path := g.paths.Path(ctx, repos, s.RootID, leafID)
	question := s.QuestionText
	if question == "" {
		question = "Initial question about this topic"
	}

	eval, err := llm.Structured[models.LeafEvaluation](ctx, g.chat, g.opts.Policy, "leaf_evaluation", llm.Request{
		System:      prompts.QuickEvaluate(path, question, util.FormatTranscript(conversation)),
		Messages:    []models.Message{models.HumanMessage("Evaluate the response.")},
		Temperature: llm.Temperature(0),
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.LLMCalls.WithLabelValues("evaluate", "error").Inc()
		g.logger.Error("evaluation failed", "leaf_id", leafID, "error", err)
		eval = models.LeafEvaluation{Status: models.EvaluationPartial, Reason: EvaluationFailedReason}
	} else {
		metrics.LLMCalls.WithLabelValues("evaluate", "ok").Inc()
	}

	if eval.Status == models.EvaluationPartial && g.opts.MaxTurnsPerLeaf > 0 {
		answered, err := repos.LeafHistory.CountUserMessages(ctx, leafID)
		if err != nil {
			return err
		}
		// the current answer is not stored yet
		if answered+1 >= g.opts.MaxTurnsPerLeaf {
			g.logger.Info("turn limit reached, closing leaf", "leaf_id", leafID, "answers", answered+1)
			eval = models.LeafEvaluation{
				Status: models.EvaluationComplete,
				Reason: fmt.Sprintf("Reached %d answers on this topic", g.opts.MaxTurnsPerLeaf),
			}
		}
	}

	g.logger.Info("evaluation complete", "leaf_id", leafID, "status", eval.Status)
	s.Evaluation = &eval
	return nil
}

func (g *Subgraph) updateCoverageStatus(ctx context.Context, s *State) error {
	if s.Evaluation == nil || !s.Evaluation.Closes() {
		return nil
	}
	repos := g.db.Repos()
	leafID := s.EvaluatedLeafID

	s.CompletedLeafID = leafID
	s.CompletionStatus = s.Evaluation.CoverageStatus()
	s.SetCoveredAt = true
	s.CompletedLeafPath = g.paths.Path(ctx, repos, s.RootID, leafID)

	summary, err := g.summarize(ctx, repos, s)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.logger.Error("leaf summary failed", "leaf_id", leafID, "error", err)
		return nil
	}
	if summary == "" {
		return nil
	}
	s.TurnSummaryText = summary

	vector, err := llm.InvokeWithRetry(ctx, g.opts.Policy, func(ctx context.Context) ([]float64, error) {
		return g.embedder.Embed(ctx, summary)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		metrics.LLMCalls.WithLabelValues("embed", "error").Inc()
		g.logger.Error("leaf summary embedding failed", "leaf_id", leafID, "error", err)
		return nil
	}
	metrics.LLMCalls.WithLabelValues("embed", "ok").Inc()
	if g.opts.EmbeddingDim > 0 {
		if err := models.ValidateDimension(vector, g.opts.EmbeddingDim); err != nil {
			g.logger.Error("dropping leaf summary vector", "leaf_id", leafID, "error", err)
			return nil
		}
	}
	s.CoverageVector = vector
	return nil
}

func (g *Subgraph) summarize(ctx context.Context, repos *sqlite.Repos, s *State) (string, error) {
	conversation, err := g.leafConversation(ctx, repos, s, s.CompletedLeafID)
	if err != nil {
		return "", err
	}
	transcript := util.FormatTranscript(conversation)
	if len(transcript) == 0 {
		return "", nil
	}

	reply, err := llm.Invoke(ctx, g.chat, g.opts.Policy, llm.Request{
		System:   prompts.LeafSummary(s.CompletedLeafPath, transcript),
		Messages: []models.Message{models.HumanMessage("Extract summary.")},
	})
	if err != nil {
		metrics.LLMCalls.WithLabelValues("summary", "error").Inc()
		return "", err
	}
	metrics.LLMCalls.WithLabelValues("summary", "ok").Inc()
	return strings.TrimSpace(reply.Content), nil
}

func (g *Subgraph) selectNextLeaf(ctx context.Context, s *State) error {
	if s.Evaluation != nil && !s.Evaluation.Closes() {
		return nil
	}

	repos := g.db.Repos()
	leaves, err := leavesOf(ctx, repos, s.RootID)
	if err != nil {
		return err
	}
	coverage, err := repos.Coverage.ListByRoot(ctx, s.RootID)
	if err != nil {
		return err
	}

	for _, info := range leaves {
		id := info.Area.ID
		// the completed leaf's new status is not committed yet
		if id == s.CompletedLeafID || coverage[id].Status.Closed() {
			continue
		}
		s.ActiveLeafID = id
		s.QuestionText = ""
		g.logger.Info("moving to next leaf", "leaf_id", id, "leaf_path", info.Path)
		return nil
	}

	s.ActiveLeafID = uuid.Nil
	s.QuestionText = ""
	s.AllLeavesDone = true
	s.IsFullyCovered = true
	g.logger.Info("all leaves completed", "area_id", s.RootID)
	return nil
}

func (g *Subgraph) historyLimit() int {
	if g.opts.HistoryLimit > 0 {
		return g.opts.HistoryLimit
	}
	return config.HistoryLimitInterview
}

func (g *Subgraph) budget(msgs []models.Message) []models.Message {
	if g.opts.TokenBudget > 0 {
		return util.TrimMessagesToBudget(msgs, g.opts.TokenBudget)
	}
	return msgs
}

func (g *Subgraph) generateLeafResponse(ctx context.Context, s *State) error {
	repos := g.db.Repos()
	recent := util.LastN(util.FilterToolMessages(s.Messages), g.historyLimit())

	var (
		req    llm.Request
		branch string
	)
	switch {
	case s.AllLeavesDone:
		branch = "all_done"
		req = llm.Request{System: prompts.AllLeavesDone, Messages: g.budget(recent)}
	case s.Evaluation != nil && !s.Evaluation.Closes():
		branch = "followup"
		conversation, err := g.leafConversation(ctx, repos, s, s.ActiveLeafID)
		if err != nil {
			return err
		}
		path := g.paths.Path(ctx, repos, s.RootID, s.ActiveLeafID)
		req = llm.Request{System: prompts.LeafFollowup(path, s.Evaluation.Reason), Messages: g.budget(conversation)}
	case s.Evaluation != nil:
		branch = "transition"
		path := g.paths.Path(ctx, repos, s.RootID, s.ActiveLeafID)
		// no history, so the previous topic does not leak into the new question
		req = llm.Request{
			System:   prompts.LeafComplete(s.CompletedLeafPath, path),
			Messages: []models.Message{models.HumanMessage("Generate transition.")},
		}
	default:
		branch = "initial"
		path := g.paths.Path(ctx, repos, s.RootID, s.ActiveLeafID)
		req = llm.Request{System: prompts.LeafQuestion(path), Messages: g.budget(recent)}
	}

	reply, err := llm.Invoke(ctx, g.chat, g.opts.Policy, req)
	if err != nil {
		return g.fail(ctx, s, "generate_leaf_response", err)
	}
	content := strings.TrimSpace(reply.Content)
	g.respond(s, content)
	if !s.AllLeavesDone {
		s.QuestionText = content
	}
	g.logger.Info("generated leaf response", "branch", branch, "leaf_id", s.ActiveLeafID)
	return nil
}

func (g *Subgraph) completedAreaResponse(ctx context.Context, s *State) error {
	system := prompts.AllLeavesDone
	switch {
	case s.AreaAlreadyExtracted:
		system = prompts.CompletedArea(ResetCommand(s.RootID))
	case s.NoLeaves:
		system = prompts.NoTopics
	}

	recent := util.LastN(util.FilterToolMessages(s.Messages), config.HistoryLimitExtractTarget)
	reply, err := llm.Invoke(ctx, g.chat, g.opts.Policy, llm.Request{System: system, Messages: recent})
	if err != nil {
		return g.fail(ctx, s, "completed_area_response", err)
	}
	g.respond(s, strings.TrimSpace(reply.Content))
	g.logger.Info("completed area response", "area_id", s.RootID)
	return nil
}

func (g *Subgraph) respond(s *State, content string) {
	metrics.LLMCalls.WithLabelValues("leaf_response", "ok").Inc()
	msg := models.AIMessage(content)
	s.Messages = append(s.Messages, msg)
	s.MessagesToSave = s.MessagesToSave.Add(s.Now(), msg)
}

// fail ends the turn without saving. Cancellation is passed up instead.
func (g *Subgraph) fail(ctx context.Context, s *State, node string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	metrics.LLMCalls.WithLabelValues("leaf_response", "error").Inc()
	g.logger.Error("model call failed", "node", node, "error", err)
	s.Success = false
	s.Messages = append(s.Messages, models.AIMessage(models.UnavailableMessage))
	return nil
}
