// ABOUTME: Deferred leaf writes applied inside the save_history transaction
// ABOUTME: Coverage flips, context moves and the turn summary commit together with the messages
package leaf

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/models"
	"github.com/harper/interview-assistant/internal/storage/sqlite"
	"github.com/harper/interview-assistant/internal/util"
)

// QuestionID returns the last question stored for the evaluated leaf.
// It must run before this turn's messages are linked.
func (s *State) QuestionID(ctx context.Context, r *sqlite.Repos) (*uuid.UUID, error) {
	if !s.Evaluating() {
		return nil, nil
	}
	return r.LeafHistory.LastAIMessageID(ctx, s.EvaluatedLeafID)
}

// LinkTarget returns the leaf a saved message belongs to, or uuid.Nil.
// Answers belong to the evaluated leaf, questions to the leaf they ask about.
func (s *State) LinkTarget(msg models.Message) uuid.UUID {
	switch msg.Role {
	case models.RoleUser:
		return s.EvaluatedLeafID
	case models.RoleAI:
		return s.ActiveLeafID
	}
	return uuid.Nil
}

// Commit applies the deferred writes and inserts the turn summary when one
// was produced, returning its id
func (s *State) Commit(ctx context.Context, r *sqlite.Repos, questionID, answerID *uuid.UUID) (*uuid.UUID, error) {
	now := time.Now().UTC()

	if s.CompletedLeafID != uuid.Nil {
		// flip the finished leaf first: only one leaf per root may be active
		if err := r.Coverage.Complete(ctx, s.RootID, s.CompletedLeafID, s.CompletionStatus, s.TurnSummaryText, s.CoverageVector); err != nil {
			return nil, fmt.Errorf("complete leaf: %w", err)
		}
		if s.SetCoveredAt {
			if err := r.Areas.SetCoveredAt(ctx, s.CompletedLeafID, &now); err != nil {
				return nil, fmt.Errorf("set covered_at: %w", err)
			}
		}
	}

	switch {
	case s.IsFullyCovered:
		if err := r.Contexts.DeleteByUser(ctx, s.UserID); err != nil {
			return nil, fmt.Errorf("delete context: %w", err)
		}
		if err := r.Areas.SetExtractedAt(ctx, s.RootID, &now); err != nil {
			return nil, fmt.Errorf("set extracted_at: %w", err)
		}
	case s.ActiveLeafID != uuid.Nil:
		if s.CompletedLeafID != uuid.Nil {
			if err := r.Coverage.UpdateStatus(ctx, s.RootID, s.ActiveLeafID, models.CoverageActive); err != nil {
				return nil, fmt.Errorf("activate next leaf: %w", err)
			}
		}
		if err := r.Contexts.Update(ctx, s.UserID, s.ActiveLeafID, s.QuestionText); err != nil {
			return nil, fmt.Errorf("update context: %w", err)
		}
	}

	if s.CompletedLeafID == uuid.Nil || s.TurnSummaryText == "" {
		return nil, nil
	}
	summary := &models.Summary{
		ID:          util.NewID(),
		AreaID:      s.CompletedLeafID,
		SummaryText: s.TurnSummaryText,
		QuestionID:  questionID,
		AnswerID:    answerID,
		CreatedAt:   now,
	}
	if err := r.Summaries.Create(ctx, summary); err != nil {
		return nil, fmt.Errorf("insert summary: %w", err)
	}
	return &summary.ID, nil
}
