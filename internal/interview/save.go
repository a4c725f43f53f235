// ABOUTME: save_history node: persists the turn's messages and deferred leaf writes atomically
// ABOUTME: Returns the new summary id through State.PendingSummaryID for extraction
package interview

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/models"
	"github.com/harper/interview-assistant/internal/storage/sqlite"
	"github.com/harper/interview-assistant/internal/util"
)

func (g *Graph) saveHistory(ctx context.Context, s *State) error {
	var pending *uuid.UUID
	err := g.db.Transaction(ctx, func(r *sqlite.Repos) error {
		var questionID *uuid.UUID
		if s.Leaf != nil {
			// before this turn's links exist, or the new question would win
			id, err := s.Leaf.QuestionID(ctx, r)
			if err != nil {
				return fmt.Errorf("resolve question: %w", err)
			}
			questionID = id
		}

		var answerID *uuid.UUID
		for _, ts := range s.MessagesToSave.Timestamps() {
			for _, msg := range s.MessagesToSave[ts] {
				h := &models.History{
					ID:        util.NewID(),
					Message:   msg,
					UserID:    s.User.ID,
					CreatedTS: time.Unix(0, ts).UTC(),
				}
				if err := r.Histories.Create(ctx, h); err != nil {
					return fmt.Errorf("insert history: %w", err)
				}
				if msg.Role == models.RoleUser {
					id := h.ID
					answerID = &id
				}
				if s.Leaf == nil {
					continue
				}
				if leafID := s.Leaf.LinkTarget(msg); leafID != uuid.Nil {
					if err := r.LeafHistory.Link(ctx, leafID, h.ID); err != nil {
						return fmt.Errorf("link history: %w", err)
					}
				}
			}
		}

		if s.Leaf == nil {
			return nil
		}
		id, err := s.Leaf.Commit(ctx, r, questionID, answerID)
		if err != nil {
			return err
		}
		pending = id
		return nil
	})
	if err != nil {
		return err
	}

	s.PendingSummaryID = pending
	g.logger.Debug("saved turn", "user_id", s.User.ID, "messages", s.MessagesToSave.Count(), "pending_summary", pending != nil)
	return nil
}
