// ABOUTME: Leaf coverage and active interview context persistence
// ABOUTME: At most one leaf per root is active, enforced by a partial unique index
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/models"
)

// CoverageStore handles leaf coverage rows
type CoverageStore struct {
	q Querier
}

func scanCoverage(row scanner) (*models.LeafCoverage, error) {
	var (
		c       models.LeafCoverage
		leafID  string
		rootID  string
		status  string
		summary sql.NullString
		vector  []byte
		updated float64
	)
	if err := row.Scan(&leafID, &rootID, &status, &summary, &vector, &updated); err != nil {
		return nil, err
	}
	var err error
	if c.LeafID, err = uuid.Parse(leafID); err != nil {
		return nil, err
	}
	if c.RootAreaID, err = uuid.Parse(rootID); err != nil {
		return nil, err
	}
	if c.Vector, err = blobToVector(vector); err != nil {
		return nil, err
	}
	c.Status = models.CoverageStatus(status)
	c.SummaryText = summary.String
	c.UpdatedAt = fromUnix(updated)
	return &c, nil
}

// EnsurePending creates pending rows for leaves that have none yet
func (s *CoverageStore) EnsurePending(ctx context.Context, rootID uuid.UUID, leafIDs []uuid.UUID) error {
	now := toUnix(time.Now())
	for _, leafID := range leafIDs {
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO leaf_coverage (leaf_id, root_area_id, status, updated_at)
			VALUES (?, ?, 'pending', ?)
			ON CONFLICT(leaf_id, root_area_id) DO NOTHING
		`, leafID.String(), rootID.String(), now); err != nil {
			return err
		}
	}
	return nil
}

// ListByRoot returns coverage rows for a root keyed by leaf id
func (s *CoverageStore) ListByRoot(ctx context.Context, rootID uuid.UUID) (map[uuid.UUID]models.LeafCoverage, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT leaf_id, root_area_id, status, summary_text, vector, updated_at
		FROM leaf_coverage WHERE root_area_id = ?
	`, rootID.String())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[uuid.UUID]models.LeafCoverage)
	for rows.Next() {
		c, err := scanCoverage(rows)
		if err != nil {
			return nil, err
		}
		out[c.LeafID] = *c
	}
	return out, rows.Err()
}

// Get returns one coverage row or nil
func (s *CoverageStore) Get(ctx context.Context, rootID, leafID uuid.UUID) (*models.LeafCoverage, error) {
	c, err := scanCoverage(s.q.QueryRowContext(ctx, `
		SELECT leaf_id, root_area_id, status, summary_text, vector, updated_at
		FROM leaf_coverage WHERE root_area_id = ? AND leaf_id = ?
	`, rootID.String(), leafID.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// UpdateStatus sets the status of a leaf, creating the row if needed
func (s *CoverageStore) UpdateStatus(ctx context.Context, rootID, leafID uuid.UUID, status models.CoverageStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown coverage status %q", models.ErrValidation, status)
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO leaf_coverage (leaf_id, root_area_id, status, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(leaf_id, root_area_id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at
	`, leafID.String(), rootID.String(), string(status), toUnix(time.Now()))
	return err
}

// Complete closes a leaf with its final status and summary
func (s *CoverageStore) Complete(ctx context.Context, rootID, leafID uuid.UUID, status models.CoverageStatus, summary string, vector []float64) error {
	if !status.Closed() {
		return fmt.Errorf("%w: %q is not a closing status", models.ErrValidation, status)
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO leaf_coverage (leaf_id, root_area_id, status, summary_text, vector, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(leaf_id, root_area_id) DO UPDATE SET
			status = excluded.status,
			summary_text = excluded.summary_text,
			vector = COALESCE(excluded.vector, leaf_coverage.vector),
			updated_at = excluded.updated_at
	`, leafID.String(), rootID.String(), string(status), nullString(summary), vectorToBlob(vector), toUnix(time.Now()))
	return err
}

// DeleteByRoot drops all coverage rows for a root
func (s *CoverageStore) DeleteByRoot(ctx context.Context, rootID uuid.UUID) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM leaf_coverage WHERE root_area_id = ?`, rootID.String())
	return err
}

// ContextStore handles the per-user active interview context
type ContextStore struct {
	q Querier
}

// GetByUser returns the user's context or nil
func (s *ContextStore) GetByUser(ctx context.Context, userID uuid.UUID) (*models.ActiveInterviewContext, error) {
	var (
		c        models.ActiveInterviewContext
		rootID   string
		leafID   string
		question sql.NullString
		created  float64
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT root_area_id, active_leaf_id, question_text, created_at
		FROM active_interview_context WHERE user_id = ?
	`, userID.String()).Scan(&rootID, &leafID, &question, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.UserID = userID
	if c.RootAreaID, err = uuid.Parse(rootID); err != nil {
		return nil, err
	}
	if c.ActiveLeafID, err = uuid.Parse(leafID); err != nil {
		return nil, err
	}
	c.QuestionText = question.String
	c.CreatedAt = fromUnix(created)
	return &c, nil
}

// Create inserts or replaces the user's context
func (s *ContextStore) Create(ctx context.Context, c *models.ActiveInterviewContext) error {
	c.CreatedAt = nowOr(c.CreatedAt)
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO active_interview_context (user_id, root_area_id, active_leaf_id, question_text, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			root_area_id = excluded.root_area_id,
			active_leaf_id = excluded.active_leaf_id,
			question_text = excluded.question_text,
			created_at = excluded.created_at
	`, c.UserID.String(), c.RootAreaID.String(), c.ActiveLeafID.String(), nullString(c.QuestionText), toUnix(c.CreatedAt))
	return err
}

// Update moves the context to another leaf and records the question asked
func (s *ContextStore) Update(ctx context.Context, userID, leafID uuid.UUID, question string) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE active_interview_context SET active_leaf_id = ?, question_text = ? WHERE user_id = ?
	`, leafID.String(), nullString(question), userID.String())
	if err != nil {
		return err
	}
	return requireRow(res, "interview context")
}

// DeleteByUser removes the user's context if any
func (s *ContextStore) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM active_interview_context WHERE user_id = ?`, userID.String())
	return err
}
