// ABOUTME: Life area persistence with recursive CTE tree queries
// ABOUTME: Re-parenting is checked for cycles before any row changes
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

const areaColumns = `id, title, parent_id, user_id, extracted_at, covered_at`

// AreaStore handles life area persistence
type AreaStore struct {
	q Querier
}

func scanArea(row scanner) (*models.LifeArea, error) {
	var (
		area        models.LifeArea
		rawID       string
		parentID    sql.NullString
		userID      string
		extractedAt sql.NullFloat64
		coveredAt   sql.NullFloat64
	)
	if err := row.Scan(&rawID, &area.Title, &parentID, &userID, &extractedAt, &coveredAt); err != nil {
		return nil, err
	}

	var err error
	if area.ID, err = uuid.Parse(rawID); err != nil {
		return nil, err
	}
	if area.UserID, err = uuid.Parse(userID); err != nil {
		return nil, err
	}
	if area.ParentID, err = parseNullUUID(parentID); err != nil {
		return nil, err
	}
	area.ExtractedAt = parseNullTime(extractedAt)
	area.CoveredAt = parseNullTime(coveredAt)
	return &area, nil
}

func (s *AreaStore) queryAreas(ctx context.Context, query string, args ...any) ([]models.LifeArea, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var areas []models.LifeArea
	for rows.Next() {
		area, err := scanArea(rows)
		if err != nil {
			return nil, err
		}
		areas = append(areas, *area)
	}
	return areas, rows.Err()
}

// GetByID returns the area or nil when absent
func (s *AreaStore) GetByID(ctx context.Context, id uuid.UUID) (*models.LifeArea, error) {
	area, err := scanArea(s.q.QueryRowContext(ctx,
		`SELECT `+areaColumns+` FROM life_areas WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return area, err
}

// GetByIDs returns the areas that exist, in the order of ids
func (s *AreaStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.LifeArea, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := s.queryAreas(ctx,
		`SELECT `+areaColumns+` FROM life_areas WHERE id IN (`+placeholders(len(ids))+`)`,
		uuidArgs(ids)...)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]models.LifeArea, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}
	ordered := make([]models.LifeArea, 0, len(found))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			ordered = append(ordered, a)
		}
	}
	return ordered, nil
}

// ListByUser returns every area the user owns, ordered by title
func (s *AreaStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.LifeArea, error) {
	return s.queryAreas(ctx,
		`SELECT `+areaColumns+` FROM life_areas WHERE user_id = ? ORDER BY title, id`, userID.String())
}

// ListRoots returns the user's top-level areas
func (s *AreaStore) ListRoots(ctx context.Context, userID uuid.UUID) ([]models.LifeArea, error) {
	return s.queryAreas(ctx,
		`SELECT `+areaColumns+` FROM life_areas WHERE user_id = ? AND parent_id IS NULL ORDER BY title, id`,
		userID.String())
}

// Create inserts the area or replaces the existing row with the same id.
// Replacing is refused across users, and a new parent is checked for cycles.
func (s *AreaStore) Create(ctx context.Context, area *models.LifeArea) error {
	if area.ParentID != nil {
		cycle, err := s.WouldCreateCycle(ctx, area.ID, *area.ParentID)
		if err != nil {
			return err
		}
		if cycle {
			return fmt.Errorf("%w: %s cannot be placed under %s", models.ErrCycleViolation, area.ID, *area.ParentID)
		}
	}
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO life_areas (id, title, parent_id, user_id, extracted_at, covered_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			parent_id = excluded.parent_id,
			extracted_at = excluded.extracted_at,
			covered_at = excluded.covered_at
		WHERE life_areas.user_id = excluded.user_id
	`, area.ID.String(), area.Title, nullUUID(area.ParentID), area.UserID.String(),
		nullTime(area.ExtractedAt), nullTime(area.CoveredAt))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("life area %s: %w", area.ID, models.ErrPermission)
	}
	return nil
}

// Update rewrites the title and timestamps. Use SetParent to move an area.
func (s *AreaStore) Update(ctx context.Context, area *models.LifeArea) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE life_areas SET title = ?, extracted_at = ?, covered_at = ? WHERE id = ?
	`, area.Title, nullTime(area.ExtractedAt), nullTime(area.CoveredAt), area.ID.String())
	if err != nil {
		return err
	}
	return requireRow(res, "life area")
}

// Delete removes the area and its whole subtree
func (s *AreaStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM life_areas WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	return requireRow(res, "life area")
}

// GetDescendants returns every area below id (excluding id) in breadth order
func (s *AreaStore) GetDescendants(ctx context.Context, id uuid.UUID) ([]models.LifeArea, error) {
	return s.queryAreas(ctx, `
		WITH RECURSIVE subtree(id, depth) AS (
			SELECT id, 0 FROM life_areas WHERE parent_id = ?
			UNION ALL
			SELECT la.id, st.depth + 1
			FROM life_areas la
			JOIN subtree st ON la.parent_id = st.id
		)
		SELECT la.id, la.title, la.parent_id, la.user_id, la.extracted_at, la.covered_at
		FROM life_areas la
		JOIN subtree st ON la.id = st.id
		ORDER BY st.depth, la.title, la.id
	`, id.String())
}

// GetAncestors returns the chain from the parent of id up to the root
func (s *AreaStore) GetAncestors(ctx context.Context, id uuid.UUID) ([]models.LifeArea, error) {
	return s.queryAreas(ctx, `
		WITH RECURSIVE chain(id, parent_id, depth) AS (
			SELECT id, parent_id, 0 FROM life_areas WHERE id = ?
			UNION ALL
			SELECT la.id, la.parent_id, c.depth + 1
			FROM life_areas la
			JOIN chain c ON la.id = c.parent_id
			WHERE c.depth < 1000
		)
		SELECT la.id, la.title, la.parent_id, la.user_id, la.extracted_at, la.covered_at
		FROM life_areas la
		JOIN chain c ON la.id = c.id
		WHERE c.depth > 0
		ORDER BY c.depth
	`, id.String())
}

// GetRoot returns the top-level ancestor of id, or id itself when it is a root
func (s *AreaStore) GetRoot(ctx context.Context, id uuid.UUID) (*models.LifeArea, error) {
	ancestors, err := s.GetAncestors(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(ancestors) > 0 {
		root := ancestors[len(ancestors)-1]
		return &root, nil
	}
	return s.GetByID(ctx, id)
}

// WouldCreateCycle reports whether making newParent the parent of id would
// create a cycle, i.e. newParent is id or one of its descendants
func (s *AreaStore) WouldCreateCycle(ctx context.Context, id, newParent uuid.UUID) (bool, error) {
	if id == newParent {
		return true, nil
	}
	var one int
	err := s.q.QueryRowContext(ctx, `
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM life_areas WHERE parent_id = ?
			UNION
			SELECT la.id FROM life_areas la JOIN subtree st ON la.parent_id = st.id
		)
		SELECT 1 FROM subtree WHERE id = ? LIMIT 1
	`, id.String(), newParent.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetParent moves id under newParent, or to the top level when newParent is nil.
// A move that would form a cycle returns ErrCycleViolation and changes nothing.
func (s *AreaStore) SetParent(ctx context.Context, id uuid.UUID, newParent *uuid.UUID) error {
	if newParent != nil {
		cycle, err := s.WouldCreateCycle(ctx, id, *newParent)
		if err != nil {
			return err
		}
		if cycle {
			return fmt.Errorf("%w: %s cannot be moved under %s", models.ErrCycleViolation, id, *newParent)
		}
	}
	res, err := s.q.ExecContext(ctx, `UPDATE life_areas SET parent_id = ? WHERE id = ?`,
		nullUUID(newParent), id.String())
	if err != nil {
		return err
	}
	return requireRow(res, "life area")
}

// SetCoveredAt stamps or clears covered_at
func (s *AreaStore) SetCoveredAt(ctx context.Context, id uuid.UUID, at *time.Time) error {
	_, err := s.q.ExecContext(ctx, `UPDATE life_areas SET covered_at = ? WHERE id = ?`, nullTime(at), id.String())
	return err
}

// SetExtractedAt stamps or clears extracted_at
func (s *AreaStore) SetExtractedAt(ctx context.Context, id uuid.UUID, at *time.Time) error {
	_, err := s.q.ExecContext(ctx, `UPDATE life_areas SET extracted_at = ? WHERE id = ?`, nullTime(at), id.String())
	return err
}

// ResetExtraction clears covered_at on the subtree and extracted_at on the root
func (s *AreaStore) ResetExtraction(ctx context.Context, rootID uuid.UUID) error {
	if _, err := s.q.ExecContext(ctx, `
		WITH RECURSIVE subtree(id) AS (
			SELECT ?
			UNION ALL
			SELECT la.id FROM life_areas la JOIN subtree st ON la.parent_id = st.id
		)
		UPDATE life_areas SET covered_at = NULL WHERE id IN (SELECT id FROM subtree)
	`, rootID.String()); err != nil {
		return err
	}
	return s.SetExtractedAt(ctx, rootID, nil)
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, models.ErrNotFound)
	}
	return nil
}
