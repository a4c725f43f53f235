// ABOUTME: User persistence: creation, input mode and current area selection
// ABOUTME: Deleting a user cascades to every row they own
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/models"
)

// UserStore handles user persistence
type UserStore struct {
	q Querier
}

// GetByID returns the user or nil when absent
func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var (
		user    models.User
		rawID   string
		mode    string
		current sql.NullString
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, mode, current_area_id FROM users WHERE id = ?
	`, id.String()).Scan(&rawID, &user.Name, &mode, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	user.ID = id
	user.Mode = models.InputMode(mode)
	if user.CurrentAreaID, err = parseNullUUID(current); err != nil {
		return nil, err
	}
	return &user, nil
}

// Create inserts or replaces a user row
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	mode := user.Mode
	if mode == "" {
		mode = models.ModeAuto
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO users (id, name, mode, current_area_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			mode = excluded.mode,
			current_area_id = excluded.current_area_id
	`, user.ID.String(), user.Name, string(mode), nullUUID(user.CurrentAreaID))
	return err
}

// CreateIfNotExists inserts the user unless a row with the same id exists.
// It reports whether a row was created.
func (s *UserStore) CreateIfNotExists(ctx context.Context, user *models.User) (bool, error) {
	mode := user.Mode
	if mode == "" {
		mode = models.ModeAuto
	}
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO users (id, name, mode) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, user.ID.String(), user.Name, string(mode))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetMode changes the user's input mode
func (s *UserStore) SetMode(ctx context.Context, id uuid.UUID, mode models.InputMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", models.ErrValidation, mode)
	}
	return s.exec1(ctx, `UPDATE users SET mode = ? WHERE id = ?`, string(mode), id.String())
}

// SetCurrentArea points the user at an area, or clears it when areaID is nil
func (s *UserStore) SetCurrentArea(ctx context.Context, id uuid.UUID, areaID *uuid.UUID) error {
	return s.exec1(ctx, `UPDATE users SET current_area_id = ? WHERE id = ?`, nullUUID(areaID), id.String())
}

// Delete removes the user and everything they own
func (s *UserStore) Delete(ctx context.Context, id uuid.UUID) error {
	return s.exec1(ctx, `DELETE FROM users WHERE id = ?`, id.String())
}

func (s *UserStore) exec1(ctx context.Context, query string, args ...any) error {
	res, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireRow(res, "user")
}
