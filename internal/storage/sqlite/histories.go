// ABOUTME: Message history persistence and leaf-to-message links
// ABOUTME: Messages are stored as JSON; leaf links drive per-leaf transcripts
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/models"
)

// HistoryStore handles message history persistence
type HistoryStore struct {
	q Querier
}

func scanHistory(row scanner) (*models.History, error) {
	var (
		h       models.History
		rawID   string
		data    string
		userID  string
		created float64
	)
	if err := row.Scan(&rawID, &data, &userID, &created); err != nil {
		return nil, err
	}
	var err error
	if h.ID, err = uuid.Parse(rawID); err != nil {
		return nil, err
	}
	if h.UserID, err = uuid.Parse(userID); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &h.Message); err != nil {
		return nil, fmt.Errorf("decode message %s: %w", rawID, err)
	}
	h.CreatedTS = fromUnix(created)
	return &h, nil
}

func (s *HistoryStore) queryHistories(ctx context.Context, query string, args ...any) ([]models.History, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.History
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	return out, rows.Err()
}

// Create upserts a history row on its id, assigning an id and timestamp when unset
func (s *HistoryStore) Create(ctx context.Context, h *models.History) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.Must(uuid.NewV7())
	}
	h.CreatedTS = nowOr(h.CreatedTS)
	data, err := json.Marshal(h.Message)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO histories (id, message_data, user_id, created_ts) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			message_data = excluded.message_data,
			created_ts = excluded.created_ts
	`, h.ID.String(), string(data), h.UserID.String(), toUnix(h.CreatedTS))
	return err
}

// GetByID returns the history row or nil when absent
func (s *HistoryStore) GetByID(ctx context.Context, id uuid.UUID) (*models.History, error) {
	h, err := scanHistory(s.q.QueryRowContext(ctx, `
		SELECT id, message_data, user_id, created_ts FROM histories WHERE id = ?
	`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return h, err
}

// ListRecentByUser returns the newest limit messages in chronological order
func (s *HistoryStore) ListRecentByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.History, error) {
	return s.queryHistories(ctx, `
		SELECT id, message_data, user_id, created_ts FROM (
			SELECT id, message_data, user_id, created_ts, rowid AS rid
			FROM histories
			WHERE user_id = ?
			ORDER BY created_ts DESC, rowid DESC
			LIMIT ?
		) ORDER BY created_ts, rid
	`, userID.String(), limit)
}

// ListByUser returns all of the user's messages oldest first
func (s *HistoryStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.History, error) {
	return s.queryHistories(ctx, `
		SELECT id, message_data, user_id, created_ts FROM histories
		WHERE user_id = ? ORDER BY created_ts, rowid
	`, userID.String())
}

// DeleteByUser removes the user's messages and reports how many were deleted
func (s *HistoryStore) DeleteByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM histories WHERE user_id = ?`, userID.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LeafHistoryStore links messages to the leaf they were about
type LeafHistoryStore struct {
	q Querier
}

// Link attaches a message to a leaf. A message belongs to at most one leaf.
func (s *LeafHistoryStore) Link(ctx context.Context, leafID, historyID uuid.UUID) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO leaf_history (leaf_id, history_id) VALUES (?, ?)
		ON CONFLICT(history_id) DO NOTHING
	`, leafID.String(), historyID.String())
	return err
}

// ListMessages returns the leaf's messages oldest first
func (s *LeafHistoryStore) ListMessages(ctx context.Context, leafID uuid.UUID) ([]models.History, error) {
	hs := &HistoryStore{q: s.q}
	return hs.queryHistories(ctx, `
		SELECT h.id, h.message_data, h.user_id, h.created_ts
		FROM histories h
		JOIN leaf_history lh ON lh.history_id = h.id
		WHERE lh.leaf_id = ?
		ORDER BY h.created_ts, h.rowid
	`, leafID.String())
}

// LastAIMessageID returns the newest assistant message linked to the leaf, or nil
func (s *LeafHistoryStore) LastAIMessageID(ctx context.Context, leafID uuid.UUID) (*uuid.UUID, error) {
	var raw string
	err := s.q.QueryRowContext(ctx, `
		SELECT h.id
		FROM histories h
		JOIN leaf_history lh ON lh.history_id = h.id
		WHERE lh.leaf_id = ? AND json_extract(h.message_data, '$.role') = 'ai'
		ORDER BY h.created_ts DESC, h.rowid DESC
		LIMIT 1
	`, leafID.String()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// CountUserMessages counts human messages linked to the leaf
func (s *LeafHistoryStore) CountUserMessages(ctx context.Context, leafID uuid.UUID) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM histories h
		JOIN leaf_history lh ON lh.history_id = h.id
		WHERE lh.leaf_id = ? AND json_extract(h.message_data, '$.role') = 'user'
	`, leafID.String()).Scan(&n)
	return n, err
}

// DeleteByLeaves unlinks every message from the given leaves
func (s *LeafHistoryStore) DeleteByLeaves(ctx context.Context, leafIDs []uuid.UUID) error {
	if len(leafIDs) == 0 {
		return nil
	}
	_, err := s.q.ExecContext(ctx,
		`DELETE FROM leaf_history WHERE leaf_id IN (`+placeholders(len(leafIDs))+`)`,
		uuidArgs(leafIDs)...)
	return err
}
