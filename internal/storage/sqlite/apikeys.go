// ABOUTME: MCP API key persistence
// ABOUTME: Raw keys are never stored; lookups go through their SHA-256 hash
package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/models"
)

// HashKey returns the hex SHA-256 of a raw API key
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// APIKeyStore handles API key persistence
type APIKeyStore struct {
	q Querier
}

func scanAPIKey(row scanner) (*models.ApiKey, error) {
	var (
		k       models.ApiKey
		rawID   string
		userID  string
		created float64
	)
	if err := row.Scan(&rawID, &k.KeyHash, &k.KeyPrefix, &userID, &k.Label, &created); err != nil {
		return nil, err
	}
	var err error
	if k.ID, err = uuid.Parse(rawID); err != nil {
		return nil, err
	}
	if k.UserID, err = uuid.Parse(userID); err != nil {
		return nil, err
	}
	k.CreatedAt = fromUnix(created)
	return &k, nil
}

// Create upserts a key record on its id
func (s *APIKeyStore) Create(ctx context.Context, k *models.ApiKey) error {
	if k.ID == uuid.Nil {
		k.ID = uuid.Must(uuid.NewV7())
	}
	k.CreatedAt = nowOr(k.CreatedAt)
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO api_keys (id, key_hash, key_prefix, user_id, label, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			key_hash = excluded.key_hash,
			key_prefix = excluded.key_prefix,
			label = excluded.label
	`, k.ID.String(), k.KeyHash, k.KeyPrefix, k.UserID.String(), k.Label, toUnix(k.CreatedAt))
	return err
}

// GetByHash returns the key with the given hash or nil
func (s *APIKeyStore) GetByHash(ctx context.Context, hash string) (*models.ApiKey, error) {
	k, err := scanAPIKey(s.q.QueryRowContext(ctx, `
		SELECT id, key_hash, key_prefix, user_id, label, created_at FROM api_keys WHERE key_hash = ?
	`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return k, err
}

// ListByUser returns the user's keys oldest first
func (s *APIKeyStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.ApiKey, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, key_hash, key_prefix, user_id, label, created_at
		FROM api_keys WHERE user_id = ? ORDER BY created_at, rowid
	`, userID.String())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.ApiKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

// Delete removes one key
func (s *APIKeyStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	return requireRow(res, "api key")
}

// DeleteByUser removes all of the user's keys
func (s *APIKeyStore) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM api_keys WHERE user_id = ?`, userID.String())
	return err
}
