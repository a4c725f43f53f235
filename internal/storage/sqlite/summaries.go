// ABOUTME: Summary and knowledge persistence
// ABOUTME: Summary vectors are filled in later by the extract pipeline
package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/models"
)

const summaryColumns = `s.id, s.area_id, s.summary_text, s.question_id, s.answer_id, s.vector, s.created_at`

// SummaryStore handles summary persistence
type SummaryStore struct {
	q Querier
}

func scanSummary(row scanner) (*models.Summary, error) {
	var (
		sum        models.Summary
		rawID      string
		areaID     string
		questionID sql.NullString
		answerID   sql.NullString
		vector     []byte
		created    float64
	)
	if err := row.Scan(&rawID, &areaID, &sum.SummaryText, &questionID, &answerID, &vector, &created); err != nil {
		return nil, err
	}
	var err error
	if sum.ID, err = uuid.Parse(rawID); err != nil {
		return nil, err
	}
	if sum.AreaID, err = uuid.Parse(areaID); err != nil {
		return nil, err
	}
	if sum.QuestionID, err = parseNullUUID(questionID); err != nil {
		return nil, err
	}
	if sum.AnswerID, err = parseNullUUID(answerID); err != nil {
		return nil, err
	}
	if sum.Vector, err = blobToVector(vector); err != nil {
		return nil, err
	}
	sum.CreatedAt = fromUnix(created)
	return &sum, nil
}

func (s *SummaryStore) querySummaries(ctx context.Context, query string, args ...any) ([]models.Summary, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sum)
	}
	return out, rows.Err()
}

// Create upserts a summary on its id, assigning an id and timestamp when unset
func (s *SummaryStore) Create(ctx context.Context, sum *models.Summary) error {
	if sum.ID == uuid.Nil {
		sum.ID = uuid.Must(uuid.NewV7())
	}
	sum.CreatedAt = nowOr(sum.CreatedAt)
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO summaries (id, area_id, summary_text, question_id, answer_id, vector, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			area_id = excluded.area_id,
			summary_text = excluded.summary_text,
			question_id = excluded.question_id,
			answer_id = excluded.answer_id,
			vector = excluded.vector
	`, sum.ID.String(), sum.AreaID.String(), sum.SummaryText, nullUUID(sum.QuestionID),
		nullUUID(sum.AnswerID), vectorToBlob(sum.Vector), toUnix(sum.CreatedAt))
	return err
}

// GetByID returns the summary or nil when absent
func (s *SummaryStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Summary, error) {
	sum, err := scanSummary(s.q.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM summaries s WHERE s.id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sum, err
}

// ListByArea returns the area's summaries oldest first
func (s *SummaryStore) ListByArea(ctx context.Context, areaID uuid.UUID) ([]models.Summary, error) {
	return s.querySummaries(ctx,
		`SELECT `+summaryColumns+` FROM summaries s WHERE s.area_id = ? ORDER BY s.created_at, s.rowid`,
		areaID.String())
}

// ListByAreas returns summaries for any of the areas, oldest first
func (s *SummaryStore) ListByAreas(ctx context.Context, areaIDs []uuid.UUID) ([]models.Summary, error) {
	if len(areaIDs) == 0 {
		return nil, nil
	}
	return s.querySummaries(ctx,
		`SELECT `+summaryColumns+` FROM summaries s WHERE s.area_id IN (`+placeholders(len(areaIDs))+`)
		ORDER BY s.created_at, s.rowid`,
		uuidArgs(areaIDs)...)
}

// ListByUser returns every summary under the user's areas
func (s *SummaryStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Summary, error) {
	return s.querySummaries(ctx, `
		SELECT `+summaryColumns+`
		FROM summaries s JOIN life_areas la ON la.id = s.area_id
		WHERE la.user_id = ?
		ORDER BY s.created_at, s.rowid
	`, userID.String())
}

// ListVectoredByUser returns the user's summaries that have an embedding
func (s *SummaryStore) ListVectoredByUser(ctx context.Context, userID uuid.UUID) ([]models.Summary, error) {
	return s.querySummaries(ctx, `
		SELECT `+summaryColumns+`
		FROM summaries s JOIN life_areas la ON la.id = s.area_id
		WHERE la.user_id = ? AND s.vector IS NOT NULL
		ORDER BY s.created_at, s.rowid
	`, userID.String())
}

// SetVector stores the embedding for a summary
func (s *SummaryStore) SetVector(ctx context.Context, id uuid.UUID, vector []float64) error {
	res, err := s.q.ExecContext(ctx, `UPDATE summaries SET vector = ? WHERE id = ?`, vectorToBlob(vector), id.String())
	if err != nil {
		return err
	}
	return requireRow(res, "summary")
}

// DeleteByAreas removes summaries (and their knowledge) for the areas
func (s *SummaryStore) DeleteByAreas(ctx context.Context, areaIDs []uuid.UUID) error {
	if len(areaIDs) == 0 {
		return nil
	}
	_, err := s.q.ExecContext(ctx,
		`DELETE FROM summaries WHERE area_id IN (`+placeholders(len(areaIDs))+`)`,
		uuidArgs(areaIDs)...)
	return err
}

// KnowledgeStore handles extracted knowledge persistence
type KnowledgeStore struct {
	q Querier
}

// Create upserts a knowledge item on its id, assigning an id and timestamp when unset
func (s *KnowledgeStore) Create(ctx context.Context, k *models.UserKnowledge) error {
	if k.ID == uuid.Nil {
		k.ID = uuid.Must(uuid.NewV7())
	}
	k.CreatedTS = nowOr(k.CreatedTS)
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO user_knowledge (id, user_id, description, kind, confidence, created_ts, summary_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			kind = excluded.kind,
			confidence = excluded.confidence,
			summary_id = excluded.summary_id
	`, k.ID.String(), k.UserID.String(), k.Description, string(k.Kind), k.Confidence,
		toUnix(k.CreatedTS), nullUUID(k.SummaryID))
	return err
}

// ListByUser returns the user's knowledge, optionally filtered by kind
func (s *KnowledgeStore) ListByUser(ctx context.Context, userID uuid.UUID, kind models.KnowledgeKind) ([]models.UserKnowledge, error) {
	query := `SELECT id, user_id, description, kind, confidence, created_ts, summary_id
		FROM user_knowledge WHERE user_id = ?`
	args := []any{userID.String()}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY created_ts, rowid`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []models.UserKnowledge
	for rows.Next() {
		var (
			k         models.UserKnowledge
			rawID     string
			rawUser   string
			kindStr   string
			created   float64
			summaryID sql.NullString
		)
		if err := rows.Scan(&rawID, &rawUser, &k.Description, &kindStr, &k.Confidence, &created, &summaryID); err != nil {
			return nil, err
		}
		if k.ID, err = uuid.Parse(rawID); err != nil {
			return nil, err
		}
		if k.UserID, err = uuid.Parse(rawUser); err != nil {
			return nil, err
		}
		if k.SummaryID, err = parseNullUUID(summaryID); err != nil {
			return nil, err
		}
		k.Kind = models.KnowledgeKind(kindStr)
		k.CreatedTS = fromUnix(created)
		out = append(out, k)
	}
	return out, rows.Err()
}

// DeleteByUser removes all of the user's knowledge
func (s *KnowledgeStore) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM user_knowledge WHERE user_id = ?`, userID.String())
	return err
}
