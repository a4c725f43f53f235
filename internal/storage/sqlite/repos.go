// ABOUTME: Bundles the per-entity stores over one Querier (pool or transaction)
// ABOUTME: Also holds the shared nullable and timestamp conversion helpers
package sqlite

import (
	"database/sql"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repos groups the entity stores bound to the same Querier
type Repos struct {
	Users       *UserStore
	Areas       *AreaStore
	Histories   *HistoryStore
	LeafHistory *LeafHistoryStore
	Summaries   *SummaryStore
	Knowledge   *KnowledgeStore
	Coverage    *CoverageStore
	Contexts    *ContextStore
	APIKeys     *APIKeyStore
}

func newRepos(q Querier) *Repos {
	return &Repos{
		Users:       &UserStore{q: q},
		Areas:       &AreaStore{q: q},
		Histories:   &HistoryStore{q: q},
		LeafHistory: &LeafHistoryStore{q: q},
		Summaries:   &SummaryStore{q: q},
		Knowledge:   &KnowledgeStore{q: q},
		Coverage:    &CoverageStore{q: q},
		Contexts:    &ContextStore{q: q},
		APIKeys:     &APIKeyStore{q: q},
	}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func parseNullUUID(s sql.NullString) (*uuid.UUID, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func toUnix(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnix(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

func nullTime(t *time.Time) sql.NullFloat64 {
	if t == nil {
		return sql.NullFloat64{Valid: false}
	}
	return sql.NullFloat64{Float64: toUnix(*t), Valid: true}
}

func parseNullTime(f sql.NullFloat64) *time.Time {
	if !f.Valid {
		return nil
	}
	t := fromUnix(f.Float64)
	return &t
}

func nowOr(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// placeholders returns "?, ?, ?" for n arguments
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func uuidArgs(ids []uuid.UUID) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}
	return args
}

type scanner interface {
	Scan(dest ...any) error
}
