// ABOUTME: Summaries, knowledge items and MCP API keys
// ABOUTME: Summaries carry an optional embedding filled by the extract pipeline
package models

import (
	"time"

	"github.com/google/uuid"
)

// Summary is what the user said about one leaf in one turn
type Summary struct {
	ID          uuid.UUID  `json:"id"`
	AreaID      uuid.UUID  `json:"area_id"`
	SummaryText string     `json:"summary_text"`
	QuestionID  *uuid.UUID `json:"question_id,omitempty"`
	AnswerID    *uuid.UUID `json:"answer_id,omitempty"`
	Vector      []float64  `json:"vector,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// KnowledgeKind classifies an extracted knowledge item
type KnowledgeKind string

const (
	KnowledgeSkill KnowledgeKind = "skill"
	KnowledgeFact  KnowledgeKind = "fact"
)

// Valid reports whether k is a known kind
func (k KnowledgeKind) Valid() bool {
	return k == KnowledgeSkill || k == KnowledgeFact
}

// UserKnowledge is a discrete fact or skill derived from a summary
type UserKnowledge struct {
	ID          uuid.UUID     `json:"id"`
	UserID      uuid.UUID     `json:"user_id"`
	Description string        `json:"description"`
	Kind        KnowledgeKind `json:"kind"`
	Confidence  float64       `json:"confidence"`
	CreatedTS   time.Time     `json:"created_ts"`
	SummaryID   *uuid.UUID    `json:"summary_id,omitempty"`
}

// ApiKey authenticates MCP clients. Only the hash of the raw key is stored.
type ApiKey struct {
	ID        uuid.UUID `json:"id"`
	KeyHash   string    `json:"-"`
	KeyPrefix string    `json:"key_prefix"`
	UserID    uuid.UUID `json:"user_id"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
}
