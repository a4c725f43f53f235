// ABOUTME: Life area hierarchy and interview coverage records
// ABOUTME: Areas form a per-user forest; leaves are the unit of interviewing
package models

import (
	"time"

	"github.com/google/uuid"
)

// LifeArea is a node in a user's topic tree
type LifeArea struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	ParentID    *uuid.UUID `json:"parent_id,omitempty"`
	UserID      uuid.UUID  `json:"user_id"`
	ExtractedAt *time.Time `json:"extracted_at,omitempty"`
	CoveredAt   *time.Time `json:"covered_at,omitempty"`
}

// CoverageStatus tracks how far a leaf has been interviewed
type CoverageStatus string

const (
	CoveragePending CoverageStatus = "pending"
	CoverageActive  CoverageStatus = "active"
	CoverageCovered CoverageStatus = "covered"
	CoverageSkipped CoverageStatus = "skipped"
)

// Valid reports whether s is a known status
func (s CoverageStatus) Valid() bool {
	switch s {
	case CoveragePending, CoverageActive, CoverageCovered, CoverageSkipped:
		return true
	}
	return false
}

// Closed reports whether the leaf needs no further questions
func (s CoverageStatus) Closed() bool {
	return s == CoverageCovered || s == CoverageSkipped
}

// LeafCoverage records interview progress for one leaf under a root
type LeafCoverage struct {
	LeafID      uuid.UUID      `json:"leaf_id"`
	RootAreaID  uuid.UUID      `json:"root_area_id"`
	Status      CoverageStatus `json:"status"`
	SummaryText string         `json:"summary_text,omitempty"`
	Vector      []float64      `json:"vector,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ActiveInterviewContext points at the leaf currently being asked about.
// There is at most one per user.
type ActiveInterviewContext struct {
	UserID       uuid.UUID `json:"user_id"`
	RootAreaID   uuid.UUID `json:"root_area_id"`
	ActiveLeafID uuid.UUID `json:"active_leaf_id"`
	QuestionText string    `json:"question_text,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
