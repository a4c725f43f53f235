// ABOUTME: Closed value sets produced by the interview graph
// ABOUTME: Targets route a turn; evaluations drive leaf coverage transitions
package models

// Target is where a turn is routed after classification
type Target string

const (
	TargetConductInterview Target = "conduct_interview"
	TargetManageAreas      Target = "manage_areas"
	TargetSmallTalk        Target = "small_talk"
)

// Valid reports whether t is a known target
func (t Target) Valid() bool {
	switch t {
	case TargetConductInterview, TargetManageAreas, TargetSmallTalk:
		return true
	}
	return false
}

// TargetForMode returns the fixed target for non-auto modes
func TargetForMode(m InputMode) (Target, bool) {
	switch m {
	case ModeConductInterview:
		return TargetConductInterview, true
	case ModeManageAreas:
		return TargetManageAreas, true
	}
	return "", false
}

// EvaluationStatus is the verdict on a user's answer for a leaf
type EvaluationStatus string

const (
	EvaluationComplete EvaluationStatus = "complete"
	EvaluationPartial  EvaluationStatus = "partial"
	EvaluationSkipped  EvaluationStatus = "skipped"
)

// LeafEvaluation is the structured output of the answer evaluator
type LeafEvaluation struct {
	Status EvaluationStatus `json:"status" validate:"required,oneof=complete partial skipped"`
	Reason string           `json:"reason"`
}

// Closes reports whether the evaluation closes the leaf
func (e LeafEvaluation) Closes() bool {
	return e.Status == EvaluationComplete || e.Status == EvaluationSkipped
}

// CoverageStatus maps a closing evaluation onto the coverage status
func (e LeafEvaluation) CoverageStatus() CoverageStatus {
	switch e.Status {
	case EvaluationComplete:
		return CoverageCovered
	case EvaluationSkipped:
		return CoverageSkipped
	}
	return CoverageActive
}
