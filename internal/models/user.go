// ABOUTME: User represents a person interviewed by the assistant
// ABOUTME: InputMode decides how an inbound turn is routed through the graph
package models

import "github.com/google/uuid"

// InputMode controls target selection for a user's turns
type InputMode string

const (
	ModeAuto             InputMode = "auto"
	ModeConductInterview InputMode = "conduct_interview"
	ModeManageAreas      InputMode = "manage_areas"
)

// Valid reports whether m is a known mode
func (m InputMode) Valid() bool {
	switch m {
	case ModeAuto, ModeConductInterview, ModeManageAreas:
		return true
	}
	return false
}

// ParseModeName maps the user-facing names used by /mode to an InputMode
func ParseModeName(name string) (InputMode, bool) {
	switch name {
	case "auto":
		return ModeAuto, true
	case "interview":
		return ModeConductInterview, true
	case "areas":
		return ModeManageAreas, true
	}
	return "", false
}

// Describe returns the human readable description of a mode
func (m InputMode) Describe() string {
	switch m {
	case ModeAuto:
		return "auto (automatically routes to interview or areas)"
	case ModeConductInterview:
		return "interview (conduct interviews)"
	case ModeManageAreas:
		return "areas (manage life areas)"
	}
	return string(m)
}

// User is a resolved internal identity
type User struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	Mode          InputMode  `json:"mode"`
	CurrentAreaID *uuid.UUID `json:"current_area_id,omitempty"`
}
