// ABOUTME: Typed chat messages and their persisted history rows
// ABOUTME: Message is the unit exchanged with the LLM and stored in histories
package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message
type Role string

const (
	RoleUser Role = "user"
	RoleAI   Role = "ai"
	RoleTool Role = "tool"
)

// Valid reports whether r is a persisted role
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAI, RoleTool:
		return true
	}
	return false
}

// ToolCall is a function invocation requested by the model
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"args"`
}

// Message is a single chat message
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// HumanMessage builds a user message
func HumanMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AIMessage builds an assistant message
func AIMessage(content string) Message {
	return Message{Role: RoleAI, Content: content, ToolCalls: []ToolCall{}}
}

// ToolMessage builds a tool result message
func ToolMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, Name: name}
}

// History is one persisted message
type History struct {
	ID        uuid.UUID `json:"id"`
	Message   Message   `json:"message_data"`
	UserID    uuid.UUID `json:"user_id"`
	CreatedTS time.Time `json:"created_ts"`
}
