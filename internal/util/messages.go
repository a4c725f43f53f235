// ABOUTME: Helpers that shape message lists before they are sent to the LLM
// ABOUTME: Filtering tool traffic, trimming to a token budget, formatting transcripts
package util

import (
	"fmt"
	"strings"

	"github.com/harper/interview-assistant/internal/models"
)

// CharsPerToken is the conservative estimate used for budgeting
const CharsPerToken = 4

// FilterToolMessages drops tool results and AI messages that only carry tool calls
func FilterToolMessages(messages []models.Message) []models.Message {
	out := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == models.RoleTool {
			continue
		}
		if m.Role == models.RoleAI && len(m.ToolCalls) > 0 && strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// StripOrphanToolMessages removes tool results whose originating call is not
// in the list, which happens when history is truncated mid-exchange
func StripOrphanToolMessages(messages []models.Message) []models.Message {
	calls := make(map[string]bool)
	out := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleAI:
			for _, tc := range m.ToolCalls {
				calls[tc.ID] = true
			}
		case models.RoleTool:
			if !calls[m.ToolCallID] {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

// LastN returns at most the last n messages
func LastN(messages []models.Message, n int) []models.Message {
	if n <= 0 || len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}

// EstimateTokens approximates the token count of text
func EstimateTokens(text string) int {
	return len(text) / CharsPerToken
}

// TrimMessagesToBudget drops the oldest messages until the estimate fits maxTokens.
// The last message is always kept.
func TrimMessagesToBudget(messages []models.Message, maxTokens int) []models.Message {
	if len(messages) == 0 {
		return nil
	}

	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	if total <= maxTokens {
		return messages
	}

	kept := 0
	budget := 0
	for i := len(messages) - 1; i >= 0; i-- {
		cost := EstimateTokens(messages[i].Content)
		if kept > 0 && budget+cost > maxTokens {
			break
		}
		budget += cost
		kept++
	}
	return messages[len(messages)-kept:]
}

// FormatTranscript renders messages as "User: ..." / "Assistant: ..." lines
func FormatTranscript(messages []models.Message) []string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case models.RoleUser:
			lines = append(lines, fmt.Sprintf("User: %s", m.Content))
		case models.RoleAI:
			if strings.TrimSpace(m.Content) != "" {
				lines = append(lines, fmt.Sprintf("Assistant: %s", m.Content))
			}
		}
	}
	return lines
}

// LastAIContent returns the content of the last AI message with text
func LastAIContent(messages []models.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == models.RoleAI && strings.TrimSpace(messages[i].Content) != "" {
			return messages[i].Content
		}
	}
	return ""
}
