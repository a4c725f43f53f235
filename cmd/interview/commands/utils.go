// ABOUTME: Shared helpers for CLI commands
// ABOUTME: Flag value checks and database path resolution
package commands

import (
	"os"

	"github.com/harper/interview-assistant/internal/config"
)

// resolveDBPath prefers the flag, then INTERVIEW_DB_PATH, then the XDG default
func resolveDBPath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("INTERVIEW_DB_PATH"); env != "" {
		return env
	}
	return config.DefaultDBPath()
}

// containsString checks if a slice contains a string
func containsString(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
