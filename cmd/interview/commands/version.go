// ABOUTME: Version command to display build information
// ABOUTME: Shows version, commit, build date, store schema and database path
package commands

import (
	"fmt"

	"github.com/harper/interview-assistant/internal/storage/sqlite"
	"github.com/spf13/cobra"
)

var (
	versionInfo = VersionInfo{
		Version: "dev",
		Commit:  "none",
		Date:    "unknown",
	}
)

// VersionInfo contains build information
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

// SetVersion sets the version information (called from main)
func SetVersion(version, commit, date string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.Date = date
}

// NewVersionCmd creates the version command
func NewVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display version, commit hash, and build date for the interview assistant,
along with the store schema version this binary migrates to and the
database path it would open (INTERVIEW_DB_PATH or the XDG data directory).`,
		Run: func(cmd *cobra.Command, args []string) {
			loadEnv()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "interview %s\n", versionInfo.Version)
			fmt.Fprintf(out, "Commit: %s\n", versionInfo.Commit)
			fmt.Fprintf(out, "Built:  %s\n", versionInfo.Date)
			fmt.Fprintf(out, "Schema: v%d\n", sqlite.LatestSchemaVersion())
			fmt.Fprintf(out, "DB:     %s\n", resolveDBPath(""))
		},
	}

	return cmd
}
