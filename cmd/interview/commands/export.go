// ABOUTME: Export command dumps one user's areas, summaries and knowledge
// ABOUTME: Writes YAML, JSON or Markdown to stdout or a file
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/harper/interview-assistant/internal/storage/sqlite"
	"github.com/harper/interview-assistant/internal/util"
	"github.com/spf13/cobra"
)

var exportFormats = []string{"yaml", "json", "markdown"}

// NewExportCmd creates the export command
func NewExportCmd() *cobra.Command {
	var (
		userFlag string
		format   string
		output   string
		dbPath   string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a user's interview data",
		Long: `Export a user's interview data

Dumps the user's life areas (with their full paths), summaries and
extracted knowledge. Does not need model credentials.`,
		Example: `  interview export --user 0190f3a4-5b6c-7d8e-9f01-23456789abcd
  interview export --user 0190f3a4-5b6c-7d8e-9f01-23456789abcd --format markdown -o notes.md`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !containsString(exportFormats, format) {
				return fmt.Errorf("unknown format %q (want one of %v)", format, exportFormats)
			}
			userID, err := util.ParseUUID(userFlag)
			if err != nil {
				return fmt.Errorf("--user: %w", err)
			}

			loadEnv()
			db, err := sqlite.Open(resolveDBPath(dbPath))
			if err != nil {
				return err
			}
			defer db.Close()

			data, err := db.Export(cmd.Context(), userID)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				w = f
			}
			return writeExport(w, format, data)
		},
	}

	cmd.Flags().StringVar(&userFlag, "user", "", "User ID to export")
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: yaml, json or markdown")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	cmd.Flags().StringVar(&dbPath, "db", "", "Database path (default: INTERVIEW_DB_PATH)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func writeExport(w io.Writer, format string, data *sqlite.ExportData) error {
	switch format {
	case "json":
		return sqlite.WriteJSON(w, data)
	case "markdown":
		return sqlite.WriteMarkdown(w, data)
	default:
		return sqlite.WriteYAML(w, data)
	}
}
