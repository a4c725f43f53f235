// ABOUTME: Root command, global flags and environment loading for the interview CLI
// ABOUTME: Execute is the single entry point used by main
package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/harper/interview-assistant/internal/config"
	"github.com/harper/interview-assistant/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	quiet   bool
	envFile string
)

// NewRootCmd builds the command tree
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interview",
		Short: "Conversational interview assistant",
		Long: `Conversational interview assistant

Interviews a user about the areas of their life over Telegram or the
terminal, keeps a tree of life areas, summarises what was covered and
extracts skills and facts. Stored knowledge is exposed to other agents
through an MCP tool server.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log errors")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load if present")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(
		NewServeCmd(),
		NewCLICmd(),
		NewMCPCmd(),
		NewExportCmd(),
		NewVersionCmd(),
	)
	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

// loadEnv reads envFile into the environment; a missing file is fine
func loadEnv() {
	if envFile == "" {
		return
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		slog.Default().Warn("failed to load env file", "path", envFile, "error", err)
	}
}

// loadConfig loads .env, reads and validates the configuration and installs
// the process logger
func loadConfig(stderr io.Writer) (*config.Config, error) {
	loadEnv()
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Setup(stderr, logLevel(cfg.LogLevel), cfg.LogFormat)
	return cfg, nil
}

func logLevel(configured string) string {
	switch {
	case verbose:
		return "debug"
	case quiet:
		return "error"
	}
	return configured
}
