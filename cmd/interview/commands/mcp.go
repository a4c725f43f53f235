// ABOUTME: MCP command starts the knowledge tool server over streamable HTTP or stdio
// ABOUTME: HTTP clients authenticate with /mcp_keys API keys; --stdio serves one local user
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harper/interview-assistant/internal/mcp"
	"github.com/harper/interview-assistant/internal/models"
	"github.com/harper/interview-assistant/internal/runtime"
	"github.com/harper/interview-assistant/internal/storage/sqlite"
	"github.com/harper/interview-assistant/internal/util"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	var (
		addr     string
		stdio    bool
		userFlag string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server for LLM agents",
		Long: `Start the MCP server for LLM agents

Serves the search_summaries, get_summaries, get_knowledge and get_areas
tools over streamable HTTP at /mcp. Every request needs an
"Authorization: Bearer <key>" header with a key created through the
/mcp_keys chat command. /metrics and /healthz are served alongside.

With --stdio the server speaks MCP over stdin/stdout for a single local
user instead, for agents that launch it as a subprocess.`,
		Example: `  # Listen on the default MCP_ADDR (:8080)
  interview mcp

  # Listen on a specific address
  interview mcp --addr 127.0.0.1:9000

  # Local agent over stdio
  interview mcp --stdio --user 0190f3a4-5b6c-7d8e-9f01-23456789abcd`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.MCPAddr
			}

			db, err := sqlite.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			client, err := newLLMClient(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stopMaintenance, err := runtime.StartMaintenance(ctx, runtime.CheckpointJob(checkpointSpec, db.Checkpoint))
			if err != nil {
				return err
			}
			defer stopMaintenance()

			server, _ := mcp.NewServer(versionInfo.Version, db, client, retryPolicy(cfg))
			if stdio {
				return serveStdio(ctx, server, db, userFlag)
			}
			return mcp.Serve(ctx, addr, mcp.NewHandler(server, db))
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: MCP_ADDR)")
	cmd.Flags().BoolVar(&stdio, "stdio", false, "Serve over stdin/stdout instead of HTTP")
	cmd.Flags().StringVar(&userFlag, "user", "", "User whose data the stdio server exposes")
	cmd.MarkFlagsMutuallyExclusive("stdio", "addr")
	return cmd
}

// serveStdio runs the server on stdin/stdout with every call scoped to userFlag
func serveStdio(ctx context.Context, server *mcpserver.MCPServer, db *sqlite.DB, userFlag string) error {
	if userFlag == "" {
		return fmt.Errorf("--user is required with --stdio")
	}
	userID, err := util.ParseUUID(userFlag)
	if err != nil {
		return fmt.Errorf("--user: %w", err)
	}
	user, err := db.Repos().Users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server, mcpserver.WithStdioContextFunc(func(ctx context.Context) context.Context {
			return mcp.WithUser(ctx, userID)
		}))
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}
