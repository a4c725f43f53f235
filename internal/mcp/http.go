// ABOUTME: HTTP surface of the MCP server: streamable MCP, metrics and health
// ABOUTME: Serve runs it until the context is cancelled
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/harper/interview-assistant/internal/metrics"
	"github.com/harper/interview-assistant/internal/storage/sqlite"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// EndpointPath is where the streamable MCP endpoint is mounted
const EndpointPath = "/mcp"

// NewHandler mounts the authenticated MCP endpoint next to /metrics and /healthz
func NewHandler(server *mcpserver.MCPServer, db *sqlite.DB) http.Handler {
	streamable := mcpserver.NewStreamableHTTPServer(server,
		mcpserver.WithEndpointPath(EndpointPath),
		mcpserver.WithStateLess(true),
		mcpserver.WithHTTPContextFunc(contextFromRequest),
	)

	mux := http.NewServeMux()
	mux.Handle(EndpointPath, RequireAPIKey(db, streamable))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	logger := slog.Default().With("component", "mcp_http")
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("MCP server listening", "addr", addr, "endpoint", EndpointPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down MCP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
