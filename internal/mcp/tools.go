// ABOUTME: MCP tool definitions and registration for the read-only knowledge server
// ABOUTME: Exposes summaries, knowledge and life areas of the authenticated user
package mcp

import (
	"github.com/harper/interview-assistant/internal/llm"
	"github.com/harper/interview-assistant/internal/storage/sqlite"
	"github.com/harper/interview-assistant/internal/util"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// ServerName is reported to MCP clients
const ServerName = "Interview Assistant"

// NewServer creates an MCP server with every tool registered
func NewServer(version string, db *sqlite.DB, embedder llm.Embedder, policy util.Policy) (*mcpserver.MCPServer, *Handlers) {
	server := mcpserver.NewMCPServer(
		ServerName,
		version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)
	return server, RegisterTools(server, db, embedder, policy)
}

// RegisterTools registers all MCP tools with the server
func RegisterTools(server *mcpserver.MCPServer, db *sqlite.DB, embedder llm.Embedder, policy util.Policy) *Handlers {
	handlers := NewHandlers(db, embedder, policy)

	// 1. search_summaries - semantic search over interview summaries
	server.AddTool(mcp.Tool{
		Name:        "search_summaries",
		Description: "Search interview summaries by semantic similarity to a query string.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "What to look for",
				},
				"limit": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of results, 1 to 100 (default: 5)",
					"default":     DefaultSearchLimit,
				},
			},
			Required: []string{"query"},
		},
	}, handlers.SearchSummaries)

	// 2. get_summaries - all summaries, optionally for one area
	server.AddTool(mcp.Tool{
		Name:        "get_summaries",
		Description: "Get all interview summaries, optionally filtered by area_id.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"area_id": map[string]interface{}{
					"type":        "string",
					"description": "Optional life area id",
				},
			},
		},
	}, handlers.GetSummaries)

	// 3. get_knowledge - extracted skills and facts
	server.AddTool(mcp.Tool{
		Name:        "get_knowledge",
		Description: "Get knowledge extracted from interviews, optionally filtered by kind ('skill' or 'fact').",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"kind": map[string]interface{}{
					"type":        "string",
					"description": "Optional kind filter",
					"enum":        []string{"skill", "fact"},
				},
			},
		},
	}, handlers.GetKnowledge)

	// 4. get_areas - flat list of life areas
	server.AddTool(mcp.Tool{
		Name:        "get_areas",
		Description: "Get a flat list of all life areas of the authenticated user.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, handlers.GetAreas)

	return handlers
}
