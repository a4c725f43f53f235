// ABOUTME: MCP tool handler implementations for the knowledge server
// ABOUTME: Every handler is scoped to the user resolved from the request's API key
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/llm"
	"github.com/harper/interview-assistant/internal/models"
	"github.com/harper/interview-assistant/internal/storage/sqlite"
	"github.com/harper/interview-assistant/internal/util"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	// DefaultSearchLimit is used when search_summaries gets no limit
	DefaultSearchLimit = 5
	// MaxSearchLimit caps search_summaries results
	MaxSearchLimit = 100
)

// SummaryResult is a summary as returned to MCP clients
type SummaryResult struct {
	ID          string   `json:"id"`
	AreaID      string   `json:"area_id"`
	SummaryText string   `json:"summary_text"`
	CreatedAt   string   `json:"created_at"`
	Score       *float64 `json:"score,omitempty"`
}

// AreaResult is a life area as returned to MCP clients
type AreaResult struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	ParentID  *string `json:"parent_id"`
	CoveredAt *string `json:"covered_at"`
}

// KnowledgeResult is a knowledge item as returned to MCP clients
type KnowledgeResult struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Kind        string  `json:"kind"`
	Confidence  float64 `json:"confidence"`
}

// Handlers contains the handler functions for all MCP tools
type Handlers struct {
	db       *sqlite.DB
	embedder llm.Embedder
	policy   util.Policy
	logger   *slog.Logger
}

// NewHandlers creates the tool handlers
func NewHandlers(db *sqlite.DB, embedder llm.Embedder, policy util.Policy) *Handlers {
	return &Handlers{
		db:       db,
		embedder: embedder,
		policy:   policy,
		logger:   slog.Default().With("component", "mcp"),
	}
}

// SearchSummaries handles the search_summaries tool
func (h *Handlers) SearchSummaries(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, ok := UserFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError(models.ErrUnauthorized.Error()), nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}
	limit := clampLimit(request.GetInt("limit", DefaultSearchLimit))

	candidates, err := h.db.Repos().Summaries.ListVectoredByUser(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load summaries: %v", err)), nil
	}
	if len(candidates) == 0 {
		return jsonResult([]SummaryResult{})
	}

	queryVector, err := llm.InvokeWithRetry(ctx, h.policy, func(ctx context.Context) ([]float64, error) {
		return h.embedder.Embed(ctx, query)
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to embed query: %v", err)), nil
	}

	results := make([]SummaryResult, 0, len(candidates))
	for _, s := range candidates {
		score := util.RoundTo(util.CosineSimilarity(queryVector, s.Vector), 4)
		r := summaryResult(s)
		r.Score = &score
		results = append(results, r)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return *results[i].Score > *results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}

	h.logger.Debug("searched summaries", "user_id", userID, "candidates", len(candidates), "returned", len(results))
	return jsonResult(results)
}

// GetSummaries handles the get_summaries tool. An unknown, malformed or
// foreign area id yields an empty list.
func (h *Handlers) GetSummaries(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, ok := UserFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError(models.ErrUnauthorized.Error()), nil
	}
	repos := h.db.Repos()

	var summaries []models.Summary
	if raw := request.GetString("area_id", ""); raw != "" {
		areaID, err := uuid.Parse(raw)
		if err != nil {
			return jsonResult([]SummaryResult{})
		}
		area, err := repos.Areas.GetByID(ctx, areaID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load area: %v", err)), nil
		}
		if area == nil || area.UserID != userID {
			return jsonResult([]SummaryResult{})
		}
		summaries, err = repos.Summaries.ListByArea(ctx, areaID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load summaries: %v", err)), nil
		}
	} else {
		var err error
		summaries, err = repos.Summaries.ListByUser(ctx, userID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to load summaries: %v", err)), nil
		}
	}

	results := make([]SummaryResult, 0, len(summaries))
	for _, s := range summaries {
		results = append(results, summaryResult(s))
	}
	return jsonResult(results)
}

// GetKnowledge handles the get_knowledge tool
func (h *Handlers) GetKnowledge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, ok := UserFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError(models.ErrUnauthorized.Error()), nil
	}
	kind := models.KnowledgeKind(request.GetString("kind", ""))
	if kind != "" && !kind.Valid() {
		return jsonResult([]KnowledgeResult{})
	}

	items, err := h.db.Repos().Knowledge.ListByUser(ctx, userID, kind)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load knowledge: %v", err)), nil
	}
	results := make([]KnowledgeResult, 0, len(items))
	for _, k := range items {
		results = append(results, KnowledgeResult{
			ID:          k.ID.String(),
			Description: k.Description,
			Kind:        string(k.Kind),
			Confidence:  k.Confidence,
		})
	}
	return jsonResult(results)
}

// GetAreas handles the get_areas tool
func (h *Handlers) GetAreas(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, ok := UserFromContext(ctx)
	if !ok {
		return mcp.NewToolResultError(models.ErrUnauthorized.Error()), nil
	}
	areas, err := h.db.Repos().Areas.ListByUser(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load areas: %v", err)), nil
	}

	results := make([]AreaResult, 0, len(areas))
	for _, a := range areas {
		r := AreaResult{ID: a.ID.String(), Title: a.Title}
		if a.ParentID != nil {
			p := a.ParentID.String()
			r.ParentID = &p
		}
		if a.CoveredAt != nil {
			c := a.CoveredAt.UTC().Format(time.RFC3339)
			r.CoveredAt = &c
		}
		results = append(results, r)
	}
	return jsonResult(results)
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return limit
}

func summaryResult(s models.Summary) SummaryResult {
	return SummaryResult{
		ID:          s.ID.String(),
		AreaID:      s.AreaID.String(),
		SummaryText: s.SummaryText,
		CreatedAt:   s.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	responseJSON, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(responseJSON)), nil
}
