// ABOUTME: Knowledge extraction pipeline run on each new leaf summary
// ABOUTME: Embeds the summary, extracts skills and facts, and persists both in one transaction
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/llm"
	"github.com/harper/interview-assistant/internal/metrics"
	"github.com/harper/interview-assistant/internal/models"
	"github.com/harper/interview-assistant/internal/prompts"
	"github.com/harper/interview-assistant/internal/storage/sqlite"
	"github.com/harper/interview-assistant/internal/util"
)

// Item is one extracted skill or fact
type Item struct {
	Content    string               `json:"content" validate:"required"`
	Kind       models.KnowledgeKind `json:"kind" validate:"required,oneof=skill fact"`
	Confidence float64              `json:"confidence" validate:"gte=0,lte=1"`
}

// Extraction is the structured output of the knowledge model
type Extraction struct {
	Items []Item `json:"items" validate:"dive"`
}

// Result describes what one run stored
type Result struct {
	SummaryID uuid.UUID
	// Skipped is set when the summary was missing or empty
	Skipped   bool
	Vectored  bool
	Knowledge int
}

// Pipeline turns summaries into vectors and knowledge rows
type Pipeline struct {
	db           *sqlite.DB
	chat         llm.Chat
	embedder     llm.Embedder
	policy       util.Policy
	embeddingDim int
	logger       *slog.Logger
}

// New creates a pipeline. embeddingDim of zero skips the dimension check.
func New(db *sqlite.DB, chat llm.Chat, embedder llm.Embedder, policy util.Policy, embeddingDim int) *Pipeline {
	return &Pipeline{
		db:           db,
		chat:         chat,
		embedder:     embedder,
		policy:       policy,
		embeddingDim: embeddingDim,
		logger:       slog.Default().With("component", "extract"),
	}
}

// Run processes one summary. A summary that is gone or empty is skipped
// without error; a failed persist returns the error and is not retried.
func (p *Pipeline) Run(ctx context.Context, summaryID uuid.UUID) (*Result, error) {
	res := &Result{SummaryID: summaryID}

	summary, userID, err := p.load(ctx, summaryID)
	if err != nil {
		metrics.ExtractionsTotal.WithLabelValues("error").Inc()
		return res, err
	}
	if summary == nil {
		res.Skipped = true
		metrics.ExtractionsTotal.WithLabelValues("skipped").Inc()
		return res, nil
	}

	vector := p.vectorize(ctx, summary)
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	items, err := p.extract(ctx, summary)
	if err != nil {
		return res, err
	}

	if err := p.persist(ctx, summary.ID, userID, vector, items); err != nil {
		metrics.ExtractionsTotal.WithLabelValues("error").Inc()
		return res, err
	}

	res.Vectored = vector != nil
	res.Knowledge = len(items)
	metrics.ExtractionsTotal.WithLabelValues("ok").Inc()
	p.logger.Info("extracted knowledge",
		"summary_id", summaryID,
		"vectored", res.Vectored,
		"items", res.Knowledge)
	return res, nil
}

// load returns the summary and its owner, or nil when there is nothing to do
func (p *Pipeline) load(ctx context.Context, summaryID uuid.UUID) (*models.Summary, uuid.UUID, error) {
	repos := p.db.Repos()
	summary, err := repos.Summaries.GetByID(ctx, summaryID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("load summary: %w", err)
	}
	if summary == nil {
		p.logger.Warn("summary not found", "summary_id", summaryID)
		return nil, uuid.Nil, nil
	}
	if strings.TrimSpace(summary.SummaryText) == "" {
		p.logger.Warn("summary has no content", "summary_id", summaryID)
		return nil, uuid.Nil, nil
	}

	area, err := repos.Areas.GetByID(ctx, summary.AreaID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("load summary area: %w", err)
	}
	if area == nil {
		p.logger.Warn("summary area not found", "summary_id", summaryID, "area_id", summary.AreaID)
		return nil, uuid.Nil, nil
	}
	return summary, area.UserID, nil
}

// vectorize embeds the summary; failures leave the vector nil
func (p *Pipeline) vectorize(ctx context.Context, summary *models.Summary) []float64 {
	vector, err := llm.InvokeWithRetry(ctx, p.policy, func(ctx context.Context) ([]float64, error) {
		return p.embedder.Embed(ctx, summary.SummaryText)
	})
	if err != nil {
		metrics.LLMCalls.WithLabelValues("embed", "error").Inc()
		p.logger.Warn("embedding failed, continuing without vector", "summary_id", summary.ID, "error", err)
		return nil
	}
	if p.embeddingDim > 0 {
		if err := models.ValidateDimension(vector, p.embeddingDim); err != nil {
			p.logger.Warn("dropping vector", "summary_id", summary.ID, "error", err)
			return nil
		}
	}
	metrics.LLMCalls.WithLabelValues("embed", "ok").Inc()
	return vector
}

// extract asks the model for knowledge items. Model failures yield an
// empty list; only cancellation is returned.
func (p *Pipeline) extract(ctx context.Context, summary *models.Summary) ([]Item, error) {
	out, err := llm.Structured[Extraction](ctx, p.chat, p.policy, "knowledge_extraction", llm.Request{
		System:      prompts.KnowledgeExtraction,
		Messages:    []models.Message{models.HumanMessage(summary.SummaryText)},
		Temperature: llm.Temperature(0),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.LLMCalls.WithLabelValues("knowledge_extraction", "error").Inc()
		p.logger.Error("knowledge extraction failed", "summary_id", summary.ID, "error", err)
		return nil, nil
	}
	metrics.LLMCalls.WithLabelValues("knowledge_extraction", "ok").Inc()

	items := make([]Item, 0, len(out.Items))
	for _, item := range out.Items {
		item.Content = strings.TrimSpace(item.Content)
		if item.Content == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (p *Pipeline) persist(ctx context.Context, summaryID, userID uuid.UUID, vector []float64, items []Item) error {
	now := time.Now().UTC()
	return p.db.Transaction(ctx, func(r *sqlite.Repos) error {
		if vector != nil {
			if err := r.Summaries.SetVector(ctx, summaryID, vector); err != nil {
				return fmt.Errorf("store vector: %w", err)
			}
		}
		for _, item := range items {
			sid := summaryID
			k := &models.UserKnowledge{
				ID:          util.NewID(),
				UserID:      userID,
				Description: item.Content,
				Kind:        item.Kind,
				Confidence:  item.Confidence,
				CreatedTS:   now,
				SummaryID:   &sid,
			}
			if err := r.Knowledge.Create(ctx, k); err != nil {
				return fmt.Errorf("store knowledge: %w", err)
			}
		}
		return nil
	})
}
