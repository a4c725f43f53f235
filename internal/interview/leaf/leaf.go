// ABOUTME: Leaf interview subgraph: asks about one leaf area at a time
// ABOUTME: Nodes mutate State; writes other than context creation are deferred to Commit
package leaf

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/llm"
	"github.com/harper/interview-assistant/internal/models"
	"github.com/harper/interview-assistant/internal/storage/sqlite"
	"github.com/harper/interview-assistant/internal/util"
)

// State is the subgraph's working state for one turn
type State struct {
	UserID uuid.UUID
	RootID uuid.UUID
	// Messages is the conversation ending with the current user message
	Messages []models.Message
	// Now yields strictly increasing bucket timestamps for MessagesToSave
	Now func() int64

	AreaAlreadyExtracted bool
	NoLeaves             bool
	AllLeavesDone        bool

	// ActiveLeafID is the leaf the next question is about; uuid.Nil when none
	ActiveLeafID uuid.UUID
	QuestionText string
	// EvaluatedLeafID is the leaf the current answer was given for
	EvaluatedLeafID uuid.UUID
	Evaluation      *models.LeafEvaluation

	// Deferred writes, committed by Commit
	CompletedLeafID   uuid.UUID
	CompletedLeafPath string
	CompletionStatus  models.CoverageStatus
	CoverageVector    []float64
	TurnSummaryText   string
	SetCoveredAt      bool
	IsFullyCovered    bool

	MessagesToSave util.MessageBuckets
	Success        bool
}

// Evaluating reports whether this turn answers a question already asked
func (s *State) Evaluating() bool {
	return s.EvaluatedLeafID != uuid.Nil
}

// Options tunes the subgraph
type Options struct {
	Policy       util.Policy
	EmbeddingDim int
	// MaxTurnsPerLeaf promotes a partial verdict to complete once reached
	MaxTurnsPerLeaf int
	HistoryLimit    int
	TokenBudget     int
}

// Subgraph runs the leaf interview nodes
type Subgraph struct {
	chat     llm.Chat
	embedder llm.Embedder
	db       *sqlite.DB
	paths    *PathCache
	opts     Options
	logger   *slog.Logger
}

// New creates a subgraph
func New(chat llm.Chat, embedder llm.Embedder, db *sqlite.DB, paths *PathCache, opts Options) *Subgraph {
	if paths == nil {
		paths = NewPathCache(DefaultPathTTL)
	}
	return &Subgraph{
		chat:     chat,
		embedder: embedder,
		db:       db,
		paths:    paths,
		opts:     opts,
		logger:   slog.Default().With("component", "leaf_interview"),
	}
}

type node int

const (
	nodeLoadContext node = iota
	nodeQuickEvaluate
	nodeUpdateCoverage
	nodeSelectNextLeaf
	nodeGenerateResponse
	nodeCompletedArea
	nodeEnd
)

var nodeNames = map[node]string{
	nodeLoadContext:      "load_interview_context",
	nodeQuickEvaluate:    "quick_evaluate",
	nodeUpdateCoverage:   "update_coverage_status",
	nodeSelectNextLeaf:   "select_next_leaf",
	nodeGenerateResponse: "generate_leaf_response",
	nodeCompletedArea:    "completed_area_response",
}

// route picks the node after n
func route(n node, s *State) node {
	switch n {
	case nodeLoadContext:
		if s.AllLeavesDone || s.AreaAlreadyExtracted {
			return nodeCompletedArea
		}
		if !s.Evaluating() {
			return nodeGenerateResponse
		}
		return nodeQuickEvaluate
	case nodeQuickEvaluate:
		return nodeUpdateCoverage
	case nodeUpdateCoverage:
		return nodeSelectNextLeaf
	case nodeSelectNextLeaf:
		return nodeGenerateResponse
	}
	return nodeEnd
}

func (g *Subgraph) step(ctx context.Context, n node, s *State) error {
	switch n {
	case nodeLoadContext:
		return g.loadInterviewContext(ctx, s)
	case nodeQuickEvaluate:
		return g.quickEvaluate(ctx, s)
	case nodeUpdateCoverage:
		return g.updateCoverageStatus(ctx, s)
	case nodeSelectNextLeaf:
		return g.selectNextLeaf(ctx, s)
	case nodeGenerateResponse:
		return g.generateLeafResponse(ctx, s)
	case nodeCompletedArea:
		return g.completedAreaResponse(ctx, s)
	}
	return fmt.Errorf("unknown leaf node %d", n)
}

// Run executes the subgraph. Model failures end the turn with Success false
// and an apology appended to Messages; store and context errors are returned.
func (g *Subgraph) Run(ctx context.Context, s *State) error {
	if s.MessagesToSave == nil {
		s.MessagesToSave = util.MessageBuckets{}
	}
	if s.Now == nil {
		s.Now = util.TurnClock()
	}
	s.Success = true

	for n := nodeLoadContext; n != nodeEnd; n = route(n, s) {
		g.logger.Debug("entering node", "node", nodeNames[n], "user_id", s.UserID)
		if err := g.step(ctx, n, s); err != nil {
			return fmt.Errorf("%s: %w", nodeNames[n], err)
		}
	}
	return nil
}
