// ABOUTME: Interview graph: routes one user turn through commands, target selection and handlers
// ABOUTME: Nodes mutate State; routing between them is a pure function of the node and State
package interview

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/areas"
	"github.com/harper/interview-assistant/internal/commands"
	"github.com/harper/interview-assistant/internal/config"
	"github.com/harper/interview-assistant/internal/interview/leaf"
	"github.com/harper/interview-assistant/internal/llm"
	"github.com/harper/interview-assistant/internal/media"
	"github.com/harper/interview-assistant/internal/models"
	"github.com/harper/interview-assistant/internal/runtime"
	"github.com/harper/interview-assistant/internal/storage/sqlite"
	"github.com/harper/interview-assistant/internal/util"
)

// Transcoder converts media into a WAV file the transcriber accepts
type Transcoder interface {
	ToWAV(ctx context.Context, m media.Media) (wavPath string, cleanup func(), err error)
}

// State is the working state of one turn
type State struct {
	User *models.User
	// AreaID is the interview root: the user's current area or a fresh id
	AreaID  uuid.UUID
	Payload runtime.Payload
	Text    string

	Messages       []models.Message
	MessagesToSave util.MessageBuckets
	Target         models.Target
	Success        bool

	// Leaf is set when the turn ran the leaf interview
	Leaf             *leaf.State
	PendingSummaryID *uuid.UUID

	// Reply holds a command's answer; Handled ends the turn after it
	Reply   string
	Handled bool

	now func() int64
}

// NewState builds the initial state for a request
func NewState(user *models.User, payload runtime.Payload) *State {
	areaID := util.NewID()
	if user.CurrentAreaID != nil {
		areaID = *user.CurrentAreaID
	}
	return &State{
		User:           user,
		AreaID:         areaID,
		Payload:        payload,
		MessagesToSave: util.MessageBuckets{},
		now:            util.TurnClock(),
	}
}

// ResponseText is the text sent back to the user
func (s *State) ResponseText() string {
	if s.Handled {
		return s.Reply
	}
	return util.LastAIContent(s.Messages)
}

// Deps are the collaborators the graph calls into
type Deps struct {
	DB          *sqlite.DB
	Chat        llm.Chat
	Embedder    llm.Embedder
	Transcriber llm.Transcriber
	// Transcoder may be nil when media input is not supported
	Transcoder Transcoder
	Commands   *commands.Registry
	Policy     util.Policy
	// EmbeddingDim is the expected vector size for leaf summaries
	EmbeddingDim int
	// Paths is shared across turns; nil gets a private cache
	Paths *leaf.PathCache
}

// Graph runs interview turns
type Graph struct {
	db          *sqlite.DB
	chat        llm.Chat
	transcriber llm.Transcriber
	transcoder  Transcoder
	commands    *commands.Registry
	areaTools   *areas.Registry
	areaLoop    *areas.Loop
	leaf        *leaf.Subgraph
	policy      util.Policy
	logger      *slog.Logger
}

// New wires a graph from deps
func New(deps Deps) *Graph {
	tools := areas.NewRegistry()
	return &Graph{
		db:          deps.DB,
		chat:        deps.Chat,
		transcriber: deps.Transcriber,
		transcoder:  deps.Transcoder,
		commands:    deps.Commands,
		areaTools:   tools,
		areaLoop:    areas.NewLoop(deps.Chat, deps.DB, tools, deps.Policy),
		leaf: leaf.New(deps.Chat, deps.Embedder, deps.DB, deps.Paths, leaf.Options{
			Policy:          deps.Policy,
			EmbeddingDim:    deps.EmbeddingDim,
			MaxTurnsPerLeaf: config.MaxTurnsPerLeaf,
			HistoryLimit:    config.HistoryLimitInterview,
			TokenBudget:     config.ContextTokenBudget,
		}),
		policy: deps.Policy,
		logger: slog.Default().With("component", "interview_graph"),
	}
}

type node int

const (
	nodeTranscribe node = iota
	nodeHandleCommand
	nodeLoadHistory
	nodeBuildUserMessage
	nodeExtractTarget
	nodeConductInterview
	nodeManageAreas
	nodeSmallTalk
	nodeSaveHistory
	nodeEnd
)

var nodeNames = map[node]string{
	nodeTranscribe:       "transcribe",
	nodeHandleCommand:    "handle_command",
	nodeLoadHistory:      "load_history",
	nodeBuildUserMessage: "build_user_message",
	nodeExtractTarget:    "extract_target",
	nodeConductInterview: "conduct_interview",
	nodeManageAreas:      "manage_areas",
	nodeSmallTalk:        "small_talk",
	nodeSaveHistory:      "save_history",
}

var targetNodes = map[models.Target]node{
	models.TargetConductInterview: nodeConductInterview,
	models.TargetManageAreas:      nodeManageAreas,
	models.TargetSmallTalk:        nodeSmallTalk,
}

// route picks the node after n
func route(n node, s *State) node {
	switch n {
	case nodeTranscribe:
		return nodeHandleCommand
	case nodeHandleCommand:
		if s.Handled {
			return nodeEnd
		}
		return nodeLoadHistory
	case nodeLoadHistory:
		return nodeBuildUserMessage
	case nodeBuildUserMessage:
		return nodeExtractTarget
	case nodeExtractTarget:
		if !s.Success {
			return nodeEnd
		}
		if next, ok := targetNodes[s.Target]; ok {
			return next
		}
		return nodeSmallTalk
	case nodeConductInterview, nodeManageAreas, nodeSmallTalk:
		if s.Success {
			return nodeSaveHistory
		}
	}
	return nodeEnd
}

func (g *Graph) step(ctx context.Context, n node, s *State) error {
	switch n {
	case nodeTranscribe:
		return g.transcribe(ctx, s)
	case nodeHandleCommand:
		return g.handleCommand(ctx, s)
	case nodeLoadHistory:
		return g.loadHistory(ctx, s)
	case nodeBuildUserMessage:
		return g.buildUserMessage(ctx, s)
	case nodeExtractTarget:
		return g.extractTarget(ctx, s)
	case nodeConductInterview:
		return g.conductInterview(ctx, s)
	case nodeManageAreas:
		return g.manageAreas(ctx, s)
	case nodeSmallTalk:
		return g.smallTalk(ctx, s)
	case nodeSaveHistory:
		return g.saveHistory(ctx, s)
	}
	return fmt.Errorf("unknown node %d", n)
}

// Run executes one turn. Model failures end the turn with Success false
// and an apology as the last message; other errors are returned.
func (g *Graph) Run(ctx context.Context, s *State) error {
	if s.MessagesToSave == nil {
		s.MessagesToSave = util.MessageBuckets{}
	}
	if s.now == nil {
		s.now = util.TurnClock()
	}
	s.Success = true

	for n := nodeTranscribe; n != nodeEnd; n = route(n, s) {
		g.logger.Debug("entering node", "node", nodeNames[n], "user_id", s.User.ID)
		if err := g.step(ctx, n, s); err != nil {
			return fmt.Errorf("%s: %w", nodeNames[n], err)
		}
	}
	return nil
}
