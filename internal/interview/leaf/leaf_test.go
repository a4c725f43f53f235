// ABOUTME: Tests for the leaf interview subgraph against an in-memory store
// ABOUTME: Covers first question, complete, partial, last-leaf and failure paths
package leaf

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/llm"
	"github.com/harper/interview-assistant/internal/llm/llmtest"
	"github.com/harper/interview-assistant/internal/models"
	"github.com/harper/interview-assistant/internal/prompts"
	"github.com/harper/interview-assistant/internal/storage/sqlite"
	"github.com/harper/interview-assistant/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	firstQuestion = "How long have you worked with Python?"
	followUp      = "Could you tell me more about the projects?"
	transition    = "Thanks! Now, what about your team?"
	closing       = "Thank you, this area is complete."
	summaryText   = "The user has 5 years of Python experience."
)

// scripted answers free-form requests by the prompt they carry
func scripted(req llm.Request) (models.Message, error) {
	switch {
	case strings.Contains(req.System, "Summarise what the user shared"):
		return models.AIMessage(summaryText), nil
	case strings.Contains(req.System, "just finished one topic"):
		return models.AIMessage(transition), nil
	case strings.Contains(req.System, "in the middle of a conversation"):
		return models.AIMessage(followUp), nil
	case strings.Contains(req.System, "covered every topic"):
		return models.AIMessage(closing), nil
	case strings.Contains(req.System, "asking about a single topic"):
		return models.AIMessage(firstQuestion), nil
	case strings.Contains(req.System, "already been fully interviewed"):
		return models.AIMessage("This area is done. Use the reset command to start over."), nil
	case strings.Contains(req.System, "no topics to ask about"):
		return models.AIMessage("Tell me about an area of your life first."), nil
	}
	return models.Message{}, errors.New("unexpected prompt")
}

type fixture struct {
	db       *sqlite.DB
	chat     *llmtest.FakeChat
	embedder *llmtest.FakeEmbedder
	graph    *Subgraph
	userID   uuid.UUID
	rootID   uuid.UUID
	leaves   []uuid.UUID
}

func newFixture(t *testing.T, leafTitles ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		db:       db,
		chat:     llmtest.NewFakeChat(),
		embedder: &llmtest.FakeEmbedder{Dim: 8},
		userID:   util.NewID(),
		rootID:   util.NewID(),
	}
	f.chat.Default = scripted

	require.NoError(t, db.Repos().Users.Create(ctx, &models.User{ID: f.userID, Name: "ada"}))
	require.NoError(t, db.Repos().Areas.Create(ctx, &models.LifeArea{ID: f.rootID, Title: "Career", UserID: f.userID}))
	for _, title := range leafTitles {
		id := util.NewID()
		require.NoError(t, db.Repos().Areas.Create(ctx, &models.LifeArea{ID: id, Title: title, ParentID: &f.rootID, UserID: f.userID}))
		f.leaves = append(f.leaves, id)
	}

	f.graph = New(f.chat, f.embedder, db, nil, Options{
		Policy:          util.Policy{MaxAttempts: 1},
		EmbeddingDim:    8,
		MaxTurnsPerLeaf: 3,
	})
	return f
}

func (f *fixture) evaluate(status models.EvaluationStatus, reason string) {
	f.chat.BySchema["leaf_evaluation"] = llmtest.JSON(models.LeafEvaluation{Status: status, Reason: reason})
}

// turn runs the subgraph for one user message and commits it like save_history
func (f *fixture) turn(t *testing.T, text string) (*State, *uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	clock := util.TurnClock()
	human := models.HumanMessage(text)
	s := &State{
		UserID:         f.userID,
		RootID:         f.rootID,
		Messages:       []models.Message{human},
		Now:            clock,
		MessagesToSave: util.MessageBuckets{}.Add(clock(), human),
	}
	require.NoError(t, f.graph.Run(ctx, s))
	if !s.Success {
		return s, nil
	}

	var pending *uuid.UUID
	err := f.db.Transaction(ctx, func(r *sqlite.Repos) error {
		questionID, err := s.QuestionID(ctx, r)
		if err != nil {
			return err
		}
		var answerID *uuid.UUID
		for _, ts := range s.MessagesToSave.Timestamps() {
			for _, msg := range s.MessagesToSave[ts] {
				h := &models.History{ID: util.NewID(), Message: msg, UserID: f.userID, CreatedTS: time.Unix(0, ts)}
				if err := r.Histories.Create(ctx, h); err != nil {
					return err
				}
				if msg.Role == models.RoleUser {
					id := h.ID
					answerID = &id
				}
				if leafID := s.LinkTarget(msg); leafID != uuid.Nil {
					if err := r.LeafHistory.Link(ctx, leafID, h.ID); err != nil {
						return err
					}
				}
			}
		}
		pending, err = s.Commit(ctx, r, questionID, answerID)
		return err
	})
	require.NoError(t, err)
	return s, pending
}

func (f *fixture) coverage(t *testing.T, leafID uuid.UUID) models.LeafCoverage {
	t.Helper()
	c, err := f.db.Repos().Coverage.Get(context.Background(), f.rootID, leafID)
	require.NoError(t, err)
	require.NotNil(t, c)
	return *c
}

func (f *fixture) activeContext(t *testing.T) *models.ActiveInterviewContext {
	t.Helper()
	c, err := f.db.Repos().Contexts.GetByUser(context.Background(), f.userID)
	require.NoError(t, err)
	return c
}

func TestFirstTurnAsksAboutFirstLeaf(t *testing.T) {
	f := newFixture(t, "Python", "Team")

	s, pending := f.turn(t, "Let's start the interview")
	assert.Nil(t, pending)
	assert.True(t, s.Success)
	assert.Nil(t, s.Evaluation)
	assert.Equal(t, 0, f.chat.SchemaCalls("leaf_evaluation"), "nothing to evaluate before a question was asked")
	assert.Equal(t, firstQuestion, util.LastAIContent(s.Messages))

	ctxRow := f.activeContext(t)
	require.NotNil(t, ctxRow)
	assert.Equal(t, f.leaves[0], ctxRow.ActiveLeafID)
	assert.Equal(t, firstQuestion, ctxRow.QuestionText)
	assert.Equal(t, models.CoverageActive, f.coverage(t, f.leaves[0]).Status)
	assert.Equal(t, models.CoveragePending, f.coverage(t, f.leaves[1]).Status)

	// the question is linked to the leaf, the opening message is not
	msgs, err := f.db.Repos().LeafHistory.ListMessages(context.Background(), f.leaves[0])
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.RoleAI, msgs[0].Message.Role)
}

func TestCompleteAnswerTransitionsToNextLeaf(t *testing.T) {
	f := newFixture(t, "Python", "Team")
	ctx := context.Background()
	l1, l2 := f.leaves[0], f.leaves[1]

	f.turn(t, "Let's start")
	f.evaluate(models.EvaluationComplete, "concrete details given")

	s, pending := f.turn(t, "I have 5 years of Python experience")
	require.True(t, s.Success)
	require.NotNil(t, pending, "summary id goes to the extract queue")
	assert.Equal(t, transition, util.LastAIContent(s.Messages))

	c1 := f.coverage(t, l1)
	assert.Equal(t, models.CoverageCovered, c1.Status)
	assert.Equal(t, summaryText, c1.SummaryText)
	assert.Len(t, c1.Vector, 8)
	assert.Equal(t, models.CoverageActive, f.coverage(t, l2).Status)

	ctxRow := f.activeContext(t)
	require.NotNil(t, ctxRow)
	assert.Equal(t, l2, ctxRow.ActiveLeafID)
	assert.Equal(t, transition, ctxRow.QuestionText)

	summary, err := f.db.Repos().Summaries.GetByID(ctx, *pending)
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, l1, summary.AreaID)
	assert.Equal(t, summaryText, summary.SummaryText)
	require.NotNil(t, summary.QuestionID)
	require.NotNil(t, summary.AnswerID)

	question, err := f.db.Repos().Histories.GetByID(ctx, *summary.QuestionID)
	require.NoError(t, err)
	assert.Equal(t, firstQuestion, question.Message.Content)
	answer, err := f.db.Repos().Histories.GetByID(ctx, *summary.AnswerID)
	require.NoError(t, err)
	assert.Equal(t, "I have 5 years of Python experience", answer.Message.Content)

	leafArea, err := f.db.Repos().Areas.GetByID(ctx, l1)
	require.NoError(t, err)
	assert.NotNil(t, leafArea.CoveredAt)

	// the answer is linked to L1, the transition question to L2
	l1Msgs, err := f.db.Repos().LeafHistory.ListMessages(ctx, l1)
	require.NoError(t, err)
	assert.Len(t, l1Msgs, 2)
	l2Msgs, err := f.db.Repos().LeafHistory.ListMessages(ctx, l2)
	require.NoError(t, err)
	require.Len(t, l2Msgs, 1)
	assert.Equal(t, transition, l2Msgs[0].Message.Content)
}

func TestPartialAnswerStaysOnLeaf(t *testing.T) {
	f := newFixture(t, "Python", "Team")
	ctx := context.Background()
	l1 := f.leaves[0]

	f.turn(t, "Let's start")
	f.evaluate(models.EvaluationPartial, "no details yet")

	s, pending := f.turn(t, "yes")
	assert.Nil(t, pending)
	assert.Equal(t, followUp, util.LastAIContent(s.Messages))
	assert.Equal(t, models.CoverageActive, f.coverage(t, l1).Status)
	assert.Equal(t, models.CoveragePending, f.coverage(t, f.leaves[1]).Status)

	ctxRow := f.activeContext(t)
	require.NotNil(t, ctxRow)
	assert.Equal(t, l1, ctxRow.ActiveLeafID)
	assert.Equal(t, followUp, ctxRow.QuestionText)

	summaries, err := f.db.Repos().Summaries.ListByUser(ctx, f.userID)
	require.NoError(t, err)
	assert.Empty(t, summaries)

	area, err := f.db.Repos().Areas.GetByID(ctx, l1)
	require.NoError(t, err)
	assert.Nil(t, area.CoveredAt)

	followupReq := f.chat.Calls()[len(f.chat.Calls())-1]
	assert.Contains(t, followupReq.System, "no details yet")
}

func TestLastLeafClosesInterview(t *testing.T) {
	f := newFixture(t, "Python")
	ctx := context.Background()

	f.turn(t, "Let's start")
	f.evaluate(models.EvaluationComplete, "done")

	s, pending := f.turn(t, "Ten years of Django and FastAPI at three companies")
	require.NotNil(t, pending)
	assert.True(t, s.IsFullyCovered)
	assert.True(t, s.AllLeavesDone)
	assert.Equal(t, closing, util.LastAIContent(s.Messages))
	assert.Nil(t, f.activeContext(t), "context is deleted with the final flip")
	assert.Equal(t, models.CoverageCovered, f.coverage(t, f.leaves[0]).Status)

	calls := f.chat.Calls()
	assert.Equal(t, prompts.AllLeavesDone, calls[len(calls)-1].System)

	root, err := f.db.Repos().Areas.GetByID(ctx, f.rootID)
	require.NoError(t, err)
	assert.NotNil(t, root.ExtractedAt)

	// a finished area answers with the reset command
	s, pending = f.turn(t, "Anything else?")
	assert.Nil(t, pending)
	assert.True(t, s.AreaAlreadyExtracted)
	calls = f.chat.Calls()
	assert.Contains(t, calls[len(calls)-1].System, ResetCommand(f.rootID))
}

func TestSkippedLeaf(t *testing.T) {
	f := newFixture(t, "Python", "Team")
	f.turn(t, "Let's start")
	f.evaluate(models.EvaluationSkipped, "user has no experience")

	s, _ := f.turn(t, "I don't know, skip it")
	assert.Equal(t, models.CoverageSkipped, f.coverage(t, f.leaves[0]).Status)
	assert.Equal(t, models.CoverageActive, f.coverage(t, f.leaves[1]).Status)
	assert.Equal(t, f.leaves[1], s.ActiveLeafID)
}

func TestTurnLimitPromotesPartial(t *testing.T) {
	f := newFixture(t, "Python", "Team")
	f.turn(t, "Let's start")
	f.evaluate(models.EvaluationPartial, "vague")

	f.turn(t, "some")
	f.turn(t, "a bit more")
	assert.Equal(t, models.CoverageActive, f.coverage(t, f.leaves[0]).Status)

	s, pending := f.turn(t, "that's all I have")
	require.NotNil(t, s.Evaluation)
	assert.Equal(t, models.EvaluationComplete, s.Evaluation.Status)
	assert.NotNil(t, pending)
	assert.Equal(t, models.CoverageCovered, f.coverage(t, f.leaves[0]).Status)
}

func TestEvaluationFailureFallsBackToPartial(t *testing.T) {
	f := newFixture(t, "Python", "Team")
	f.turn(t, "Let's start")
	f.chat.BySchema["leaf_evaluation"] = llmtest.Fail(llm.ErrStructuredOutput)

	s, pending := f.turn(t, "hmm")
	require.NotNil(t, s.Evaluation)
	assert.Equal(t, models.EvaluationPartial, s.Evaluation.Status)
	assert.Equal(t, EvaluationFailedReason, s.Evaluation.Reason)
	assert.Nil(t, pending)
	assert.True(t, s.Success)
}

func TestEmbeddingFailureStillFlipsStatus(t *testing.T) {
	f := newFixture(t, "Python", "Team")
	f.turn(t, "Let's start")
	f.evaluate(models.EvaluationComplete, "done")
	f.embedder.Err = errors.New("embedding service down")

	_, pending := f.turn(t, "I have 5 years of Python experience")
	assert.NotNil(t, pending)
	c := f.coverage(t, f.leaves[0])
	assert.Equal(t, models.CoverageCovered, c.Status)
	assert.Nil(t, c.Vector)
	assert.Equal(t, summaryText, c.SummaryText)
}

func TestRootWithoutLeaves(t *testing.T) {
	f := newFixture(t)
	s, pending := f.turn(t, "Interview me")
	assert.Nil(t, pending)
	assert.True(t, s.NoLeaves)
	assert.True(t, s.AllLeavesDone)
	assert.Nil(t, f.activeContext(t))
	assert.Equal(t, prompts.NoTopics, f.chat.Calls()[0].System)
}

func TestModelFailureEndsTurnUnsaved(t *testing.T) {
	f := newFixture(t, "Python")
	f.chat.Default = llmtest.Fail(errors.New("upstream 500"))

	s, _ := f.turn(t, "Let's start")
	assert.False(t, s.Success)
	assert.Equal(t, models.UnavailableMessage, util.LastAIContent(s.Messages))

	// the context created on load survives, without a question
	ctxRow := f.activeContext(t)
	require.NotNil(t, ctxRow)
	assert.Empty(t, ctxRow.QuestionText)
}

func TestStaleActiveLeafIsReset(t *testing.T) {
	f := newFixture(t, "Python", "Team")
	ctx := context.Background()
	require.NoError(t, f.db.Repos().Coverage.EnsurePending(ctx, f.rootID, f.leaves))
	require.NoError(t, f.db.Repos().Coverage.UpdateStatus(ctx, f.rootID, f.leaves[1], models.CoverageActive))

	f.turn(t, "Let's start")
	assert.Equal(t, models.CoverageActive, f.coverage(t, f.leaves[0]).Status)
	assert.Equal(t, models.CoveragePending, f.coverage(t, f.leaves[1]).Status)
}

func TestPathCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mid := util.NewID()
	require.NoError(t, f.db.Repos().Areas.Create(ctx, &models.LifeArea{ID: mid, Title: "Work", ParentID: &f.rootID, UserID: f.userID}))
	leafID := util.NewID()
	require.NoError(t, f.db.Repos().Areas.Create(ctx, &models.LifeArea{ID: leafID, Title: "Projects", ParentID: &mid, UserID: f.userID}))

	paths := NewPathCache(time.Minute)
	assert.Equal(t, "Work > Projects", paths.Path(ctx, f.db.Repos(), f.rootID, leafID))
	assert.Equal(t, 1, paths.Len())
	assert.Equal(t, UnknownTopic, paths.Path(ctx, f.db.Repos(), f.rootID, uuid.New()))
}
