// ABOUTME: Tests for the extraction pipeline against an in-memory store
// ABOUTME: Covers the happy path and each degraded step
package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/llm"
	"github.com/harper/interview-assistant/internal/llm/llmtest"
	"github.com/harper/interview-assistant/internal/models"
	"github.com/harper/interview-assistant/internal/storage/sqlite"
	"github.com/harper/interview-assistant/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type setup struct {
	db       *sqlite.DB
	chat     *llmtest.FakeChat
	embedder *llmtest.FakeEmbedder
	pipeline *Pipeline
	userID   uuid.UUID
	areaID   uuid.UUID
}

func newSetup(t *testing.T) *setup {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := &setup{
		db:       db,
		chat:     llmtest.NewFakeChat(),
		embedder: &llmtest.FakeEmbedder{Dim: 8},
		userID:   util.NewID(),
		areaID:   util.NewID(),
	}
	require.NoError(t, db.Repos().Users.Create(ctx, &models.User{ID: s.userID, Name: "ada"}))
	require.NoError(t, db.Repos().Areas.Create(ctx, &models.LifeArea{ID: s.areaID, Title: "Python", UserID: s.userID}))
	s.pipeline = New(db, s.chat, s.embedder, util.Policy{MaxAttempts: 1}, 8)
	return s
}

func (s *setup) summary(t *testing.T, text string) uuid.UUID {
	t.Helper()
	sum := &models.Summary{ID: util.NewID(), AreaID: s.areaID, SummaryText: text}
	require.NoError(t, s.db.Repos().Summaries.Create(context.Background(), sum))
	return sum.ID
}

func (s *setup) knowledge(t *testing.T) []models.UserKnowledge {
	t.Helper()
	items, err := s.db.Repos().Knowledge.ListByUser(context.Background(), s.userID, "")
	require.NoError(t, err)
	return items
}

func twoItems() llmtest.Handler {
	return llmtest.JSON(Extraction{Items: []Item{
		{Content: "Python programming", Kind: models.KnowledgeSkill, Confidence: 1.0},
		{Content: "Has 5 years of experience", Kind: models.KnowledgeFact, Confidence: 0.9},
	}})
}

func TestRunStoresVectorAndKnowledge(t *testing.T) {
	s := newSetup(t)
	s.chat.BySchema["knowledge_extraction"] = twoItems()
	id := s.summary(t, "The user has 5 years of Python experience.")

	res, err := s.pipeline.Run(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, res.Vectored)
	assert.Equal(t, 2, res.Knowledge)

	stored, err := s.db.Repos().Summaries.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, stored.Vector, 8)

	items := s.knowledge(t)
	require.Len(t, items, 2)
	assert.Equal(t, "Python programming", items[0].Description)
	assert.Equal(t, models.KnowledgeSkill, items[0].Kind)
	assert.Equal(t, models.KnowledgeFact, items[1].Kind)
	assert.InDelta(t, 0.9, items[1].Confidence, 1e-9)
	for _, k := range items {
		require.NotNil(t, k.SummaryID)
		assert.Equal(t, id, *k.SummaryID)
		assert.Equal(t, s.userID, k.UserID)
	}

	req := s.chat.Calls()[0]
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "The user has 5 years of Python experience.", req.Messages[0].Content)
}

func TestRunSkipsMissingOrEmptySummary(t *testing.T) {
	s := newSetup(t)

	res, err := s.pipeline.Run(context.Background(), util.NewID())
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	res, err = s.pipeline.Run(context.Background(), s.summary(t, "   "))
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	assert.Empty(t, s.chat.Calls())
	assert.Zero(t, s.embedder.Calls())
}

func TestRunWithoutVectorWhenEmbeddingFails(t *testing.T) {
	s := newSetup(t)
	s.chat.BySchema["knowledge_extraction"] = twoItems()
	s.embedder.Err = errors.New("embedding endpoint down")
	id := s.summary(t, "The user lives in Lisbon.")

	res, err := s.pipeline.Run(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, res.Vectored)
	assert.Equal(t, 2, res.Knowledge)

	vectored, err := s.db.Repos().Summaries.ListVectoredByUser(context.Background(), s.userID)
	require.NoError(t, err)
	assert.Empty(t, vectored)
}

func TestRunDropsWrongDimension(t *testing.T) {
	s := newSetup(t)
	s.embedder.Dim = 4
	s.chat.BySchema["knowledge_extraction"] = llmtest.JSON(Extraction{})
	id := s.summary(t, "The user lives in Lisbon.")

	res, err := s.pipeline.Run(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, res.Vectored)
}

func TestRunKeepsVectorWhenExtractionFails(t *testing.T) {
	tests := []struct {
		name    string
		handler llmtest.Handler
	}{
		{"model error", llmtest.Fail(errors.New("upstream 500"))},
		{"bad json", llmtest.Text("not json")},
		{"invalid kind", llmtest.JSON(map[string]any{"items": []map[string]any{{"content": "x", "kind": "opinion", "confidence": 0.5}}})},
		{"confidence out of range", llmtest.JSON(map[string]any{"items": []map[string]any{{"content": "x", "kind": "fact", "confidence": 3}}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSetup(t)
			s.chat.BySchema["knowledge_extraction"] = tt.handler
			id := s.summary(t, "The user runs marathons.")

			res, err := s.pipeline.Run(context.Background(), id)
			require.NoError(t, err)
			assert.True(t, res.Vectored)
			assert.Zero(t, res.Knowledge)
			assert.Empty(t, s.knowledge(t))
		})
	}
}

func TestRunTrimsItemContent(t *testing.T) {
	s := newSetup(t)
	s.chat.BySchema["knowledge_extraction"] = llmtest.JSON(map[string]any{"items": []map[string]any{
		{"content": "  Go programming ", "kind": "skill", "confidence": 0.8},
	}})
	id := s.summary(t, "The user writes Go.")

	_, err := s.pipeline.Run(context.Background(), id)
	require.NoError(t, err)
	items := s.knowledge(t)
	require.Len(t, items, 1)
	assert.Equal(t, "Go programming", items[0].Description)
}

func TestRunHonoursCancellation(t *testing.T) {
	s := newSetup(t)
	s.chat.BySchema["knowledge_extraction"] = llmtest.Fail(llm.ErrStructuredOutput)
	id := s.summary(t, "The user runs marathons.")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.pipeline.Run(ctx, id)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.knowledge(t))
}
