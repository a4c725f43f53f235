// ABOUTME: Tests for leaf coverage, interview context, summaries and knowledge
// ABOUTME: Includes the one-active-leaf-per-root constraint
package sqlite

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/models"
)

func TestCoverageLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	userID := seedUser(t, db)
	root := seedArea(t, db, userID, "Root", nil)
	l0 := seedArea(t, db, userID, "L0", &root)
	l1 := seedArea(t, db, userID, "L1", &root)
	store := db.Repos().Coverage

	if err := store.EnsurePending(ctx, root, []uuid.UUID{l0, l1}); err != nil {
		t.Fatalf("EnsurePending() error = %v", err)
	}
	if err := store.UpdateStatus(ctx, root, l0, models.CoverageActive); err != nil {
		t.Fatalf("UpdateStatus(active) error = %v", err)
	}
	// EnsurePending never downgrades an existing row
	if err := store.EnsurePending(ctx, root, []uuid.UUID{l0, l1}); err != nil {
		t.Fatalf("EnsurePending() again error = %v", err)
	}

	rows, err := store.ListByRoot(ctx, root)
	if err != nil {
		t.Fatalf("ListByRoot() error = %v", err)
	}
	if rows[l0].Status != models.CoverageActive || rows[l1].Status != models.CoveragePending {
		t.Errorf("statuses = %s, %s", rows[l0].Status, rows[l1].Status)
	}

	// A second active leaf under the same root violates the partial unique index
	if err := store.UpdateStatus(ctx, root, l1, models.CoverageActive); err == nil {
		t.Error("expected second active leaf to be rejected")
	}

	if err := store.Complete(ctx, root, l0, models.CoverageCovered, "baker then chef", []float64{0.5, 0.25}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if err := store.UpdateStatus(ctx, root, l1, models.CoverageActive); err != nil {
		t.Fatalf("UpdateStatus(l1 active) error = %v", err)
	}

	c, err := store.Get(ctx, root, l0)
	if err != nil || c == nil {
		t.Fatalf("Get() = %v, %v", c, err)
	}
	if c.SummaryText != "baker then chef" || len(c.Vector) != 2 || c.Vector[1] != 0.25 {
		t.Errorf("completed row = %+v", c)
	}

	if err := store.Complete(ctx, root, l1, models.CoverageActive, "", nil); err == nil {
		t.Error("Complete with a non-closing status should fail")
	}

	if err := store.DeleteByRoot(ctx, root); err != nil {
		t.Fatalf("DeleteByRoot() error = %v", err)
	}
	rows, _ = store.ListByRoot(ctx, root)
	if len(rows) != 0 {
		t.Errorf("rows after DeleteByRoot = %d", len(rows))
	}
}

func TestInterviewContext(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	userID := seedUser(t, db)
	root := seedArea(t, db, userID, "Root", nil)
	l0 := seedArea(t, db, userID, "L0", &root)
	l1 := seedArea(t, db, userID, "L1", &root)
	store := db.Repos().Contexts

	if got, err := store.GetByUser(ctx, userID); err != nil || got != nil {
		t.Fatalf("GetByUser(empty) = %v, %v", got, err)
	}

	if err := store.Create(ctx, &models.ActiveInterviewContext{UserID: userID, RootAreaID: root, ActiveLeafID: l0}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Update(ctx, userID, l1, "What about L1?"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got, err := store.GetByUser(ctx, userID)
	if err != nil || got == nil {
		t.Fatalf("GetByUser() = %v, %v", got, err)
	}
	if got.ActiveLeafID != l1 || got.QuestionText != "What about L1?" {
		t.Errorf("context = %+v", got)
	}

	if err := store.DeleteByUser(ctx, userID); err != nil {
		t.Fatalf("DeleteByUser() error = %v", err)
	}
	if err := store.Update(ctx, userID, l0, ""); err == nil {
		t.Error("Update on a missing context should fail")
	}
}

func TestSummariesAndKnowledge(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	userID := seedUser(t, db)
	root := seedArea(t, db, userID, "Root", nil)
	leaf := seedArea(t, db, userID, "Leaf", &root)
	r := db.Repos()

	sum := &models.Summary{AreaID: leaf, SummaryText: "Worked as a chef"}
	if err := r.Summaries.Create(ctx, sum); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	vectored, _ := r.Summaries.ListVectoredByUser(ctx, userID)
	if len(vectored) != 0 {
		t.Errorf("vectored before SetVector = %d", len(vectored))
	}
	if err := r.Summaries.SetVector(ctx, sum.ID, []float64{1, 0, 0}); err != nil {
		t.Fatalf("SetVector() error = %v", err)
	}
	vectored, _ = r.Summaries.ListVectoredByUser(ctx, userID)
	if len(vectored) != 1 || len(vectored[0].Vector) != 3 {
		t.Errorf("vectored = %+v", vectored)
	}

	items := []models.UserKnowledge{
		{UserID: userID, Description: "Cooking", Kind: models.KnowledgeSkill, Confidence: 0.9, SummaryID: &sum.ID},
		{UserID: userID, Description: "Lives in Lyon", Kind: models.KnowledgeFact, Confidence: 0.7, SummaryID: &sum.ID},
	}
	for i := range items {
		if err := r.Knowledge.Create(ctx, &items[i]); err != nil {
			t.Fatalf("Knowledge.Create() error = %v", err)
		}
	}
	bad := &models.UserKnowledge{UserID: userID, Description: "x", Kind: models.KnowledgeFact, Confidence: 1.5}
	if err := r.Knowledge.Create(ctx, bad); err == nil {
		t.Error("confidence above 1 should be rejected")
	}

	skills, _ := r.Knowledge.ListByUser(ctx, userID, models.KnowledgeSkill)
	if len(skills) != 1 || skills[0].Description != "Cooking" {
		t.Errorf("skills = %+v", skills)
	}

	// Removing the summary removes the knowledge derived from it
	if err := r.Summaries.DeleteByAreas(ctx, []uuid.UUID{leaf}); err != nil {
		t.Fatalf("DeleteByAreas() error = %v", err)
	}
	all, _ := r.Knowledge.ListByUser(ctx, userID, "")
	if len(all) != 0 {
		t.Errorf("knowledge after summary delete = %d", len(all))
	}
}

func TestAPIKeys(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	userID := seedUser(t, db)
	store := db.Repos().APIKeys

	raw := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	key := &models.ApiKey{KeyHash: HashKey(raw), KeyPrefix: raw[:8], UserID: userID, Label: "laptop"}
	if err := store.Create(ctx, key); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.GetByHash(ctx, HashKey(raw))
	if err != nil || got == nil || got.UserID != userID {
		t.Fatalf("GetByHash() = %v, %v", got, err)
	}
	if miss, _ := store.GetByHash(ctx, HashKey("other")); miss != nil {
		t.Error("GetByHash(other) should be nil")
	}

	list, _ := store.ListByUser(ctx, userID)
	if len(list) != 1 || list[0].Label != "laptop" {
		t.Errorf("ListByUser() = %+v", list)
	}
	if err := store.Delete(ctx, key.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	userID := seedUser(t, db)
	root := seedArea(t, db, userID, "Root", nil)
	r := db.Repos()

	_ = r.Histories.Create(ctx, &models.History{UserID: userID, Message: models.HumanMessage("hi")})
	_ = r.Contexts.Create(ctx, &models.ActiveInterviewContext{UserID: userID, RootAreaID: root, ActiveLeafID: root})

	if err := r.Users.Delete(ctx, userID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	for _, table := range []string{"life_areas", "histories", "active_interview_context"} {
		var n int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != 0 {
			t.Errorf("%s has %d rows after user delete", table, n)
		}
	}
}
