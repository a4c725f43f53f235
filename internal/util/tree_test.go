// ABOUTME: Tests for tree text rendering and leaf discovery
// ABOUTME: Uses a small Work/Education hierarchy
package util

import (
	"testing"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/models"
)

func ptr(id uuid.UUID) *uuid.UUID { return &id }

func sampleTree() (uuid.UUID, []models.LifeArea, map[string]uuid.UUID) {
	root := NewID()
	ids := map[string]uuid.UUID{}
	for _, name := range []string{"Work", "Education", "Projects", "Skills"} {
		ids[name] = NewID()
	}
	areas := []models.LifeArea{
		{ID: ids["Work"], Title: "Work", ParentID: ptr(root)},
		{ID: ids["Education"], Title: "Education", ParentID: ptr(root)},
		{ID: ids["Skills"], Title: "Skills", ParentID: ptr(ids["Work"])},
		{ID: ids["Projects"], Title: "Projects", ParentID: ptr(ids["Work"])},
	}
	return root, areas, ids
}

func TestBuildTreeText(t *testing.T) {
	root, areas, _ := sampleTree()

	got := BuildTreeText(areas, root)
	want := "Education\nWork\n  Projects\n  Skills"
	if got != want {
		t.Errorf("BuildTreeText() =\n%s\nwant\n%s", got, want)
	}
}

func TestBuildTreeText_Empty(t *testing.T) {
	if got := BuildTreeText(nil, NewID()); got != "" {
		t.Errorf("expected empty text, got %q", got)
	}
}

func TestBuildSubAreaInfo_Paths(t *testing.T) {
	root, areas, ids := sampleTree()

	paths := map[uuid.UUID]string{}
	for _, info := range BuildSubAreaInfo(areas, root) {
		paths[info.Area.ID] = info.Path
	}

	if paths[ids["Projects"]] != "Work > Projects" {
		t.Errorf("Projects path = %q", paths[ids["Projects"]])
	}
	if paths[ids["Education"]] != "Education" {
		t.Errorf("Education path = %q", paths[ids["Education"]])
	}
}

func TestLeafAreas(t *testing.T) {
	root, areas, ids := sampleTree()

	leaves := LeafAreas(BuildSubAreaInfo(areas, root))
	if len(leaves) != 3 {
		t.Fatalf("expected 3 leaves, got %d", len(leaves))
	}
	for _, leaf := range leaves {
		if leaf.Area.ID == ids["Work"] {
			t.Error("Work has children and must not be a leaf")
		}
	}
	for i := 1; i < len(leaves); i++ {
		if leaves[i-1].Area.ID.String() > leaves[i].Area.ID.String() {
			t.Error("leaves must be sorted by id")
		}
	}
}
