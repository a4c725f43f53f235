// ABOUTME: Builds paths and indented text from flat life-area lists
// ABOUTME: Input is the output of a recursive descendant query
package util

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/models"
)

// SubAreaInfo is a descendant with its path from the root, e.g. "Work > Projects"
type SubAreaInfo struct {
	Area models.LifeArea
	Path string
}

// BuildSubAreaInfo computes a path for every area below rootID
func BuildSubAreaInfo(areas []models.LifeArea, rootID uuid.UUID) []SubAreaInfo {
	if len(areas) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]models.LifeArea, len(areas))
	for _, a := range areas {
		byID[a.ID] = a
	}

	infos := make([]SubAreaInfo, 0, len(areas))
	for _, a := range areas {
		parts := []string{a.Title}
		current := a
		for current.ParentID != nil && *current.ParentID != rootID {
			parent, ok := byID[*current.ParentID]
			if !ok {
				break
			}
			parts = append([]string{parent.Title}, parts...)
			current = parent
		}
		infos = append(infos, SubAreaInfo{Area: a, Path: strings.Join(parts, " > ")})
	}
	return infos
}

// LeafAreas keeps only areas that are no other area's parent, sorted by id.
// UUIDv7 ids make this creation order.
func LeafAreas(infos []SubAreaInfo) []SubAreaInfo {
	parents := make(map[uuid.UUID]bool, len(infos))
	for _, info := range infos {
		if info.Area.ParentID != nil {
			parents[*info.Area.ParentID] = true
		}
	}

	leaves := make([]SubAreaInfo, 0, len(infos))
	for _, info := range infos {
		if !parents[info.Area.ID] {
			leaves = append(leaves, info)
		}
	}
	sort.Slice(leaves, func(i, j int) bool {
		return leaves[i].Area.ID.String() < leaves[j].Area.ID.String()
	})
	return leaves
}

// BuildTreeText renders the descendants of rootID, two spaces per level,
// children sorted alphabetically
func BuildTreeText(areas []models.LifeArea, rootID uuid.UUID) string {
	if len(areas) == 0 {
		return ""
	}

	children := make(map[uuid.UUID][]models.LifeArea)
	for _, a := range areas {
		if a.ParentID == nil {
			continue
		}
		children[*a.ParentID] = append(children[*a.ParentID], a)
	}
	for _, kids := range children {
		sort.SliceStable(kids, func(i, j int) bool { return kids[i].Title < kids[j].Title })
	}

	var lines []string
	var render func(parent uuid.UUID, depth int)
	render = func(parent uuid.UUID, depth int) {
		for _, a := range children[parent] {
			lines = append(lines, strings.Repeat("  ", depth)+a.Title)
			render(a.ID, depth+1)
		}
	}
	render(rootID, 0)
	return strings.Join(lines, "\n")
}
