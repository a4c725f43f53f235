// ABOUTME: Per-user export of areas, summaries and knowledge
// ABOUTME: Supports YAML, Markdown and JSON output
package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/models"
	"gopkg.in/yaml.v3"
)

// ExportData is everything stored for one user
type ExportData struct {
	Version    string            `yaml:"version" json:"version"`
	ExportedAt string            `yaml:"exported_at" json:"exported_at"`
	Tool       string            `yaml:"tool" json:"tool"`
	User       ExportUser        `yaml:"user" json:"user"`
	Areas      []ExportArea      `yaml:"areas,omitempty" json:"areas,omitempty"`
	Knowledge  []ExportKnowledge `yaml:"knowledge,omitempty" json:"knowledge,omitempty"`
}

// ExportUser is the user record for export
type ExportUser struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
	Mode string `yaml:"mode" json:"mode"`
}

// ExportArea is one area with its summaries; Path is the titles from the root
type ExportArea struct {
	AreaID      string          `yaml:"area_id" json:"area_id"`
	Title       string          `yaml:"title" json:"title"`
	ParentID    string          `yaml:"parent_id,omitempty" json:"parent_id,omitempty"`
	Path        string          `yaml:"path" json:"path"`
	CoveredAt   string          `yaml:"covered_at,omitempty" json:"covered_at,omitempty"`
	ExtractedAt string          `yaml:"extracted_at,omitempty" json:"extracted_at,omitempty"`
	Summaries   []ExportSummary `yaml:"summaries,omitempty" json:"summaries,omitempty"`
}

// ExportSummary is a summary for export
type ExportSummary struct {
	SummaryID string `yaml:"summary_id" json:"summary_id"`
	Text      string `yaml:"text" json:"text"`
	CreatedAt string `yaml:"created_at" json:"created_at"`
}

// ExportKnowledge is a knowledge item for export
type ExportKnowledge struct {
	Kind        string  `yaml:"kind" json:"kind"`
	Description string  `yaml:"description" json:"description"`
	Confidence  float64 `yaml:"confidence" json:"confidence"`
	CreatedAt   string  `yaml:"created_at" json:"created_at"`
}

// Export collects all of a user's data
func (db *DB) Export(ctx context.Context, userID uuid.UUID) (*ExportData, error) {
	r := db.Repos()

	user, err := r.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
	}

	data := &ExportData{
		Version:    "1.0",
		ExportedAt: time.Now().Format(time.RFC3339),
		Tool:       "interview",
		User:       ExportUser{ID: user.ID.String(), Name: user.Name, Mode: string(user.Mode)},
	}

	areas, err := r.Areas.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list areas: %w", err)
	}
	summaries, err := r.Summaries.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}

	byArea := make(map[uuid.UUID][]ExportSummary)
	for _, s := range summaries {
		byArea[s.AreaID] = append(byArea[s.AreaID], ExportSummary{
			SummaryID: s.ID.String(),
			Text:      s.SummaryText,
			CreatedAt: s.CreatedAt.Format(time.RFC3339),
		})
	}

	paths := areaPaths(areas)
	for _, a := range areas {
		ea := ExportArea{
			AreaID:    a.ID.String(),
			Title:     a.Title,
			Path:      paths[a.ID],
			Summaries: byArea[a.ID],
		}
		if a.ParentID != nil {
			ea.ParentID = a.ParentID.String()
		}
		if a.CoveredAt != nil {
			ea.CoveredAt = a.CoveredAt.Format(time.RFC3339)
		}
		if a.ExtractedAt != nil {
			ea.ExtractedAt = a.ExtractedAt.Format(time.RFC3339)
		}
		data.Areas = append(data.Areas, ea)
	}
	sort.SliceStable(data.Areas, func(i, j int) bool { return data.Areas[i].Path < data.Areas[j].Path })

	knowledge, err := r.Knowledge.ListByUser(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge: %w", err)
	}
	for _, k := range knowledge {
		data.Knowledge = append(data.Knowledge, ExportKnowledge{
			Kind:        string(k.Kind),
			Description: k.Description,
			Confidence:  k.Confidence,
			CreatedAt:   k.CreatedTS.Format(time.RFC3339),
		})
	}

	return data, nil
}

func areaPaths(areas []models.LifeArea) map[uuid.UUID]string {
	byID := make(map[uuid.UUID]models.LifeArea, len(areas))
	for _, a := range areas {
		byID[a.ID] = a
	}
	paths := make(map[uuid.UUID]string, len(areas))
	for _, a := range areas {
		var parts []string
		seen := map[uuid.UUID]bool{}
		cur, ok := a, true
		for ok && !seen[cur.ID] {
			seen[cur.ID] = true
			parts = append([]string{cur.Title}, parts...)
			if cur.ParentID == nil {
				break
			}
			cur, ok = byID[*cur.ParentID]
		}
		paths[a.ID] = strings.Join(parts, " > ")
	}
	return paths
}

// WriteYAML encodes data as YAML
func WriteYAML(w io.Writer, data *ExportData) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return encoder.Close()
}

// WriteJSON encodes data as indented JSON
func WriteJSON(w io.Writer, data *ExportData) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// WriteMarkdown renders data as a Markdown report
func WriteMarkdown(w io.Writer, data *ExportData) error {
	_, _ = fmt.Fprintf(w, "# Interview Export - %s\n\n", data.User.Name)
	_, _ = fmt.Fprintf(w, "Generated: %s\n\n", data.ExportedAt)

	if len(data.Areas) > 0 {
		_, _ = fmt.Fprintln(w, "## Areas")
		_, _ = fmt.Fprintln(w)
		for _, area := range data.Areas {
			_, _ = fmt.Fprintf(w, "### %s\n\n", area.Path)
			if area.CoveredAt != "" {
				_, _ = fmt.Fprintf(w, "*Covered: %s*\n\n", area.CoveredAt)
			}
			for _, s := range area.Summaries {
				_, _ = fmt.Fprintf(w, "- %s\n", s.Text)
			}
			if len(area.Summaries) > 0 {
				_, _ = fmt.Fprintln(w)
			}
		}
	}

	if len(data.Knowledge) > 0 {
		_, _ = fmt.Fprintln(w, "## Knowledge")
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, "| Kind | Description | Confidence |")
		_, _ = fmt.Fprintln(w, "|------|-------------|------------|")
		for _, k := range data.Knowledge {
			_, err := fmt.Fprintf(w, "| %s | %s | %.2f |\n", k.Kind, strings.ReplaceAll(k.Description, "|", "\\|"), k.Confidence)
			if err != nil {
				return err
			}
		}
	}
	return nil
}
