// ABOUTME: Area management tools exposed to the model during the area loop
// ABOUTME: Arguments are decoded from tool-call JSON and checked with struct tags
package areas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/config"
	"github.com/harper/interview-assistant/internal/llm"
	"github.com/harper/interview-assistant/internal/models"
	"github.com/harper/interview-assistant/internal/storage/sqlite"
	"github.com/harper/interview-assistant/internal/util"
	"github.com/sashabaranov/go-openai/jsonschema"
)

var validate = newValidator()

// newValidator adds notblank so whitespace-only titles are rejected before trimming
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// GetArgs identifies one area
type GetArgs struct {
	AreaID string `json:"area_id" validate:"required,uuid"`
}

// CreateArgs creates one area, optionally under a parent
type CreateArgs struct {
	Title    string  `json:"title" validate:"required,notblank,max=200"`
	ParentID *string `json:"parent_id,omitempty" validate:"omitempty,uuid"`
}

// SubtreeNode is one node of a create_subtree payload
type SubtreeNode struct {
	Title    string        `json:"title" validate:"required,notblank,max=200"`
	Children []SubtreeNode `json:"children,omitempty" validate:"dive"`
}

// CreateSubtreeArgs attaches a nested list of areas under a parent
type CreateSubtreeArgs struct {
	ParentID string        `json:"parent_id" validate:"required,uuid"`
	Subtree  []SubtreeNode `json:"subtree" validate:"required,min=1,dive"`
}

// MoveArgs re-parents an area; a nil NewParentID moves it to the top level
type MoveArgs struct {
	AreaID      string  `json:"area_id" validate:"required,uuid"`
	NewParentID *string `json:"new_parent_id,omitempty" validate:"omitempty,uuid"`
}

type toolFunc func(ctx context.Context, repos *sqlite.Repos, userID uuid.UUID, raw json.RawMessage) (string, error)

type tool struct {
	def llm.Tool
	run toolFunc
}

// Registry is the fixed set of area tools
type Registry struct {
	tools map[string]tool
	order []string
}

// NewRegistry builds the tool set
func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]tool)}
	areaID := jsonschema.Definition{Type: jsonschema.String, Description: "UUID of the life area"}

	r.add("list_life_areas", "List all life areas of the user.",
		jsonschema.Definition{Type: jsonschema.Object, Properties: map[string]jsonschema.Definition{}},
		listAreas)
	r.add("get_life_area", "Fetch one life area by id.",
		objectSchema(map[string]jsonschema.Definition{"area_id": areaID}, "area_id"),
		getArea)
	r.add("create_life_area", "Create a life area, optionally under a parent area.",
		objectSchema(map[string]jsonschema.Definition{
			"title":     {Type: jsonschema.String, Description: "Title of the new area"},
			"parent_id": {Type: jsonschema.String, Description: "Optional UUID of the parent area"},
		}, "title"),
		createArea)
	r.add("delete_life_area", "Delete a life area and everything below it.",
		objectSchema(map[string]jsonschema.Definition{"area_id": areaID}, "area_id"),
		deleteArea)
	r.add("set_current_area", "Make a life area the current interview area. Call this after creating an area the user wants to be interviewed about.",
		objectSchema(map[string]jsonschema.Definition{"area_id": areaID}, "area_id"),
		setCurrentArea)
	r.add("create_subtree", "Create several nested sub-areas at once under a parent area. Prefer this over repeated create_life_area calls.",
		objectSchema(map[string]jsonschema.Definition{
			"parent_id": {Type: jsonschema.String, Description: "UUID of the parent area"},
			"subtree":   {Type: jsonschema.Array, Description: "Top-level nodes with nested children", Items: nodeSchema(config.MaxSubtreeDepth)},
		}, "parent_id", "subtree"),
		createSubtree)
	r.add("move_life_area", "Move a life area under another parent, or to the top level when new_parent_id is omitted.",
		objectSchema(map[string]jsonschema.Definition{
			"area_id":       areaID,
			"new_parent_id": {Type: jsonschema.String, Description: "UUID of the new parent area"},
		}, "area_id"),
		moveArea)
	return r
}

func (r *Registry) add(name, desc string, params jsonschema.Definition, run toolFunc) {
	r.tools[name] = tool{def: llm.Tool{Name: name, Description: desc, Parameters: params}, run: run}
	r.order = append(r.order, name)
}

func objectSchema(props map[string]jsonschema.Definition, required ...string) jsonschema.Definition {
	return jsonschema.Definition{Type: jsonschema.Object, Properties: props, Required: required}
}

// nodeSchema describes a subtree node allowing depth levels of nesting
func nodeSchema(depth int) *jsonschema.Definition {
	props := map[string]jsonschema.Definition{
		"title": {Type: jsonschema.String, Description: "Title of this sub-area"},
	}
	if depth > 1 {
		props["children"] = jsonschema.Definition{Type: jsonschema.Array, Items: nodeSchema(depth - 1)}
	}
	return &jsonschema.Definition{Type: jsonschema.Object, Properties: props, Required: []string{"title"}}
}

// Tools returns the definitions passed to the model
func (r *Registry) Tools() []llm.Tool {
	out := make([]llm.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].def)
	}
	return out
}

// Describe lists "- name: description" lines, sorted by name
func (r *Registry) Describe() string {
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("- %s: %s", name, r.tools[name].def.Description))
	}
	return strings.Join(lines, "\n")
}

// Execute runs one tool call against repos
func (r *Registry) Execute(ctx context.Context, repos *sqlite.Repos, userID uuid.UUID, call models.ToolCall) (string, error) {
	t, ok := r.tools[call.Name]
	if !ok {
		return "", fmt.Errorf("%w: unknown tool %q", models.ErrValidation, call.Name)
	}
	raw := json.RawMessage(call.Arguments)
	if len(strings.TrimSpace(call.Arguments)) == 0 {
		raw = json.RawMessage("{}")
	}
	return t.run(ctx, repos, userID, raw)
}

func decodeArgs[T any](raw json.RawMessage) (T, error) {
	var args T
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	if err := validate.Struct(args); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return args, fmt.Errorf("%w: invalid %s", models.ErrValidation, strings.Join(fields, ", "))
		}
		return args, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	return args, nil
}

// ownedArea loads id and checks it belongs to userID
func ownedArea(ctx context.Context, repos *sqlite.Repos, userID uuid.UUID, id string) (*models.LifeArea, error) {
	areaID, err := util.ParseUUID(id)
	if err != nil {
		return nil, err
	}
	area, err := repos.Areas.GetByID(ctx, areaID)
	if err != nil {
		return nil, err
	}
	if area == nil {
		return nil, fmt.Errorf("life area %s: %w", areaID, models.ErrNotFound)
	}
	if area.UserID != userID {
		return nil, fmt.Errorf("life area %s: %w", areaID, models.ErrPermission)
	}
	return area, nil
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func listAreas(ctx context.Context, repos *sqlite.Repos, userID uuid.UUID, _ json.RawMessage) (string, error) {
	list, err := repos.Areas.ListByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if list == nil {
		list = []models.LifeArea{}
	}
	return toJSON(list)
}

func getArea(ctx context.Context, repos *sqlite.Repos, userID uuid.UUID, raw json.RawMessage) (string, error) {
	args, err := decodeArgs[GetArgs](raw)
	if err != nil {
		return "", err
	}
	area, err := ownedArea(ctx, repos, userID, args.AreaID)
	if err != nil {
		return "", err
	}
	return toJSON(area)
}

func createArea(ctx context.Context, repos *sqlite.Repos, userID uuid.UUID, raw json.RawMessage) (string, error) {
	args, err := decodeArgs[CreateArgs](raw)
	if err != nil {
		return "", err
	}
	area := &models.LifeArea{ID: util.NewID(), Title: strings.TrimSpace(args.Title), UserID: userID}
	if args.ParentID != nil {
		parent, err := ownedArea(ctx, repos, userID, *args.ParentID)
		if err != nil {
			return "", err
		}
		area.ParentID = &parent.ID
	}
	if err := repos.Areas.Create(ctx, area); err != nil {
		return "", err
	}
	return toJSON(area)
}

func deleteArea(ctx context.Context, repos *sqlite.Repos, userID uuid.UUID, raw json.RawMessage) (string, error) {
	args, err := decodeArgs[GetArgs](raw)
	if err != nil {
		return "", err
	}
	area, err := ownedArea(ctx, repos, userID, args.AreaID)
	if err != nil {
		return "", err
	}
	if err := repos.Areas.Delete(ctx, area.ID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Deleted life area %q (%s)", area.Title, area.ID), nil
}

func setCurrentArea(ctx context.Context, repos *sqlite.Repos, userID uuid.UUID, raw json.RawMessage) (string, error) {
	args, err := decodeArgs[GetArgs](raw)
	if err != nil {
		return "", err
	}
	area, err := ownedArea(ctx, repos, userID, args.AreaID)
	if err != nil {
		return "", err
	}
	if err := repos.Users.SetCurrentArea(ctx, userID, &area.ID); err != nil {
		return "", err
	}
	return toJSON(area)
}

func createSubtree(ctx context.Context, repos *sqlite.Repos, userID uuid.UUID, raw json.RawMessage) (string, error) {
	args, err := decodeArgs[CreateSubtreeArgs](raw)
	if err != nil {
		return "", err
	}
	parent, err := ownedArea(ctx, repos, userID, args.ParentID)
	if err != nil {
		return "", err
	}

	var created []models.LifeArea
	if err := insertSubtree(ctx, repos, userID, parent.ID, args.Subtree, 0, &created); err != nil {
		return "", err
	}
	titles := make([]string, 0, len(created))
	for _, a := range created {
		titles = append(titles, a.Title)
	}
	return fmt.Sprintf("Created %d sub-areas: %s", len(created), strings.Join(titles, ", ")), nil
}

func insertSubtree(ctx context.Context, repos *sqlite.Repos, userID, parentID uuid.UUID, nodes []SubtreeNode, depth int, created *[]models.LifeArea) error {
	if depth >= config.MaxSubtreeDepth {
		return fmt.Errorf("%w: maximum nesting depth (%d) exceeded", models.ErrValidation, config.MaxSubtreeDepth)
	}
	for _, node := range nodes {
		pid := parentID
		area := models.LifeArea{ID: util.NewID(), Title: strings.TrimSpace(node.Title), ParentID: &pid, UserID: userID}
		if err := repos.Areas.Create(ctx, &area); err != nil {
			return err
		}
		*created = append(*created, area)
		if len(node.Children) > 0 {
			if err := insertSubtree(ctx, repos, userID, area.ID, node.Children, depth+1, created); err != nil {
				return err
			}
		}
	}
	return nil
}

func moveArea(ctx context.Context, repos *sqlite.Repos, userID uuid.UUID, raw json.RawMessage) (string, error) {
	args, err := decodeArgs[MoveArgs](raw)
	if err != nil {
		return "", err
	}
	area, err := ownedArea(ctx, repos, userID, args.AreaID)
	if err != nil {
		return "", err
	}
	if args.NewParentID == nil {
		if err := repos.Areas.SetParent(ctx, area.ID, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("Moved %q to the top level", area.Title), nil
	}

	parent, err := ownedArea(ctx, repos, userID, *args.NewParentID)
	if err != nil {
		return "", err
	}
	if err := repos.Areas.SetParent(ctx, area.ID, &parent.ID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Moved %q under %q", area.Title, parent.Title), nil
}
