// ABOUTME: Slash-command registry handled before a turn reaches the graph
// ABOUTME: Destructive commands require a confirmation token issued by TokenStore
package commands

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/models"
	"github.com/harper/interview-assistant/internal/storage/sqlite"
)

// HelpText lists every command
const HelpText = `Commands:
  /help      Show this help
  /clear     Clear conversation history
  /delete    Delete your account (requires confirmation)
  /mode      Show current input mode
  /mode <name>  Change mode (auto, interview, areas)
  /reset_area      Reset the current area (requires confirmation)
  /mcp_keys      List API keys for MCP server
  /mcp_keys create <label>  Create new API key
  /mcp_keys revoke <prefix>  Revoke API key
`

const (
	minKeyPrefix   = 8
	maxLabelLength = 64
	rawKeyBytes    = 32
)

type handlerFunc func(ctx context.Context, user *models.User, arg string) (string, error)

// Registry dispatches slash commands
type Registry struct {
	db     *sqlite.DB
	tokens *TokenStore
	logger *slog.Logger
	exact  map[string]handlerFunc
}

// NewRegistry wires the command table to the store and token cache
func NewRegistry(db *sqlite.DB, tokens *TokenStore) *Registry {
	r := &Registry{
		db:     db,
		tokens: tokens,
		logger: slog.Default().With("component", "commands"),
	}
	r.exact = map[string]handlerFunc{
		"/help":       r.help,
		"/clear":      r.clear,
		"/delete":     r.deleteInit,
		"/mode":       r.mode,
		"/reset_area": r.resetCurrent,
		"/mcp_keys":   r.keys,
	}
	return r
}

// Tokens exposes the token store for maintenance sweeps
func (r *Registry) Tokens() *TokenStore {
	return r.tokens
}

// Handle runs text as a command. handled is false when text is not a
// known command, in which case the turn continues through the graph.
func (r *Registry) Handle(ctx context.Context, user *models.User, text string) (reply string, handled bool, err error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false, nil
	}

	cmd, arg, _ := strings.Cut(text, " ")
	cmd = strings.ToLower(cmd)
	arg = strings.TrimSpace(arg)

	var h handlerFunc
	switch {
	case r.exact[cmd] != nil:
		h = r.exact[cmd]
	case strings.HasPrefix(cmd, "/delete_"):
		token := strings.TrimPrefix(cmd, "/delete_")
		h = func(ctx context.Context, user *models.User, _ string) (string, error) {
			return r.deleteConfirm(ctx, user, token)
		}
	case strings.HasPrefix(cmd, "/reset_area_"):
		value := strings.TrimPrefix(cmd, "/reset_area_")
		h = func(ctx context.Context, user *models.User, _ string) (string, error) {
			if id, err := uuid.Parse(value); err == nil {
				return r.resetInit(ctx, user, id)
			}
			return r.resetConfirm(ctx, user, value)
		}
	default:
		return "", false, nil
	}

	r.logger.Debug("handling command", "command", cmd, "user_id", user.ID)
	reply, err = h(ctx, user, arg)
	if err != nil {
		return "", true, fmt.Errorf("command %s: %w", cmd, err)
	}
	return reply, true, nil
}

func (r *Registry) help(context.Context, *models.User, string) (string, error) {
	return HelpText, nil
}

func (r *Registry) clear(ctx context.Context, user *models.User, _ string) (string, error) {
	var n int64
	err := r.db.Transaction(ctx, func(repos *sqlite.Repos) error {
		var err error
		n, err = repos.Histories.DeleteByUser(ctx, user.ID)
		return err
	})
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "No conversation history to clear.", nil
	}
	return fmt.Sprintf("Cleared %d conversation(s).", n), nil
}

func (r *Registry) deleteInit(_ context.Context, user *models.User, _ string) (string, error) {
	token, err := r.tokens.Issue(KindDelete, user.ID, user.ID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("WARNING: This will permanently delete your account and all data.\n"+
		"To confirm, type: /delete_%s\n"+
		"This token expires in 60 seconds.", token), nil
}

func (r *Registry) deleteConfirm(ctx context.Context, user *models.User, token string) (string, error) {
	_, check := r.tokens.Redeem(KindDelete, user.ID, token)
	switch check {
	case TokenNone:
		return "No pending deletion. Use /delete first.", nil
	case TokenMismatch:
		return "Invalid token. Use /delete to get a new token.", nil
	}

	if err := r.db.Transaction(ctx, func(repos *sqlite.Repos) error {
		return deleteUserData(ctx, repos, user.ID)
	}); err != nil {
		return "", err
	}
	r.logger.Info("account deleted", "user_id", user.ID)
	return "Account and all data deleted.", nil
}

// deleteUserData removes everything the user owns, children before parents
func deleteUserData(ctx context.Context, repos *sqlite.Repos, userID uuid.UUID) error {
	if err := repos.Knowledge.DeleteByUser(ctx, userID); err != nil {
		return err
	}
	roots, err := repos.Areas.ListRoots(ctx, userID)
	if err != nil {
		return err
	}
	for _, root := range roots {
		if err := deleteAreaData(ctx, repos, root.ID); err != nil {
			return err
		}
	}
	if err := repos.Contexts.DeleteByUser(ctx, userID); err != nil {
		return err
	}
	if err := repos.Users.SetCurrentArea(ctx, userID, nil); err != nil {
		return err
	}
	for _, root := range roots {
		if err := repos.Areas.Delete(ctx, root.ID); err != nil {
			return err
		}
	}
	if _, err := repos.Histories.DeleteByUser(ctx, userID); err != nil {
		return err
	}
	if err := repos.APIKeys.DeleteByUser(ctx, userID); err != nil {
		return err
	}
	return repos.Users.Delete(ctx, userID)
}

// deleteAreaData clears interview results for areaID and its subtree
func deleteAreaData(ctx context.Context, repos *sqlite.Repos, areaID uuid.UUID) error {
	descendants, err := repos.Areas.GetDescendants(ctx, areaID)
	if err != nil {
		return err
	}
	ids := make([]uuid.UUID, 0, len(descendants)+1)
	ids = append(ids, areaID)
	for _, d := range descendants {
		ids = append(ids, d.ID)
	}

	if err := repos.LeafHistory.DeleteByLeaves(ctx, ids); err != nil {
		return err
	}
	if err := repos.Summaries.DeleteByAreas(ctx, ids); err != nil {
		return err
	}
	if err := repos.Coverage.DeleteByRoot(ctx, areaID); err != nil {
		return err
	}
	return repos.Areas.ResetExtraction(ctx, areaID)
}

func (r *Registry) mode(ctx context.Context, user *models.User, arg string) (string, error) {
	if arg == "" {
		return "Current mode: " + user.Mode.Describe(), nil
	}

	mode, ok := models.ParseModeName(strings.ToLower(arg))
	if !ok {
		return fmt.Sprintf("Unknown mode: %s. Valid modes: auto, interview, areas", arg), nil
	}
	if err := r.db.Transaction(ctx, func(repos *sqlite.Repos) error {
		return repos.Users.SetMode(ctx, user.ID, mode)
	}); err != nil {
		return "", err
	}
	user.Mode = mode
	return "Mode changed to: " + arg, nil
}

func (r *Registry) resetCurrent(ctx context.Context, user *models.User, _ string) (string, error) {
	if user.CurrentAreaID == nil {
		return "No current area set. Select an area to interview first.", nil
	}
	return r.resetInit(ctx, user, *user.CurrentAreaID)
}

func (r *Registry) resetInit(ctx context.Context, user *models.User, areaID uuid.UUID) (string, error) {
	area, err := r.db.Repos().Areas.GetByID(ctx, areaID)
	if err != nil {
		return "", err
	}
	if area == nil {
		return fmt.Sprintf("Area not found: %s", areaID), nil
	}
	if area.UserID != user.ID {
		return "You don't have permission to reset this area.", nil
	}

	token, err := r.tokens.Issue(KindResetArea, user.ID, areaID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("This will delete extracted knowledge and summaries for '%s'.\n"+
		"To confirm, type: /reset_area_%s\n"+
		"This token expires in 60 seconds.", area.Title, token), nil
}

func (r *Registry) resetConfirm(ctx context.Context, user *models.User, token string) (string, error) {
	value, check := r.tokens.Redeem(KindResetArea, user.ID, token)
	if check != TokenOK {
		return "Invalid or expired token. Use /reset_area_<area-id> to start over.", nil
	}
	areaID := value.(uuid.UUID)

	var title string
	err := r.db.Transaction(ctx, func(repos *sqlite.Repos) error {
		area, err := repos.Areas.GetByID(ctx, areaID)
		if err != nil {
			return err
		}
		if area == nil {
			return fmt.Errorf("area %s: %w", areaID, models.ErrNotFound)
		}
		title = area.Title

		if err := deleteAreaData(ctx, repos, areaID); err != nil {
			return err
		}
		active, err := repos.Contexts.GetByUser(ctx, user.ID)
		if err != nil {
			return err
		}
		if active != nil && active.RootAreaID == areaID {
			return repos.Contexts.DeleteByUser(ctx, user.ID)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	r.logger.Info("area reset", "user_id", user.ID, "area_id", areaID)
	return fmt.Sprintf("Reset complete. Area '%s' is ready for a new interview.", title), nil
}

func (r *Registry) keys(ctx context.Context, user *models.User, arg string) (string, error) {
	if arg == "" {
		return r.keysList(ctx, user.ID)
	}

	sub, subArg, _ := strings.Cut(arg, " ")
	subArg = strings.TrimSpace(subArg)
	switch strings.ToLower(sub) {
	case "create":
		if subArg == "" {
			return "Usage: /mcp_keys create <label>", nil
		}
		return r.keysCreate(ctx, user.ID, subArg)
	case "revoke":
		if subArg == "" {
			return "Usage: /mcp_keys revoke <prefix>", nil
		}
		return r.keysRevoke(ctx, user.ID, subArg)
	}
	return "Unknown subcommand. Use: /mcp_keys [create <label> | revoke <prefix>]", nil
}

func (r *Registry) keysList(ctx context.Context, userID uuid.UUID) (string, error) {
	keys, err := r.db.Repos().APIKeys.ListByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "No API keys. Use /mcp_keys create <label> to create one.", nil
	}
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("  %s...  %s  (%s)", k.KeyPrefix, k.Label, k.CreatedAt.UTC().Format("2006-01-02")))
	}
	return "API keys:\n" + strings.Join(lines, "\n"), nil
}

func (r *Registry) keysCreate(ctx context.Context, userID uuid.UUID, label string) (string, error) {
	label = strings.TrimSpace(label)
	if len(label) > maxLabelLength {
		label = label[:maxLabelLength]
	}
	if label == "" {
		return "Label must not be empty.", nil
	}

	raw := make([]byte, rawKeyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	key := hex.EncodeToString(raw)

	err := r.db.Transaction(ctx, func(repos *sqlite.Repos) error {
		return repos.APIKeys.Create(ctx, &models.ApiKey{
			KeyHash:   sqlite.HashKey(key),
			KeyPrefix: key[:minKeyPrefix],
			UserID:    userID,
			Label:     label,
		})
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created API key '%s':\n%s\n\nSave this key, it won't be shown again.", label, key), nil
}

func (r *Registry) keysRevoke(ctx context.Context, userID uuid.UUID, prefix string) (string, error) {
	if len(prefix) < minKeyPrefix {
		return "Prefix must be at least 8 characters.", nil
	}

	var reply string
	err := r.db.Transaction(ctx, func(repos *sqlite.Repos) error {
		keys, err := repos.APIKeys.ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		var matches []models.ApiKey
		for _, k := range keys {
			if k.KeyPrefix == prefix[:minKeyPrefix] {
				matches = append(matches, k)
			}
		}
		switch len(matches) {
		case 0:
			reply = fmt.Sprintf("No key matching prefix '%s'.", prefix)
			return nil
		case 1:
		default:
			reply = fmt.Sprintf("Prefix '%s' matches multiple keys. Be more specific.", prefix)
			return nil
		}
		if err := repos.APIKeys.Delete(ctx, matches[0].ID); err != nil {
			return err
		}
		reply = fmt.Sprintf("Revoked key %s... (%s).", matches[0].KeyPrefix, matches[0].Label)
		return nil
	})
	return reply, err
}
