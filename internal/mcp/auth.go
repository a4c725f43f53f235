// ABOUTME: Bearer API key authentication for the MCP HTTP endpoint
// ABOUTME: Resolves the key hash to a user id carried in the request context
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/storage/sqlite"
)

type userKey struct{}

// WithUser returns ctx carrying the authenticated user id
func WithUser(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserFromContext returns the authenticated user id, if any
func UserFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireAPIKey rejects requests without a known API key and stores the
// key's owner in the request context
func RequireAPIKey(db *sqlite.DB, next http.Handler) http.Handler {
	logger := slog.Default().With("component", "mcp_auth")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			unauthorized(w, "missing bearer token")
			return
		}

		key, err := db.Repos().APIKeys.GetByHash(r.Context(), sqlite.HashKey(token))
		if err != nil {
			logger.Error("api key lookup failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if key == nil {
			logger.Warn("rejected unknown api key", "remote", r.RemoteAddr)
			unauthorized(w, "invalid api key")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), key.UserID)))
	})
}

// contextFromRequest copies the authenticated user into the MCP handler context
func contextFromRequest(ctx context.Context, r *http.Request) context.Context {
	if id, ok := UserFromContext(r.Context()); ok {
		return WithUser(ctx, id)
	}
	return ctx
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="mcp"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
