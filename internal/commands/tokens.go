// ABOUTME: Short-lived confirmation tokens for destructive commands
// ABOUTME: Backed by go-cache; expiry is checked on every access
package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// TokenKind separates confirmation flows so a delete token cannot confirm a reset
type TokenKind string

const (
	KindDelete    TokenKind = "delete"
	KindResetArea TokenKind = "reset_area"
)

// TokenCheck is the outcome of redeeming a token
type TokenCheck int

const (
	TokenOK TokenCheck = iota
	// TokenNone means nothing was pending for the user
	TokenNone
	// TokenMismatch means something was pending but the token differs
	TokenMismatch
)

// TokenStore holds at most one pending token per (kind, user).
// Entries are keyed by (kind, user, token) and indexed by (kind, user).
type TokenStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewTokenStore creates a store whose tokens live for ttl.
// Expired entries are swept by DeleteExpired, normally from a cron job.
func NewTokenStore(ttl time.Duration) *TokenStore {
	return &TokenStore{cache: cache.New(ttl, 0), ttl: ttl}
}

func tokenKey(kind TokenKind, userID uuid.UUID, token string) string {
	return fmt.Sprintf("%s|%s|%s", kind, userID, token)
}

func pendingKey(kind TokenKind, userID uuid.UUID) string {
	return fmt.Sprintf("%s|%s", kind, userID)
}

// Issue creates a fresh token carrying value, replacing any pending one
func (s *TokenStore) Issue(kind TokenKind, userID uuid.UUID, value any) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	if prev, ok := s.cache.Get(pendingKey(kind, userID)); ok {
		s.cache.Delete(tokenKey(kind, userID, prev.(string)))
	}
	s.cache.Set(tokenKey(kind, userID, token), value, s.ttl)
	s.cache.Set(pendingKey(kind, userID), token, s.ttl)
	return token, nil
}

// Redeem consumes the user's pending token of kind. Any attempt clears the
// pending token, so a wrong guess forces the user to start over.
func (s *TokenStore) Redeem(kind TokenKind, userID uuid.UUID, token string) (any, TokenCheck) {
	prev, ok := s.cache.Get(pendingKey(kind, userID))
	if !ok {
		return nil, TokenNone
	}
	pendingToken := prev.(string)
	value, found := s.cache.Get(tokenKey(kind, userID, pendingToken))
	s.cache.Delete(pendingKey(kind, userID))
	s.cache.Delete(tokenKey(kind, userID, pendingToken))

	if !found {
		return nil, TokenNone
	}
	if pendingToken != token {
		return nil, TokenMismatch
	}
	return value, TokenOK
}

// DeleteExpired drops expired entries
func (s *TokenStore) DeleteExpired() {
	s.cache.DeleteExpired()
}

// Len returns the number of live entries, expired ones included until swept
func (s *TokenStore) Len() int {
	return s.cache.ItemCount()
}

func newToken() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
