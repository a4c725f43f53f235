// ABOUTME: Tests for confirmation token issue, redeem and expiry
// ABOUTME: Short TTLs stand in for the 60 second production window
package commands

import (
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenStore_IssueAndRedeem(t *testing.T) {
	store := NewTokenStore(time.Minute)
	user := uuid.New()

	token, err := store.Issue(KindDelete, user, "payload")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{8}$`), token)

	value, check := store.Redeem(KindDelete, user, token)
	assert.Equal(t, TokenOK, check)
	assert.Equal(t, "payload", value)

	_, check = store.Redeem(KindDelete, user, token)
	assert.Equal(t, TokenNone, check, "tokens are single use")
}

func TestTokenStore_MismatchClearsPending(t *testing.T) {
	store := NewTokenStore(time.Minute)
	user := uuid.New()
	token, err := store.Issue(KindDelete, user, nil)
	require.NoError(t, err)

	_, check := store.Redeem(KindDelete, user, "deadbeef0")
	assert.Equal(t, TokenMismatch, check)

	_, check = store.Redeem(KindDelete, user, token)
	assert.Equal(t, TokenNone, check)
}

func TestTokenStore_ScopedByUserAndKind(t *testing.T) {
	store := NewTokenStore(time.Minute)
	alice, bob := uuid.New(), uuid.New()
	token, err := store.Issue(KindDelete, alice, nil)
	require.NoError(t, err)

	_, check := store.Redeem(KindDelete, bob, token)
	assert.Equal(t, TokenNone, check)
	_, check = store.Redeem(KindResetArea, alice, token)
	assert.Equal(t, TokenNone, check)

	_, check = store.Redeem(KindDelete, alice, token)
	assert.Equal(t, TokenOK, check)
}

func TestTokenStore_ReissueReplaces(t *testing.T) {
	store := NewTokenStore(time.Minute)
	user := uuid.New()
	_, err := store.Issue(KindResetArea, user, 1)
	require.NoError(t, err)
	second, err := store.Issue(KindResetArea, user, 2)
	require.NoError(t, err)

	value, check := store.Redeem(KindResetArea, user, second)
	assert.Equal(t, TokenOK, check)
	assert.Equal(t, 2, value)
	assert.Equal(t, 0, store.Len())
}

func TestTokenStore_Expiry(t *testing.T) {
	store := NewTokenStore(20 * time.Millisecond)
	user := uuid.New()
	token, err := store.Issue(KindDelete, user, nil)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	_, check := store.Redeem(KindDelete, user, token)
	assert.Equal(t, TokenNone, check)

	_, err = store.Issue(KindDelete, uuid.New(), nil)
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 4, store.Len())
	store.DeleteExpired()
	assert.Equal(t, 0, store.Len())
}
