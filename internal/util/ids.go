// ABOUTME: Identifier helpers built on google/uuid
// ABOUTME: Time-ordered v7 ids for rows and deterministic v5 ids for users
package util

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UserNamespace seeds deterministic user ids derived from external identities
var UserNamespace = uuid.MustParse("a1b2c3d4-e5f6-7890-abcd-ef1234567890")

// NewID returns a time-ordered UUIDv7, falling back to v4 if the clock source fails
func NewID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// UserIDFor derives the stable internal id for (provider, externalID)
func UserIDFor(provider, externalID string) uuid.UUID {
	return uuid.NewSHA1(UserNamespace, []byte(provider+":"+externalID))
}

// DefaultDisplayName is used when a transport supplies no name
func DefaultDisplayName(provider, externalID string) string {
	return provider + "_" + externalID
}

// ParseUUID parses a canonical UUID string
func ParseUUID(value string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid UUID %q: %w", value, err)
	}
	return id, nil
}
