// ABOUTME: Cache of human-readable leaf paths such as "Work > Projects"
// ABOUTME: Misses are filled from the ancestor chain of the leaf
package leaf

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harper/interview-assistant/internal/storage/sqlite"
	"github.com/harper/interview-assistant/internal/util"
	"github.com/patrickmn/go-cache"
)

// DefaultPathTTL bounds how long a renamed or moved area can show a stale path
const DefaultPathTTL = 10 * time.Minute

// UnknownTopic is the path used when a leaf cannot be resolved
const UnknownTopic = "Unknown topic"

// PathCache maps leaf ids to their path below the interview root
type PathCache struct {
	c *cache.Cache
}

// NewPathCache creates a cache whose entries live for ttl
func NewPathCache(ttl time.Duration) *PathCache {
	return &PathCache{c: cache.New(ttl, 2*ttl)}
}

func pathKey(rootID, leafID uuid.UUID) string {
	return rootID.String() + "/" + leafID.String()
}

// Remember stores paths computed from a descendant listing
func (p *PathCache) Remember(rootID uuid.UUID, infos []util.SubAreaInfo) {
	for _, info := range infos {
		p.c.SetDefault(pathKey(rootID, info.Area.ID), info.Path)
	}
}

// Path returns the leaf's path below rootID, loading ancestors on a miss
func (p *PathCache) Path(ctx context.Context, repos *sqlite.Repos, rootID, leafID uuid.UUID) string {
	if v, ok := p.c.Get(pathKey(rootID, leafID)); ok {
		return v.(string)
	}

	leaf, err := repos.Areas.GetByID(ctx, leafID)
	if err != nil || leaf == nil {
		return UnknownTopic
	}
	ancestors, err := repos.Areas.GetAncestors(ctx, leafID)
	if err != nil {
		return leaf.Title
	}

	// ancestors run from the direct parent upwards
	parts := []string{leaf.Title}
	for _, a := range ancestors {
		if a.ID == rootID {
			break
		}
		parts = append([]string{a.Title}, parts...)
	}
	path := strings.Join(parts, " > ")
	p.c.SetDefault(pathKey(rootID, leafID), path)
	return path
}

// Len reports the number of cached paths
func (p *PathCache) Len() int {
	return p.c.ItemCount()
}
