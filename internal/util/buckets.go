// ABOUTME: Timestamp-keyed message buckets collected for deferred persistence
// ABOUTME: Merging deduplicates by a stable hash of each message
package util

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/harper/interview-assistant/internal/models"
)

// MessageBuckets maps a unix-nano timestamp to the messages produced at it
type MessageBuckets map[int64][]models.Message

// MessageKey is a stable hash of role, content, tool calls and tool call id
func MessageKey(msg models.Message) string {
	parts := []string{string(msg.Role), msg.Content}
	if len(msg.ToolCalls) > 0 {
		if b, err := json.Marshal(msg.ToolCalls); err == nil {
			parts = append(parts, string(b))
		}
	}
	if msg.ToolCallID != "" {
		parts = append(parts, msg.ToolCallID)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// MergeMessageBuckets unions buckets, dropping duplicates within each timestamp
// and empty timestamps. Inputs may hold duplicates; the result never does, so
// merging a result with itself (or with any of its inputs again) returns it unchanged.
func MergeMessageBuckets(left, right MessageBuckets) MessageBuckets {
	merged := make(MessageBuckets)
	for _, bucket := range []MessageBuckets{left, right} {
		for ts, messages := range bucket {
			seen := make(map[string]bool, len(merged[ts])+len(messages))
			for _, m := range merged[ts] {
				seen[MessageKey(m)] = true
			}
			for _, m := range messages {
				key := MessageKey(m)
				if seen[key] {
					continue
				}
				merged[ts] = append(merged[ts], m)
				seen[key] = true
			}
		}
	}
	return merged
}

// Add appends messages under ts, deduplicating
func (b MessageBuckets) Add(ts int64, messages ...models.Message) MessageBuckets {
	return MergeMessageBuckets(b, MessageBuckets{ts: messages})
}

// Timestamps returns the bucket keys in ascending order
func (b MessageBuckets) Timestamps() []int64 {
	keys := make([]int64, 0, len(b))
	for ts := range b {
		keys = append(keys, ts)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Count returns the number of messages across all buckets
func (b MessageBuckets) Count() int {
	n := 0
	for _, messages := range b {
		n += len(messages)
	}
	return n
}

// TurnClock returns a function yielding strictly increasing unix-nano
// timestamps, so messages produced within one turn keep their order
func TurnClock() func() int64 {
	var last int64
	return func() int64 {
		now := time.Now().UnixNano()
		if now <= last {
			now = last + 1
		}
		last = now
		return now
	}
}
