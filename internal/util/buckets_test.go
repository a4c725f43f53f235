// ABOUTME: Tests for message bucket merging
// ABOUTME: Verifies idempotence and tool-call aware deduplication
package util

import (
	"reflect"
	"testing"

	"github.com/harper/interview-assistant/internal/models"
)

func TestMergeMessageBuckets_Idempotent(t *testing.T) {
	b := MessageBuckets{
		1: {models.HumanMessage("hi"), models.AIMessage("hello")},
		2: {models.HumanMessage("again")},
	}

	merged := MergeMessageBuckets(b, b)
	if !reflect.DeepEqual(merged, b) {
		t.Errorf("merge(B, B) = %v, want %v", merged, b)
	}
}

func TestMergeMessageBuckets_DuplicateInputs(t *testing.T) {
	b := MessageBuckets{
		1: {models.HumanMessage("hi"), models.HumanMessage("hi"), models.AIMessage("hello")},
		2: {},
	}
	want := MessageBuckets{
		1: {models.HumanMessage("hi"), models.AIMessage("hello")},
	}

	merged := MergeMessageBuckets(b, b)
	if !reflect.DeepEqual(merged, want) {
		t.Errorf("merge(B, B) = %v, want %v", merged, want)
	}
	if again := MergeMessageBuckets(merged, merged); !reflect.DeepEqual(again, merged) {
		t.Errorf("merge(M, M) = %v, want %v", again, merged)
	}
	if again := MergeMessageBuckets(merged, b); !reflect.DeepEqual(again, merged) {
		t.Errorf("merge(M, B) = %v, want %v", again, merged)
	}
}

func TestMergeMessageBuckets_DistinctTimestampsKept(t *testing.T) {
	left := MessageBuckets{1: {models.HumanMessage("hi")}}
	right := MessageBuckets{2: {models.HumanMessage("hi")}}

	merged := MergeMessageBuckets(left, right)
	if merged.Count() != 2 {
		t.Errorf("Count() = %d, want 2", merged.Count())
	}
	if ts := merged.Timestamps(); ts[0] != 1 || ts[1] != 2 {
		t.Errorf("Timestamps() = %v", ts)
	}
}

func TestMessageKey_ToolCallsDistinguish(t *testing.T) {
	a := models.Message{Role: models.RoleAI, ToolCalls: []models.ToolCall{{ID: "1", Name: "list_life_areas"}}}
	b := models.Message{Role: models.RoleAI, ToolCalls: []models.ToolCall{{ID: "2", Name: "list_life_areas"}}}
	if MessageKey(a) == MessageKey(b) {
		t.Error("messages with different tool calls must hash differently")
	}

	toolA := models.ToolMessage("1", "x", "ok")
	toolB := models.ToolMessage("2", "x", "ok")
	if MessageKey(toolA) == MessageKey(toolB) {
		t.Error("tool messages with different call ids must hash differently")
	}
}

func TestMessageBuckets_Add(t *testing.T) {
	var b MessageBuckets
	b = b.Add(5, models.HumanMessage("x"))
	b = b.Add(5, models.HumanMessage("x"), models.AIMessage("y"))
	if b.Count() != 2 {
		t.Errorf("Count() = %d, want 2", b.Count())
	}
}

func TestTurnClock_StrictlyIncreasing(t *testing.T) {
	next := TurnClock()
	prev := next()
	for i := 0; i < 1000; i++ {
		ts := next()
		if ts <= prev {
			t.Fatalf("timestamp %d not after %d", ts, prev)
		}
		prev = ts
	}
}
