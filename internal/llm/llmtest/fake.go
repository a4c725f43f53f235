// ABOUTME: Scriptable fakes for the model interfaces, used by package tests
// ABOUTME: FakeChat routes each request to a handler chosen by schema name or tools
package llmtest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/harper/interview-assistant/internal/llm"
	"github.com/harper/interview-assistant/internal/models"
)

// ErrNoHandler is returned when FakeChat has nothing scripted for a request
var ErrNoHandler = errors.New("llmtest: no handler for request")

// Handler answers one request
type Handler func(req llm.Request) (models.Message, error)

// FakeChat is a concurrency-safe scripted Chat
type FakeChat struct {
	mu sync.Mutex
	// BySchema answers structured requests keyed by schema name
	BySchema map[string]Handler
	// Default answers every other request
	Default Handler
	// Queue answers requests in order before Default is consulted
	Queue    []Handler
	Requests []llm.Request
}

// NewFakeChat returns an empty FakeChat
func NewFakeChat() *FakeChat {
	return &FakeChat{BySchema: map[string]Handler{}}
}

// Complete implements llm.Chat
func (f *FakeChat) Complete(ctx context.Context, req llm.Request) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}

	f.mu.Lock()
	f.Requests = append(f.Requests, req)
	var h Handler
	if req.Schema != nil {
		h = f.BySchema[req.Schema.Name]
	}
	if h == nil && len(f.Queue) > 0 {
		h = f.Queue[0]
		f.Queue = f.Queue[1:]
	}
	if h == nil {
		h = f.Default
	}
	f.mu.Unlock()

	if h == nil {
		return models.Message{}, ErrNoHandler
	}
	return h(req)
}

// Calls returns a copy of every request seen so far
func (f *FakeChat) Calls() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.Requests...)
}

// SchemaCalls counts structured requests with the given schema name
func (f *FakeChat) SchemaCalls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.Requests {
		if r.Schema != nil && r.Schema.Name == name {
			n++
		}
	}
	return n
}

// Text answers with a fixed assistant message
func Text(content string) Handler {
	return func(llm.Request) (models.Message, error) {
		return models.AIMessage(content), nil
	}
}

// JSON answers with v encoded as the message content
func JSON(v any) Handler {
	return func(llm.Request) (models.Message, error) {
		raw, err := json.Marshal(v)
		if err != nil {
			return models.Message{}, err
		}
		return models.AIMessage(string(raw)), nil
	}
}

// Fail always returns err
func Fail(err error) Handler {
	return func(llm.Request) (models.Message, error) {
		return models.Message{}, err
	}
}

// ToolCalls answers with an assistant message requesting the given calls
func ToolCalls(calls ...models.ToolCall) Handler {
	return func(llm.Request) (models.Message, error) {
		msg := models.AIMessage("")
		msg.ToolCalls = calls
		return msg, nil
	}
}

// FakeEmbedder returns a fixed-dimension vector derived from the text length
type FakeEmbedder struct {
	Dim int
	Err error

	mu    sync.Mutex
	calls int
}

// Embed implements llm.Embedder
func (e *FakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	dim := e.Dim
	if dim == 0 {
		dim = 8
	}
	v := make([]float64, dim)
	v[len(text)%dim] = 1
	return v, nil
}

// Calls reports how many times Embed ran
func (e *FakeEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// FakeTranscriber returns fixed text
type FakeTranscriber struct {
	Text string
	Err  error
}

// Transcribe implements llm.Transcriber
func (t *FakeTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	return t.Text, t.Err
}
