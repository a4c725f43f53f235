// ABOUTME: Model capabilities used by the interview graph and the extract pipeline
// ABOUTME: Chat, embedding and transcription are interfaces so tests can swap in fakes
package llm

import (
	"context"
	"errors"
	"math"

	"github.com/harper/interview-assistant/internal/models"
)

var (
	// ErrStructuredOutput marks a reply that did not parse or validate
	ErrStructuredOutput = errors.New("structured output invalid")
	// ErrTruncated marks a reply cut off by the token limit
	ErrTruncated = errors.New("completion truncated")
	// ErrEmptyResponse marks a reply with no choices
	ErrEmptyResponse = errors.New("empty completion")
)

// Tool describes a function the model may call
type Tool struct {
	Name        string
	Description string
	// Parameters is a JSON schema value (for example a jsonschema.Definition)
	Parameters any
}

// ResponseSchema asks the model for JSON matching Schema
type ResponseSchema struct {
	Name   string
	Schema any
}

// Request is one chat completion call
type Request struct {
	System      string
	Messages    []models.Message
	Tools       []Tool
	Temperature *float32
	Schema      *ResponseSchema
}

// Temperature returns a pointer for Request.Temperature
func Temperature(t float32) *float32 {
	return &t
}

// Chat produces the next assistant message
type Chat interface {
	Complete(ctx context.Context, req Request) (models.Message, error)
}

// Embedder turns text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Transcriber turns an audio file into text
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// zeroTemperature is how a literal 0 survives the client's omitempty
const zeroTemperature = math.SmallestNonzeroFloat32
