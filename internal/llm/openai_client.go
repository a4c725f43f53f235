// ABOUTME: OpenAI-compatible client for chat, embeddings and transcription
// ABOUTME: Points at OpenRouter by default; each call is one attempt bounded by a timeout
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harper/interview-assistant/internal/metrics"
	"github.com/harper/interview-assistant/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultChatModel is the default model for chat completions
	DefaultChatModel = "openai/gpt-4o-mini"
	// DefaultEmbeddingModel is the default model for embeddings
	DefaultEmbeddingModel = "openai/text-embedding-3-small"
	// DefaultTranscriptionModel is the default speech-to-text model
	DefaultTranscriptionModel = "openai/whisper-1"

	transcribePrompt = "Transcribe this audio verbatim."
)

// ClientConfig holds configuration for the OpenAI client
type ClientConfig struct {
	APIKey              string
	BaseURL             string
	ChatModel           string
	EmbeddingModel      string
	TranscriptionModel  string
	EmbeddingDimensions int
	Timeout             time.Duration
}

// DefaultConfig returns the default client configuration
func DefaultConfig(apiKey string) *ClientConfig {
	return &ClientConfig{
		APIKey:              apiKey,
		BaseURL:             "https://openrouter.ai/api/v1",
		ChatModel:           DefaultChatModel,
		EmbeddingModel:      DefaultEmbeddingModel,
		TranscriptionModel:  DefaultTranscriptionModel,
		EmbeddingDimensions: 1536,
		Timeout:             60 * time.Second,
	}
}

// OpenAIClient implements Chat, Embedder and Transcriber
type OpenAIClient struct {
	client             *openai.Client
	chatModel          string
	embeddingModel     openai.EmbeddingModel
	transcriptionModel string
	dimensions         int
	timeout            time.Duration
}

// NewOpenAIClient creates a new client with the given API key using default configuration
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	return NewOpenAIClientWithConfig(DefaultConfig(apiKey))
}

// NewOpenAIClientWithConfig creates a new client with custom configuration
func NewOpenAIClientWithConfig(config *ClientConfig) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	oc := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		oc.BaseURL = config.BaseURL
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &OpenAIClient{
		client:             openai.NewClientWithConfig(oc),
		chatModel:          config.ChatModel,
		embeddingModel:     openai.EmbeddingModel(config.EmbeddingModel),
		transcriptionModel: config.TranscriptionModel,
		dimensions:         config.EmbeddingDimensions,
		timeout:            timeout,
	}, nil
}

// GetClient returns the underlying client for direct use
func (c *OpenAIClient) GetClient() *openai.Client {
	return c.client
}

// Complete runs one chat completion
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (models.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	chatReq := openai.ChatCompletionRequest{
		Model:    c.chatModel,
		Messages: toOpenAIMessages(req.System, req.Messages),
	}
	if req.Temperature != nil {
		chatReq.Temperature = *req.Temperature
		if chatReq.Temperature == 0 {
			chatReq.Temperature = zeroTemperature
		}
	}
	for _, t := range req.Tools {
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if req.Schema != nil {
		schema, err := schemaMarshaler(req.Schema.Schema)
		if err != nil {
			return models.Message{}, err
		}
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.Schema.Name,
				Schema: schema,
				Strict: true,
			},
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		metrics.LLMCalls.WithLabelValues("chat", "error").Inc()
		return models.Message{}, err
	}
	if len(resp.Choices) == 0 {
		metrics.LLMCalls.WithLabelValues("chat", "empty").Inc()
		return models.Message{}, ErrEmptyResponse
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		metrics.LLMCalls.WithLabelValues("chat", "truncated").Inc()
		return models.Message{}, ErrTruncated
	}

	metrics.LLMCalls.WithLabelValues("chat", "ok").Inc()
	return fromOpenAIMessage(choice.Message), nil
}

// Embed returns the embedding for text, checked against the configured dimension
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input:      []string{text},
		Model:      c.embeddingModel,
		Dimensions: c.dimensions,
	})
	if err != nil {
		metrics.LLMCalls.WithLabelValues("embedding", "error").Inc()
		return nil, err
	}
	if len(resp.Data) == 0 {
		metrics.LLMCalls.WithLabelValues("embedding", "empty").Inc()
		return nil, errors.New("no embeddings returned")
	}

	// Convert []float32 to []float64
	embedding32 := resp.Data[0].Embedding
	embedding64 := make([]float64, len(embedding32))
	for i, v := range embedding32 {
		embedding64[i] = float64(v)
	}

	if err := models.ValidateDimension(embedding64, c.dimensions); err != nil {
		metrics.LLMCalls.WithLabelValues("embedding", "invalid").Inc()
		return nil, err
	}
	metrics.LLMCalls.WithLabelValues("embedding", "ok").Inc()
	return embedding64, nil
}

// Transcribe sends an audio file for transcription
func (c *OpenAIClient) Transcribe(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.transcriptionModel,
		FilePath: path,
		Prompt:   transcribePrompt,
	})
	if err != nil {
		metrics.LLMCalls.WithLabelValues("transcription", "error").Inc()
		return "", err
	}
	metrics.LLMCalls.WithLabelValues("transcription", "ok").Inc()
	return resp.Text, nil
}
