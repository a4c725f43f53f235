// ABOUTME: Structured output: JSON schema requests parsed into validated Go structs
// ABOUTME: Parse and validation failures surface as ErrStructuredOutput so they are retried
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/harper/interview-assistant/internal/util"
	"github.com/sashabaranov/go-openai/jsonschema"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validator returns the shared struct validator
func Validator() *validator.Validate {
	return validate
}

// SchemaFor builds a JSON schema from a struct's json tags
func SchemaFor[T any]() (*jsonschema.Definition, error) {
	var zero T
	return jsonschema.GenerateSchemaForType(zero)
}

// ParseStructured decodes content into T and validates it
func ParseStructured[T any](content string) (T, error) {
	var out T
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrStructuredOutput, err)
	}
	if err := validate.Struct(out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrStructuredOutput, err)
	}
	return out, nil
}

// Structured asks chat for JSON matching T's schema and retries until it parses
func Structured[T any](ctx context.Context, chat Chat, policy util.Policy, name string, req Request) (T, error) {
	var zero T
	schema, err := SchemaFor[T]()
	if err != nil {
		return zero, fmt.Errorf("build schema %s: %w", name, err)
	}
	req.Schema = &ResponseSchema{Name: name, Schema: schema}

	return InvokeWithRetry(ctx, policy, func(ctx context.Context) (T, error) {
		msg, err := chat.Complete(ctx, req)
		if err != nil {
			return zero, err
		}
		return ParseStructured[T](msg.Content)
	})
}
