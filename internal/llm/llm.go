// Package llm is the single-turn completion surface used for query rewriting
// and answer synthesis.
package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	DefaultModel = "gemini-2.5-flash-lite"

	// dynamicThinking lets the model pick its own reasoning budget.
	dynamicThinking int32 = -1
)

// Prompt is one completion request.
type Prompt struct {
	Model    string
	Text     string
	Thinking int32
	// JSON asks the model for an application/json response.
	JSON bool
}

// NewPrompt returns a Prompt with the thinking budget suited to model.
func NewPrompt(model, text string) Prompt {
	if model == "" {
		model = DefaultModel
	}
	return Prompt{Model: model, Text: text, Thinking: ThinkingBudget(model)}
}

// ThinkingBudget is dynamic for gemini-2.5-pro and disabled for every other
// model, which keeps the flash tiers fast.
func ThinkingBudget(model string) int32 {
	if model == "gemini-2.5-pro" {
		return dynamicThinking
	}
	return 0
}

// Client performs a single completion call and returns the response text.
type Client interface {
	Generate(ctx context.Context, p Prompt) (string, error)
}

// Factory builds a Client bound to one API key.
type Factory func(ctx context.Context, apiKey string) (Client, error)

// ModelError reports a failed completion call.
type ModelError struct {
	Model  string
	Status int
	Err    error
}

func (e *ModelError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("model %s: status %d: %v", e.Model, e.Status, e.Err)
	}
	return fmt.Sprintf("model %s: %v", e.Model, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

var (
	ErrInvalidKey = errors.New("invalid API key format")

	keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{21,199}$`)
)

// ValidateKey checks the shape of a model API key without contacting the
// service.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(strings.TrimSpace(key)) {
		return ErrInvalidKey
	}
	return nil
}
