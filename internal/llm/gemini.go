package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// Gemini implements Client on the Gemini API.
type Gemini struct {
	client *genai.Client
}

// NewGemini returns a Gemini client for apiKey. A nil httpClient uses the SDK
// default.
func NewGemini(ctx context.Context, apiKey string, httpClient *http.Client) (*Gemini, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{client: client}, nil
}

// GeminiFactory returns a Factory creating one Gemini client per key.
func GeminiFactory(httpClient *http.Client) Factory {
	return func(ctx context.Context, apiKey string) (Client, error) {
		if err := ValidateKey(apiKey); err != nil {
			return nil, err
		}
		return NewGemini(ctx, apiKey, httpClient)
	}
}

// Generate implements Client.
func (g *Gemini) Generate(ctx context.Context, p Prompt) (string, error) {
	cfg := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(p.Thinking)},
	}
	if p.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	resp, err := g.client.Models.GenerateContent(ctx, p.Model, genai.Text(p.Text), cfg)
	if err != nil {
		merr := &ModelError{Model: p.Model, Err: err}
		var apiErr genai.APIError
		var apiErrPtr *genai.APIError
		switch {
		case errors.As(err, &apiErr):
			merr.Status = apiErr.Code
		case errors.As(err, &apiErrPtr):
			merr.Status = apiErrPtr.Code
		}
		return "", merr
	}
	text := resp.Text()
	if text == "" {
		return "", &ModelError{Model: p.Model, Err: errors.New("empty response")}
	}
	return text, nil
}

var _ Client = (*Gemini)(nil)
