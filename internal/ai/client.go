// Package ai extracts loan datapoints from OCR text slices via an external
// LLM. Responses are validated against a strict per-document-type schema
// before any value enters the pipeline.
package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// LLMClient is the narrow surface the extractor needs. Tests swap it for a
// canned implementation.
type LLMClient interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Close() error
}

// GeminiClient talks to the Gemini API in JSON mode.
type GeminiClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger *log.Logger
}

// NewGeminiClient builds a client for the given model name.
func NewGeminiClient(ctx context.Context, apiKey, modelName string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"

	logger := log.New(log.Writer(), "[GEMINI] ", log.LstdFlags)
	logger.Printf("✅ Gemini client initialized (model=%s)", modelName)

	return &GeminiClient{client: client, model: model, logger: logger}, nil
}

func (g *GeminiClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	g.model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	resp, err := g.model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from model")
	}

	part := resp.Candidates[0].Content.Parts[0]
	text, ok := part.(genai.Text)
	if !ok {
		return "", fmt.Errorf("unexpected response part type: %T", part)
	}
	return string(text), nil
}

func (g *GeminiClient) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

var _ LLMClient = (*GeminiClient)(nil)

// StaticLLM returns a fixed response. Test double.
type StaticLLM struct {
	Response string
	Err      error
}

func (s *StaticLLM) Generate(_ context.Context, _, _ string) (string, error) {
	return s.Response, s.Err
}

func (s *StaticLLM) Close() error { return nil }

var _ LLMClient = (*StaticLLM)(nil)
