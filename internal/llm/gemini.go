package llm

import (
	"context"
	"errors"
	"fmt"

	genai "google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured
const DefaultGeminiModel = "gemini-2.0-flash"

// ErrEmptyResponse is returned when the model produced no text
var ErrEmptyResponse = errors.New("llm: empty response from model")

// GeminiClient uses the Gemini developer API with an API key
type GeminiClient struct {
	cli   *genai.Client
	model string
}

// NewGeminiClient creates a client for the Gemini API
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{cli: cli, model: model}, nil
}

// GenerateJSON implements Client
func (g *GeminiClient) GenerateJSON(ctx context.Context, req Request) (string, error) {
	temp := req.Temperature
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      &temp,
	}
	if req.Schema != nil {
		cfg.ResponseSchema = toGenaiSchema(req.Schema)
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: req.Prompt}}}},
		cfg,
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}

	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		out += part.Text
	}
	return out, nil
}

// Close implements Client
func (g *GeminiClient) Close() error {
	return nil
}

func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
		Items:       toGenaiSchema(s.Items),
	}
	switch s.Type {
	case TypeObject:
		out.Type = genai.TypeObject
	case TypeArray:
		out.Type = genai.TypeArray
	case TypeNumber:
		out.Type = genai.TypeNumber
	case TypeInteger:
		out.Type = genai.TypeInteger
	case TypeBoolean:
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeString
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = toGenaiSchema(p)
		}
	}
	return out
}
