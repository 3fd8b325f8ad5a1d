package llm

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// DefaultVertexModel is used when no model is configured
const DefaultVertexModel = "gemini-1.5-flash"

// VertexAIClient wraps the Vertex AI Gemini API
type VertexAIClient struct {
	client    *genai.Client
	modelName string
	projectID string
	location  string
}

// NewVertexAIClient creates a new Vertex AI client
func NewVertexAIClient(ctx context.Context, projectID, location, model string) (*VertexAIClient, error) {
	if projectID == "" {
		return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT is not set")
	}
	if location == "" {
		location = "us-central1"
	}
	if model == "" {
		model = DefaultVertexModel
	}

	client, err := genai.NewClient(ctx, projectID, location)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vertex AI client: %w", err)
	}

	return &VertexAIClient{
		client:    client,
		modelName: model,
		projectID: projectID,
		location:  location,
	}, nil
}

// GenerateJSON sends the request and returns the model's JSON text
func (v *VertexAIClient) GenerateJSON(ctx context.Context, req Request) (string, error) {
	model := v.client.GenerativeModel(v.modelName)
	model.SetTemperature(req.Temperature)
	model.SetTopK(40)
	model.SetTopP(0.95)
	model.SetMaxOutputTokens(4096)
	model.ResponseMIMEType = "application/json"
	if req.Schema != nil {
		model.ResponseSchema = toVertexSchema(req.Schema)
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no response candidates returned")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

// Close closes the Vertex AI client
func (v *VertexAIClient) Close() error {
	return v.client.Close()
}

func toVertexSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
		Items:       toVertexSchema(s.Items),
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
			out.Properties[name] = toVertexSchema(p)
		}
	}
	return out
}
