// Package llm talks to the generative models used for scoring interviews
// and extracting interview parameters.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Type is a JSON schema value type
type Type string

const (
	TypeObject  Type = "object"
	TypeArray   Type = "array"
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeInteger Type = "integer"
	TypeBoolean Type = "boolean"
)

// Schema describes the JSON a model must return. Each backend converts it
// to its own schema type.
type Schema struct {
	Type        Type
	Description string
	Properties  map[string]*Schema
	Required    []string
	Items       *Schema
	Enum        []string
}

// Request is one structured generation call
type Request struct {
	System      string
	Prompt      string
	Schema      *Schema
	Temperature float32
}

// Client generates JSON text from a prompt
type Client interface {
	GenerateJSON(ctx context.Context, req Request) (string, error)
	Close() error
}

// Backend names accepted by New
const (
	BackendVertex = "vertex"
	BackendGemini = "gemini"
	BackendFake   = "fake"
)

// Options selects and configures a backend
type Options struct {
	Backend   string
	Model     string
	ProjectID string
	Location  string
	APIKey    string
}

// New creates the client for opts.Backend wrapped in rate-limit retries
func New(ctx context.Context, opts Options) (Client, error) {
	var (
		c   Client
		err error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendVertex:
		c, err = NewVertexAIClient(ctx, opts.ProjectID, opts.Location, opts.Model)
	case BackendGemini:
		c, err = NewGeminiClient(ctx, opts.APIKey, opts.Model)
	case BackendFake:
		c = NewFake()
	default:
		return nil, fmt.Errorf("unknown LLM backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	return WithRetry(c), nil
}
