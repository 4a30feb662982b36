// Package llmgateway selects a model provider (Anthropic, OpenAI, or
// Bedrock) by configuration, validates any tool schemas a request
// carries, forwards completion and embedding requests to the chosen
// provider, and normalizes the results (embeddings in particular are
// returned unit-length so they can be stored directly by the vector
// index).
package llmgateway

import (
	"context"

	"github.com/forwardimpact/monorepo-sub001/internal/resource"
)

// Provider names one of the backends this gateway can forward to.
type Provider string

const (
	Anthropic Provider = "anthropic"
	OpenAI    Provider = "openai"
	Bedrock   Provider = "bedrock"
)

// Message is one turn of conversation handed to a provider, reduced
// from a window.Message to the fields a completion call needs.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token accounting for a completion call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ToolCall is a tool invocation a model requested in its completion.
type ToolCall struct {
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// CompletionRequest is the normalized form of a CreateCompletions
// call, independent of which provider services it.
type CompletionRequest struct {
	Model     string                  `json:"model"`
	Provider  Provider                `json:"provider"`
	MaxTokens int                     `json:"max_tokens"`
	Messages  []Message               `json:"messages"`
	Tools     []resource.ToolFunction `json:"tools"`
}

// Completion is the normalized result of a completion call.
type Completion struct {
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls"`
	Usage     Usage      `json:"usage"`
	Model     string     `json:"model"`
}

// EmbeddingRequest is the normalized form of a CreateEmbeddings call.
type EmbeddingRequest struct {
	Model    string   `json:"model"`
	Provider Provider `json:"provider"`
	Texts    []string `json:"texts"`
}

// EmbeddingResult is the normalized result of an embeddings call:
// Vectors[i] corresponds to Texts[i] in the request, each normalized
// to unit length.
type EmbeddingResult struct {
	Vectors [][]float64 `json:"vectors"`
	Model   string      `json:"model"`
}

// CompletionProvider is implemented by each backend-specific adapter.
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
}

// EmbeddingProvider is implemented by backends that can also produce
// embeddings. Not every CompletionProvider needs one (Bedrock's
// Converse API, for example, is completions-only in this gateway).
type EmbeddingProvider interface {
	Embed(ctx context.Context, req EmbeddingRequest) (EmbeddingResult, error)
}
