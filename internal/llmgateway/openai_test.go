package llmgateway

import (
	"context"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/require"

	"github.com/forwardimpact/monorepo-sub001/internal/resource"
)

type stubChatClient struct {
	lastParams openai.ChatCompletionNewParams
	resp       *openai.ChatCompletion
	err        error
}

func (s *stubChatClient) New(_ context.Context, body openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	s.lastParams = body
	return s.resp, s.err
}

type stubEmbeddingsClient struct {
	lastParams openai.EmbeddingNewParams
	resp       *openai.CreateEmbeddingResponse
	err        error
}

func (s *stubEmbeddingsClient) New(_ context.Context, body openai.EmbeddingNewParams, _ ...option.RequestOption) (*openai.CreateEmbeddingResponse, error) {
	s.lastParams = body
	return s.resp, s.err
}

func TestOpenAIAdapterCompleteTextOnly(t *testing.T) {
	chat := &stubChatClient{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "world"}},
		},
		Usage: openai.CompletionUsage{PromptTokens: 10, CompletionTokens: 5},
	}}
	adapter := NewOpenAIAdapter(chat, nil)

	resp, err := adapter.Complete(context.Background(), CompletionRequest{
		Model:     "gpt-4o",
		MaxTokens: 128,
		Messages:  []Message{{Role: "user", Content: "hello"}},
	})
	require.NoError(t, err)
	require.Equal(t, "world", resp.Text)
	require.Equal(t, 10, resp.Usage.InputTokens)
	require.Equal(t, 5, resp.Usage.OutputTokens)
}

func TestOpenAIAdapterCompleteRejectsMissingChatClient(t *testing.T) {
	adapter := NewOpenAIAdapter(nil, nil)
	_, err := adapter.Complete(context.Background(), CompletionRequest{Model: "gpt-4o", MaxTokens: 1})
	require.Error(t, err)
}

func TestOpenAIAdapterEmbed(t *testing.T) {
	embeddings := &stubEmbeddingsClient{resp: &openai.CreateEmbeddingResponse{
		Data: []openai.Embedding{
			{Embedding: []float64{1, 2, 3}},
		},
	}}
	adapter := NewOpenAIAdapter(nil, embeddings)

	result, err := adapter.Embed(context.Background(), EmbeddingRequest{
		Model: "text-embedding-3-small",
		Texts: []string{"hi"},
	})
	require.NoError(t, err)
	require.Len(t, result.Vectors, 1)
	require.Equal(t, []float64{1, 2, 3}, result.Vectors[0])
}

func TestOpenAIAdapterEncodesToolSchemas(t *testing.T) {
	chat := &stubChatClient{resp: &openai.ChatCompletion{}}
	adapter := NewOpenAIAdapter(chat, nil)

	_, err := adapter.Complete(context.Background(), CompletionRequest{
		Model:     "gpt-4o",
		MaxTokens: 16,
		Messages:  []Message{{Role: "user", Content: "hi"}},
		Tools: []resource.ToolFunction{
			{Name: "lookup", Description: "look things up", InputSchema: []byte(`{"type":"object"}`)},
		},
	})
	require.NoError(t, err)
	require.Len(t, chat.lastParams.Tools, 1)
}
