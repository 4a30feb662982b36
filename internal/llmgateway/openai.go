package llmgateway

import (
	"context"
	"encoding/json"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
	"github.com/forwardimpact/monorepo-sub001/internal/resource"
)

// ChatClient captures the subset of the openai-go client used by this
// adapter's completion path. *openai.ChatCompletionService satisfies
// it, so tests can inject a fake.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// EmbeddingsClient captures the subset used by the embeddings path.
type EmbeddingsClient interface {
	New(ctx context.Context, body openai.EmbeddingNewParams, opts ...option.RequestOption) (*openai.CreateEmbeddingResponse, error)
}

// OpenAIAdapter implements both CompletionProvider and
// EmbeddingProvider over the Chat Completions and Embeddings APIs.
type OpenAIAdapter struct {
	chat       ChatClient
	embeddings EmbeddingsClient
}

// NewOpenAIAdapter wires an adapter around injected clients. embeddings
// may be nil if this adapter only ever serves completions.
func NewOpenAIAdapter(chat ChatClient, embeddings EmbeddingsClient) *OpenAIAdapter {
	return &OpenAIAdapter{chat: chat, embeddings: embeddings}
}

// NewOpenAIAdapterFromAPIKey builds an adapter using the SDK's default
// HTTP client, authenticated with apiKey.
func NewOpenAIAdapterFromAPIKey(apiKey string) *OpenAIAdapter {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return NewOpenAIAdapter(&client.Chat.Completions, &client.Embeddings)
}

func (o *OpenAIAdapter) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	if o.chat == nil {
		return Completion{}, faults.Internalf(nil, "openai adapter: no chat client configured")
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		if m.Role == "assistant" {
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		} else {
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		tools, err := encodeOpenAITools(req.Tools)
		if err != nil {
			return Completion{}, err
		}
		params.Tools = tools
	}

	resp, err := o.chat.New(ctx, params)
	if err != nil {
		return Completion{}, faults.Transientf("openai chat.completions.new: %v", err)
	}
	return translateOpenAICompletion(resp, req.Model), nil
}

func (o *OpenAIAdapter) Embed(ctx context.Context, req EmbeddingRequest) (EmbeddingResult, error) {
	if o.embeddings == nil {
		return EmbeddingResult{}, faults.Internalf(nil, "openai adapter: no embeddings client configured")
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(req.Model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: req.Texts},
	}
	resp, err := o.embeddings.New(ctx, params)
	if err != nil {
		return EmbeddingResult{}, faults.Transientf("openai embeddings.new: %v", err)
	}

	vectors := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return EmbeddingResult{Vectors: vectors, Model: req.Model}, nil
}

func encodeOpenAITools(tools []resource.ToolFunction) ([]openai.ChatCompletionToolUnionParam, error) {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var params map[string]any
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &params); err != nil {
				return nil, faults.Validationf("openai: tool %q schema: %v", t.Name, err)
			}
		}
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name,
			Description: openai.String(t.Description),
			Parameters:  openai.FunctionParameters(params),
		}))
	}
	return out, nil
}

func translateOpenAICompletion(resp *openai.ChatCompletion, model string) Completion {
	out := Completion{Model: model}
	if len(resp.Choices) > 0 {
		msg := resp.Choices[0].Message
		out.Text = msg.Content
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
			out.ToolCalls = append(out.ToolCalls, ToolCall{Name: tc.Function.Name, Input: input})
		}
	}
	out.Usage = Usage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}
	return out
}
