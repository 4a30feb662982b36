package llmgateway

import (
	"context"
	"encoding/json"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
	"github.com/forwardimpact/monorepo-sub001/internal/resource"
)

// MessagesClient captures the subset of the Anthropic SDK used by
// this adapter. *sdk.MessageService satisfies it, so tests can inject
// a fake instead of the real client.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicAdapter implements CompletionProvider over Claude Messages.
type AnthropicAdapter struct {
	messages MessagesClient
}

// NewAnthropicAdapter wires an adapter around an injected client.
func NewAnthropicAdapter(messages MessagesClient) *AnthropicAdapter {
	return &AnthropicAdapter{messages: messages}
}

// NewAnthropicAdapterFromAPIKey builds an adapter using the SDK's
// default HTTP client, authenticated with apiKey.
func NewAnthropicAdapterFromAPIKey(apiKey string) *AnthropicAdapter {
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropicAdapter(&client.Messages)
}

func (a *AnthropicAdapter) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	if a.messages == nil {
		return Completion{}, faults.Internalf(nil, "anthropic adapter: no messages client configured")
	}
	if req.MaxTokens <= 0 {
		return Completion{}, faults.Validationf("anthropic: max_tokens must be positive")
	}

	params := sdk.MessageNewParams{
		MaxTokens: int64(req.MaxTokens),
		Model:     sdk.Model(req.Model),
		Messages:  make([]sdk.MessageParam, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		if m.Role == "assistant" {
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		} else {
			params.Messages = append(params.Messages, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	if len(req.Tools) > 0 {
		tools, err := encodeAnthropicTools(req.Tools)
		if err != nil {
			return Completion{}, err
		}
		params.Tools = tools
	}

	msg, err := a.messages.New(ctx, params)
	if err != nil {
		return Completion{}, faults.Transientf("anthropic messages.new: %v", err)
	}

	return translateAnthropicMessage(msg, req.Model), nil
}

func encodeAnthropicTools(tools []resource.ToolFunction) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema, err := anthropicInputSchema(t.InputSchema)
		if err != nil {
			return nil, faults.Validationf("anthropic: tool %q schema: %v", t.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(schema, t.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(t.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func anthropicInputSchema(raw json.RawMessage) (sdk.ToolInputSchemaParam, error) {
	if len(raw) == 0 {
		return sdk.ToolInputSchemaParam{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}

func translateAnthropicMessage(msg *sdk.Message, model string) Completion {
	out := Completion{Model: model}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "tool_use":
			var input map[string]any
			_ = json.Unmarshal(block.Input, &input)
			out.ToolCalls = append(out.ToolCalls, ToolCall{Name: block.Name, Input: input})
		}
	}
	out.Usage = Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}
	return out
}
