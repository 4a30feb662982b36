package llmgateway

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
	"github.com/forwardimpact/monorepo-sub001/internal/resource"
)

// RuntimeClient captures the subset of the AWS Bedrock runtime client
// this adapter needs. *bedrockruntime.Client satisfies it, so tests
// can inject a fake.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockAdapter implements CompletionProvider over the Bedrock
// Converse API.
type BedrockAdapter struct {
	runtime RuntimeClient
}

// NewBedrockAdapter wires an adapter around an injected runtime
// client.
func NewBedrockAdapter(runtime RuntimeClient) *BedrockAdapter {
	return &BedrockAdapter{runtime: runtime}
}

func (b *BedrockAdapter) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	if b.runtime == nil {
		return Completion{}, faults.Internalf(nil, "bedrock adapter: no runtime client configured")
	}

	messages := make([]brtypes.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := brtypes.ConversationRoleUser
		if m.Role == "assistant" {
			role = brtypes.ConversationRoleAssistant
		}
		messages = append(messages, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
		})
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(req.Model),
		Messages: messages,
	}
	if len(req.Tools) > 0 {
		toolConfig, err := bedrockToolConfig(req.Tools)
		if err != nil {
			return Completion{}, err
		}
		input.ToolConfig = toolConfig
	}

	output, err := b.runtime.Converse(ctx, input)
	if err != nil {
		return Completion{}, faults.Transientf("bedrock converse: %v", err)
	}

	return translateBedrockOutput(output, req.Model), nil
}

func bedrockToolConfig(tools []resource.ToolFunction) (*brtypes.ToolConfiguration, error) {
	toolList := make([]brtypes.Tool, 0, len(tools))
	for _, t := range tools {
		var schema map[string]any
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
				return nil, faults.Validationf("bedrock: tool %q schema: %v", t.Name, err)
			}
		}
		spec := brtypes.ToolSpecification{
			Name:        aws.String(t.Name),
			Description: aws.String(t.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(&schema)},
		}
		toolList = append(toolList, &brtypes.ToolMemberToolSpec{Value: spec})
	}
	return &brtypes.ToolConfiguration{Tools: toolList}, nil
}

func translateBedrockOutput(output *bedrockruntime.ConverseOutput, model string) Completion {
	out := Completion{Model: model}
	if msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			switch v := block.(type) {
			case *brtypes.ContentBlockMemberText:
				out.Text += v.Value
			case *brtypes.ContentBlockMemberToolUse:
				name := ""
				if v.Value.Name != nil {
					name = *v.Value.Name
				}
				out.ToolCalls = append(out.ToolCalls, ToolCall{Name: name, Input: decodeBedrockDocument(v.Value.Input)})
			}
		}
	}
	if output.Usage != nil {
		out.Usage = Usage{
			InputTokens:  int(derefInt32(output.Usage.InputTokens)),
			OutputTokens: int(derefInt32(output.Usage.OutputTokens)),
		}
	}
	return out
}

func decodeBedrockDocument(doc document.Interface) map[string]any {
	if doc == nil {
		return nil
	}
	data, err := doc.MarshalSmithyDocument()
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func derefInt32(p *int32) int32 {
	if p == nil {
		return 0
	}
	return *p
}
