package llmgateway

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/require"

	"github.com/forwardimpact/monorepo-sub001/internal/resource"
)

type stubRuntimeClient struct {
	captured *bedrockruntime.ConverseInput
	output   *bedrockruntime.ConverseOutput
	err      error
}

func (s *stubRuntimeClient) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.captured = params
	return s.output, s.err
}

func TestBedrockAdapterCompleteTextAndToolUse(t *testing.T) {
	stub := &stubRuntimeClient{output: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role: brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{
				&brtypes.ContentBlockMemberText{Value: "hello"},
				&brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					Name:  aws.String("calc"),
					Input: document.NewLazyDocument(&map[string]any{"value": 42}),
				}},
			},
		}},
		Usage: &brtypes.TokenUsage{
			InputTokens:  aws.Int32(100),
			OutputTokens: aws.Int32(20),
		},
	}}
	adapter := NewBedrockAdapter(stub)

	resp, err := adapter.Complete(context.Background(), CompletionRequest{
		Model:    "anthropic.claude-3",
		Messages: []Message{{Role: "user", Content: "hi"}},
		Tools: []resource.ToolFunction{
			{Name: "calc", Description: "calculator"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "hello", resp.Text)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, "calc", resp.ToolCalls[0].Name)
	require.Equal(t, float64(42), resp.ToolCalls[0].Input["value"])
	require.Equal(t, 100, resp.Usage.InputTokens)
	require.Equal(t, 20, resp.Usage.OutputTokens)
	require.NotNil(t, stub.captured)
	require.Equal(t, "anthropic.claude-3", *stub.captured.ModelId)
}
