// Package window assembles the (messages, tools) pair fed to a model
// for one conversation turn, walking the conversation's memory index
// under a per-model token budget.
package window

import (
	"context"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
	"github.com/forwardimpact/monorepo-sub001/internal/identifier"
	"github.com/forwardimpact/monorepo-sub001/internal/memoryindex"
	"github.com/forwardimpact/monorepo-sub001/internal/resource"
	"github.com/forwardimpact/monorepo-sub001/internal/resourceindex"
)

// Message is one entry in an assembled window: the agent's own
// message or a conversation Message resource, both reduced to the
// same shape for the model call.
type Message struct {
	ID      identifier.ID
	Role    string
	Content string
	Tokens  int
}

// Window is the assembled (messages, tools) pair.
type Window struct {
	Messages []Message
	Tools    []resource.ToolFunction
}

// MemoryIndexFor resolves the per-conversation memory index key used
// to look up a conversation's append log; conventionally one
// "memories/<conversation-id>.jsonl" per conversation, constructed by
// the caller wiring Build.
type MemoryIndexFor func(ctx context.Context, conversationID identifier.ID) (*memoryindex.Index, error)

// Build assembles a Window for the conversation identified by
// conversationID, given a maximum token budget. The agent message is
// always first and always counted first against the budget; messages
// are walked in the conversation's memory-index append order and
// admitted while cumulative tokens stay within budget; any identifier
// that fails to resolve, or resolves to something other than a
// Message, is skipped silently. Tools referenced by the agent are
// resolved and deduplicated, and do not themselves consume the
// message budget.
func Build(ctx context.Context, resources *resourceindex.Index, memoryFor MemoryIndexFor, conversationID identifier.ID, maxTokens int) (Window, error) {
	convRes, err := resources.Get(ctx, []identifier.ID{conversationID}, "")
	if err != nil {
		return Window{}, err
	}
	if len(convRes) == 0 {
		return Window{}, faults.NotFoundf("conversation %s not found", conversationID.String())
	}
	conv, ok := convRes[0].(*resource.Conversation)
	if !ok {
		return Window{}, faults.Validationf("resource %s is not a Conversation", conversationID.String())
	}

	agentID, err := identifier.Parse(conv.AgentID)
	if err != nil {
		return Window{}, faults.Internalf(err, "parse agent id %q", conv.AgentID)
	}
	agentRes, err := resources.Get(ctx, []identifier.ID{agentID}, "")
	if err != nil {
		return Window{}, err
	}
	if len(agentRes) == 0 {
		return Window{}, faults.NotFoundf("agent %s not found", agentID.String())
	}
	agent, ok := agentRes[0].(*resource.Agent)
	if !ok {
		return Window{}, faults.Validationf("resource %s is not an Agent", agentID.String())
	}

	messages := []Message{{
		ID:      agentID,
		Role:    "assistant",
		Content: agent.SystemMessage,
		Tokens:  agent.Tokens,
	}}
	budget := maxTokens - agent.Tokens

	mem, err := memoryFor(ctx, conversationID)
	if err != nil {
		return Window{}, err
	}
	logged, err := mem.List(ctx)
	if err != nil {
		return Window{}, err
	}

	for _, id := range logged {
		res, err := resources.Get(ctx, []identifier.ID{id}, "")
		if err != nil {
			return Window{}, err
		}
		if len(res) == 0 {
			continue
		}
		msg, ok := res[0].(*resource.Message)
		if !ok {
			continue
		}
		if msg.Tokens > budget {
			break
		}
		budget -= msg.Tokens
		messages = append(messages, Message{
			ID:      id,
			Role:    msg.Role,
			Content: msg.Content,
			Tokens:  msg.Tokens,
		})
	}

	seen := make(map[string]bool, len(agent.ToolIDs))
	var tools []resource.ToolFunction
	for _, toolIDStr := range agent.ToolIDs {
		if seen[toolIDStr] {
			continue
		}
		seen[toolIDStr] = true
		toolID, err := identifier.Parse(toolIDStr)
		if err != nil {
			continue
		}
		toolRes, err := resources.Get(ctx, []identifier.ID{toolID}, "")
		if err != nil {
			return Window{}, err
		}
		if len(toolRes) == 0 {
			continue
		}
		tool, ok := toolRes[0].(*resource.ToolFunction)
		if !ok {
			continue
		}
		tools = append(tools, *tool)
	}

	return Window{Messages: messages, Tools: tools}, nil
}
