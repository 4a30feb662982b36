// Package resource defines the typed JSON resource variants addressed
// by an identifier.ID, and a registry mapping each
// "<namespace>.<Class>" tag to its concrete Go type.
package resource

import (
	"encoding/json"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
	"github.com/forwardimpact/monorepo-sub001/internal/identifier"
)

// Resource is any typed JSON object whose ID is an identifier.ID.
type Resource interface {
	ResourceID() identifier.ID
	SetResourceID(identifier.ID)
}

// base is embedded by every concrete resource variant to supply the
// common ID plumbing.
type base struct {
	ID identifier.ID `json:"-"`
}

func (b *base) ResourceID() identifier.ID      { return b.ID }
func (b *base) SetResourceID(id identifier.ID) { b.ID = id }

// Message is a common.Message resource: one turn in a conversation.
type Message struct {
	base
	Role    string `json:"role"`
	Content string `json:"content"`
	Tokens  int    `json:"tokens"`
}

// TypeTag returns "common.Message".
func (Message) TypeTag() string { return "common.Message" }

// Agent is a common.Agent resource: a system/assistant persona plus
// its declared toolset and token cost.
type Agent struct {
	base
	SystemMessage string   `json:"system_message"`
	ToolIDs       []string `json:"tool_ids"`
	Tokens        int      `json:"tokens"`
}

func (Agent) TypeTag() string { return "common.Agent" }

// Conversation is a common.Conversation resource: references the
// agent driving it and the memory index key that logs its messages.
type Conversation struct {
	base
	AgentID string `json:"agent_id"`
}

func (Conversation) TypeTag() string { return "common.Conversation" }

// ToolFunction is a tool.ToolFunction resource: a callable tool's
// JSON-Schema-described signature.
type ToolFunction struct {
	base
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

func (ToolFunction) TypeTag() string { return "tool.ToolFunction" }

// Document is a resource.Document resource: an opaque retrieved/
// ingested document body, e.g. for the vector/graph indexes.
type Document struct {
	base
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (Document) TypeTag() string { return "resource.Document" }

// UnknownTypeError is returned by Decode when id.Type names a type the
// registry has no factory for.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string { return "unknown resource type: " + e.Type }

type factory func() Resource

var registry = map[string]factory{
	"common.Message":      func() Resource { return &Message{} },
	"common.Agent":        func() Resource { return &Agent{} },
	"common.Conversation": func() Resource { return &Conversation{} },
	"tool.ToolFunction":   func() Resource { return &ToolFunction{} },
	"resource.Document":   func() Resource { return &Document{} },
}

// Decode reconstructs a Resource from stored JSON using id.Type to
// select a schema. The id (parsed separately from the storage key by
// the caller) is installed on the returned Resource.
func Decode(id identifier.ID, data []byte) (Resource, error) {
	f, ok := registry[id.Type]
	if !ok {
		return nil, &UnknownTypeError{Type: id.Type}
	}
	r := f()
	if err := json.Unmarshal(data, r); err != nil {
		return nil, faults.Internalf(err, "decode resource %s", id.String())
	}
	r.SetResourceID(id)
	return r, nil
}

// Encode marshals r to JSON, omitting nothing — the ID is carried
// out-of-band by the storage key/identifier, not embedded in the
// payload (base.ID has `json:"-"`).
func Encode(r Resource) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, faults.Internalf(err, "encode resource")
	}
	return data, nil
}
