package llmgateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forwardimpact/monorepo-sub001/internal/resource"
)

func TestValidateToolSchemasAcceptsWellFormedSchema(t *testing.T) {
	tools := []resource.ToolFunction{
		{Name: "lookup", InputSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string"}},"required":["query"]}`)},
	}
	require.NoError(t, validateToolSchemas(tools))
}

func TestValidateToolSchemasRejectsMalformedSchema(t *testing.T) {
	tools := []resource.ToolFunction{
		{Name: "broken", InputSchema: json.RawMessage(`{"type":123}`)},
	}
	require.Error(t, validateToolSchemas(tools))
}

func TestValidateToolSchemasSkipsToolsWithoutSchema(t *testing.T) {
	tools := []resource.ToolFunction{{Name: "no-schema"}}
	require.NoError(t, validateToolSchemas(tools))
}
