package llmgateway

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/forwardimpact/monorepo-sub001/internal/faults"
	"github.com/forwardimpact/monorepo-sub001/internal/resource"
)

// validateToolSchemas confirms every tool's input_schema is a
// well-formed JSON Schema document before the window's tools are
// forwarded to a provider. A malformed schema is a Validation fault,
// not a provider-side failure.
func validateToolSchemas(tools []resource.ToolFunction) error {
	for _, t := range tools {
		if len(t.InputSchema) == 0 {
			continue
		}
		if err := compileSchema(t.Name, t.InputSchema); err != nil {
			return faults.Validationf("tool %q: invalid input schema: %v", t.Name, err)
		}
	}
	return nil
}

func compileSchema(name string, raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	resourceURL := fmt.Sprintf("mem://tool/%s.json", name)
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceURL, doc); err != nil {
		return err
	}
	_, err := compiler.Compile(resourceURL)
	return err
}
