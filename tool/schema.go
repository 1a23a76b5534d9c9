package tool

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// CompileSchema compiles a tool's parameter schema. An empty schema accepts
// any object.
func CompileSchema(toolName string, params map[string]any) (*jsonschema.Schema, error) {
	if len(params) == 0 {
		params = map[string]any{"type": "object"}
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode schema of %s: %w", toolName, err)
	}

	compiled, err := jsonschema.CompileString(toolName+".schema.json", string(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema of %s: %w", toolName, err)
	}

	return compiled, nil
}

// validateArgs checks args against schema. Values are round-tripped through
// JSON so that Go numeric types match JSON numbers.
func validateArgs(schema *jsonschema.Schema, args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}

	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}

	return schema.Validate(decoded)
}
