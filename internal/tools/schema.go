package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// compiledSchema wraps a compiled JSON Schema for one capability's input
// shape. Compiling once at Load time means Execute only pays for
// marshal+validate, not schema parsing, on every call.
type compiledSchema struct {
	capability string
	schema     *jsonschema.Schema
}

// compileCapabilitySchemas compiles the InputSchema of every capability that
// declares one. A capability without an InputSchema is left unvalidated
// beyond the adapter's own ValidateInput/RequiredFields checks.
func compileCapabilitySchemas(toolName string, caps []Capability) (map[string]*compiledSchema, error) {
	out := make(map[string]*compiledSchema)
	for _, cap := range caps {
		if len(cap.InputSchema) == 0 {
			continue
		}
		cs, err := compileOne(toolName, cap.Name, cap.InputSchema)
		if err != nil {
			return nil, err
		}
		out[cap.Name] = cs
	}
	return out, nil
}

func compileOne(toolName, capName string, raw map[string]any) (*compiledSchema, error) {
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("tool %s: capability %s: marshal input_schema: %w", toolName, capName, err)
	}

	// jsonschema.UnmarshalJSON decodes numbers as json.Number rather than
	// float64, which the validator needs for correct integer/number checks.
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(buf)))
	if err != nil {
		return nil, fmt.Errorf("tool %s: capability %s: unmarshal input_schema: %w", toolName, capName, err)
	}

	resourceID := toolName + "/" + capName + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(resourceID, doc); err != nil {
		return nil, fmt.Errorf("tool %s: capability %s: add schema resource: %w", toolName, capName, err)
	}
	schema, err := c.Compile(resourceID)
	if err != nil {
		return nil, fmt.Errorf("tool %s: capability %s: compile input_schema: %w", toolName, capName, err)
	}
	return &compiledSchema{capability: capName, schema: schema}, nil
}

// validate checks input against the compiled schema. Input is re-decoded
// through jsonschema.UnmarshalJSON semantics (via a JSON round trip) so
// number comparisons (e.g. "minimum") behave per the schema draft rather
// than Go's native float64 map values.
func (cs *compiledSchema) validate(input map[string]any) error {
	buf, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(buf)))
	if err != nil {
		return fmt.Errorf("unmarshal input: %w", err)
	}
	return cs.schema.Validate(doc)
}
