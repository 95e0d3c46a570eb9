package tools

import (
	"context"
	"testing"
)

func schemaDescriptor() Descriptor {
	adapter := NewNative("calc", map[string]NativeFunc{
		"add": func(ctx context.Context, input map[string]any) (any, error) {
			return input["a"], nil
		},
	}, nil, nil)
	return Descriptor{
		Name: "calc",
		Kind: KindNative,
		Capabilities: []Capability{{
			Name: "add",
			InputSchema: map[string]any{
				"type":     "object",
				"required": []any{"a", "b"},
				"properties": map[string]any{
					"a": map[string]any{"type": "number"},
					"b": map[string]any{"type": "number"},
				},
			},
		}},
		Config: Config{Native: adapter},
	}
}

func TestSchemaRejectsMissingField(t *testing.T) {
	m := NewManager()
	if err := m.Load(schemaDescriptor()); err != nil {
		t.Fatal(err)
	}
	res := m.Execute(context.Background(), "calc", Request{Capability: "add", Input: map[string]any{"a": 1}})
	if res.OK || res.ErrorCode != ErrInvalidInput {
		t.Fatalf("expected INVALID_INPUT for missing field, got %+v", res)
	}
}

func TestSchemaRejectsWrongType(t *testing.T) {
	m := NewManager()
	if err := m.Load(schemaDescriptor()); err != nil {
		t.Fatal(err)
	}
	res := m.Execute(context.Background(), "calc", Request{Capability: "add", Input: map[string]any{"a": "not-a-number", "b": 2}})
	if res.OK || res.ErrorCode != ErrInvalidInput {
		t.Fatalf("expected INVALID_INPUT for wrong type, got %+v", res)
	}
}

func TestSchemaAcceptsValidInput(t *testing.T) {
	m := NewManager()
	if err := m.Load(schemaDescriptor()); err != nil {
		t.Fatal(err)
	}
	res := m.Execute(context.Background(), "calc", Request{Capability: "add", Input: map[string]any{"a": 1, "b": 2}})
	if !res.OK {
		t.Fatalf("expected valid input to pass, got %+v", res)
	}
}

func TestLoadRejectsInvalidSchema(t *testing.T) {
	d := schemaDescriptor()
	d.Capabilities[0].InputSchema = map[string]any{"type": "not-a-real-type!!"}
	m := NewManager()
	if err := m.Load(d); err == nil {
		t.Fatal("expected Load to reject an uncompilable schema")
	}
}
