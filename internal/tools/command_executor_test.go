package tools

import (
	"context"
	"testing"
)

func TestCommandExecutorRunReturnsStdout(t *testing.T) {
	tool := NewCommandExecutor()
	res := tool.Execute(context.Background(), Request{Capability: "run", Input: map[string]any{"command": "echo hello"}})
	if !res.OK {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Data != "hello\n" {
		t.Fatalf("expected stdout %q, got %q", "hello\n", res.Data)
	}
}

func TestCommandExecutorRunReturnsStderrOnFailure(t *testing.T) {
	tool := NewCommandExecutor()
	res := tool.Execute(context.Background(), Request{Capability: "run", Input: map[string]any{"command": "echo oops 1>&2; exit 1"}})
	if !res.OK {
		t.Fatalf("expected OK with stderr surfaced as data, got %+v", res)
	}
	if res.Data != "oops\n" {
		t.Fatalf("expected stderr %q, got %q", "oops\n", res.Data)
	}
}

func TestCommandExecutorMissingCommandIsInvalidInput(t *testing.T) {
	tool := NewCommandExecutor()
	errs := tool.ValidateInput("run", map[string]any{})
	if len(errs) == 0 {
		t.Fatal("expected missing command field to be flagged")
	}
}
