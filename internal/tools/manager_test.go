package tools

import (
	"context"
	"errors"
	"testing"
	"time"
)

func echoDescriptor(name string, fail *bool) Descriptor {
	adapter := NewNative(name, map[string]NativeFunc{
		"echo": func(ctx context.Context, input map[string]any) (any, error) {
			if fail != nil && *fail {
				return nil, errors.New("boom")
			}
			return input["text"], nil
		},
	}, nil, nil)
	return Descriptor{
		Name:         name,
		Kind:         KindNative,
		Capabilities: []Capability{{Name: "echo"}},
		Config:       Config{Native: adapter},
	}
}

func TestManagerLoadExecuteUnload(t *testing.T) {
	m := NewManager()
	if err := m.Load(echoDescriptor("echo", nil)); err != nil {
		t.Fatal(err)
	}

	res := m.Execute(context.Background(), "echo", Request{Capability: "echo", Input: map[string]any{"text": "hi"}})
	if !res.OK || res.Data != "hi" {
		t.Fatalf("unexpected result: %+v", res)
	}

	if err := m.Unload("echo"); err != nil {
		t.Fatal(err)
	}
	res = m.Execute(context.Background(), "echo", Request{Capability: "echo"})
	if res.OK || res.ErrorCode != ErrToolNotFound {
		t.Fatalf("expected TOOL_NOT_FOUND after unload, got %+v", res)
	}
}

func TestManagerDuplicateLoadRejected(t *testing.T) {
	m := NewManager()
	if err := m.Load(echoDescriptor("echo", nil)); err != nil {
		t.Fatal(err)
	}
	if err := m.Load(echoDescriptor("echo", nil)); err == nil {
		t.Fatal("expected duplicate load to fail")
	}
}

func TestManagerUnknownCapability(t *testing.T) {
	m := NewManager()
	if err := m.Load(echoDescriptor("echo", nil)); err != nil {
		t.Fatal(err)
	}
	res := m.Execute(context.Background(), "echo", Request{Capability: "nope"})
	if res.OK || res.ErrorCode != ErrCapabilityNotFound {
		t.Fatalf("expected CAPABILITY_NOT_FOUND, got %+v", res)
	}
}

func TestManagerExecuteTripsBreakerThenCircuitOpen(t *testing.T) {
	fail := true
	m := NewManager(WithBreakerDefaults(5, 50*time.Millisecond))
	if err := m.Load(echoDescriptor("flaky", &fail)); err != nil {
		t.Fatal(err)
	}

	var last Result
	for i := 0; i < 5; i++ {
		last = m.Execute(context.Background(), "flaky", Request{Capability: "echo"})
		if last.OK {
			t.Fatalf("call %d unexpectedly succeeded", i)
		}
	}

	sixth := m.Execute(context.Background(), "flaky", Request{Capability: "echo"})
	if sixth.OK || sixth.ErrorCode != ErrCircuitOpen {
		t.Fatalf("expected CIRCUIT_BREAKER_OPEN on sixth call, got %+v", sixth)
	}

	time.Sleep(60 * time.Millisecond)
	fail = false
	seventh := m.Execute(context.Background(), "flaky", Request{Capability: "echo"})
	if !seventh.OK {
		t.Fatalf("expected the half-open probe to succeed, got %+v", seventh)
	}

	st, _ := m.State("flaky")
	_ = st // state returns to loaded regardless; breaker state is checked separately below.

	eighth := m.Execute(context.Background(), "flaky", Request{Capability: "echo"})
	if !eighth.OK {
		t.Fatalf("expected breaker closed after successful probe, got %+v", eighth)
	}
}

func TestExecuteParallelPreservesOrder(t *testing.T) {
	m := NewManager()
	for _, name := range []string{"a", "b", "c"} {
		if err := m.Load(echoDescriptor(name, nil)); err != nil {
			t.Fatal(err)
		}
	}
	steps := []Step{
		{Tool: "a", Request: Request{Capability: "echo", Input: map[string]any{"text": "1"}}},
		{Tool: "b", Request: Request{Capability: "echo", Input: map[string]any{"text": "2"}}},
		{Tool: "c", Request: Request{Capability: "echo", Input: map[string]any{"text": "3"}}},
	}
	results := m.ExecuteParallel(context.Background(), steps)
	for i, want := range []string{"1", "2", "3"} {
		if results[i].Data != want {
			t.Fatalf("result[%d] = %v, want %v", i, results[i].Data, want)
		}
	}
}

func TestExecuteChainInjectsPriorOutput(t *testing.T) {
	m := NewManager()
	if err := m.Load(echoDescriptor("first", nil)); err != nil {
		t.Fatal(err)
	}
	second := NewNative("second", map[string]NativeFunc{
		"echo": func(ctx context.Context, input map[string]any) (any, error) {
			return input["first_result"], nil
		},
	}, nil, nil)
	if err := m.Load(Descriptor{Name: "second", Kind: KindNative, Capabilities: []Capability{{Name: "echo"}}, Config: Config{Native: second}}); err != nil {
		t.Fatal(err)
	}

	steps := []Step{
		{Tool: "first", Request: Request{Capability: "echo", Input: map[string]any{"text": "hello"}}},
		{Tool: "second", Request: Request{Capability: "echo"}},
	}
	results := m.ExecuteChain(context.Background(), steps)
	if !results[0].OK || results[0].Data != "hello" {
		t.Fatalf("first step: %+v", results[0])
	}
	if !results[1].OK || results[1].Data != "hello" {
		t.Fatalf("second step did not receive chained output: %+v", results[1])
	}
}
