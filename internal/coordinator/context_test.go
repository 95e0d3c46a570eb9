package coordinator

import "testing"

func TestSubstituteKnownPlaceholders(t *testing.T) {
	c := newPlanContext()
	c.set("task-3_output", "hello")
	c.set("task_build_output", "world")

	got := c.substitute("say <task-3_output> then <task_build_output>")
	want := "say hello then world"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSubstituteUnknownPlaceholderLeftIntact(t *testing.T) {
	c := newPlanContext()
	got := c.substitute("value is <task_nope_output>")
	if got != "value is <task_nope_output>" {
		t.Fatalf("expected unknown placeholder untouched, got %q", got)
	}
}

func TestSubstituteIsSinglePassNotRecursive(t *testing.T) {
	c := newPlanContext()
	// The replacement value itself looks like another placeholder; a
	// recursive substitution would expand it further, which must not happen.
	c.set("task_a_output", "<task_b_output>")
	c.set("task_b_output", "leaf")

	got := c.substitute("x=<task_a_output>")
	if got != "x=<task_b_output>" {
		t.Fatalf("expected single-pass substitution to stop after one replacement, got %q", got)
	}
}

func TestSubstituteParamsNested(t *testing.T) {
	c := newPlanContext()
	c.set("task_1_output", "resolved")

	params := map[string]any{
		"flat":   "<task_1_output>",
		"nested": map[string]any{"inner": "<task_1_output>"},
		"list":   []any{"<task_1_output>", 42},
		"number": 7,
	}
	out := c.substituteParams(params)
	if out["flat"] != "resolved" {
		t.Fatalf("flat: got %v", out["flat"])
	}
	if out["nested"].(map[string]any)["inner"] != "resolved" {
		t.Fatalf("nested: got %v", out["nested"])
	}
	if out["list"].([]any)[0] != "resolved" {
		t.Fatalf("list: got %v", out["list"])
	}
	if out["number"] != 7 {
		t.Fatalf("number should pass through untouched, got %v", out["number"])
	}
}

func TestResolveOutputPriorityChain(t *testing.T) {
	cases := []struct {
		name string
		data any
		want string
	}{
		{"top-level output", map[string]any{"output": "A"}, "A"},
		{"nested result.output", map[string]any{"result": map[string]any{"output": "B"}}, "B"},
		{"message fallback", map[string]any{"message": "C"}, "C"},
		{"whole result stringified", map[string]any{"other": "D"}, `{"other":"D"}`},
	}
	for _, tc := range cases {
		if got := resolveOutput(tc.data); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestSaveToContextMirrorsPositionalAlias(t *testing.T) {
	c := newPlanContext()
	task := Task{ID: "step-7"}
	res := TaskResult{Output: "done", Evaluation: Evaluation{Success: true}}
	c.saveToContext(task, res)

	if v, _ := c.get("task_step-7_output"); v != "done" {
		t.Fatalf("expected canonical id key, got %q", v)
	}
	if v, _ := c.get("task-7_output"); v != "done" {
		t.Fatalf("expected positional alias mirrored from trailing integer, got %q", v)
	}
}

func TestTrailingInt(t *testing.T) {
	cases := map[string]int{"step-7": 7, "task_12": 12, "plain": -1}
	for id, want := range cases {
		n, ok := trailingInt(id)
		if want == -1 {
			if ok {
				t.Fatalf("%s: expected no trailing integer, got %d", id, n)
			}
			continue
		}
		if !ok || n != want {
			t.Fatalf("%s: got (%d,%v), want %d", id, n, ok, want)
		}
	}
}
