package coordinator

import "testing"

func TestSelectNextExecutableRespectsDependencies(t *testing.T) {
	remaining := []Task{
		{ID: "b", Dependencies: []string{"a"}},
		{ID: "a"},
	}
	next, ok := SelectNextExecutable(remaining, nil)
	if !ok || next.ID != "a" {
		t.Fatalf("expected a (no deps) before b, got %+v ok=%v", next, ok)
	}
}

func TestSelectNextExecutableStableTiebreak(t *testing.T) {
	remaining := []Task{{ID: "x"}, {ID: "y"}}
	next, ok := SelectNextExecutable(remaining, nil)
	if !ok || next.ID != "x" {
		t.Fatalf("expected listing-order tiebreak to pick x first, got %+v", next)
	}
}

func TestSelectNextExecutableNoneWhenUnsatisfied(t *testing.T) {
	remaining := []Task{{ID: "a", Dependencies: []string{"missing"}}}
	_, ok := SelectNextExecutable(remaining, nil)
	if ok {
		t.Fatal("expected no executable task")
	}
}

func TestCloneIsIndependentOfOriginalParams(t *testing.T) {
	orig := Task{ID: "1", Params: map[string]any{"k": "v"}}
	clone := orig.clone()
	clone.Params["k"] = "changed"
	if orig.Params["k"] != "v" {
		t.Fatalf("expected clone mutation not to affect original, got %v", orig.Params["k"])
	}
}
