package coordinator

import "testing"

func TestParseEvaluationMalformedJSONFallsBackConservatively(t *testing.T) {
	eval := parseEvaluation("not json at all", true)
	if !eval.Success || !eval.ShouldContinue || eval.RetryRecommended {
		t.Fatalf("expected conservative proceed-without-retry fallback, got %+v", eval)
	}
}

func TestParseEvaluationStripsMarkdownFence(t *testing.T) {
	raw := "```json\n{\"success\":true,\"shouldContinue\":true,\"summary\":\"ok\"}\n```"
	eval := parseEvaluation(raw, false)
	if !eval.Success || eval.Summary != "ok" {
		t.Fatalf("expected fenced JSON to parse, got %+v", eval)
	}
}

func TestParseEvaluationRetryOnlyForCommandTasks(t *testing.T) {
	raw := `{"success":false,"alternativeCommand":"echo fixed"}`
	cmdEval := parseEvaluation(raw, true)
	if !cmdEval.RetryRecommended {
		t.Fatal("expected retry recommended for a failed command task with an alternative")
	}
	toolEval := parseEvaluation(raw, false)
	if toolEval.RetryRecommended {
		t.Fatal("retry recommendation should only apply to command-executor tasks")
	}
}

func TestApplyFeedbackContinuePlanFalseEmptiesPlan(t *testing.T) {
	remaining := []Task{{ID: "a"}, {ID: "b"}}
	out := ApplyFeedback(remaining, `{"continuePlan":false}`, nil)
	if len(out) != 0 {
		t.Fatalf("expected empty plan, got %+v", out)
	}
}

func TestApplyFeedbackMalformedJSONLeavesUnchanged(t *testing.T) {
	remaining := []Task{{ID: "a"}, {ID: "b"}}
	out := ApplyFeedback(remaining, "garbage", nil)
	if len(out) != 2 || out[0].ID != "a" || out[1].ID != "b" {
		t.Fatalf("expected unchanged plan on malformed JSON, got %+v", out)
	}
}

func TestApplyFeedbackGeneratesIDForAddWithoutOne(t *testing.T) {
	remaining := []Task{{ID: "a"}}
	calls := 0
	gen := func() string { calls++; return "new-1" }
	out := ApplyFeedback(remaining, `{"continuePlan":true,"addTasks":[{"name":"no id"}]}`, gen)
	if calls != 1 {
		t.Fatalf("expected generator to be called once, got %d", calls)
	}
	found := false
	for _, ta := range out {
		if ta.ID == "new-1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected generated id on added task, got %+v", out)
	}
}
