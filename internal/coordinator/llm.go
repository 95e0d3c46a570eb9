package coordinator

import (
	"context"
	"encoding/json"
	"strings"
)

// LLMClient is the seam the coordinator calls through for both the
// per-step evaluator and the re-planner. A genkit-backed implementation
// lives in internal/coordinator/genkitfeedback.go; tests use a stub.
type LLMClient interface {
	// Evaluate asks the LLM to judge a completed task's result and
	// returns the raw JSON text of its response (§4.4.2's contract).
	Evaluate(ctx context.Context, t Task, res TaskResult) (string, error)

	// Replan asks the LLM whether/how to adjust the remaining plan
	// after a step, returning the raw JSON text of its response
	// (§4.4.3's contract).
	Replan(ctx context.Context, completed []CompletedTask, remaining []Task) (string, error)
}

// evaluatorResponse mirrors the LLM evaluator's JSON contract verbatim.
type evaluatorResponse struct {
	Success            bool   `json:"success"`
	Error              string `json:"error"`
	Summary            string `json:"summary"`
	ShouldContinue     bool   `json:"shouldContinue"`
	Recommendation     string `json:"recommendation"`
	AlternativeCommand string `json:"alternativeCommand"`
}

// parseEvaluation parses the evaluator's JSON and post-processes it into
// an Evaluation per §4.4.2. Malformed JSON falls back to a conservative
// "proceed without retry" verdict rather than failing the step.
func parseEvaluation(raw string, isCommandTask bool) Evaluation {
	var resp evaluatorResponse
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &resp); err != nil {
		return Evaluation{
			Success:          true,
			ShouldContinue:   true,
			Summary:          "unparseable",
			RetryRecommended: false,
		}
	}

	eval := Evaluation{
		Success:            resp.Success,
		Error:              resp.Error,
		Summary:            resp.Summary,
		ShouldContinue:     resp.ShouldContinue,
		Recommendation:     resp.Recommendation,
		AlternativeCommand: resp.AlternativeCommand,
	}
	if isCommandTask && !resp.Success && resp.AlternativeCommand != "" {
		eval.RetryRecommended = true
	}
	return eval
}

// replanResponse mirrors the LLM re-planner's JSON contract verbatim.
type replanResponse struct {
	ContinuePlan bool     `json:"continuePlan"`
	AddTasks     []Task   `json:"addTasks"`
	ModifyTasks  []Task   `json:"modifyTasks"`
	RemoveTasks  []string `json:"removeTasks"`
	Reasoning    string   `json:"reasoning"`
}

// ApplyFeedback implements §4.4.3's ApplyFeedback(remaining, fb):
// malformed JSON leaves the plan unchanged (logged by the caller);
// continuePlan==false empties the remaining plan; adds get a generated
// id if missing; modifies replace by id, preserving it; removes filter
// by id.
func ApplyFeedback(remaining []Task, rawJSON string, genID func() string) []Task {
	var resp replanResponse
	if err := json.Unmarshal([]byte(extractJSONObject(rawJSON)), &resp); err != nil {
		return remaining
	}
	if !resp.ContinuePlan {
		return []Task{}
	}

	out := append([]Task(nil), remaining...)

	for _, mod := range resp.ModifyTasks {
		if mod.ID == "" {
			continue
		}
		if idx := indexByID(out, mod.ID); idx >= 0 {
			preservedID := out[idx].ID
			mod.ID = preservedID
			out[idx] = mod
		}
	}

	for _, id := range resp.RemoveTasks {
		out = removeByID(out, id)
	}

	for _, add := range resp.AddTasks {
		if add.ID == "" && genID != nil {
			add.ID = genID()
		}
		out = append(out, add)
	}

	return out
}

// extractJSONObject pulls a {...} object out of raw LLM text, stripping
// a leading ```json / trailing ``` fence when present. Falls back to the
// raw string itself (json.Unmarshal will then fail cleanly) when no
// fence or brace is found.
func extractJSONObject(raw string) string {
	s := strings.TrimSpace(raw)
	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
		if end := strings.Index(s, "```"); end >= 0 {
			return strings.TrimSpace(s[:end])
		}
	}
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+3:]
		if end := strings.Index(s, "```"); end >= 0 {
			return strings.TrimSpace(s[:end])
		}
	}
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end >= start {
			return s[start : end+1]
		}
	}
	return s
}
