// Package coordinator runs a dependency-ordered task plan to completion,
// invoking an LLM after every step to evaluate the result, optionally
// retry with an alternative command, and re-plan the remaining tasks.
package coordinator

import "time"

// Task is one unit of work in a plan. A task is executable once every id
// in Dependencies is present in the plan's completed set.
type Task struct {
	ID           string
	Name         string
	Description  string
	Dependencies []string

	Tool   string
	Action string
	Params map[string]any

	Command string
	Type    string

	// Capabilities names the persona capability (or capabilities, tried in
	// order) this task should be routed to when no explicit Tool/Action or
	// Command is set. See Coordinator.SelectPersona.
	Capabilities []string
}

// clone returns a deep-enough copy of a task for substitution: Params is
// copied so placeholder substitution never mutates the caller's map.
func (t Task) clone() Task {
	c := t
	if t.Params != nil {
		c.Params = make(map[string]any, len(t.Params))
		for k, v := range t.Params {
			c.Params[k] = v
		}
	}
	if t.Dependencies != nil {
		c.Dependencies = append([]string(nil), t.Dependencies...)
	}
	if t.Capabilities != nil {
		c.Capabilities = append([]string(nil), t.Capabilities...)
	}
	return c
}

// Evaluation is the post-processed verdict from the LLM evaluator
// contract (§4.4.2), merged onto a completed task's record.
type Evaluation struct {
	Success            bool
	Error              string
	Summary            string
	ShouldContinue     bool
	Recommendation     string
	AlternativeCommand string
	RetryRecommended   bool
}

// TaskResult is what ExecuteTask produces: the raw tool/adapter output
// plus the LLM's evaluation of it.
type TaskResult struct {
	Output     string
	RawData    any
	Err        error
	Duration   time.Duration
	Evaluation Evaluation
}

// CompletedTask pairs an executed task with its outcome, as stored in a
// plan's completed list.
type CompletedTask struct {
	Task   Task
	Result TaskResult
	Status string // "success" | "failed"
}

// isExecutable reports whether every dependency id of t is present in
// completedIDs.
func isExecutable(t Task, completedIDs map[string]bool) bool {
	for _, dep := range t.Dependencies {
		if !completedIDs[dep] {
			return false
		}
	}
	return true
}

// SelectNextExecutable returns the first task in remaining (in listed
// order — the stable tiebreak per §4.4) whose dependencies are all
// satisfied by completed, or false if none is executable.
func SelectNextExecutable(remaining []Task, completed []CompletedTask) (Task, bool) {
	done := make(map[string]bool, len(completed))
	for _, c := range completed {
		done[c.Task.ID] = true
	}
	for _, t := range remaining {
		if isExecutable(t, done) {
			return t, true
		}
	}
	return Task{}, false
}

func removeByID(tasks []Task, id string) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

func indexByID(tasks []Task, id string) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
