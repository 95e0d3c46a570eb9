package coordinator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"sync"
)

// taskPlaceholder matches "<task-N_output>"; idPlaceholder matches
// "<task_ID_output>" for an arbitrary identifier. Both are replaced in a
// single pass per string — substitution is never recursive, so a
// replacement value that itself contains a placeholder-looking substring
// is left untouched.
var (
	taskPlaceholder = regexp.MustCompile(`<task-(\d+)_output>`)
	idPlaceholder   = regexp.MustCompile(`<task_([^>]+)_output>`)
)

// planContext is the plan's shared string->value store: task outputs,
// success flags, errors, and alternative commands keyed per §3's derived
// key scheme. Reads/writes are synchronized since ExecuteParallel-style
// tool calls may run concurrently with context substitution.
type planContext struct {
	mu   sync.RWMutex
	vals map[string]string
}

func newPlanContext() *planContext {
	return &planContext{vals: make(map[string]string)}
}

func (c *planContext) set(key, value string) {
	c.mu.Lock()
	c.vals[key] = value
	c.mu.Unlock()
}

func (c *planContext) get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vals[key]
	return v, ok
}

// substitute replaces every literal placeholder occurrence found in s
// with the corresponding context value. Unknown placeholders — keys not
// present in context — are left intact rather than treated as an error,
// per §4.4.1.
func (c *planContext) substitute(s string) string {
	s = taskPlaceholder.ReplaceAllStringFunc(s, func(m string) string {
		groups := taskPlaceholder.FindStringSubmatch(m)
		key := "task-" + groups[1] + "_output"
		if v, ok := c.get(key); ok {
			return v
		}
		return m
	})
	s = idPlaceholder.ReplaceAllStringFunc(s, func(m string) string {
		groups := idPlaceholder.FindStringSubmatch(m)
		key := "task_" + groups[1] + "_output"
		if v, ok := c.get(key); ok {
			return v
		}
		return m
	})
	return s
}

// substituteParams walks a task's Params map, replacing placeholders in
// every string value (recursing into nested maps/slices, since Params
// may carry structured input for a tool call).
func (c *planContext) substituteParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = c.substituteValue(v)
	}
	return out
}

func (c *planContext) substituteValue(v any) any {
	switch val := v.(type) {
	case string:
		return c.substitute(val)
	case map[string]any:
		return c.substituteParams(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = c.substituteValue(item)
		}
		return out
	default:
		return v
	}
}

// trailingInt extracts the trailing base-10 integer from a task id, e.g.
// "task-3" or "step_12" -> 12, false if none. Used to mirror
// task_{id}_output under the positional task-{index}_output alias.
func trailingInt(id string) (int, bool) {
	i := len(id)
	for i > 0 && id[i-1] >= '0' && id[i-1] <= '9' {
		i--
	}
	if i == len(id) {
		return 0, false
	}
	n, err := strconv.Atoi(id[i:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// resolveOutput implements the output-resolution priority chain from
// §4.4.1: prefer a top-level "output" field, then a nested
// result.output, then "message", else the stringified whole result.
func resolveOutput(data any) string {
	if m, ok := data.(map[string]any); ok {
		if out, ok := m["output"]; ok {
			return stringify(out)
		}
		if nested, ok := m["result"].(map[string]any); ok {
			if out, ok := nested["output"]; ok {
				return stringify(out)
			}
		}
		if msg, ok := m["message"]; ok {
			return stringify(msg)
		}
	}
	return stringify(data)
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		buf, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(buf)
	}
}

// saveToContext writes a completed task's outputs into context under
// both its canonical id-keyed names and, when the id carries a trailing
// integer, the positional task-{index}_output alias — matching the
// original coordinator's dual-key mirroring so later tasks can reference
// either form.
func (c *planContext) saveToContext(t Task, res TaskResult) {
	output := res.Output
	success := res.Err == nil && res.Evaluation.Success

	c.set("task_"+t.ID+"_output", output)
	c.set("task_"+t.ID+"_success", strconv.FormatBool(success))
	if res.Err != nil {
		c.set("task_"+t.ID+"_error", res.Err.Error())
	} else if res.Evaluation.Error != "" {
		c.set("task_"+t.ID+"_error", res.Evaluation.Error)
	}
	if res.Evaluation.AlternativeCommand != "" {
		c.set("task_"+t.ID+"_alternative_command", res.Evaluation.AlternativeCommand)
	}

	if idx, ok := trailingInt(t.ID); ok {
		c.set(fmt.Sprintf("task-%d_output", idx), output)
	}
}

// mirrorRetryOntoOriginal copies a successful retry task's context
// entries onto the original task's id, so later placeholders referencing
// the original id see the retry's output — the original coordinator's
// retry-id-to-original-id context mirroring.
func (c *planContext) mirrorRetryOntoOriginal(originalID string, retry Task, res TaskResult) {
	retryCopy := retry
	retryCopy.ID = originalID
	c.saveToContext(retryCopy, res)
}
