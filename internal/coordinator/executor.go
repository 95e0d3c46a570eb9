package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	araciotel "github.com/basket/araci/internal/otel"
)

// ErrInvalidTask is returned when a task is neither a command task nor a
// tool.action task (§4.4.1 step 2's "else -> fail with INVALID_TASK").
var ErrInvalidTask = errors.New("coordinator: invalid task: no command or tool.action set")

// ToolInvoker is the seam to the tool manager: invoke a capability on a
// named tool and get back raw result data plus an error. internal/tools's
// Manager.Execute adapts naturally onto this via a small wrapper in the
// caller, keeping this package independent of the tools package's
// Result/Request shapes.
type ToolInvoker interface {
	InvokeTool(ctx context.Context, tool, action string, params map[string]any) (any, error)
}

// CommandExecutor runs a raw shell command task (type=="command"). A
// typical implementation shells out via the "command_executor" native
// tool; tests may stub it directly.
type CommandExecutor interface {
	RunCommand(ctx context.Context, command string) (any, error)
}

// EventEmitter receives lifecycle notifications (§4.4.1 step 5). Optional:
// a nil emitter simply means no events are emitted.
type EventEmitter interface {
	Emit(ctx context.Context, event string, payload map[string]any)
}

// Memory is an opaque key/value collaborator the coordinator may persist
// completed task outputs through. Injected and optional; the core treats
// it as a seam, never a concrete store.
type Memory interface {
	Set(ctx context.Context, key, value string) error
}

// PersonaRouter is the seam onto a2a's capability index (§4.1.1): find
// candidate personas for a capability, mirroring a2a.Bus.FindByCapability,
// and deliver a task to a chosen one. Optional: a task naming Capabilities
// fails with ErrInvalidTask when no router is configured.
type PersonaRouter interface {
	FindByCapability(capability string) []string
	DispatchToPersona(ctx context.Context, personaID string, task Task) (any, error)
}

// Coordinator runs plans to completion against a tool invoker, command
// executor, and LLM feedback client.
type Coordinator struct {
	tools    ToolInvoker
	commands CommandExecutor
	llm      LLMClient
	events   EventEmitter
	memory   Memory
	personas PersonaRouter

	log     *slog.Logger
	tracer  trace.Tracer
	metrics *araciotel.Metrics

	genID func() string
}

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Coordinator) {
		if t != nil {
			c.tracer = t
		}
	}
}

func WithMetrics(m *araciotel.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithEventEmitter(e EventEmitter) Option {
	return func(c *Coordinator) { c.events = e }
}

func WithPersonaRouter(p PersonaRouter) Option {
	return func(c *Coordinator) { c.personas = p }
}

func WithMemory(m Memory) Option {
	return func(c *Coordinator) { c.memory = m }
}

func WithIDGenerator(f func() string) Option {
	return func(c *Coordinator) {
		if f != nil {
			c.genID = f
		}
	}
}

// New builds a Coordinator. tools and llm are required; commands and
// events may be nil.
func New(tools ToolInvoker, commands CommandExecutor, llm LLMClient, opts ...Option) *Coordinator {
	c := &Coordinator{
		tools:    tools,
		commands: commands,
		llm:      llm,
		log:      slog.Default(),
		tracer:   nooptrace.NewTracerProvider().Tracer(araciotel.TracerName),
		genID:    defaultGenID(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) logger() *slog.Logger {
	if c.log != nil {
		return c.log
	}
	return slog.Default()
}

func (c *Coordinator) emit(ctx context.Context, event string, t Task, extra map[string]any) {
	if c.events == nil {
		return
	}
	payload := map[string]any{"task_id": t.ID, "task_name": t.Name}
	for k, v := range extra {
		payload[k] = v
	}
	c.events.Emit(ctx, event, payload)
}

// RunTasksWithLLMFeedback executes the main loop from §4.4: run the next
// executable task, retry with an alternative command if the evaluator
// recommends one, fold the outcome into context, then ask the LLM to
// re-plan the remainder before continuing.
func (c *Coordinator) RunTasksWithLLMFeedback(ctx context.Context, tasks []Task) []CompletedTask {
	remaining := append([]Task(nil), tasks...)
	completed := make([]CompletedTask, 0, len(tasks))
	pctx := newPlanContext()

	for len(remaining) > 0 {
		next, ok := SelectNextExecutable(remaining, completed)
		if !ok {
			c.logger().Warn("coordinator: no executable task in remaining plan; unsatisfiable dependency chain", "remaining", len(remaining))
			break
		}

		result := c.ExecuteTask(ctx, next, pctx)
		executed := next

		if result.Evaluation.RetryRecommended && result.Evaluation.AlternativeCommand != "" {
			retry := cloneWithAltCommand(next, result.Evaluation.AlternativeCommand)
			retryResult := c.ExecuteTask(ctx, retry, pctx)
			if retryResult.Evaluation.Success {
				pctx.mirrorRetryOntoOriginal(next.ID, retry, retryResult)
				result = retryResult
				executed = retry
				executed.ID = next.ID
			}
		}

		status := "success"
		if !result.Evaluation.Success {
			status = "failed"
		}
		completed = append(completed, CompletedTask{Task: executed, Result: result, Status: status})
		remaining = removeByID(remaining, next.ID)

		if c.metrics != nil && c.metrics.PlanStepsTotal != nil {
			c.metrics.PlanStepsTotal.Add(ctx, 1)
		}

		if len(remaining) > 0 {
			remaining = c.askForFeedbackAndApply(ctx, completed, remaining)
		}
	}

	return completed
}

func (c *Coordinator) askForFeedbackAndApply(ctx context.Context, completed []CompletedTask, remaining []Task) []Task {
	raw, err := c.llm.Replan(ctx, completed, remaining)
	if c.metrics != nil && c.metrics.LLMFeedbackCalls != nil {
		c.metrics.LLMFeedbackCalls.Add(ctx, 1)
	}
	if err != nil {
		c.logger().Warn("coordinator: re-planner call failed; continuing with unchanged plan", "error", err)
		return remaining
	}
	return ApplyFeedback(remaining, raw, c.genID)
}

// ExecuteTask implements §4.4.1: substitute placeholders, dispatch by
// shape, save outputs to context, call the LLM evaluator, emit events.
func (c *Coordinator) ExecuteTask(ctx context.Context, task Task, pctx *planContext) TaskResult {
	ctx, span := araciotel.StartSpan(ctx, c.tracer, "coordinator.execute_task",
		araciotel.AttrTaskID.String(task.ID),
	)
	defer span.End()

	c.emit(ctx, "task_started", task, nil)

	work := task.clone()
	work.Command = pctx.substitute(work.Command)
	work.Params = pctx.substituteParams(work.Params)

	start := time.Now()
	data, execErr := c.dispatch(ctx, work)
	dur := time.Since(start)

	res := TaskResult{
		RawData:  data,
		Err:      execErr,
		Duration: dur,
	}
	if execErr != nil {
		res.Output = execErr.Error()
	} else {
		res.Output = resolveOutput(data)
	}

	isCommandTask := task.Type == "command"
	rawEval, evalErr := c.llm.Evaluate(ctx, task, res)
	if evalErr != nil {
		res.Evaluation = Evaluation{Success: execErr == nil, ShouldContinue: true, Summary: "evaluator unavailable"}
	} else {
		res.Evaluation = parseEvaluation(rawEval, isCommandTask)
	}
	if execErr != nil {
		res.Evaluation.Success = false
		if res.Evaluation.Error == "" {
			res.Evaluation.Error = execErr.Error()
		}
	}

	pctx.saveToContext(task, res)
	c.persistOutcome(ctx, task, res)

	if res.Evaluation.Success {
		c.emit(ctx, "task_completed", task, map[string]any{"summary": res.Evaluation.Summary})
	} else {
		c.emit(ctx, "task_error", task, map[string]any{"error": res.Evaluation.Error})
	}

	return res
}

// persistOutcome mirrors a completed task's output into Memory, when one
// is configured. Best-effort: a write failure is logged, never fatal to
// the plan.
func (c *Coordinator) persistOutcome(ctx context.Context, task Task, res TaskResult) {
	if c.memory == nil {
		return
	}
	key := fmt.Sprintf("task:%s:output", task.ID)
	if err := c.memory.Set(ctx, key, res.Output); err != nil {
		c.logger().Warn("coordinator: memory write failed", "key", key, "error", err)
	}
}

// SelectPersona implements §4.1.1: pick a persona for a capability-only
// task by querying the persona router's capability index in the order
// capabilities are listed, returning the first live candidate. Within a
// single capability, ties are broken the way the router itself orders
// candidates (registration order for a2a.Bus.FindByCapability).
func (c *Coordinator) SelectPersona(capabilities []string) (string, bool) {
	if c.personas == nil {
		return "", false
	}
	for _, cap := range capabilities {
		if ids := c.personas.FindByCapability(cap); len(ids) > 0 {
			return ids[0], true
		}
	}
	return "", false
}

// dispatch implements §4.4.1 step 2's shape-based routing.
func (c *Coordinator) dispatch(ctx context.Context, task Task) (any, error) {
	switch {
	case task.Type == "command" && task.Command != "":
		if c.commands == nil {
			return nil, fmt.Errorf("coordinator: no command executor configured for task %s", task.ID)
		}
		return c.commands.RunCommand(ctx, task.Command)

	case task.Tool != "" && (task.Action != "" || strings.ContainsRune(task.Tool, '.')):
		tool, action := task.Tool, task.Action
		if idx := strings.IndexByte(tool, '.'); idx >= 0 {
			action = tool[idx+1:]
			tool = tool[:idx]
		}
		if c.tools == nil {
			return nil, fmt.Errorf("coordinator: no tool invoker configured for task %s", task.ID)
		}
		return c.tools.InvokeTool(ctx, tool, action, task.Params)

	case len(task.Capabilities) > 0:
		personaID, ok := c.SelectPersona(task.Capabilities)
		if !ok {
			return nil, fmt.Errorf("coordinator: no persona found for capabilities %v (task %s): %w", task.Capabilities, task.ID, ErrInvalidTask)
		}
		return c.personas.DispatchToPersona(ctx, personaID, task)

	default:
		return nil, ErrInvalidTask
	}
}

// cloneWithAltCommand builds the retry task for the alternative-command
// path: same id/name/deps, command type, replaced command string.
func cloneWithAltCommand(t Task, altCommand string) Task {
	retry := t.clone()
	retry.ID = t.ID + "-retry"
	retry.Type = "command"
	retry.Command = altCommand
	retry.Tool = ""
	retry.Action = ""
	return retry
}

func defaultGenID() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("generated-task-%d", n)
	}
}
