package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	araciotel "github.com/basket/araci/internal/otel"
)

// ToolState is the lifecycle state machine from §3: unloaded -> loading ->
// loaded -> running -> (stopping -> unloaded | failed). A tool in Failed
// stays there until Reload or Unload; it is never removed automatically.
type ToolState string

const (
	StateUnloaded ToolState = "unloaded"
	StateLoading  ToolState = "loading"
	StateLoaded   ToolState = "loaded"
	StateRunning  ToolState = "running"
	StateStopping ToolState = "stopping"
	StateFailed   ToolState = "failed"
)

// Metrics is the running per-tool execution tally from §4.3.1, updated
// with an incremental average rather than storing every sample.
type Metrics struct {
	mu            sync.Mutex
	Total         uint64
	Successful    uint64
	Failed        uint64
	AvgDurationMs float64
}

func (m *Metrics) record(ok bool, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Total++
	if ok {
		m.Successful++
	} else {
		m.Failed++
	}
	ms := float64(d.Milliseconds())
	m.AvgDurationMs += (ms - m.AvgDurationMs) / float64(m.Total)
}

// Snapshot returns a copy of the metrics safe to read without races.
func (m *Metrics) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{Total: m.Total, Successful: m.Successful, Failed: m.Failed, AvgDurationMs: m.AvgDurationMs}
}

type instance struct {
	mu         sync.RWMutex
	descriptor Descriptor
	adapter    Adapter
	state      ToolState
	breaker    *Breaker
	metrics    *Metrics
	schemas    map[string]*compiledSchema
}

func (in *instance) getState() ToolState {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.state
}

func (in *instance) setState(s ToolState) {
	in.mu.Lock()
	in.state = s
	in.mu.Unlock()
}

// unloader is implemented by adapters that own a long-lived resource
// (currently only rpcAdapter's child process) needing explicit teardown.
type unloader interface {
	Unload() error
}

// Manager loads, executes, health-checks, and retires tools of all four
// kinds through the uniform Adapter contract. Load/Unload/Reload take an
// exclusive lock; Execute paths only take a read lock to look the
// instance up, with metric and breaker updates kept lock-free via the
// per-instance Metrics/Breaker's own synchronization, per §5's
// "lock around load/unload, lock-free Execute" policy.
type Manager struct {
	mu        sync.RWMutex
	instances map[string]*instance

	defaultTimeout   time.Duration
	failureThreshold int
	coolDown         time.Duration

	log     *slog.Logger
	tracer  trace.Tracer
	metrics *araciotel.Metrics
}

// ManagerOption configures a Manager at construction time.
type ManagerOption func(*Manager)

func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func WithManagerTracer(t trace.Tracer) ManagerOption {
	return func(m *Manager) {
		if t != nil {
			m.tracer = t
		}
	}
}

func WithManagerMetrics(met *araciotel.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = met }
}

func WithDefaultTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.defaultTimeout = d }
}

func WithBreakerDefaults(failureThreshold int, coolDown time.Duration) ManagerOption {
	return func(m *Manager) {
		m.failureThreshold = failureThreshold
		m.coolDown = coolDown
	}
}

// NewManager constructs an empty tool manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		instances:        make(map[string]*instance),
		defaultTimeout:   30 * time.Second,
		failureThreshold: 5,
		coolDown:         60 * time.Second,
		log:              slog.Default(),
		tracer:           nooptrace.NewTracerProvider().Tracer(araciotel.TracerName),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) logger() *slog.Logger {
	if m.log != nil {
		return m.log
	}
	return slog.Default()
}

// validate enforces the loading rules from §4.3: non-empty name, at least
// one capability, non-negative resource limits, and kind-specific
// required config fields.
func validate(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("tool descriptor: name is required")
	}
	if len(d.Capabilities) == 0 {
		return fmt.Errorf("tool %s: at least one capability is required", d.Name)
	}
	if d.Limits.MaxExecutionSeconds < 0 || d.Limits.MaxMemoryMB < 0 {
		return fmt.Errorf("tool %s: resource limits must be non-negative", d.Name)
	}
	switch d.Kind {
	case KindNative:
		if d.Config.Native == nil {
			return fmt.Errorf("tool %s: native tool requires a pre-built adapter", d.Name)
		}
	case KindSubprocessRPC, KindExecutable:
		if d.Config.Command == "" {
			return fmt.Errorf("tool %s: %s tool requires a command", d.Name, d.Kind)
		}
	case KindHTTP:
		if d.Config.BaseURL == "" {
			return fmt.Errorf("tool %s: http tool requires a base_url", d.Name)
		}
	default:
		return fmt.Errorf("tool %s: unknown kind %q", d.Name, d.Kind)
	}
	return nil
}

func buildAdapter(d Descriptor) (Adapter, error) {
	switch d.Kind {
	case KindNative:
		return d.Config.Native, nil
	case KindSubprocessRPC:
		return NewSubprocessRPC(d.Name, d.Config.Command, d.Config.Args, d.Config.Env), nil
	case KindExecutable:
		return NewExecutable(d.Config.Command), nil
	case KindHTTP:
		return NewHTTP(d.Config.BaseURL, d.Config.Token, d.Config.Headers, d.Config.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown tool kind %q", d.Kind)
	}
}

// Load validates and instantiates a tool. Loading a duplicate name fails.
func (m *Manager) Load(d Descriptor) error {
	if err := validate(d); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.instances[d.Name]; exists {
		return fmt.Errorf("tool %s: already loaded", d.Name)
	}

	in := &instance{descriptor: d, state: StateLoading, metrics: &Metrics{}}
	adapter, err := buildAdapter(d)
	if err != nil {
		in.state = StateFailed
		m.instances[d.Name] = in
		return fmt.Errorf("tool %s: %w", d.Name, err)
	}

	schemas, err := compileCapabilitySchemas(d.Name, d.Capabilities)
	if err != nil {
		in.state = StateFailed
		m.instances[d.Name] = in
		return err
	}

	threshold := m.failureThreshold
	coolDown := m.coolDown
	in.adapter = adapter
	in.schemas = schemas
	in.breaker = NewBreaker(threshold, coolDown, m.metrics)
	in.state = StateLoaded
	m.instances[d.Name] = in
	m.logger().Info("tool loaded", "tool", d.Name, "kind", d.Kind)
	return nil
}

// Unload retires a tool, releasing any long-lived resource it owns.
func (m *Manager) Unload(name string) error {
	m.mu.Lock()
	in, ok := m.instances[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("tool %s: %w", name, errNotLoaded)
	}
	delete(m.instances, name)
	m.mu.Unlock()

	in.setState(StateStopping)
	if u, ok := in.adapter.(unloader); ok {
		if err := u.Unload(); err != nil {
			m.logger().Warn("tool unload reported an error", "tool", name, "error", err)
		}
	}
	in.setState(StateUnloaded)
	m.logger().Info("tool unloaded", "tool", name)
	return nil
}

var errNotLoaded = fmt.Errorf("not loaded")

// Reload unloads and reloads a tool with the same descriptor and config,
// as required by §4.3 ("reload = unload + load with persisted metadata").
func (m *Manager) Reload(name string) error {
	m.mu.RLock()
	in, ok := m.instances[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("tool %s: %w", name, errNotLoaded)
	}
	d := in.descriptor
	if err := m.Unload(name); err != nil {
		return err
	}
	return m.Load(d)
}

// Descriptor returns the loaded descriptor for a tool, if present.
func (m *Manager) Descriptor(name string) (Descriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.instances[name]
	if !ok {
		return Descriptor{}, false
	}
	return in.descriptor, true
}

// State returns a tool's lifecycle state.
func (m *Manager) State(name string) (ToolState, bool) {
	m.mu.RLock()
	in, ok := m.instances[name]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}
	return in.getState(), true
}

// Metrics returns a snapshot of a tool's execution metrics.
func (m *Manager) Metrics(name string) (Metrics, bool) {
	m.mu.RLock()
	in, ok := m.instances[name]
	m.mu.RUnlock()
	if !ok {
		return Metrics{}, false
	}
	return in.metrics.Snapshot(), true
}

// Execute runs the execution path from §4.3: breaker check, lookup,
// deadline-bounded invoke, breaker/metric update. It never returns a Go
// error — failures are represented as a Result with OK=false, per the
// spec's "never raise through" error policy.
func (m *Manager) Execute(ctx context.Context, name string, req Request) Result {
	m.mu.RLock()
	in, ok := m.instances[name]
	m.mu.RUnlock()
	if !ok {
		return Result{OK: false, ErrorCode: ErrToolNotFound, Error: fmt.Sprintf("tool %s not loaded", name)}
	}

	if !in.descriptor.HasCapability(req.Capability) {
		return Result{OK: false, ErrorCode: ErrCapabilityNotFound, Error: fmt.Sprintf("tool %s has no capability %q", name, req.Capability)}
	}

	if cs, ok := in.schemas[req.Capability]; ok {
		if err := cs.validate(req.Input); err != nil {
			return Result{OK: false, ErrorCode: ErrInvalidInput, Error: err.Error()}
		}
	}
	if errs := in.adapter.ValidateInput(req.Capability, req.Input); len(errs) > 0 {
		return Result{OK: false, ErrorCode: ErrInvalidInput, Error: errs[0].Error()}
	}

	if !in.breaker.Allow() {
		return Result{OK: false, ErrorCode: ErrCircuitOpen, Error: fmt.Sprintf("tool %s: circuit open", name)}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		if in.descriptor.Limits.MaxExecutionSeconds > 0 {
			timeout = time.Duration(in.descriptor.Limits.MaxExecutionSeconds) * time.Second
		} else {
			timeout = m.defaultTimeout
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execCtx, span := araciotel.StartClientSpan(execCtx, m.tracer, "tools.execute",
		araciotel.AttrToolName.String(name),
		araciotel.AttrToolKind.String(string(in.descriptor.Kind)),
	)
	defer span.End()

	in.setState(StateRunning)
	start := time.Now()
	result := in.adapter.Execute(execCtx, req)
	dur := time.Since(start)
	if result.Duration == 0 {
		result.Duration = dur
	}
	in.setState(StateLoaded)

	in.metrics.record(result.OK, dur)
	if result.OK {
		in.breaker.OnSuccess()
	} else {
		in.breaker.OnFailure()
	}
	return result
}

// Step is one call in a parallel or chained batch.
type Step struct {
	Tool    string
	Request Request
}

// ExecuteParallel runs every step concurrently, returning results in
// input order.
func (m *Manager) ExecuteParallel(ctx context.Context, steps []Step) []Result {
	results := make([]Result, len(steps))
	var wg sync.WaitGroup
	for i, step := range steps {
		wg.Add(1)
		go func(i int, step Step) {
			defer wg.Done()
			results[i] = m.Execute(ctx, step.Tool, step.Request)
		}(i, step)
	}
	wg.Wait()
	return results
}

// ExecuteChain runs steps in order. After each successful step, its
// output is injected as "{tool}_result" into every later step's input
// metadata so later tools may consume it; a failed step does not halt
// the chain, its failure is passed along the same way.
func (m *Manager) ExecuteChain(ctx context.Context, steps []Step) []Result {
	results := make([]Result, len(steps))
	chainCtx := map[string]any{}

	for i, step := range steps {
		if step.Request.Input == nil {
			step.Request.Input = map[string]any{}
		}
		for k, v := range chainCtx {
			if _, exists := step.Request.Input[k]; !exists {
				step.Request.Input[k] = v
			}
		}
		res := m.Execute(ctx, step.Tool, step.Request)
		results[i] = res
		if res.OK {
			chainCtx[step.Tool+"_result"] = res.Data
		} else {
			chainCtx[step.Tool+"_error"] = res.Error
		}
	}
	return results
}
