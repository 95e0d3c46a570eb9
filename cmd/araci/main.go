// Command araci wires the message bus, tool manager, and coordinator
// into a running demonstration instance: one bus, a handful of native
// tools plus the scheduler, one coordinator backed by the configured LLM
// provider, a memkv-backed Memory, and a websocket EventEmitter.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/basket/araci/internal/a2a"
	"github.com/basket/araci/internal/config"
	"github.com/basket/araci/internal/coordinator"
	"github.com/basket/araci/internal/eventemitter"
	"github.com/basket/araci/internal/memkv"
	araciotel "github.com/basket/araci/internal/otel"
	"github.com/basket/araci/internal/schedule"
	"github.com/basket/araci/internal/telemetry"
	"github.com/basket/araci/internal/tools"
)

func main() {
	configPath := flag.String("config", "", "path to araci.yaml (optional; defaults apply when omitted)")
	homeDir := flag.String("home", defaultHomeDir(), "directory for logs and the memory database")
	listenAddr := flag.String("listen", "127.0.0.1:8787", "address the event stream listens on")
	flag.Parse()

	if err := run(*configPath, *homeDir, *listenAddr); err != nil {
		fmt.Fprintln(os.Stderr, "araci:", err)
		os.Exit(1)
	}
}

func run(configPath, homeDir, listenAddr string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closer, err := telemetry.NewLogger(homeDir, cfg.Logging.Level, false)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelProvider, err := araciotel.Init(ctx, araciotel.Config{Enabled: false})
	if err != nil {
		return fmt.Errorf("init otel: %w", err)
	}
	defer otelProvider.Shutdown(ctx)

	metrics, err := araciotel.NewMetrics(otelProvider.Meter)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	bus := a2a.New(ctx,
		a2a.WithLogger(logger),
		a2a.WithTracer(otelProvider.Tracer),
		a2a.WithMetrics(metrics),
	)
	defer bus.Close()

	mem, err := memkv.Open(filepath.Join(homeDir, "memory.db"))
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}
	defer mem.Close()

	hub := eventemitter.New(logger)
	go serveEvents(ctx, hub, listenAddr, logger)

	manager := tools.NewManager(
		tools.WithManagerLogger(logger),
		tools.WithManagerTracer(otelProvider.Tracer),
		tools.WithManagerMetrics(metrics),
	)

	if err := manager.Load(tools.Descriptor{
		Name:         "command_executor",
		Kind:         tools.KindNative,
		Capabilities: []tools.Capability{{Name: "run", RequiredFields: []string{"command"}}},
		Config:       tools.Config{Native: tools.NewCommandExecutor()},
	}); err != nil {
		return fmt.Errorf("load command_executor tool: %w", err)
	}

	for _, d := range cfg.Tools.Descriptors {
		if err := manager.Load(toolDescriptorFromConfig(d)); err != nil {
			logger.Warn("failed to load configured tool", "tool", d.Name, "error", err)
		}
	}

	invoker := &toolInvoker{manager: manager}
	llm := coordinator.NewGenkitFeedback(ctx, coordinator.GenkitConfig{
		Provider:                 cfg.Coordinator.Provider.Name,
		Model:                    cfg.Coordinator.Provider.Model,
		APIKey:                   cfg.Coordinator.Provider.APIKey,
		OpenAICompatibleProvider: cfg.Coordinator.Provider.OpenAICompatibleProvider,
		OpenAICompatibleBaseURL:  cfg.Coordinator.Provider.OpenAICompatibleBaseURL,
	})

	router := &busPersonaRouter{bus: bus, timeout: 30 * time.Second}
	coord := coordinator.New(invoker, invoker, llm,
		coordinator.WithLogger(logger),
		coordinator.WithTracer(otelProvider.Tracer),
		coordinator.WithMetrics(metrics),
		coordinator.WithEventEmitter(hub),
		coordinator.WithMemory(mem),
		coordinator.WithPersonaRouter(router),
	)

	// Every scheduled job becomes a single-task plan run through the
	// coordinator: a "command" payload shells out via command_executor,
	// anything else is broadcast as a task.request for listening personas.
	sched := schedule.New(func(ctx context.Context, name string, payload map[string]any) {
		logger.Info("scheduler: job fired", "job", name)
		if command, _ := payload["command"].(string); command != "" {
			task := coordinator.Task{ID: name, Name: name, Type: "command", Command: command}
			go coord.RunTasksWithLLMFeedback(context.Background(), []coordinator.Task{task})
			return
		}
		bus.Send(a2a.NewMessage("scheduler", a2a.Broadcast, "task.request", payload, 5))
	})
	sched.Start()
	defer sched.Stop()

	if err := manager.Load(tools.Descriptor{
		Name: "scheduler",
		Kind: tools.KindNative,
		Capabilities: []tools.Capability{
			{Name: "add_job", RequiredFields: []string{"name", "cron"}},
			{Name: "remove_job", RequiredFields: []string{"name"}},
			{Name: "list_jobs"},
		},
		Config: tools.Config{Native: schedule.NewTool(sched)},
	}); err != nil {
		return fmt.Errorf("load scheduler tool: %w", err)
	}

	logger.Info("araci runtime started", "personas", len(cfg.Personas), "tools", len(cfg.Tools.Descriptors)+2)

	<-ctx.Done()
	logger.Info("araci runtime shutting down")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := &config.Config{}
		return cfg, nil
	}
	return config.Load(path)
}

func defaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".araci"
	}
	return filepath.Join(home, ".araci")
}

func serveEvents(ctx context.Context, hub *eventemitter.Hub, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/events", hub)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("event server failed", "error", err)
	}
}

func toolDescriptorFromConfig(d config.ToolDescriptorConfig) tools.Descriptor {
	return tools.Descriptor{
		Name: d.Name,
		Kind: tools.Kind(d.Kind),
		Config: tools.Config{
			Command: d.Command,
			Args:    d.Args,
			Env:     d.Env,
			BaseURL: d.URL,
			Timeout: d.Timeout,
		},
	}
}

// toolInvoker adapts the tool manager onto the coordinator's narrower
// ToolInvoker and CommandExecutor seams.
type toolInvoker struct {
	manager *tools.Manager
}

func (t *toolInvoker) InvokeTool(ctx context.Context, tool, action string, params map[string]any) (any, error) {
	res := t.manager.Execute(ctx, tool, tools.Request{Capability: action, Input: params})
	if !res.OK {
		return nil, fmt.Errorf("tool %s.%s: %s: %s", tool, action, res.ErrorCode, res.Error)
	}
	return res.Data, nil
}

func (t *toolInvoker) RunCommand(ctx context.Context, command string) (any, error) {
	res := t.manager.Execute(ctx, "command_executor", tools.Request{
		Capability: "run",
		Input:      map[string]any{"command": command},
	})
	if !res.OK {
		return nil, fmt.Errorf("command_executor: %s: %s", res.ErrorCode, res.Error)
	}
	return res.Data, nil
}

// busPersonaRouter implements coordinator.PersonaRouter over the message
// bus: capability lookup delegates straight to a2a's own index, and
// dispatch is a bounded request/reply round trip to the chosen persona.
type busPersonaRouter struct {
	bus     *a2a.Bus
	timeout time.Duration
}

func (r *busPersonaRouter) FindByCapability(capability string) []string {
	return r.bus.FindByCapability(capability)
}

func (r *busPersonaRouter) DispatchToPersona(ctx context.Context, personaID string, task coordinator.Task) (any, error) {
	content := map[string]any{
		"task_id":     task.ID,
		"name":        task.Name,
		"description": task.Description,
		"params":      task.Params,
	}
	reply, ok := r.bus.RequestReply(ctx, "coordinator", personaID, "task.request", content, r.timeout)
	if !ok {
		return nil, fmt.Errorf("persona %s: no reply within %s", personaID, r.timeout)
	}
	return reply.Content, nil
}
