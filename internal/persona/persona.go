// Package persona implements the bus-integrated persona base: a
// participant with an auto-populated message-type handler table for the
// well-known types, a concurrency-limited task set, and a running
// metrics block.
package persona

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/basket/araci/internal/a2a"
)

// ChatResponder generates a chat reply for a persona that supports
// chat.request. Personas that don't implement chat leave this nil,
// falling back to the default GenerateChatResponse.
type ChatResponder interface {
	GenerateChatResponse(ctx context.Context, text string) (string, error)
}

// TaskHandler handles task.request messages. Personas that accept work
// must implement this; the base's default replies "not supported".
type TaskHandler interface {
	HandleTaskRequest(ctx context.Context, msg *a2a.Message) error
}

// Metrics is the persona's running execution tally (§4.5.1).
type Metrics struct {
	mu            sync.Mutex
	Total         uint64
	Successful    uint64
	Failed        uint64
	AvgResponseMs float64
	LastActivity  time.Time
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
	m.AvgResponseMs += (ms - m.AvgResponseMs) / float64(m.Total)
	m.LastActivity = time.Now()
}

// Snapshot returns a race-free copy of the metrics.
func (m *Metrics) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{Total: m.Total, Successful: m.Successful, Failed: m.Failed, AvgResponseMs: m.AvgResponseMs, LastActivity: m.LastActivity}
}

// Base is embedded by concrete personas. It registers itself on the bus,
// dispatches well-known message types to default handlers (which a
// concrete persona overrides by implementing the matching interface),
// and tracks a bounded set of in-flight tasks.
type Base struct {
	ID           string
	Name         string
	Capabilities []string
	AuthToken    string

	bus *a2a.Bus
	log *slog.Logger

	maxConcurrentTasks int

	mu       sync.Mutex
	status   string
	inFlight map[string]context.CancelFunc

	metrics Metrics

	chat ChatResponder
	task TaskHandler
}

// New builds a persona base and registers it with the bus. impl, when it
// implements ChatResponder and/or TaskHandler, is wired in to override
// the corresponding default handlers.
func New(bus *a2a.Bus, id, name string, capabilities []string, maxConcurrentTasks int, impl any, log *slog.Logger) (*Base, error) {
	if maxConcurrentTasks <= 0 {
		maxConcurrentTasks = 4
	}
	if log == nil {
		log = slog.Default()
	}
	b := &Base{
		ID:                 id,
		Name:               name,
		Capabilities:       capabilities,
		bus:                bus,
		log:                log,
		maxConcurrentTasks: maxConcurrentTasks,
		status:             "idle",
		inFlight:           make(map[string]context.CancelFunc),
	}
	if c, ok := impl.(ChatResponder); ok {
		b.chat = c
	}
	if th, ok := impl.(TaskHandler); ok {
		b.task = th
	}

	if err := bus.Register(id, capabilities, b.handle); err != nil {
		return nil, fmt.Errorf("persona %s: register: %w", id, err)
	}
	return b, nil
}

func (b *Base) Status() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *Base) Metrics() Metrics { return b.metrics.Snapshot() }

func (b *Base) activeTaskCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inFlight)
}

// handle dispatches an inbound message to the matching well-known
// handler, per §4.5's message-type table. Unknown types are logged and
// dropped — the bus already isolates handler panics, but we additionally
// guard against a handler error reaching no one.
func (b *Base) handle(ctx context.Context, msg *a2a.Message) {
	var err error
	switch msg.Type {
	case "ping":
		err = b.handlePing(ctx, msg)
	case "status.request":
		err = b.handleStatusRequest(ctx, msg)
	case "shutdown":
		err = b.handleShutdown(ctx, msg)
	case "heartbeat":
		b.handleHeartbeat(ctx, msg)
	case "task.request":
		err = b.handleTaskRequest(ctx, msg)
	case "chat.request":
		err = b.handleChatRequest(ctx, msg)
	default:
		b.log.Debug("persona: unhandled message type", "persona", b.ID, "type", msg.Type)
		return
	}
	if err != nil {
		b.log.Error("persona: handler error", "persona", b.ID, "type", msg.Type, "error", err)
	}
}

func (b *Base) reply(ctx context.Context, msg *a2a.Message, content map[string]any, msgType string) error {
	reply := msg.CreateReply(content, msgType)
	if _, ok := b.bus.Send(reply); !ok {
		return fmt.Errorf("persona %s: reply dropped (expired on send)", b.ID)
	}
	return nil
}

func (b *Base) handlePing(ctx context.Context, msg *a2a.Message) error {
	return b.reply(ctx, msg, map[string]any{
		"status":         "success",
		"timestamp":      time.Now().Unix(),
		"persona_status": b.Status(),
	}, "pong")
}

func (b *Base) handleStatusRequest(ctx context.Context, msg *a2a.Message) error {
	snap := b.Metrics()
	return b.reply(ctx, msg, map[string]any{
		"status":       b.Status(),
		"name":         b.Name,
		"persona_id":   b.ID,
		"capabilities": b.Capabilities,
		"timestamp":    time.Now().Unix(),
		"metrics": map[string]any{
			"total_tasks":         snap.Total,
			"successful_tasks":    snap.Successful,
			"failed_tasks":        snap.Failed,
			"average_response_ms": snap.AvgResponseMs,
			"last_activity":       snap.LastActivity,
		},
		"active_tasks": b.activeTaskCount(),
	}, "status.response")
}

func (b *Base) handleShutdown(ctx context.Context, msg *a2a.Message) error {
	if b.AuthToken != "" {
		token, _ := msg.Content["auth_token"].(string)
		if token != b.AuthToken {
			return b.reply(ctx, msg, map[string]any{
				"status":  "error",
				"message": "Unauthorized shutdown request",
			}, "error.unauthorized")
		}
	}
	if err := b.reply(ctx, msg, map[string]any{
		"status":  "success",
		"message": "shutting down",
	}, "shutdown.accepted"); err != nil {
		return err
	}
	go b.Shutdown(context.Background())
	return nil
}

func (b *Base) handleHeartbeat(ctx context.Context, msg *a2a.Message) {
	status, _ := msg.Content["status"].(string)
	b.log.Debug("persona: heartbeat received", "persona", b.ID, "from", msg.Sender, "status", status)
}

func (b *Base) handleTaskRequest(ctx context.Context, msg *a2a.Message) error {
	if b.task == nil {
		return b.reply(ctx, msg, map[string]any{
			"status":  "error",
			"message": fmt.Sprintf("persona %s does not support task execution", b.Name),
		}, "task.response")
	}

	b.mu.Lock()
	if len(b.inFlight) >= b.maxConcurrentTasks {
		b.mu.Unlock()
		return b.reply(ctx, msg, map[string]any{
			"status":  "error",
			"message": "at max concurrent task capacity",
		}, "task.response")
	}
	taskCtx, cancel := context.WithCancel(ctx)
	b.inFlight[msg.ID] = cancel
	b.mu.Unlock()

	start := time.Now()
	go func() {
		defer func() {
			b.mu.Lock()
			delete(b.inFlight, msg.ID)
			b.mu.Unlock()
		}()
		err := b.task.HandleTaskRequest(taskCtx, msg)
		b.metrics.record(err == nil, time.Since(start))
		if err != nil {
			b.log.Error("persona: task request failed", "persona", b.ID, "error", err)
		}
	}()
	return nil
}

func (b *Base) handleChatRequest(ctx context.Context, msg *a2a.Message) error {
	text, _ := msg.Content["message"].(string)
	var (
		reply string
		err   error
	)
	if b.chat != nil {
		reply, err = b.chat.GenerateChatResponse(ctx, text)
	} else {
		reply, err = "chat is not supported by this persona", nil
	}
	if err != nil {
		return b.reply(ctx, msg, map[string]any{"status": "error", "message": err.Error()}, "chat.response")
	}
	return b.reply(ctx, msg, map[string]any{"status": "success", "message": reply}, "chat.response")
}

// UpdateStatus sets the persona's status and optionally broadcasts the
// change, matching the original's update_status(new_status, broadcast).
func (b *Base) UpdateStatus(ctx context.Context, newStatus string, broadcastUpdate bool) {
	b.mu.Lock()
	old := b.status
	b.status = newStatus
	b.mu.Unlock()

	if !broadcastUpdate {
		return
	}
	msg := a2a.NewMessage(b.ID, a2a.Broadcast, "status.update", map[string]any{
		"persona_id":      b.ID,
		"name":            b.Name,
		"status":          newStatus,
		"previous_status": old,
		"timestamp":       time.Now().Unix(),
	}, 5)
	b.bus.Send(msg)
}

// Shutdown cancels every in-flight task, broadcasts a shutdown status
// update, and unregisters the persona from the bus.
func (b *Base) Shutdown(ctx context.Context) {
	b.mu.Lock()
	for id, cancel := range b.inFlight {
		cancel()
		delete(b.inFlight, id)
	}
	b.mu.Unlock()

	b.UpdateStatus(ctx, "shutdown", true)
	if err := b.bus.Unregister(b.ID); err != nil {
		b.log.Warn("persona: unregister during shutdown failed", "persona", b.ID, "error", err)
	}
}
