package a2a

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	araciotel "github.com/basket/araci/internal/otel"
)

// Sentinel errors returned by registry operations. Routing failures (drop,
// timeout) are represented as zero values / ok booleans per the spec's
// error-handling policy of "never raise through"; these sentinels are for
// the handful of operations that do have a meaningful caller-facing error.
var (
	ErrDuplicate = errors.New("a2a: participant already registered")
	ErrNotFound  = errors.New("a2a: participant not found")
)

// waiter is a pending reply slot keyed by the outgoing message's id.
type waiter struct {
	ch     chan *Message
	once   sync.Once
	cancel context.CancelFunc
}

func (w *waiter) complete(msg *Message) {
	w.once.Do(func() {
		w.ch <- msg
		close(w.ch)
	})
}

// subscription is a pattern listener: exact type, "*", or "prefix.*".
type subscription struct {
	id      string
	pattern string
	handler Handler
}

// Bus is the in-process A2A router. Zero value is not usable; construct
// with New. A single dispatcher goroutine owns delivery; Bus methods may
// be called concurrently from any goroutine.
type Bus struct {
	mu           sync.Mutex
	participants map[string]*Participant
	capIndex     map[string][]string // capability -> participant ids, insertion order
	subs         map[string]*subscription
	waiters      map[string]*waiter
	queue        priorityQueue
	seq          uint64

	wake   chan struct{}
	done   chan struct{}
	cancel context.CancelFunc

	log     *slog.Logger
	tracer  trace.Tracer
	metrics *araciotel.Metrics
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithLogger injects a structured logger. Nil falls back to slog.Default,
// matching the teacher's nil-logger-fallback idiom.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.log = l
		}
	}
}

// WithTracer injects an OTel tracer for dispatch spans.
func WithTracer(t trace.Tracer) Option {
	return func(b *Bus) {
		if t != nil {
			b.tracer = t
		}
	}
}

// WithMetrics injects the bus dispatch/drop counters.
func WithMetrics(m *araciotel.Metrics) Option {
	return func(b *Bus) {
		b.metrics = m
	}
}

// New creates a Bus and starts its single-consumer dispatch loop. The
// loop runs until ctx is cancelled or Close is called.
func New(ctx context.Context, opts ...Option) *Bus {
	ctx, cancel := context.WithCancel(ctx)
	b := &Bus{
		participants: make(map[string]*Participant),
		capIndex:     make(map[string][]string),
		subs:         make(map[string]*subscription),
		waiters:      make(map[string]*waiter),
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
		cancel:       cancel,
		log:          slog.Default(),
		tracer:       nooptrace.NewTracerProvider().Tracer(araciotel.TracerName),
	}
	for _, opt := range opts {
		opt(b)
	}
	heap.Init(&b.queue)
	go b.run(ctx)
	return b
}

// Close stops the dispatch loop and waits for it to exit.
func (b *Bus) Close() {
	b.cancel()
	<-b.done
}

func (b *Bus) logger() *slog.Logger {
	if b.log != nil {
		return b.log
	}
	return slog.Default()
}

// Register adds a participant, storing its capabilities in the index.
// Registering a duplicate id returns ErrDuplicate without mutating state.
func (b *Bus) Register(id string, capabilities []string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.participants[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}

	p := newParticipant(id, capabilities, handler)
	b.participants[id] = p
	for _, cap := range capabilities {
		b.capIndex[cap] = append(b.capIndex[cap], id)
	}
	return nil
}

// Unregister removes a participant from the registry and its capability
// index entries, and marks it disabled so any handler invocation already
// in flight can observe the cancellation (best-effort per §5).
func (b *Bus) Unregister(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, exists := b.participants[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p.SetStatus(StatusDisabled)
	delete(b.participants, id)
	b.pruneCapabilityIndexLocked(id)
	return nil
}

func (b *Bus) pruneCapabilityIndexLocked(id string) {
	for cap, ids := range b.capIndex {
		out := ids[:0]
		for _, existing := range ids {
			if existing != id {
				out = append(out, existing)
			}
		}
		if len(out) == 0 {
			delete(b.capIndex, cap)
		} else {
			b.capIndex[cap] = out
		}
	}
}

// FindByCapability returns the ids of live participants advertising cap,
// in registration order. Self-heals by pruning ids no longer registered.
func (b *Bus) FindByCapability(cap string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := b.capIndex[cap]
	out := make([]string, 0, len(ids))
	live := ids[:0]
	for _, id := range ids {
		p, ok := b.participants[id]
		if !ok || p.disabled() {
			continue
		}
		out = append(out, id)
		live = append(live, id)
	}
	if len(live) != len(ids) {
		if len(live) == 0 {
			delete(b.capIndex, cap)
		} else {
			b.capIndex[cap] = live
		}
	}
	return out
}

// Send enqueues msg for dispatch. Expired messages are dropped and never
// reach the queue. Returns the message id on success.
func (b *Bus) Send(msg *Message) (string, bool) {
	if msg.IsExpired() {
		b.logger().Warn("a2a: dropping expired message at send", "message_id", msg.ID, "type", msg.Type)
		b.recordDrop()
		return msg.ID, false
	}

	b.mu.Lock()
	b.seq++
	msg.enqueueSeq = b.seq
	heap.Push(&b.queue, &queueItem{msg: msg})
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	return msg.ID, true
}

// Subscribe registers a pattern listener. pattern is an exact message
// type, "*", or "prefix.*".
func (b *Bus) Subscribe(pattern string, handler Handler) string {
	id := newSubID()
	b.mu.Lock()
	b.subs[id] = &subscription{id: id, pattern: pattern, handler: handler}
	b.mu.Unlock()
	return id
}

// Unsubscribe removes a pattern listener.
func (b *Bus) Unsubscribe(subID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[subID]; !ok {
		return false
	}
	delete(b.subs, subID)
	return true
}

// WaitForReply installs a reply waiter for msgID and blocks until a
// matching reply arrives, the timeout elapses, or ctx is cancelled. The
// waiter is removed from the registry on every exit path.
func (b *Bus) WaitForReply(ctx context.Context, msgID string, timeout time.Duration) (*Message, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	w := &waiter{ch: make(chan *Message, 1), cancel: cancel}
	b.mu.Lock()
	b.waiters[msgID] = w
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		if cur, ok := b.waiters[msgID]; ok && cur == w {
			delete(b.waiters, msgID)
		}
		b.mu.Unlock()
	}()

	select {
	case msg := <-w.ch:
		return msg, true
	case <-ctx.Done():
		return nil, false
	}
}

// RequestReply sends a new message and waits for its reply. It composes
// Send + WaitForReply with a single waiter installed before the message
// is sent so a fast reply can never race ahead of the waiter.
func (b *Bus) RequestReply(ctx context.Context, sender, receiver, msgType string, content map[string]any, timeout time.Duration) (*Message, bool) {
	msg := NewMessage(sender, receiver, msgType, content, 5)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	w := &waiter{ch: make(chan *Message, 1), cancel: cancel}
	b.mu.Lock()
	b.waiters[msg.ID] = w
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		if cur, ok := b.waiters[msg.ID]; ok && cur == w {
			delete(b.waiters, msg.ID)
		}
		b.mu.Unlock()
	}()

	if _, ok := b.Send(msg); !ok {
		return nil, false
	}

	select {
	case reply := <-w.ch:
		return reply, true
	case <-ctx.Done():
		return nil, false
	}
}

func (b *Bus) recordDrop() {
	if b.metrics == nil || b.metrics.BusDropped == nil {
		return
	}
	b.metrics.BusDropped.Add(context.Background(), 1)
}

func (b *Bus) recordDispatch() {
	if b.metrics == nil || b.metrics.BusDispatched == nil {
		return
	}
	b.metrics.BusDispatched.Add(context.Background(), 1)
}
