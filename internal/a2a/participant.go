package a2a

import "context"

// Status values for a registered Participant.
const (
	StatusIdle     = "idle"
	StatusBusy     = "busy"
	StatusDisabled = "disabled"
	StatusShutdown = "shutdown"
)

// Handler receives messages addressed directly to a participant (as
// opposed to pattern-subscribed listeners, which see every matching type).
// Handlers run sequentially per participant on the dispatcher goroutine;
// a handler that needs concurrency must spawn its own goroutines bounded
// by its own concurrency guard.
type Handler func(ctx context.Context, msg *Message)

// Participant is a bus-registered agent: an id, its advertised
// capabilities, and the handler invoked for messages addressed to it.
//
// The data model calls for "weak reference where possible" so the bus
// never owns a participant's lifetime. Go's garbage collector does not
// expose liveness cheaply enough to make a literal weak.Pointer worth the
// complexity here (and nothing in the example pack uses one for this
// shape), so this registry takes the spec's explicitly sanctioned
// fallback: participants are held by ordinary reference and the
// registrar owns the Unregister call. A participant marked Disabled is
// treated exactly like a dead weak ref — the dispatcher drops it and the
// registry self-heals by removing it from the capability index on next
// access.
type Participant struct {
	ID           string
	Capabilities []string
	Handler      Handler

	status atomicStatus
}

func newParticipant(id string, caps []string, h Handler) *Participant {
	p := &Participant{ID: id, Capabilities: append([]string(nil), caps...), Handler: h}
	p.status.Store(StatusIdle)
	return p
}

// Status returns the participant's current status.
func (p *Participant) Status() string { return p.status.Load() }

// SetStatus updates the participant's status. Setting StatusDisabled is
// how Unregister's best-effort cancellation marks a participant so that
// any handler invocation already in flight observes it and the dispatcher
// skips future delivery.
func (p *Participant) SetStatus(s string) { p.status.Store(s) }

func (p *Participant) disabled() bool {
	s := p.status.Load()
	return s == StatusDisabled || s == StatusShutdown
}
