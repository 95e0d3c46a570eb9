// Package a2a implements the in-process agent-to-agent message bus: a
// priority-ordered, request/reply-capable router connecting autonomous
// persona participants, with broadcast delivery and pattern subscriptions.
package a2a

import (
	"time"

	"github.com/google/uuid"
)

// Broadcast is the reserved receiver id meaning "every registered
// participant except the sender".
const Broadcast = "broadcast"

// Message is an immutable envelope routed by the Bus. The only field that
// changes after construction is Processed, which the dispatcher flips once
// delivery has been attempted.
type Message struct {
	ID            string
	CorrelationID string
	ReplyTo       string

	Sender   string
	Receiver string

	Type    string
	Content map[string]any
	Headers map[string]any

	CreatedAt time.Time
	ExpiresAt time.Time // zero value means no expiry

	Priority int

	Processed bool

	enqueueSeq uint64 // set by the bus when queued; breaks priority ties FIFO
}

// NewMessage builds a Message with a generated id and a clamped priority.
// priority is clamped into [1,10] per the data model invariant.
func NewMessage(sender, receiver, msgType string, content map[string]any, priority int) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Receiver:  receiver,
		Type:      msgType,
		Content:   content,
		CreatedAt: time.Now(),
		Priority:  clampPriority(priority),
	}
}

func clampPriority(p int) int {
	if p < 1 {
		return 1
	}
	if p > 10 {
		return 10
	}
	return p
}

// WithExpiry returns the same message with ExpiresAt set. Provided as a
// chained builder since Message fields are otherwise treated as immutable
// after construction.
func (m *Message) WithExpiry(at time.Time) *Message {
	m.ExpiresAt = at
	return m
}

// WithHeaders attaches free-form transport metadata never interpreted by
// the bus itself.
func (m *Message) WithHeaders(h map[string]any) *Message {
	m.Headers = h
	return m
}

// IsExpired reports whether the message has passed its expiry deadline.
// A zero ExpiresAt means the message never expires.
func (m *Message) IsExpired() bool {
	if m.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(m.ExpiresAt)
}

// CreateReply builds a reply to this message: sender/receiver are swapped,
// correlation_id and reply_to both point back at this message's id, and
// priority is inherited. msgType defaults to "reply:<original type>" when
// empty.
func (m *Message) CreateReply(content map[string]any, msgType string) *Message {
	if msgType == "" {
		msgType = "reply:" + m.Type
	}
	reply := NewMessage(m.Receiver, m.Sender, msgType, content, m.Priority)
	reply.CorrelationID = m.ID
	reply.ReplyTo = m.ID
	return reply
}
