package a2a

import (
	"container/heap"
	"context"

	araciotel "github.com/basket/araci/internal/otel"
)

// run is the bus's single queue consumer. It owns dispatch ordering:
// strict priority, FIFO within a priority class.
func (b *Bus) run(ctx context.Context) {
	defer close(b.done)
	for {
		msg, ok := b.popNext()
		if !ok {
			select {
			case <-b.wake:
				continue
			case <-ctx.Done():
				return
			}
		}
		b.dispatch(ctx, msg)
	}
}

// popNext pops the highest-priority non-expired message, discarding any
// expired entries it finds along the way.
func (b *Bus) popNext() (*Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.queue.Len() > 0 {
		item := heap.Pop(&b.queue).(*queueItem)
		if item.msg.IsExpired() {
			b.logger().Warn("a2a: dropping expired message at dequeue", "message_id", item.msg.ID, "type", item.msg.Type)
			b.recordDrop()
			continue
		}
		return item.msg, true
	}
	return nil, false
}

// dispatch implements the algorithm from §4.1: classify, fan out to
// matching listeners, then deliver directly (broadcast or single
// receiver) unless the message was a reply.
func (b *Bus) dispatch(ctx context.Context, msg *Message) {
	ctx, span := araciotel.StartSpan(ctx, b.tracer, "a2a.dispatch",
		araciotel.AttrMessageType.String(msg.Type),
	)
	defer span.End()

	// isReply reflects the message's own shape (reply_to set), not whether
	// a waiter is still around to receive it. A reply whose waiter already
	// timed out is still a reply: it skips the unknown-receiver drop and
	// direct delivery below, and is still offered to type listeners.
	isReply := msg.ReplyTo != ""
	if isReply {
		b.mu.Lock()
		w, ok := b.waiters[msg.ReplyTo]
		if ok {
			delete(b.waiters, msg.ReplyTo)
		}
		b.mu.Unlock()
		if ok {
			w.complete(msg)
		}
	}

	isBroadcast := msg.Receiver == Broadcast

	if !isReply && !isBroadcast {
		b.mu.Lock()
		p, known := b.participants[msg.Receiver]
		b.mu.Unlock()
		if !known || p.disabled() {
			b.logger().Warn("a2a: dropping message with unknown receiver",
				"message_id", msg.ID, "receiver", msg.Receiver, "type", msg.Type)
			b.recordDrop()
			msg.Processed = true
			return
		}
	}

	b.recordDispatch()

	b.mu.Lock()
	matched := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if matchPattern(s.pattern, msg.Type) {
			matched = append(matched, s)
		}
	}
	b.mu.Unlock()
	for _, s := range matched {
		b.invokeListener(ctx, s, msg)
	}

	switch {
	case isBroadcast:
		b.mu.Lock()
		targets := make([]*Participant, 0, len(b.participants))
		for id, p := range b.participants {
			if id == msg.Sender || p.disabled() {
				continue
			}
			targets = append(targets, p)
		}
		b.mu.Unlock()
		for _, p := range targets {
			b.invokeHandler(ctx, p, msg)
		}
	case !isReply:
		b.mu.Lock()
		p, known := b.participants[msg.Receiver]
		b.mu.Unlock()
		if known && !p.disabled() {
			b.invokeHandler(ctx, p, msg)
		}
	}

	msg.Processed = true
}

// invokeListener isolates a listener panic so it cannot abort dispatch
// for the rest of the matched listeners or the direct delivery step.
func (b *Bus) invokeListener(ctx context.Context, s *subscription, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger().Error("a2a: listener panicked", "sub_id", s.id, "pattern", s.pattern, "message_id", msg.ID, "panic", r)
		}
	}()
	s.handler(ctx, msg)
}

// invokeHandler isolates a participant handler panic the same way.
func (b *Bus) invokeHandler(ctx context.Context, p *Participant, msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger().Error("a2a: handler panicked", "participant_id", p.ID, "message_id", msg.ID, "panic", r)
		}
	}()
	if p.Handler == nil {
		return
	}
	p.Handler(ctx, msg)
}
