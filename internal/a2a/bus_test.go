package a2a

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	b := New(ctx)
	t.Cleanup(func() {
		cancel()
		b.Close()
	})
	return b
}

func TestRegisterDuplicateRejected(t *testing.T) {
	b := newTestBus(t)
	if err := b.Register("p1", []string{"chat"}, nil); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := b.Register("p1", []string{"other"}, nil); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	ids := b.FindByCapability("other")
	if len(ids) != 0 {
		t.Fatalf("capability index mutated by failed duplicate register: %v", ids)
	}
}

func TestCapabilityIndexConsistency(t *testing.T) {
	b := newTestBus(t)
	if err := b.Register("p1", []string{"a", "b"}, nil); err != nil {
		t.Fatal(err)
	}
	if got := b.FindByCapability("a"); len(got) != 1 || got[0] != "p1" {
		t.Fatalf("FindByCapability(a) = %v", got)
	}
	if err := b.Unregister("p1"); err != nil {
		t.Fatal(err)
	}
	if got := b.FindByCapability("a"); len(got) != 0 {
		t.Fatalf("capability index retained unregistered participant: %v", got)
	}
}

func TestExpiredOnArrivalDropped(t *testing.T) {
	b := newTestBus(t)
	var delivered atomic.Bool
	if err := b.Register("p1", nil, func(ctx context.Context, msg *Message) { delivered.Store(true) }); err != nil {
		t.Fatal(err)
	}
	msg := NewMessage("sender", "p1", "task.request", nil, 5).WithExpiry(time.Now().Add(-time.Second))
	if _, ok := b.Send(msg); ok {
		t.Fatal("expected Send of expired message to report drop")
	}
	time.Sleep(50 * time.Millisecond)
	if delivered.Load() {
		t.Fatal("expired message was delivered")
	}
}

func TestBroadcastLocality(t *testing.T) {
	b := newTestBus(t)
	var p1Count, p2Count, p3Count atomic.Int32
	must(t, b.Register("p1", nil, func(ctx context.Context, msg *Message) { p1Count.Add(1) }))
	must(t, b.Register("p2", nil, func(ctx context.Context, msg *Message) { p2Count.Add(1) }))
	must(t, b.Register("p3", nil, func(ctx context.Context, msg *Message) { p3Count.Add(1) }))

	msg := NewMessage("p1", Broadcast, "status.update", nil, 5)
	if _, ok := b.Send(msg); !ok {
		t.Fatal("send failed")
	}

	waitFor(t, func() bool { return p2Count.Load() == 1 && p3Count.Load() == 1 })
	if p1Count.Load() != 0 {
		t.Fatalf("sender received its own broadcast: %d", p1Count.Load())
	}
}

func TestPriorityOrdering(t *testing.T) {
	b := newTestBus(t)
	var mu sync.Mutex
	var order []int

	release := make(chan struct{})
	first := true
	must(t, b.Register("p1", nil, func(ctx context.Context, msg *Message) {
		if first {
			first = false
			<-release // hold the dispatcher so both messages are queued before either is handled
		}
		mu.Lock()
		order = append(order, msg.Priority)
		mu.Unlock()
	}))

	low := NewMessage("s", "p1", "t", nil, 1)
	b.Send(low)
	time.Sleep(20 * time.Millisecond) // let the low-priority message become "first" and block

	high := NewMessage("s", "p1", "t", nil, 9)
	b.Send(high)
	time.Sleep(20 * time.Millisecond)
	close(release)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if order[0] != 1 || order[1] != 9 {
		t.Fatalf("unexpected delivery order: %v", order)
	}
}

func TestRequestReplyTimeout(t *testing.T) {
	b := newTestBus(t)
	must(t, b.Register("silent", nil, func(ctx context.Context, msg *Message) {
		// never replies
	}))

	start := time.Now()
	_, ok := b.RequestReply(context.Background(), "caller", "silent", "task.request", nil, 50*time.Millisecond)
	if ok {
		t.Fatal("expected timeout")
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Fatal("returned before the timeout elapsed")
	}
}

func TestReplyAfterTimeoutReachesListenerOnly(t *testing.T) {
	b := newTestBus(t)
	var gotReply atomic.Bool
	var replyMsg *Message
	var mu sync.Mutex

	must(t, b.Register("callee", nil, nil))

	subID := b.Subscribe("reply:*", func(ctx context.Context, msg *Message) {
		mu.Lock()
		replyMsg = msg
		mu.Unlock()
		gotReply.Store(true)
	})
	defer b.Unsubscribe(subID)

	req := NewMessage("caller", "callee", "task.request", nil, 5)
	b.Send(req)
	time.Sleep(20 * time.Millisecond)

	// simulate a request/reply caller who already gave up
	_, ok := b.WaitForReply(context.Background(), req.ID, 20*time.Millisecond)
	if ok {
		t.Fatal("expected no reply within the short deadline")
	}

	reply := req.CreateReply(map[string]any{"ok": true}, "")
	b.Send(reply)

	waitFor(t, func() bool { return gotReply.Load() })
	mu.Lock()
	defer mu.Unlock()
	if replyMsg == nil || replyMsg.ReplyTo != req.ID {
		t.Fatalf("listener did not observe the late reply: %+v", replyMsg)
	}
}

func TestPlaceholderFreeMessageCreateReply(t *testing.T) {
	orig := NewMessage("a", "b", "ping", nil, 7)
	reply := orig.CreateReply(map[string]any{"pong": true}, "")
	if reply.Sender != "b" || reply.Receiver != "a" {
		t.Fatalf("reply endpoints swapped incorrectly: %+v", reply)
	}
	if reply.CorrelationID != orig.ID || reply.ReplyTo != orig.ID {
		t.Fatalf("reply correlation wiring incorrect: %+v", reply)
	}
	if reply.Priority != orig.Priority {
		t.Fatalf("reply priority should be inherited: got %d want %d", reply.Priority, orig.Priority)
	}
	if reply.Type != "reply:ping" {
		t.Fatalf("unexpected default reply type: %s", reply.Type)
	}
}

func TestPriorityClamped(t *testing.T) {
	if m := NewMessage("a", "b", "t", nil, 0); m.Priority != 1 {
		t.Fatalf("priority 0 should clamp to 1, got %d", m.Priority)
	}
	if m := NewMessage("a", "b", "t", nil, 99); m.Priority != 10 {
		t.Fatalf("priority 99 should clamp to 10, got %d", m.Priority)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
