package persona

import (
	"context"
	"testing"
	"time"

	"github.com/basket/araci/internal/a2a"
)

func newTestBus(t *testing.T) *a2a.Bus {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	bus := a2a.New(ctx)
	t.Cleanup(func() {
		bus.Close()
		cancel()
	})
	return bus
}

type echoChat struct{}

func (echoChat) GenerateChatResponse(ctx context.Context, text string) (string, error) {
	return "echo: " + text, nil
}

func TestPingReplyContainsStatus(t *testing.T) {
	bus := newTestBus(t)
	p, err := New(bus, "p1", "Tester", []string{"chat"}, 0, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	_ = p

	reply, ok := bus.RequestReply(context.Background(), "client", "p1", "ping", nil, time.Second)
	if !ok {
		t.Fatal("expected pong reply")
	}
	if reply.Type != "pong" {
		t.Fatalf("expected pong, got %s", reply.Type)
	}
}

func TestChatRequestDelegatesToResponder(t *testing.T) {
	bus := newTestBus(t)
	_, err := New(bus, "chatty", "Chatty", nil, 0, echoChat{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	reply, ok := bus.RequestReply(context.Background(), "client", "chatty", "chat.request",
		map[string]any{"message": "hi"}, time.Second)
	if !ok {
		t.Fatal("expected chat.response reply")
	}
	if reply.Content["message"] != "echo: hi" {
		t.Fatalf("unexpected chat reply: %+v", reply.Content)
	}
}

func TestTaskRequestWithoutHandlerRepliesNotSupported(t *testing.T) {
	bus := newTestBus(t)
	_, err := New(bus, "notasks", "NoTasks", nil, 0, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	reply, ok := bus.RequestReply(context.Background(), "client", "notasks", "task.request", nil, time.Second)
	if !ok {
		t.Fatal("expected task.response reply")
	}
	if reply.Content["status"] != "error" {
		t.Fatalf("expected error status, got %+v", reply.Content)
	}
}

func TestShutdownUnregistersParticipant(t *testing.T) {
	bus := newTestBus(t)
	p, err := New(bus, "p2", "P2", nil, 0, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	p.Shutdown(context.Background())

	if err := bus.Register("p2", nil, func(ctx context.Context, m *a2a.Message) {}); err != nil {
		t.Fatalf("expected re-registration to succeed after shutdown unregistered p2: %v", err)
	}
}
