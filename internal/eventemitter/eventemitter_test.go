package eventemitter

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func TestEmitBroadcastsToConnectedClient(t *testing.T) {
	hub := New(nil)
	ts := httptest.NewServer(hub)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+ts.URL[len("http"):], nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Give ServeHTTP's add() a moment to register the client before Emit.
	time.Sleep(50 * time.Millisecond)
	hub.Emit(ctx, "task_started", map[string]any{"task_id": "1"})

	var got map[string]any
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got["event"] != "task_started" {
		t.Fatalf("expected event task_started, got %+v", got)
	}
}

func TestEmitWithNoClientsIsNoop(t *testing.T) {
	hub := New(nil)
	hub.Emit(context.Background(), "task_started", map[string]any{"task_id": "1"})
}
