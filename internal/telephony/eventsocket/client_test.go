package eventsocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dialer-platform/internal/telephony"

	"github.com/gorilla/websocket"
)

// fakeBridge is a minimal switch-side peer: it records commands and can push
// events down to the client.
type fakeBridge struct {
	upgrader websocket.Upgrader
	commands chan commandEnvelope
	conns    chan *websocket.Conn
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		commands: make(chan commandEnvelope, 8),
		conns:    make(chan *websocket.Conn, 1),
	}
}

func (b *fakeBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	b.conns <- conn
	for {
		var cmd commandEnvelope
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		b.commands <- cmd
	}
}

func startClient(t *testing.T) (*Client, *fakeBridge, context.CancelFunc) {
	t.Helper()
	bridge := newFakeBridge()
	srv := httptest.NewServer(bridge)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(url, 10*time.Millisecond, 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for !c.Connected() {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("client never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return c, bridge, cancel
}

func TestClient_OriginateSendsCommand(t *testing.T) {
	c, bridge, cancel := startClient(t)
	defer cancel()

	err := c.Originate(context.Background(), telephony.OriginateRequest{
		CallerID:    "+13125550100",
		Destination: "+16085550101",
		Gateway:     "carrier_a",
		Extension:   "5000",
		Variables:   map[string]string{"campaign_id": "7"},
	})
	if err != nil {
		t.Fatalf("originate: %v", err)
	}

	select {
	case cmd := <-bridge.commands:
		if cmd.Command != "originate" || cmd.Gateway != "carrier_a" || cmd.Destination != "+16085550101" {
			t.Fatalf("unexpected command %+v", cmd)
		}
		if cmd.Variables["campaign_id"] != "7" {
			t.Fatalf("tracking variables lost: %v", cmd.Variables)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("bridge never received the command")
	}
}

func TestClient_DeliversEvents(t *testing.T) {
	c, bridge, cancel := startClient(t)
	defer cancel()

	conn := <-bridge.conns
	ev := telephony.Event{Type: telephony.EventAnswer, CallUUID: "abc-123"}
	payload, _ := json.Marshal(ev)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("bridge write: %v", err)
	}

	select {
	case got := <-c.Events():
		if got.Type != telephony.EventAnswer || got.CallUUID != "abc-123" {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestClient_CommandsFailWhileDisconnected(t *testing.T) {
	c := New("ws://127.0.0.1:1/socket", 10*time.Millisecond, 20*time.Millisecond, nil)
	err := c.Hangup(context.Background(), "abc", "NORMAL_CLEARING")
	if err == nil {
		t.Fatal("expected error while disconnected")
	}
}
