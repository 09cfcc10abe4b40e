package broadcast

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, h *Hub) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(h)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		_ = conn.Close()
		srv.Close()
	}
}

func waitForSubscribers(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.SubscriberCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers, have %d", n, h.SubscriberCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_PublishReachesSubscriber(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	conn, cleanup := dialHub(t, h)
	defer cleanup()
	waitForSubscribers(t, h, 1)

	h.Publish("campaign.update", map[string]any{"campaign_id": 7})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Event != "campaign.update" {
		t.Fatalf("unexpected event %q", env.Event)
	}
	data, ok := env.Data.(map[string]any)
	if !ok || data["campaign_id"].(float64) != 7 {
		t.Fatalf("unexpected data %v", env.Data)
	}
}

func TestHub_DisconnectDropsSubscriber(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	conn, cleanup := dialHub(t, h)
	defer cleanup()
	waitForSubscribers(t, h, 1)

	_ = conn.Close()
	waitForSubscribers(t, h, 0)

	// Publishing with no subscribers must not panic or block.
	h.Publish("call.update", map[string]any{"call_uuid": "x"})
}
