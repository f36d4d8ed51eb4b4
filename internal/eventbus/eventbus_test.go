package eventbus

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialBus(t *testing.T, srv *httptest.Server) *websocket.Conn {
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func TestPublishDeliversToConnectedClient(t *testing.T) {
	bus := New(nil)
	srv := httptest.NewServer(bus)
	defer srv.Close()

	conn := dialBus(t, srv)
	defer conn.Close()

	// Give the upgrade a beat to register the client before publishing.
	time.Sleep(20 * time.Millisecond)

	bus.Publish(EventWakewordDetected, map[string]any{"keyword": "hey ember", "score": 0.91})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected a message, got error: %v", err)
	}

	if !strings.Contains(string(data), `"event":"wakeword::detected"`) {
		t.Fatalf("unexpected payload: %s", data)
	}
	if !strings.Contains(string(data), `"keyword":"hey ember"`) {
		t.Fatalf("unexpected payload: %s", data)
	}
}

func TestPublishFansOutToMultipleClients(t *testing.T) {
	bus := New(nil)
	srv := httptest.NewServer(bus)
	defer srv.Close()

	a := dialBus(t, srv)
	defer a.Close()
	b := dialBus(t, srv)
	defer b.Close()

	time.Sleep(20 * time.Millisecond)

	bus.Publish(EventKwsEnabled, map[string]string{"model_id": "en-small"})

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("expected a message on every client, got error: %v", err)
		}
		if !strings.Contains(string(data), `"event":"kws:enabled"`) {
			t.Fatalf("unexpected payload: %s", data)
		}
	}
}

func TestUnregisterRemovesClosedClient(t *testing.T) {
	bus := New(nil)
	srv := httptest.NewServer(bus)
	defer srv.Close()

	conn := dialBus(t, srv)
	conn.Close()

	// Allow the server's readLoop to observe the close and unregister.
	time.Sleep(50 * time.Millisecond)

	bus.mu.Lock()
	n := len(bus.clients)
	bus.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected closed client to be unregistered, got %d remaining", n)
	}
}
