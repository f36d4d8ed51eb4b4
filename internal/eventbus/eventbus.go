// Package eventbus implements the outbound Event Sink (spec.md §6): a
// websocket broadcast of typed `{event, payload}` JSON messages to
// every connected host. Adapted from the teacher's `internal/vox.Bus`
// and `pkg/protocol.WebSocket`, which dial a bus URL as a client; here
// the core is the server, since the host (not the core) initiates the
// connection to watch the event stream.
package eventbus

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event names, normative per spec.md §6.
const (
	EventAudioRMS                  = "audio:rms"
	EventAudioDeviceLost           = "audio:device_lost"
	EventAudioDeviceFallbackOk     = "audio:device_fallback_ok"
	EventAudioDeviceFallbackFailed = "audio:device_fallback_failed"
	EventAudioMonitorGuarded       = "audio:monitor_guarded"
	EventAudioRestartOk            = "audio:restart_ok"
	EventAudioRestartBlocked       = "audio:restart_blocked"
	EventAudioError                = "audio:error"
	EventKwsModelDownloadProgress  = "kws:model_download_progress"
	EventKwsModelVerified          = "kws:model_verified"
	EventKwsModelVerifyFailed      = "kws:model_verify_failed"
	EventKwsEnabled                = "kws:enabled"
	EventKwsDisabled               = "kws:disabled"
	EventKwsDegraded               = "kws:degraded"
	EventWakewordDetected          = "wakeword::detected"
	EventKwsWakeTestPass           = "kws:wake_test_pass"
)

// Envelope is the normative wire shape for every event.
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Bus is a broadcast hub: Publish fans one event out to every
// currently connected client; ServeHTTP upgrades new connections.
type Bus struct {
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

// New builds an empty Bus. log may be nil.
func New(log *slog.Logger) *Bus {
	return &Bus{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:     log,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request to a websocket and registers the
// connection as a broadcast target until it disconnects.
func (b *Bus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if b.log != nil {
			b.log.Error("eventbus upgrade failed", "err", err)
		}
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 32)}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()

	go b.writeLoop(c)
	b.readLoop(c)
}

func (b *Bus) writeLoop(c *client) {
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// readLoop discards inbound traffic (this bus is outbound-only) and
// blocks until the connection closes, at which point the client is
// unregistered.
func (b *Bus) readLoop(c *client) {
	defer b.unregister(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *Bus) unregister(c *client) {
	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
	close(c.send)
	c.conn.Close()
}

// Publish fans one typed event out to every connected client. Slow
// clients are dropped rather than allowed to block the publisher
// (spec.md §5: "the event sink, each emitter is exclusive").
func (b *Bus) Publish(event string, payload any) {
	data, err := json.Marshal(Envelope{Event: event, Payload: payload})
	if err != nil {
		if b.log != nil {
			b.log.Error("eventbus marshal failed", "event", event, "err", err)
		}
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		select {
		case c.send <- data:
		case <-time.After(50 * time.Millisecond):
			go b.unregister(c)
		}
	}
}
