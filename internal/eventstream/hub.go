// Package eventstream publishes bridge activity to websocket subscribers.
package eventstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rbright/msbridge/internal/bridge"
	"github.com/rbright/msbridge/internal/frame"
)

// Path is the websocket endpoint served by Serve.
const Path = "/events"

const (
	sendBuffer   = 64
	writeTimeout = 2 * time.Second
)

// Message types sent to subscribers.
const (
	TypeData       = "data"
	TypeFinish     = "finish"
	TypeDisconnect = "disconnect"
	TypeAttach     = "attach"
	TypeOutput     = "output"
)

// Message is one JSON text frame delivered to subscribers.
type Message struct {
	Type string    `json:"type"`
	Port int       `json:"port,omitempty"`
	Data []byte    `json:"data,omitempty"`
	Kind string    `json:"kind,omitempty"`
	Text string    `json:"text,omitempty"`
	At   time.Time `json:"at"`
}

type client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

// Hub fans messages out to every connected subscriber.
// A subscriber whose buffer is full is disconnected instead of blocking publishers.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	clients map[uuid.UUID]*client
	closed  bool
}

// NewHub builds an empty hub. logger may be nil.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger,
		now:     time.Now,
		clients: make(map[uuid.UUID]*client),
	}
}

// ServeHTTP upgrades the request and streams messages until the subscriber leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("event stream upgrade failed", "error", err.Error())
		return
	}

	c := &client{id: uuid.New(), conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	h.logger.Debug("event subscriber connected", "client", c.id.String(), "remote", conn.RemoteAddr().String())

	go h.writeLoop(c)

	// Inbound frames are ignored; reading surfaces the peer's close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("event subscriber read failed", "client", c.id.String(), "error", err.Error())
			}
			break
		}
	}
	h.drop(c.id)
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.drop(c.id)
			return
		}
	}
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
		time.Now().Add(writeTimeout),
	)
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	return true
}

// drop removes a subscriber; its writer closes the connection.
func (h *Hub) drop(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(id)
}

func (h *Hub) dropLocked(id uuid.UUID) {
	c, ok := h.clients[id]
	if !ok {
		return
	}
	delete(h.clients, id)
	close(c.send)
}

// Count reports connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish delivers msg to every subscriber without blocking.
func (h *Hub) Publish(msg Message) {
	if msg.At.IsZero() {
		msg.At = h.now()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode event", "type", msg.Type, "error", err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("dropping slow event subscriber", "client", id.String())
			h.dropLocked(id)
		}
	}
}

// Emit implements bridge.Sink.
func (h *Hub) Emit(ev bridge.Event) {
	msg := Message{Port: ev.Port}
	switch ev.Kind {
	case bridge.EventData:
		msg.Type = TypeData
		msg.Data = ev.Data
	case bridge.EventFinish:
		msg.Type = TypeFinish
	case bridge.EventDisconnect:
		msg.Type = TypeDisconnect
	default:
		return
	}
	h.Publish(msg)
}

// PublishAttach announces a successful attach to port.
func (h *Hub) PublishAttach(port int) {
	h.Publish(Message{Type: TypeAttach, Port: port})
}

// PublishOutput forwards one decoded console message.
func (h *Hub) PublishOutput(out frame.Output) {
	h.Publish(Message{Type: TypeOutput, Kind: out.Kind.String(), Text: out.Text})
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id := range h.clients {
		h.dropLocked(id)
	}
}

// Serve runs an HTTP server for the hub on listener until ctx is cancelled.
func Serve(ctx context.Context, listener net.Listener, hub *Hub) error {
	mux := http.NewServeMux()
	mux.Handle(Path, hub)

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()

	select {
	case <-ctx.Done():
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		hub.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve event stream: %w", err)
	}
}
