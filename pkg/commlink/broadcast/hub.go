// Package broadcast fans out events to every connected real-time client.
//
// Delivery is best effort: an event is serialized once and queued to each
// client whose state is open. Clients in any other state, or whose queue is
// full, are skipped without error or retry. Publishing never waits for the
// socket writes.
package broadcast

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mikepea/commlink/pkg/commlink/metrics"
)

// Event types pushed to clients.
const (
	EventNewLink           = "NEW_LINK"
	EventLinkUpdated       = "LINK_UPDATED"
	EventLinkDeleted       = "LINK_DELETED"
	EventProfileUpdated    = "PROFILE_UPDATED"
	EventPreferenceUpdated = "PREFERENCE_UPDATED"
	EventSessionSignedOut  = "SESSION_SIGNED_OUT"
)

// WelcomeMessage is sent to each client once, right after it connects.
const WelcomeMessage = "Welcome to Realtime Updates!"

const (
	sendQueueSize = 16
	writeTimeout  = 5 * time.Second
)

// ErrHubClosed is returned by Add after Close.
var ErrHubClosed = errors.New("broadcast hub closed")

// Event is a JSON object with a "type" key.
type Event map[string]any

func (e Event) Type() string {
	t, _ := e["type"].(string)
	return t
}

// Publisher is what request handlers use to announce changes.
type Publisher interface {
	Publish(Event)
}

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Hub is the registry of connected clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool

	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
		metrics: m,
	}
}

// Add registers conn and queues the welcome message to it alone.
func (h *Hub) Add(conn Conn) (*Client, error) {
	welcome, err := json.Marshal(map[string]string{"message": WelcomeMessage})
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	c := newClient(conn, h.logger)
	// Queued before the client is visible to Broadcast, so it is always first.
	c.send <- welcome
	h.clients[c] = struct{}{}
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
	total := len(h.clients)
	h.mu.Unlock()

	h.metrics.ClientConnected()
	h.logger.Info("Realtime client connected", "client_id", c.ID, "total_clients", total)
	return c, nil
}

// Remove unregisters c and closes its connection. Removing twice is harmless.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	remaining := len(h.clients)
	h.mu.Unlock()

	c.close()
	if ok {
		h.metrics.ClientDisconnected()
		h.logger.Info("Realtime client disconnected", "client_id", c.ID, "remaining_clients", remaining)
	}
}

// Broadcast queues event to every open client and returns how many accepted it.
func (h *Hub) Broadcast(event Event) int {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast event", "type", event.Type(), "error", err)
		return 0
	}
	return h.broadcastRaw(event.Type(), data)
}

// Publish implements Publisher.
func (h *Hub) Publish(event Event) {
	h.Broadcast(event)
}

func (h *Hub) broadcastRaw(eventType string, data []byte) int {
	delivered := 0

	h.mu.RLock()
	for c := range h.clients {
		if c.State() != StateOpen {
			continue
		}
		select {
		case c.send <- data:
			delivered++
		default:
			h.logger.Debug("Skipping slow realtime client", "client_id", c.ID)
		}
	}
	h.mu.RUnlock()

	h.metrics.EventBroadcast(eventType, delivered)
	return delivered
}

// Count returns the number of registered clients in any state.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Client]struct{})
	h.closed = true
	h.mu.Unlock()

	for c := range clients {
		c.close()
		h.metrics.ClientDisconnected()
	}
}

// State mirrors the websocket ready states.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Client is one connection with its own writer goroutine.
type Client struct {
	ID string

	conn      Conn
	send      chan []byte
	done      chan struct{}
	state     atomic.Int32
	closeOnce sync.Once
	logger    *slog.Logger
}

func newClient(conn Conn, logger *slog.Logger) *Client {
	c := &Client{
		ID:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	c.state.Store(int32(StateConnecting))
	go c.run()
	return c
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) run() {
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(textMessage, msg); err != nil {
				c.logger.Debug("Realtime write failed", "client_id", c.ID, "error", err)
				// Closing the conn also ends ServeWS's read loop, which removes the client.
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))
		close(c.done)
		_ = c.conn.Close()
		c.state.Store(int32(StateClosed))
	})
}
