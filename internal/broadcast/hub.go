// Package broadcast fans gateway events out to connected push clients.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"sensor_gateway/internal/logger"
	"sensor_gateway/internal/models"

	"github.com/google/uuid"
)

// Message types on the push channel.
const (
	TypeInitialData  = "initialData"
	TypeSensorData   = "sensorData"
	TypeCommandAck   = "commandAck"
	TypeControlRelay = "controlRelay"
	TypeCommandSent  = "commandSent"
	TypeCommandError = "commandError"
	TypeError        = "error"
)

// DefaultSendBuffer is how many messages a client may lag behind before it is dropped.
const DefaultSendBuffer = 64

// Envelope is the JSON shape of every push message.
type Envelope struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// NewEnvelope marshals data into an envelope of the given type.
func NewEnvelope(typ string, data any) (Envelope, error) {
	env := Envelope{Type: typ}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", typ, err)
		}
		env.Data = raw
	}
	return env, nil
}

// CommandAck is pushed when a node acknowledges a command.
type CommandAck struct {
	NodeID string `json:"nodeId"`
	Relay  bool   `json:"relay"`
}

// Client is one registered push connection. Its queue is closed when the
// hub drops it.
type Client struct {
	id     string
	send   chan []byte
	closed bool
}

// ID returns the client's unique id.
func (c *Client) ID() string { return c.id }

// Messages returns the client's outbound queue.
func (c *Client) Messages() <-chan []byte { return c.send }

// Hub tracks push clients and broadcasts to all of them.
type Hub struct {
	mu         sync.Mutex
	clients    map[string]*Client
	sendBuffer int
	log        *logger.Logger
}

func NewHub(sendBuffer int, log *logger.Logger) *Hub {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &Hub{clients: make(map[string]*Client), sendBuffer: sendBuffer, log: log}
}

// Register adds a new client.
func (h *Hub) Register() *Client {
	c := &Client{id: uuid.NewString(), send: make(chan []byte, h.sendBuffer)}
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()

	if h.log != nil {
		h.log.Infow("ws_client_connected", "client", c.id, "total", n)
	}
	return c
}

// Unregister removes c and closes its queue. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	h.drop(c)
	n := len(h.clients)
	h.mu.Unlock()

	if h.log != nil {
		h.log.Infow("ws_client_disconnected", "client", c.id, "total", n)
	}
}

// drop must be called with h.mu held.
func (h *Hub) drop(c *Client) {
	delete(h.clients, c.id)
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Send queues env for a single client. It reports false if the client is
// gone or too far behind, in which case it is dropped.
func (h *Hub) Send(c *Client, env Envelope) bool {
	msg, err := json.Marshal(env)
	if err != nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enqueue(c, msg)
}

// enqueue must be called with h.mu held.
func (h *Hub) enqueue(c *Client, msg []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		if h.log != nil {
			h.log.Warnw("ws_client_too_slow", "client", c.id)
		}
		h.drop(c)
		return false
	}
}

// Broadcast queues env for every client.
func (h *Hub) Broadcast(env Envelope) error {
	msg, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", env.Type, err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		h.enqueue(c, msg)
	}
	return nil
}

// Name identifies the hub among the ingest sinks.
func (h *Hub) Name() string { return "websocket" }

// Publish pushes a stored reading, and an ack notice when the node flagged one.
func (h *Hub) Publish(_ context.Context, r models.Reading) error {
	env, err := NewEnvelope(TypeSensorData, r)
	if err != nil {
		return err
	}
	if err := h.Broadcast(env); err != nil {
		return err
	}
	if !r.IsAck() {
		return nil
	}
	ack, err := NewEnvelope(TypeCommandAck, CommandAck{NodeID: r.ID, Relay: r.Relay})
	if err != nil {
		return err
	}
	return h.Broadcast(ack)
}
