package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/emi/internal/observe"
	"github.com/MrWong99/emi/pkg/audio"
	"github.com/MrWong99/emi/pkg/provider/stt"
)

// DefaultSendBuffer is the per-client outbound queue length.
const DefaultSendBuffer = 64

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithSendBuffer sets the per-client outbound queue length.
func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithHubLogger sets the logger. Default: [slog.Default].
func WithHubLogger(l *slog.Logger) HubOption {
	return func(h *Hub) {
		h.log = l
	}
}

// WithHubMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithHubMetrics(m *observe.Metrics) HubOption {
	return func(h *Hub) {
		h.metrics = m
	}
}

// Hub fans outbound messages out to every connected client. Broadcasts
// never block: a client whose queue is full misses the message.
type Hub struct {
	buffer  int
	log     *slog.Logger
	metrics *observe.Metrics

	mu      sync.RWMutex
	clients map[uuid.UUID]*client
}

// NewHub creates an empty Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		buffer:  DefaultSendBuffer,
		clients: make(map[uuid.UUID]*client),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return h
}

// Broadcast sends a JSON envelope to every client.
func (h *Hub) Broadcast(typ string, payload any) {
	data, err := Encode(typ, payload)
	if err != nil {
		h.log.Error("hub: broadcast dropped", "type", typ, "err", err)
		return
	}
	h.each(func(c *client) { c.enqueue(websocket.MessageText, data) })
}

// BroadcastAudio sends one binary PCM frame to every client.
func (h *Hub) BroadcastAudio(pcm []byte) {
	h.each(func(c *client) { c.enqueue(websocket.MessageBinary, pcm) })
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) each(fn func(*client)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		fn(c)
	}
}

func (h *Hub) add(ctx context.Context, conn *websocket.Conn) *client {
	c := &client{
		id:   uuid.New(),
		conn: conn,
		send: make(chan outbound, h.buffer),
	}
	c.log = h.log.With("client_id", c.id.String())

	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.ActiveClients.Add(ctx, 1)
	c.log.Info("hub: client connected", "clients", n)
	return c
}

func (h *Hub) remove(ctx context.Context, c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.ActiveClients.Add(ctx, -1)
	c.log.Info("hub: client disconnected", "clients", n, "dropped", c.dropped.Load())
}

type outbound struct {
	typ  websocket.MessageType
	data []byte
}

// client is one WebSocket connection. stt is only touched by the
// connection's read goroutine and, after it returned, by the handler.
type client struct {
	id      uuid.UUID
	conn    *websocket.Conn
	send    chan outbound
	dropped atomic.Int64
	log     *slog.Logger

	// Microphone input format and its converter to the recognition format.
	mic  audio.Format
	conv *audio.FormatConverter

	stt stt.SessionHandle
	wg  sync.WaitGroup
}

func (c *client) enqueue(typ websocket.MessageType, data []byte) {
	select {
	case c.send <- outbound{typ: typ, data: data}:
	default:
		c.dropped.Add(1)
	}
}

func (c *client) sendJSON(typ string, payload any) {
	data, err := Encode(typ, payload)
	if err != nil {
		c.log.Error("hub: message dropped", "type", typ, "err", err)
		return
	}
	c.enqueue(websocket.MessageText, data)
}
