package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lorrc/event-attendance-backend/internal/core/domain"
	"github.com/lorrc/event-attendance-backend/internal/core/ports"
)

// ErrHubStopped is returned by Broadcast once Run has exited.
var ErrHubStopped = errors.New("websocket hub stopped")

// ErrBroadcastQueueFull is returned when a message is dropped because the
// broadcast buffer is full.
var ErrBroadcastQueueFull = errors.New("broadcast queue full")

// Config holds the hub and per-connection limits.
type Config struct {
	BroadcastBuffer int
	SendBuffer      int
	WriteWait       time.Duration
	PongWait        time.Duration
	PingPeriod      time.Duration
	MaxMessageSize  int64
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		BroadcastBuffer: 256,
		SendBuffer:      256,
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		PingPeriod:      54 * time.Second,
		MaxMessageSize:  1024,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BroadcastBuffer <= 0 {
		c.BroadcastBuffer = d.BroadcastBuffer
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = (c.PongWait * 9) / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	return c
}

// Hub maintains the set of active clients and fans every message out to all
// of them. All client-set mutations happen on the Run goroutine.
type Hub struct {
	cfg Config

	clients map[*Client]struct{}

	// lastVersion holds the highest attendee-set version delivered per event.
	lastVersion map[uuid.UUID]int64

	broadcast  chan domain.Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// count mirrors len(clients) for readers outside Run
	mu    sync.RWMutex
	count int

	logger *slog.Logger
}

// Ensure Hub implements the EventBroadcaster interface.
var _ ports.EventBroadcaster = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:         cfg,
		clients:     make(map[*Client]struct{}),
		lastVersion: make(map[uuid.UUID]int64),
		broadcast:   make(chan domain.Message, cfg.BroadcastBuffer),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
		logger:      logger.With("component", "websocket_hub"),
	}
}

// Broadcast enqueues msg for delivery to every connected client. It never
// blocks: when the buffer is full the message is dropped.
func (h *Hub) Broadcast(msg domain.Message) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}

	select {
	case h.broadcast <- msg:
		return nil
	default:
		h.logger.Warn("broadcast channel full, dropping message",
			"type", msg.Type,
			"event_id", msg.EventID,
			"version", msg.Version,
		)
		return ErrBroadcastQueueFull
	}
}

// Register adds a client. It returns false if the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Run starts the hub's event loop and blocks until ctx is cancelled. On
// exit every client's send channel is closed, which ends its write pump.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.setCount()
			h.logger.Debug("client registered", "remote_addr", client.RemoteAddr(), "total_connections", len(h.clients))

		case client := <-h.unregister:
			h.removeClient(client)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) deliver(msg domain.Message) {
	if msg.Type == domain.MessageEventUpdated {
		if last, ok := h.lastVersion[msg.EventID]; ok && msg.Version <= last {
			h.logger.Debug("dropping stale attendee update",
				"event_id", msg.EventID,
				"version", msg.Version,
				"delivered_version", last,
			)
			return
		}
		h.lastVersion[msg.EventID] = msg.Version
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to encode broadcast message", "type", msg.Type, "error", err)
		return
	}

	h.logger.Debug("broadcasting message",
		"type", msg.Type,
		"event_id", msg.EventID,
		"version", msg.Version,
		"client_count", len(h.clients),
	)

	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			// Slow consumer: drop the connection rather than stall everyone.
			h.logger.Warn("client send buffer full, disconnecting", "remote_addr", client.RemoteAddr())
			h.removeClient(client)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	client.closeSend()
	h.setCount()
	h.logger.Debug("client unregistered", "remote_addr", client.RemoteAddr(), "total_connections", len(h.clients))
}

func (h *Hub) shutdown() {
	close(h.done)
	for client := range h.clients {
		client.closeSend()
	}
	h.clients = make(map[*Client]struct{})
	h.setCount()
	h.logger.Info("websocket hub stopped")
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
}
