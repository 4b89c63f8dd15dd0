package bus

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Handler receives inbound client messages.
type Handler interface {
	HandleMessage(ctx context.Context, clientID string, msg Message)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, clientID string, msg Message)

// HandleMessage calls f.
func (f HandlerFunc) HandleMessage(ctx context.Context, clientID string, msg Message) {
	f(ctx, clientID, msg)
}

// Client is one registered foreground client.
type Client struct {
	id   string
	send chan Message

	mu         sync.Mutex
	generation string
	closed     bool
}

// ID returns the client's unique id.
func (c *Client) ID() string { return c.id }

// Messages returns the outbound queue. It is closed on Unregister.
func (c *Client) Messages() <-chan Message { return c.send }

// Generation returns the generation controlling the client, or "".
func (c *Client) Generation() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// deliver enqueues msg without blocking. Full or closed clients miss it.
func (c *Client) deliver(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// HubConfig configures a Hub.
type HubConfig struct {
	// QueueSize is each client's outbound buffer.
	// Default: 16
	QueueSize int

	// OnChange is called after a client registers or unregisters,
	// outside the hub's lock.
	OnChange func()
}

// Hub is the fan-out over all open clients.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Delivery: Broadcast never blocks; a client whose queue is full misses
//     the message.
//   - Control: clients registered after a Claim are controlled by the
//     claiming generation.
type Hub struct {
	config HubConfig

	mu      sync.RWMutex
	clients map[string]*Client
	claimed string
}

// NewHub creates an empty Hub.
func NewHub(config HubConfig) *Hub {
	if config.QueueSize <= 0 {
		config.QueueSize = 16
	}
	return &Hub{
		config:  config,
		clients: make(map[string]*Client),
	}
}

// Register adds a new client.
func (h *Hub) Register() *Client {
	h.mu.Lock()
	c := &Client{
		id:         uuid.NewString(),
		send:       make(chan Message, h.config.QueueSize),
		generation: h.claimed,
	}
	h.clients[c.id] = c
	h.mu.Unlock()

	h.changed()
	return c
}

// Unregister removes c and closes its queue. Idempotent.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	delete(h.clients, c.id)
	h.mu.Unlock()

	c.close()
	if ok {
		h.changed()
	}
}

// Broadcast enqueues msg for every client and returns how many accepted it.
func (h *Hub) Broadcast(msg Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, c := range h.clients {
		if c.deliver(msg) {
			delivered++
		}
	}
	return delivered
}

// Send enqueues msg for one client. Reports whether it was accepted.
func (h *Hub) Send(clientID string, msg Message) bool {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	return ok && c.deliver(msg)
}

// Claim marks every open client, and every future one, as controlled by
// generation. Returns the number of open clients.
func (h *Hub) Claim(generation string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.claimed = generation
	for _, c := range h.clients {
		c.mu.Lock()
		c.generation = generation
		c.mu.Unlock()
	}
	return len(h.clients)
}

// ControlledBy counts the open clients controlled by generation.
func (h *Hub) ControlledBy(generation string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.clients {
		if c.Generation() == generation {
			n++
		}
	}
	return n
}

// Count returns the number of open clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close unregisters every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) changed() {
	if h.config.OnChange != nil {
		h.config.OnChange()
	}
}
