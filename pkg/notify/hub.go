// Package notify fans dispatcher notifications out to connected application
// instances and carries their control messages back.
package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pario-ai/larder/pkg/models"
)

// DefaultBuffer is the per-client notification buffer.
const DefaultBuffer = 16

// Controller answers control messages sent by applications.
type Controller interface {
	HandleMessage(ctx context.Context, msg models.Message) (any, error)
}

// Client is one connected application instance.
type Client struct {
	ID string
	ch chan models.Message
}

// Messages returns the client's notification stream. It is closed when the
// client leaves the hub.
func (c *Client) Messages() <-chan models.Message {
	return c.ch
}

// Hub tracks connected clients. Broadcast never blocks: a client whose
// buffer is full misses the notification.
type Hub struct {
	buffer int
	logf   func(format string, args ...any)

	mu      sync.RWMutex
	clients map[string]*Client
	onIdle  []func()
}

// NewHub creates a Hub with the given per-client buffer size.
func NewHub(buffer int, logf func(format string, args ...any)) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		buffer:  buffer,
		logf:    logf,
		clients: make(map[string]*Client),
	}
}

// OnIdle registers fn to run whenever the last client leaves.
func (h *Hub) OnIdle(fn func()) {
	h.mu.Lock()
	h.onIdle = append(h.onIdle, fn)
	h.mu.Unlock()
}

// Join registers a new client.
func (h *Hub) Join() *Client {
	c := &Client{ID: uuid.NewString(), ch: make(chan models.Message, h.buffer)}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	return c
}

// Leave removes a client and closes its stream. Leaving twice is a no-op.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	close(c.ch)
	idle := len(h.clients) == 0
	hooks := append([]func(){}, h.onIdle...)
	h.mu.Unlock()

	if idle {
		for _, fn := range hooks {
			fn()
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers msg to every client and returns how many received it.
func (h *Hub) Broadcast(msg models.Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for _, c := range h.clients {
		select {
		case c.ch <- msg:
			sent++
		default:
			if h.logf != nil {
				h.logf("notify: client %s buffer full, dropping %s", c.ID, msg.Type)
			}
		}
	}
	return sent
}

// Deliver is Broadcast that waits, until ctx is done, for room in a full
// client buffer instead of dropping the message at once. Join and Leave
// block while it waits.
func (h *Hub) Deliver(ctx context.Context, msg models.Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for _, c := range h.clients {
		select {
		case c.ch <- msg:
			sent++
			continue
		default:
		}
		select {
		case c.ch <- msg:
			sent++
		case <-ctx.Done():
			if h.logf != nil {
				h.logf("notify: client %s buffer full, dropping %s: %v", c.ID, msg.Type, ctx.Err())
			}
		}
	}
	return sent
}
