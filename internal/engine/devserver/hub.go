package devserver

import (
	"sync"

	"go.trai.ch/kiln/internal/core/ports"
)

// sessionBuffer is how many undelivered events a session may hold before it is dropped.
const sessionBuffer = 8

// Hub fans reload events out to the connected sessions.
// A session that cannot keep up is disconnected rather than blocking a broadcast.
type Hub struct {
	mu       sync.Mutex
	nextID   int
	sessions map[int]chan Event
	closed   bool
	metrics  ports.Metrics
}

// NewHub creates an empty Hub reporting its session count to metrics.
func NewHub(metrics ports.Metrics) *Hub {
	return &Hub{
		sessions: make(map[int]chan Event),
		metrics:  metrics,
	}
}

// Subscribe registers a session. The returned channel is closed when the
// session is dropped or the hub shuts down; cancel unregisters it.
// ok is false once the hub is closed.
func (h *Hub) Subscribe() (events <-chan Event, cancel func(), ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, func() {}, false
	}

	id := h.nextID
	h.nextID++
	ch := make(chan Event, sessionBuffer)
	h.sessions[id] = ch
	h.metrics.SetSessions(len(h.sessions))

	return ch, func() { h.remove(id) }, true
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id)
}

func (h *Hub) removeLocked(id int) {
	ch, ok := h.sessions[id]
	if !ok {
		return
	}
	delete(h.sessions, id)
	close(ch)
	h.metrics.SetSessions(len(h.sessions))
}

// Broadcast delivers ev to every session without blocking.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	for id, ch := range h.sessions {
		select {
		case ch <- ev:
		default:
			h.removeLocked(id)
		}
	}
}

// Len returns the number of connected sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close disconnects every session and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id := range h.sessions {
		h.removeLocked(id)
	}
}
