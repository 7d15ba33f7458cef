package game

import (
	"encoding/json"
	"log/slog"
	"sync"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDisplay Role = "display"
	RolePlayer  Role = "player"
)

// HubClient is one registered observer. Its send channel is drained by
// the transport's writer loop.
type HubClient struct {
	ID   string
	Role Role
	send chan []byte

	closeOnce sync.Once
}

func (c *HubClient) Send() <-chan []byte { return c.send }

func (c *HubClient) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Hub fans every envelope out to all connected observers, grouped by
// role. Observers that stop draining their channel are dropped rather
// than allowed to stall the rest.
type Hub struct {
	mu      sync.Mutex
	log     *slog.Logger
	clients map[*HubClient]struct{}
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		clients: make(map[*HubClient]struct{}),
	}
}

func (h *Hub) Register(id string, role Role) *HubClient {
	c := &HubClient{ID: id, Role: role, send: make(chan []byte, 64)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) Unregister(c *HubClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// Broadcast delivers an envelope to every client.
func (h *Hub) Broadcast(env Envelope) {
	h.send(env, func(Role) bool { return true })
}

// BroadcastRole delivers an envelope to clients of one role only.
func (h *Hub) BroadcastRole(env Envelope, role Role) {
	h.send(env, func(r Role) bool { return r == role })
}

func (h *Hub) send(env Envelope, match func(Role) bool) {
	b, err := json.Marshal(env)
	if err != nil {
		h.log.Error("hub: marshal envelope", "type", env.Type, "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !match(c.Role) {
			continue
		}
		select {
		case c.send <- b:
		default:
			h.log.Warn("hub: dropping slow client", "id", c.ID, "role", c.Role)
			delete(h.clients, c)
			c.close()
		}
	}
}

// SendTo targets one client, e.g. for command rejections.
func (h *Hub) SendTo(c *HubClient, env Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- b:
	default:
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
