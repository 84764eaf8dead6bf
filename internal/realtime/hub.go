// Package realtime fans chat events out to users' websocket connections.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

const sendBuffer = 64

// Client is one websocket connection of a user.
type Client struct {
	userID string
	send   chan []byte
}

func NewClient(userID string) *Client {
	return &Client{userID: userID, send: make(chan []byte, sendBuffer)}
}

func (c *Client) UserID() string { return c.userID }

// Send is closed by the hub once the client is unregistered.
func (c *Client) Send() <-chan []byte { return c.send }

type delivery struct {
	userID string
	data   []byte
}

// Hub keeps the connected clients grouped by user.
type Hub struct {
	log *slog.Logger

	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
	done       chan struct{}

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:        log.With(slog.String("component", "realtime")),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, 256),
		done:       make(chan struct{}),
		clients:    make(map[string]map[*Client]struct{}),
	}
}

// Run owns the client registry until ctx is cancelled, then closes every
// connection's send channel.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for uid, set := range h.clients {
				for c := range set {
					close(c.send)
				}
				delete(h.clients, uid)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[c.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[c.userID] = set
			}
			set[c] = struct{}{}
			h.mu.Unlock()
			h.log.Debug("client connected", slog.String("user_id", c.userID))

		case c := <-h.unregister:
			h.remove(c)

		case d := <-h.deliver:
			h.mu.RLock()
			var slow []*Client
			for c := range h.clients[d.userID] {
				select {
				case c.send <- d.data:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				h.log.Warn("dropping slow client", slog.String("user_id", c.userID))
				h.remove(c)
			}
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.userID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		close(c.send)
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Deliver encodes v as JSON and queues it for every connection of userID.
// Users without connections are skipped.
func (h *Hub) Deliver(userID string, v any) {
	if h.ConnectionCount(userID) == 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("encode realtime payload", slog.Any("err", err))
		return
	}
	select {
	case h.deliver <- delivery{userID: userID, data: data}:
	case <-h.done:
	default:
		h.log.Warn("realtime queue full, dropping payload", slog.String("user_id", userID))
	}
}

func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
