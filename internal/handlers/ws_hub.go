package handlers

import (
	"sync"
)

// Hub fans redemption events out to dashboard listeners, grouped by
// activity.
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*WSClient]bool
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[int64]map[*WSClient]bool),
	}
}

func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[client.ActivityID] == nil {
		h.clients[client.ActivityID] = make(map[*WSClient]bool)
	}
	h.clients[client.ActivityID][client] = true
}

func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[client.ActivityID] != nil {
		delete(h.clients[client.ActivityID], client)
		if len(h.clients[client.ActivityID]) == 0 {
			delete(h.clients, client.ActivityID)
		}
	}
}

func (h *Hub) BroadcastToActivity(activityID int64, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[activityID] {
		client.Send(payload)
	}
}

func (h *Hub) ListenerCount(activityID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[activityID])
}
