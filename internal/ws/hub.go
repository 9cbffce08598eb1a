package ws

import (
	"log/slog"
	"sync"

	"boltalka/internal/models"
)

const defaultBufferSize = 100

// Hub is the in-process broadcast transport. Every registered connection has
// a buffered outbound channel; a full channel drops the event.
type Hub struct {
	// Map of connectionID -> outbound channel
	connections map[string]chan models.ServerEvent

	// Map of group -> set of connectionIDs
	groups map[string]map[string]struct{}

	bufferSize int
	closed     bool
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]chan models.ServerEvent),
		groups:      make(map[string]map[string]struct{}),
		bufferSize:  defaultBufferSize,
	}
}

// Register creates the outbound channel for a connection. The channel is
// closed by Unregister or Close.
func (h *Hub) Register(connectionID string) <-chan models.ServerEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.connections[connectionID]; ok {
		return ch
	}

	ch := make(chan models.ServerEvent, h.bufferSize)
	if h.closed {
		close(ch)
		return ch
	}
	h.connections[connectionID] = ch
	return ch
}

// Unregister drops the connection from every group and closes its channel.
func (h *Hub) Unregister(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.connections[connectionID]
	if !ok {
		return
	}
	close(ch)
	delete(h.connections, connectionID)

	for group, members := range h.groups {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
}

// Close closes every outbound channel, which ends all connection loops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ch := range h.connections {
		close(ch)
		delete(h.connections, id)
	}
	clear(h.groups)
	h.closed = true
}

func (h *Hub) JoinGroup(connectionID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.connections[connectionID]; !ok {
		return
	}
	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]struct{})
		h.groups[group] = members
	}
	members[connectionID] = struct{}{}
}

func (h *Hub) LeaveGroup(connectionID, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[group]
	if !ok {
		return
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

func (h *Hub) EmitToGroup(group string, event models.ServerEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id := range h.groups[group] {
		h.send(id, event)
	}
}

func (h *Hub) EmitToConnection(connectionID string, event models.ServerEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.send(connectionID, event)
}

func (h *Hub) EmitToAll(event models.ServerEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id := range h.connections {
		h.send(id, event)
	}
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// send must be called with h.mu held.
func (h *Hub) send(connectionID string, event models.ServerEvent) {
	ch, ok := h.connections[connectionID]
	if !ok {
		return
	}

	select {
	case ch <- event:
	default:
		slog.Warn("dropping event for slow connection", "connection_id", connectionID, "event", event.Type)
	}
}
