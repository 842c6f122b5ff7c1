package ws

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"restaurant-chat/internal/observability"
)

// Hub is the process-wide room membership table. Every mutation takes the write
// lock; broadcasts snapshot a room under the read lock and enqueue outside it.
type Hub struct {
	mu          sync.RWMutex
	rooms       map[string]map[string]*Client
	memberships map[string]map[string]struct{}
	log         *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		rooms:       make(map[string]map[string]*Client),
		memberships: make(map[string]map[string]struct{}),
		log:         log,
	}
}

// Join adds client to room. Joining twice is a no-op.
func (h *Hub) Join(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[string]*Client)
	}
	h.rooms[room][client.ID] = client
	if _, ok := h.memberships[client.ID]; !ok {
		h.memberships[client.ID] = make(map[string]struct{})
	}
	h.memberships[client.ID][room] = struct{}{}
}

// Leave removes one membership.
func (h *Hub) Leave(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(connID, room)
}

// LeaveAll removes the connection from every room it joined.
func (h *Hub) LeaveAll(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.memberships[connID] {
		h.removeLocked(connID, room)
	}
	delete(h.memberships, connID)
}

func (h *Hub) removeLocked(connID, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.memberships[connID]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(h.memberships, connID)
		}
	}
}

// BroadcastToRoom queues event for every member of room except excludeConnID and
// returns how many members accepted it. A member whose buffer is full misses the frame.
func (h *Hub) BroadcastToRoom(room, event string, payload any, excludeConnID string) int {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for id, client := range h.rooms[room] {
		if id == excludeConnID {
			continue
		}
		members = append(members, client)
	}
	h.mu.RUnlock()

	if len(members) == 0 {
		return 0
	}

	frame, err := encodeFrame(event, payload)
	if err != nil {
		h.log.Error("encode broadcast frame", zap.String("event", event), zap.Error(err))
		return 0
	}

	delivered := 0
	for _, client := range members {
		if client.Enqueue(frame) {
			delivered++
			continue
		}
		observability.IncWSDroppedFrame()
		h.log.Warn("dropping frame for slow connection",
			zap.String("conn_id", client.ID),
			zap.String("room", room),
			zap.String("event", event),
		)
	}
	return delivered
}

// Rooms lists the rooms a connection belongs to.
func (h *Hub) Rooms(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := make([]string, 0, len(h.memberships[connID]))
	for room := range h.memberships[connID] {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// RoomSizes returns a snapshot of member counts per room.
func (h *Hub) RoomSizes() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sizes := make(map[string]int, len(h.rooms))
	for room, members := range h.rooms {
		sizes[room] = len(members)
	}
	return sizes
}
