package signaling

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Conn is anything the hub can deliver frames to.
type Conn interface {
	ConnectionID() string
	SendMessage(Message) bool
	Close()
}

// WorkspaceGroup is the broadcast group of every presence connection in a
// workspace.
func WorkspaceGroup(workspaceID string) string {
	return "workspace:" + workspaceID
}

// RoomGroup is the broadcast group of every peer in a room.
func RoomGroup(workspaceID, roomID string) string {
	return "room:" + workspaceID + ":" + roomID
}

// Hub tracks open connections and the broadcast groups they belong to.
type Hub struct {
	mu          sync.RWMutex
	clients     map[string]Conn
	groups      map[string]map[string]struct{}
	memberships map[string]map[string]struct{}
	logger      *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:     make(map[string]Conn),
		groups:      make(map[string]map[string]struct{}),
		memberships: make(map[string]map[string]struct{}),
		logger:      logger,
	}
}

func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	h.clients[c.ConnectionID()] = c
	h.mu.Unlock()

	h.logger.Debug("Client registered", zap.String("connectionID", c.ConnectionID()))
}

// Unregister drops the connection from every group and closes it.
func (h *Hub) Unregister(connectionID string) {
	h.mu.Lock()
	c, ok := h.clients[connectionID]
	if ok {
		delete(h.clients, connectionID)
	}
	for group := range h.memberships[connectionID] {
		h.removeLocked(group, connectionID)
	}
	delete(h.memberships, connectionID)
	h.mu.Unlock()

	if ok {
		c.Close()
		h.logger.Debug("Client unregistered", zap.String("connectionID", connectionID))
	}
}

func (h *Hub) Join(group, connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[connectionID]; !ok {
		return
	}
	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]struct{})
		h.groups[group] = members
	}
	members[connectionID] = struct{}{}

	joined, ok := h.memberships[connectionID]
	if !ok {
		joined = make(map[string]struct{})
		h.memberships[connectionID] = joined
	}
	joined[group] = struct{}{}
}

func (h *Hub) Leave(group, connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeLocked(group, connectionID)
	if joined, ok := h.memberships[connectionID]; ok {
		delete(joined, group)
		if len(joined) == 0 {
			delete(h.memberships, connectionID)
		}
	}
}

func (h *Hub) removeLocked(group, connectionID string) {
	members, ok := h.groups[group]
	if !ok {
		return
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// SendTo delivers to one connection. It reports false when the connection
// is unknown or could not take the frame.
func (h *Hub) SendTo(connectionID string, message Message) bool {
	h.mu.RLock()
	c, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	message.To = connectionID
	return c.SendMessage(message)
}

// Publish delivers to every member of group except the excluded connections
// and returns how many accepted the frame.
func (h *Hub) Publish(group string, message Message, exclude ...string) int {
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.groups[group]))
	for id := range h.groups[group] {
		if contains(exclude, id) {
			continue
		}
		if c, ok := h.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.SendMessage(message) {
			delivered++
		}
	}
	return delivered
}

// members lists the connection ids in a group, sorted.
func (h *Hub) members(group string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.groups[group]))
	for id := range h.groups[group] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (h *Hub) getClient(connectionID string) (Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clients[connectionID]
	return c, ok
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll closes every connection, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]Conn)
	h.groups = make(map[string]map[string]struct{})
	h.memberships = make(map[string]map[string]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
