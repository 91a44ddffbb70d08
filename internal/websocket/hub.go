package websocket

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrClientClosed is returned by Send once a recipient has been closed
var ErrClientClosed = errors.New("subscriber is closed")

// Recipient is anything the hub can deliver workspace events to
type Recipient interface {
	ID() string
	WorkspaceID() int32
	Wants(fiscalYear int) bool
	Send(data []byte) error
	Close() error
}

// EventPublisher publishes events to the clients of a workspace
type EventPublisher interface {
	Publish(workspaceID int32, event Event)
}

var _ EventPublisher = (*Hub)(nil)

// Hub tracks connected clients per workspace. It is safe for concurrent use.
type Hub struct {
	rooms map[int32]map[string]Recipient
	mu    sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		rooms: make(map[int32]map[string]Recipient),
	}
}

// Register adds a client to its workspace room
func (h *Hub) Register(client Recipient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[client.WorkspaceID()]
	if !ok {
		room = make(map[string]Recipient)
		h.rooms[client.WorkspaceID()] = room
	}
	room[client.ID()] = client

	log.Debug().
		Int32("workspace_id", client.WorkspaceID()).
		Str("client_id", client.ID()).
		Msg("Budget subscriber joined workspace room")
}

// Unregister removes a client; empty rooms are dropped
func (h *Hub) Unregister(client Recipient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[client.WorkspaceID()]
	if !ok {
		return
	}
	if _, exists := room[client.ID()]; !exists {
		return
	}
	delete(room, client.ID())
	if len(room) == 0 {
		delete(h.rooms, client.WorkspaceID())
	}

	log.Debug().
		Int32("workspace_id", client.WorkspaceID()).
		Str("client_id", client.ID()).
		Msg("Budget subscriber left workspace room")
}

// Publish sends an event to the workspace's clients that follow its fiscal
// year, without blocking the caller
func (h *Hub) Publish(workspaceID int32, event Event) {
	data, err := event.ToJSON()
	if err != nil {
		log.Error().Err(err).Int32("workspace_id", workspaceID).Str("event_type", event.Type).
			Msg("Failed to encode budget event")
		return
	}

	h.mu.RLock()
	targets := make([]Recipient, 0, len(h.rooms[workspaceID]))
	for _, client := range h.rooms[workspaceID] {
		if client.Wants(event.FiscalYear) {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		go func(c Recipient) {
			if err := c.Send(data); err != nil {
				log.Warn().Err(err).Int32("workspace_id", workspaceID).Str("client_id", c.ID()).
					Str("event_type", event.Type).Msg("Dropped budget event for subscriber")
			}
		}(client)
	}
}

// ClientCount returns how many recipients are in a workspace room
func (h *Hub) ClientCount(workspaceID int32) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[workspaceID])
}

// CloseAll disconnects every client, e.g. on shutdown
func (h *Hub) CloseAll() {
	h.mu.Lock()
	var clients []Recipient
	for _, room := range h.rooms {
		for _, client := range room {
			clients = append(clients, client)
		}
	}
	h.rooms = make(map[int32]map[string]Recipient)
	h.mu.Unlock()

	for _, client := range clients {
		_ = client.Close()
	}
}

// NoOpPublisher drops every event (tests, CLI)
type NoOpPublisher struct{}

// Publish does nothing
func (n *NoOpPublisher) Publish(workspaceID int32, event Event) {}
