package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"alumni-service/internal/models"
	"alumni-service/internal/observability"
)

const writeWait = 10 * time.Second

// EventPublisher receives websocket lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

type client struct {
	conn *websocket.Conn
	info ConnInfo
	mu   sync.Mutex
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub maintains live group feed subscriptions.
type Hub struct {
	groupRooms map[string]map[*websocket.Conn]*client
	mu         sync.RWMutex
	events     EventPublisher
}

// NewHub creates an empty hub. events may be nil.
func NewHub(events EventPublisher) *Hub {
	return &Hub{
		groupRooms: make(map[string]map[*websocket.Conn]*client),
		events:     events,
	}
}

// AddGroupClient registers a websocket connection to a group room.
func (h *Hub) AddGroupClient(groupID string, conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.groupRooms[groupID]; !ok {
		h.groupRooms[groupID] = make(map[*websocket.Conn]*client)
	}
	h.groupRooms[groupID][conn] = &client{conn: conn, info: info}
}

// RemoveGroupClient removes a group websocket connection.
func (h *Hub) RemoveGroupClient(groupID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.groupRooms[groupID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.groupRooms, groupID)
		}
	}
}

// Subscribers returns the number of live connections for a group.
func (h *Hub) Subscribers(groupID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groupRooms[groupID])
}

// BroadcastGroupPost sends a new post to all clients watching the group.
func (h *Hub) BroadcastGroupPost(groupID string, post models.Post) {
	clients := h.snapshot(groupID)
	if len(clients) == 0 {
		return
	}

	payload, err := json.Marshal(models.GroupEvent{Type: "post", Post: &post})
	if err != nil {
		log.Printf("websocket encode error: %v", err)
		return
	}
	for _, cl := range clients {
		if err := cl.write(payload); err != nil {
			log.Printf("websocket write error: %v", err)
			cl.conn.Close()
			h.RemoveGroupClient(groupID, cl.conn)
			h.publishWSEvent(cl.info, "ws_error", err.Error())
			continue
		}
		observability.IncWSEvent("group", "post")
	}
}

func (h *Hub) snapshot(groupID string) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := h.groupRooms[groupID]
	clients := make([]*client, 0, len(conns))
	for _, cl := range conns {
		clients = append(clients, cl)
	}
	return clients
}

func (h *Hub) publishWSEvent(info ConnInfo, event, reason string) {
	observability.IncWSEvent("group", event)
	if h.events == nil {
		return
	}

	if err := h.events.Publish(context.Background(), "ws_events.groups", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   info.eventPayload(event, reason),
	}); err != nil {
		observability.IncAMQPPublishError()
	}
}
