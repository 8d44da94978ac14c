package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/taskhive/backend/internal/model"
)

const (
	EventTaskCreated  = "task:created"
	EventTaskUpdated  = "task:updated"
	EventTaskDeleted  = "task:deleted"
	EventNotification = "notification"
	EventTaskAssigned = "task:assigned"

	EventJoinRoom  = "room:join"
	EventLeaveRoom = "room:leave"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

type TaskEventPayload struct {
	TaskID             string `json:"taskId"`
	Task               any    `json:"task,omitempty"`
	PreviousAssigneeID string `json:"previousAssigneeId,omitempty"`
	NewAssigneeID      string `json:"newAssigneeId,omitempty"`
}

type NotificationPayload struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	TaskID    string    `json:"taskId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// message is the wire envelope in both directions. Inbound messages
// carry room join/leave controls; outbound messages carry events.
type message struct {
	Event string          `json:"event"`
	Room  string          `json:"room,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Conn is one authenticated websocket connection. The user identity is
// bound at handshake time and never re-validated afterwards.
type Conn struct {
	hub  *Hub
	ws   *websocket.Conn
	user *model.SafeUser
	send chan []byte
}

// Hub tracks connections and their room memberships and fans events
// out to them.
type Hub struct {
	mu    sync.RWMutex
	conns map[*Conn]struct{}
	rooms map[string]map[*Conn]struct{}
	log   *logrus.Logger
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		conns: make(map[*Conn]struct{}),
		rooms: make(map[string]map[*Conn]struct{}),
		log:   log,
	}
}

func UserRoom(userID string) string {
	return "user:" + userID
}

func (h *Hub) add(c *Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	// Every connection gets a per-user addressable room for targeted delivery.
	h.join(c, UserRoom(c.user.ID))
	h.log.WithField("user_id", c.user.ID).Info("user connected")
}

func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	if _, ok := h.conns[c]; ok {
		delete(h.conns, c)
		for room, members := range h.rooms {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
		close(c.send)
	}
	h.mu.Unlock()
	h.log.WithField("user_id", c.user.ID).Info("user disconnected")
}

func (h *Hub) join(c *Conn, room string) {
	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Conn]struct{})
	}
	h.rooms[room][c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) leave(c *Conn, room string) {
	h.mu.Lock()
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()
}

func encode(event string, data any) ([]byte, bool) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, false
	}
	payload, err := json.Marshal(message{Event: event, Data: raw})
	if err != nil {
		return nil, false
	}
	return payload, true
}

// Broadcast delivers an event to every connected client. Slow clients
// whose buffers are full are skipped rather than blocking the hub.
func (h *Hub) Broadcast(event string, data any) {
	payload, ok := encode(event, data)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		select {
		case c.send <- payload:
		default:
		}
	}
}

// ToRoom delivers an event to every member of a room.
func (h *Hub) ToRoom(room, event string, data any) {
	payload, ok := encode(event, data)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		select {
		case c.send <- payload:
		default:
		}
	}
}

func (h *Hub) EmitTaskCreated(payload TaskEventPayload) {
	h.Broadcast(EventTaskCreated, payload)
}

func (h *Hub) EmitTaskUpdated(payload TaskEventPayload) {
	h.Broadcast(EventTaskUpdated, payload)
}

func (h *Hub) EmitTaskDeleted(taskID string) {
	h.Broadcast(EventTaskDeleted, TaskEventPayload{TaskID: taskID})
}

func (h *Hub) SendNotificationToUser(userID string, payload NotificationPayload) {
	h.ToRoom(UserRoom(userID), EventNotification, payload)
}

func (h *Hub) NotifyTaskAssigned(userID string, payload TaskEventPayload) {
	h.ToRoom(UserRoom(userID), EventTaskAssigned, payload)
}

func (c *Conn) readPump() {
	defer func() {
		c.hub.remove(c)
		c.ws.Close()
	}()
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var msg message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Event {
		case EventJoinRoom:
			if msg.Room != "" {
				c.hub.join(c, msg.Room)
				c.hub.log.WithFields(logrus.Fields{"user_id": c.user.ID, "room": msg.Room}).Info("joined room")
			}
		case EventLeaveRoom:
			if msg.Room != "" {
				c.hub.leave(c, msg.Room)
				c.hub.log.WithFields(logrus.Fields{"user_id": c.user.ID, "room": msg.Room}).Info("left room")
			}
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
