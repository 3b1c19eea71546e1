package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"familink-service/internal/models"
	"familink-service/internal/observability"
)

// principalKey addresses the direct per-user event channels.
type principalKey struct {
	Model models.SenderModel
	ID    int64
}

// Hub maintains room subscriptions and per-principal connection sets. It is
// the single fan-out point for both socket- and HTTP-originated events.
type Hub struct {
	rooms map[int64]map[*websocket.Conn]bool
	users map[principalKey]map[*websocket.Conn]bool
	info  map[*websocket.Conn]ConnInfo
	mu    sync.RWMutex
	log   zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		rooms: make(map[int64]map[*websocket.Conn]bool),
		users: make(map[principalKey]map[*websocket.Conn]bool),
		info:  make(map[*websocket.Conn]ConnInfo),
		log:   log,
	}
}

// Register records a new connection. Authenticated connections also join
// their principal's direct channel.
func (h *Hub) Register(conn *websocket.Conn, info ConnInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.info[conn] = info
	if !info.Authenticated {
		return
	}
	if model, id, ok := info.Principal.Sender(); ok {
		key := principalKey{Model: model, ID: id}
		if _, ok := h.users[key]; !ok {
			h.users[key] = make(map[*websocket.Conn]bool)
		}
		h.users[key][conn] = true
	}
}

// Unregister drops a connection everywhere and returns the room ids it was
// subscribed to, so the gateway can emit presence updates.
func (h *Hub) Unregister(conn *websocket.Conn) []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	var joined []int64
	for roomID, conns := range h.rooms {
		if conns[conn] {
			joined = append(joined, roomID)
			delete(conns, conn)
			if len(conns) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	for key, conns := range h.users {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.users, key)
		}
	}
	delete(h.info, conn)
	return joined
}

// Join subscribes a connection to a room.
func (h *Hub) Join(roomID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*websocket.Conn]bool)
	}
	h.rooms[roomID][conn] = true
}

// Leave unsubscribes a connection from a room.
func (h *Hub) Leave(roomID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[roomID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// IsJoined reports whether the connection is subscribed to the room.
func (h *Hub) IsJoined(roomID int64, conn *websocket.Conn) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rooms[roomID][conn]
}

// BroadcastMessage sends a persisted message to every subscriber of its
// room, sender included.
func (h *Hub) BroadcastMessage(roomID int64, msg models.Message) {
	event := models.Event{Type: models.EventNewMessage, RoomID: roomID, Message: &msg}
	h.emitRoom(roomID, event, nil)
}

// BroadcastSignal relays a signaling message to every subscriber except the
// sender: a sender re-receiving its own offer or candidate would corrupt
// its local WebRTC state.
func (h *Hub) BroadcastSignal(roomID int64, msg models.Message) {
	event := models.Event{
		Type:       models.EventSignal,
		RoomID:     roomID,
		Message:    &msg,
		SignalType: string(msg.Type),
		From:       &models.EventSender{SenderModel: msg.SenderModel, SenderID: msg.SenderID},
	}
	skip := func(info ConnInfo) bool {
		return info.Principal.Matches(msg.SenderModel, msg.SenderID)
	}
	h.emitRoom(roomID, event, skip)
}

// BroadcastDeletion notifies subscribers that a message was removed.
func (h *Hub) BroadcastDeletion(roomID, messageID int64) {
	event := models.Event{Type: models.EventMessageDeleted, RoomID: roomID, MessageID: messageID}
	h.emitRoom(roomID, event, nil)
}

// BroadcastPresence announces a subscriber entering or leaving a room.
func (h *Hub) BroadcastPresence(roomID int64, model models.SenderModel, id int64, state string) {
	event := models.Event{
		Type:     models.EventPresence,
		RoomID:   roomID,
		Presence: &models.PresenceUpdate{UserModel: model, UserID: id, State: state, RoomID: roomID},
	}
	h.emitRoom(roomID, event, nil)
}

// RoomSignal emits a transport-only event to a room, used by the SOS engine
// for the incoming-emergency-call signal.
func (h *Hub) RoomSignal(roomID int64, event models.Event) {
	h.emitRoom(roomID, event, nil)
}

// ToParent delivers an event to every connection of a parent.
func (h *Hub) ToParent(parentID int64, event models.Event) {
	h.emitUser(principalKey{Model: models.SenderUser, ID: parentID}, event)
}

// ToChild delivers an event to every connection of a child.
func (h *Hub) ToChild(childID int64, event models.Event) {
	h.emitUser(principalKey{Model: models.SenderChild, ID: childID}, event)
}

func (h *Hub) roomTargets(roomID int64, skip func(ConnInfo) bool) []*websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	targets := make([]*websocket.Conn, 0, len(h.rooms[roomID]))
	for conn := range h.rooms[roomID] {
		if skip != nil && skip(h.info[conn]) {
			continue
		}
		targets = append(targets, conn)
	}
	return targets
}

func (h *Hub) emitRoom(roomID int64, event models.Event, skip func(ConnInfo) bool) {
	targets := h.roomTargets(roomID, skip)

	payload, _ := json.Marshal(event)
	for _, conn := range targets {
		h.write(conn, payload)
	}
}

func (h *Hub) emitUser(key principalKey, event models.Event) {
	h.mu.RLock()
	targets := make([]*websocket.Conn, 0, len(h.users[key]))
	for conn := range h.users[key] {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	payload, _ := json.Marshal(event)
	for _, conn := range targets {
		h.write(conn, payload)
	}
}

// WriteEvent sends an event to a single connection.
func (h *Hub) WriteEvent(conn *websocket.Conn, event models.Event) {
	payload, _ := json.Marshal(event)
	h.write(conn, payload)
}

func (h *Hub) write(conn *websocket.Conn, payload []byte) {
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		h.log.Warn().Err(err).Msg("websocket write error")
		conn.Close()
		h.publishWSError(conn, err)
		h.Unregister(conn)
	}
}

func (h *Hub) publishWSError(conn *websocket.Conn, err error) {
	h.mu.RLock()
	info, ok := h.info[conn]
	h.mu.RUnlock()
	if !ok {
		return
	}

	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"kind":      info.Principal.Kind,
			"id":        info.Principal.ID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), observability.RoutingWSEvents, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("ws_error")
}
