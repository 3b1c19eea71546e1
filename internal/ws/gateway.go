package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"familink-service/internal/access"
	"familink-service/internal/chat"
	"familink-service/internal/middleware"
	"familink-service/internal/models"
	"familink-service/internal/observability"
	"familink-service/internal/presence"
	"familink-service/internal/repositories"
)

// Gateway terminates websocket connections: it authenticates the handshake
// once, manages room subscriptions, and feeds inbound actions into the
// message pipeline.
type Gateway struct {
	hub      *hubAndPresence
	chat     *chat.Service
	rooms    repositories.RoomRepository
	checker  *access.Checker
	verifier *middleware.TokenVerifier
	log      zerolog.Logger
}

// hubAndPresence bundles the hub with the presence store so a subscription
// change always does both.
type hubAndPresence struct {
	*Hub
	presence *presence.Store
}

// NewGateway constructs the websocket gateway.
func NewGateway(hub *Hub, pres *presence.Store, chatSvc *chat.Service, rooms repositories.RoomRepository, checker *access.Checker, verifier *middleware.TokenVerifier, log zerolog.Logger) *Gateway {
	return &Gateway{
		hub:      &hubAndPresence{Hub: hub, presence: pres},
		chat:     chatSvc,
		rooms:    rooms,
		checker:  checker,
		verifier: verifier,
		log:      log,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inboundAction is one client request on the socket.
type inboundAction struct {
	Action      string             `json:"action"`
	RoomID      int64              `json:"room_id"`
	Text        string             `json:"text"`
	SenderModel models.SenderModel `json:"sender_model"`
	SenderID    int64              `json:"sender_id"`
	Type        models.MessageType `json:"type"`
	Payload     json.RawMessage    `json:"payload"`
}

// Handle upgrades the connection and serves its read loop. An invalid or
// missing token still yields a connection; room-scoped actions on it are
// rejected with an error event, never a protocol-level disconnect.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("familink-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		if q := c.Query("token"); q != "" {
			token = "Bearer " + q
		}
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	if principal, err := g.verifyToken(token); err == nil {
		info.Principal = principal
		info.Authenticated = true
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	g.hub.Register(conn, info)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	g.publishLifecycle(ctx, info, "ws_connect", "")

	go g.readLoop(ctx, conn, info)
}

func (g *Gateway) verifyToken(header string) (models.Principal, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return models.Principal{}, errors.New("invalid token")
	}
	return g.verifier.Verify(parts[1])
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, info ConnInfo) {
	var closeReason string
	defer func() {
		joined := g.hub.Unregister(conn)
		g.emitOffline(ctx, info, joined)
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		g.publishLifecycle(ctx, info, "ws_disconnect", closeReason)
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				g.publishLifecycle(ctx, info, "ws_error", closeReason)
			}
			return
		}

		var action inboundAction
		if err := json.Unmarshal(raw, &action); err != nil {
			g.hub.WriteEvent(conn, models.Event{Type: models.EventError, Error: "malformed request"})
			continue
		}
		g.dispatch(ctx, conn, info, action)
	}
}

func (g *Gateway) dispatch(ctx context.Context, conn *websocket.Conn, info ConnInfo, action inboundAction) {
	if !info.Authenticated {
		g.hub.WriteEvent(conn, models.Event{Type: models.EventError, RoomID: action.RoomID, Error: "unauthorized"})
		return
	}

	switch action.Action {
	case "joinRoom":
		g.handleJoin(ctx, conn, info, action.RoomID)
	case "leaveRoom":
		g.handleLeave(ctx, conn, info, action.RoomID)
	case "sendText":
		if _, err := g.chat.SendText(ctx, info.Principal, action.RoomID, action.SenderModel, action.SenderID, action.Text); err != nil {
			g.writeError(conn, action.RoomID, err)
		}
	case "signal":
		if _, err := g.chat.SendSignal(ctx, action.RoomID, action.SenderModel, action.SenderID, action.Type, action.Payload); err != nil {
			g.writeError(conn, action.RoomID, err)
		}
	default:
		g.hub.WriteEvent(conn, models.Event{Type: models.EventError, Error: "unknown action"})
	}
}

func (g *Gateway) handleJoin(ctx context.Context, conn *websocket.Conn, info ConnInfo, roomID int64) {
	room, err := g.rooms.GetRoom(ctx, roomID)
	if err != nil {
		g.writeError(conn, roomID, err)
		return
	}

	allowed := info.Principal.IsAdmin()
	model, id, ok := info.Principal.Sender()
	if !allowed && ok {
		allowed = g.checker.IsRoomParticipant(room, model, id)
	}
	if !allowed {
		g.writeError(conn, roomID, access.ErrForbidden)
		return
	}

	g.hub.Join(roomID, conn)
	if ok {
		if err := g.hub.presence.SetOnline(ctx, roomID, model, id); err != nil {
			g.log.Warn().Err(err).Int64("room_id", roomID).Msg("presence update failed")
		}
		g.hub.BroadcastPresence(roomID, model, id, "online")
	}
}

func (g *Gateway) handleLeave(ctx context.Context, conn *websocket.Conn, info ConnInfo, roomID int64) {
	g.hub.Leave(roomID, conn)
	if model, id, ok := info.Principal.Sender(); ok {
		if err := g.hub.presence.SetOffline(ctx, roomID, model, id); err != nil {
			g.log.Warn().Err(err).Int64("room_id", roomID).Msg("presence update failed")
		}
		g.hub.BroadcastPresence(roomID, model, id, "offline")
	}
}

func (g *Gateway) emitOffline(ctx context.Context, info ConnInfo, joined []int64) {
	model, id, ok := info.Principal.Sender()
	if !ok {
		return
	}
	for _, roomID := range joined {
		if err := g.hub.presence.SetOffline(ctx, roomID, model, id); err != nil {
			g.log.Warn().Err(err).Int64("room_id", roomID).Msg("presence update failed")
		}
		g.hub.BroadcastPresence(roomID, model, id, "offline")
	}
}

// writeError surfaces a failure only to the offending connection.
func (g *Gateway) writeError(conn *websocket.Conn, roomID int64, err error) {
	reason := "internal error"
	switch {
	case errors.Is(err, repositories.ErrRoomNotFound),
		errors.Is(err, repositories.ErrMessageNotFound):
		reason = "not found"
	case errors.Is(err, access.ErrForbidden):
		reason = "unauthorized"
	case errors.Is(err, chat.ErrInvalidSignal):
		reason = "invalid signal payload"
	}
	g.hub.WriteEvent(conn, models.Event{Type: models.EventError, RoomID: roomID, Error: reason})
}

func (g *Gateway) publishLifecycle(ctx context.Context, info ConnInfo, event, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"kind":      info.Principal.Kind,
			"id":        info.Principal.ID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
	_ = observability.PublishEvent(ctx, observability.RoutingWSEvents, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
