package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"familink-service/internal/access"
	"familink-service/internal/chat"
	"familink-service/internal/middleware"
	"familink-service/internal/mocks"
	"familink-service/internal/models"
	"familink-service/internal/presence"
)

const gatewaySecret = "gateway-test-secret"

type gatewayFixture struct {
	rooms    *mocks.RoomRepositoryMock
	messages *mocks.MessageRepositoryMock
	links    *mocks.LinkRepositoryMock
	server   *httptest.Server
}

func setupGateway(t *testing.T) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &gatewayFixture{
		rooms:    new(mocks.RoomRepositoryMock),
		messages: new(mocks.MessageRepositoryMock),
		links:    new(mocks.LinkRepositoryMock),
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	hub := NewHub(zerolog.Nop())
	checker := access.NewChecker(f.links)
	chatSvc := chat.NewService(f.rooms, f.messages, f.links, checker, nil, hub, zerolog.Nop())
	gateway := NewGateway(hub, presence.NewStore(rdb), chatSvc, f.rooms, checker, middleware.NewTokenVerifier(gatewaySecret), zerolog.Nop())

	router := gin.New()
	router.GET("/ws", gateway.Handle)
	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

func (f *gatewayFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func childToken(t *testing.T, id string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: id},
		Type:             "child",
	}).SignedString([]byte(gatewaySecret))
	require.NoError(t, err)
	return token
}

func readEvent(t *testing.T, conn *websocket.Conn) models.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var event models.Event
	require.NoError(t, json.Unmarshal(raw, &event))
	return event
}

func sendAction(t *testing.T, conn *websocket.Conn, action map[string]interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(action))
}

func gatewayRoom() models.Room {
	return models.Room{ID: 10, ParentID: 1, ChildID: 2, InvitedParentIDs: pq.Int64Array{}, IsActive: true}
}

func TestGatewayUnauthenticatedActionsGetErrorEvent(t *testing.T) {
	f := setupGateway(t)
	conn := f.dial(t, "")

	sendAction(t, conn, map[string]interface{}{"action": "joinRoom", "room_id": 10})
	event := readEvent(t, conn)
	assert.Equal(t, models.EventError, event.Type)
	assert.Equal(t, "unauthorized", event.Error)

	// the connection stays open for further attempts
	sendAction(t, conn, map[string]interface{}{"action": "sendText", "room_id": 10, "text": "hi"})
	event = readEvent(t, conn)
	assert.Equal(t, "unauthorized", event.Error)
}

func TestGatewayJoinAndSendText(t *testing.T) {
	f := setupGateway(t)
	now := time.Now()

	f.rooms.On("GetRoom", mock.Anything, int64(10)).Return(gatewayRoom(), nil)
	f.messages.On("CreateMessage", mock.Anything, mock.AnythingOfType("models.Message")).
		Return(models.Message{ID: 7, RoomID: 10, SenderModel: models.SenderChild, SenderID: 2, Type: models.MessageText, Text: "hi", CreatedAt: now}, nil).Once()
	f.rooms.On("SetLastMessage", mock.Anything, int64(10), "hi", models.SenderChild, int64(2), mock.AnythingOfType("time.Time")).Return(nil).Once()

	conn := f.dial(t, childToken(t, "2"))

	sendAction(t, conn, map[string]interface{}{"action": "joinRoom", "room_id": 10})
	event := readEvent(t, conn)
	require.Equal(t, models.EventPresence, event.Type)
	require.NotNil(t, event.Presence)
	assert.Equal(t, "online", event.Presence.State)

	sendAction(t, conn, map[string]interface{}{
		"action": "sendText", "room_id": 10,
		"sender_model": "Child", "sender_id": 2, "text": "hi",
	})
	event = readEvent(t, conn)
	require.Equal(t, models.EventNewMessage, event.Type)
	require.NotNil(t, event.Message)
	assert.Equal(t, "hi", event.Message.Text)
}

func TestGatewayJoinForbiddenRoom(t *testing.T) {
	f := setupGateway(t)

	f.rooms.On("GetRoom", mock.Anything, int64(10)).Return(gatewayRoom(), nil)

	conn := f.dial(t, childToken(t, "3"))
	sendAction(t, conn, map[string]interface{}{"action": "joinRoom", "room_id": 10})

	event := readEvent(t, conn)
	assert.Equal(t, models.EventError, event.Type)
	assert.Equal(t, "unauthorized", event.Error)
}

func TestGatewaySignalNotEchoedToSender(t *testing.T) {
	f := setupGateway(t)

	f.rooms.On("GetRoom", mock.Anything, int64(10)).Return(gatewayRoom(), nil)
	f.messages.On("CreateMessage", mock.Anything, mock.AnythingOfType("models.Message")).
		Return(models.Message{ID: 8, RoomID: 10, SenderModel: models.SenderChild, SenderID: 2, Type: models.MessageCallOffer}, nil).Once()

	sender := f.dial(t, childToken(t, "2"))
	sendAction(t, sender, map[string]interface{}{"action": "joinRoom", "room_id": 10})
	readEvent(t, sender) // own presence

	sendAction(t, sender, map[string]interface{}{
		"action": "signal", "room_id": 10,
		"sender_model": "Child", "sender_id": 2,
		"type": "CALL_OFFER", "payload": map[string]string{"sdp": "v=0"},
	})

	// the sender must never see its own offer; an invalid follow-up action
	// flushes the socket so we can assert what arrives next
	sendAction(t, sender, map[string]interface{}{"action": "bogus"})
	event := readEvent(t, sender)
	assert.Equal(t, models.EventError, event.Type)
	assert.Equal(t, "unknown action", event.Error)
}

func TestGatewayMalformedFrame(t *testing.T) {
	f := setupGateway(t)
	conn := f.dial(t, childToken(t, "2"))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	event := readEvent(t, conn)
	assert.Equal(t, models.EventError, event.Type)
	assert.Equal(t, "malformed request", event.Error)
}

func TestGatewayInvalidSignalPayload(t *testing.T) {
	f := setupGateway(t)
	conn := f.dial(t, childToken(t, "2"))

	sendAction(t, conn, map[string]interface{}{
		"action": "signal", "room_id": 10,
		"sender_model": "Child", "sender_id": 2,
		"type": "ICE_CANDIDATE", "payload": map[string]string{"sdp": "v=0"},
	})
	event := readEvent(t, conn)
	assert.Equal(t, models.EventError, event.Type)
	assert.Equal(t, "invalid signal payload", event.Error)
}
