package ws

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"familink-service/internal/models"
)

func TestHubJoinAndLeaveBookkeeping(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := &websocket.Conn{}

	hub.Join(10, conn)
	assert.True(t, hub.IsJoined(10, conn))
	assert.Len(t, hub.rooms, 1)

	hub.Leave(10, conn)
	assert.False(t, hub.IsJoined(10, conn))
	assert.Empty(t, hub.rooms, "empty room sets must be dropped")
}

func TestHubRegisterRecordsUserChannel(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := &websocket.Conn{}

	hub.Register(conn, ConnInfo{
		ConnID:        "c1",
		Principal:     models.Principal{Kind: models.PrincipalParent, ID: 1},
		Authenticated: true,
	})

	key := principalKey{Model: models.SenderUser, ID: 1}
	assert.Contains(t, hub.users, key)
	assert.Contains(t, hub.info, conn)
}

func TestHubUnauthenticatedConnectionHasNoUserChannel(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := &websocket.Conn{}

	hub.Register(conn, ConnInfo{ConnID: "c1", Authenticated: false})

	assert.Empty(t, hub.users)
	assert.Contains(t, hub.info, conn)
}

func TestHubAdminConnectionHasNoUserChannel(t *testing.T) {
	// admins are operators, not senders, so direct channels never target them
	hub := NewHub(zerolog.Nop())
	conn := &websocket.Conn{}

	hub.Register(conn, ConnInfo{
		ConnID:        "c1",
		Principal:     models.Principal{Kind: models.PrincipalAdmin, ID: 50},
		Authenticated: true,
	})

	assert.Empty(t, hub.users)
}

func TestHubUnregisterReturnsJoinedRooms(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	conn := &websocket.Conn{}
	other := &websocket.Conn{}

	hub.Register(conn, ConnInfo{
		ConnID:        "c1",
		Principal:     models.Principal{Kind: models.PrincipalChild, ID: 2},
		Authenticated: true,
	})
	hub.Join(10, conn)
	hub.Join(11, conn)
	hub.Join(10, other)

	joined := hub.Unregister(conn)
	assert.ElementsMatch(t, []int64{10, 11}, joined)
	assert.Empty(t, hub.users)
	assert.NotContains(t, hub.info, conn)

	// the other subscriber keeps room 10 alive
	assert.True(t, hub.IsJoined(10, other))
	assert.False(t, hub.IsJoined(11, other))
}

func TestBroadcastSignalSkipsSender(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sender := &websocket.Conn{}
	receiver := &websocket.Conn{}

	hub.Register(sender, ConnInfo{
		ConnID:        "c1",
		Principal:     models.Principal{Kind: models.PrincipalChild, ID: 2},
		Authenticated: true,
	})
	hub.Register(receiver, ConnInfo{
		ConnID:        "c2",
		Principal:     models.Principal{Kind: models.PrincipalParent, ID: 1},
		Authenticated: true,
	})
	hub.Join(10, sender)
	hub.Join(10, receiver)

	targets := hub.roomTargets(10, func(info ConnInfo) bool {
		return info.Principal.Matches(models.SenderChild, 2)
	})
	assert.Equal(t, []*websocket.Conn{receiver}, targets)

	// messages and deletions go to everyone, sender included
	assert.Len(t, hub.roomTargets(10, nil), 2)
}
