package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
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
)

type roomFixture struct {
	rooms  *mocks.RoomRepositoryMock
	links  *mocks.LinkRepositoryMock
	router *gin.Engine
}

func setupRoomRouter(principal models.Principal) *roomFixture {
	gin.SetMode(gin.TestMode)
	f := &roomFixture{
		rooms: new(mocks.RoomRepositoryMock),
		links: new(mocks.LinkRepositoryMock),
	}
	checker := access.NewChecker(f.links)
	svc := chat.NewService(f.rooms, new(mocks.MessageRepositoryMock), f.links, checker, new(mocks.MediaStoreMock), noopBus{}, zerolog.Nop())
	handler := NewRoomHandler(svc)

	f.router = gin.New()
	f.router.Use(func(c *gin.Context) {
		middleware.SetPrincipal(c, principal)
		c.Next()
	})
	f.router.GET("/rooms", handler.ListRooms)
	f.router.POST("/rooms/start", handler.StartRoom)
	f.router.POST("/rooms/:room_id/invites", handler.InviteParent)
	f.router.DELETE("/rooms/:room_id/invites/:parent_id", handler.RemoveInvitedParent)
	f.router.POST("/rooms/cleanup", handler.CleanupOrphanRooms)
	return f
}

func TestListRoomsForParent(t *testing.T) {
	f := setupRoomRouter(models.Principal{Kind: models.PrincipalParent, ID: 1})

	f.rooms.On("ListRoomsForParent", mock.Anything, int64(1)).Return([]models.Room{{ID: 10, ParentID: 1, ChildID: 2}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	f.rooms.AssertExpectations(t)
}

func TestStartRoomChildImpliesOwnSide(t *testing.T) {
	f := setupRoomRouter(models.Principal{Kind: models.PrincipalChild, ID: 2})

	f.links.On("IsLinked", mock.Anything, int64(2), int64(1)).Return(true, nil).Once()
	f.rooms.On("GetOrCreateRoom", mock.Anything, int64(1), int64(2)).Return(models.Room{ID: 10, ParentID: 1, ChildID: 2, IsActive: true}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/rooms/start", bytes.NewBufferString(`{"parent_id":1}`))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var room models.Room
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&room))
	assert.Equal(t, int64(10), room.ID)
	f.rooms.AssertExpectations(t)
}

func TestStartRoomMissingCounterpart(t *testing.T) {
	f := setupRoomRouter(models.Principal{Kind: models.PrincipalParent, ID: 1})

	req := httptest.NewRequest(http.MethodPost, "/rooms/start", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	f.rooms.AssertNotCalled(t, "GetOrCreateRoom", mock.Anything, mock.Anything, mock.Anything)
}

func TestStartRoomUnlinkedForbidden(t *testing.T) {
	f := setupRoomRouter(models.Principal{Kind: models.PrincipalParent, ID: 1})

	f.links.On("IsLinked", mock.Anything, int64(2), int64(1)).Return(false, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/rooms/start", bytes.NewBufferString(`{"child_id":2}`))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInviteParent(t *testing.T) {
	f := setupRoomRouter(models.Principal{Kind: models.PrincipalParent, ID: 1})
	room := models.Room{ID: 10, ParentID: 1, ChildID: 2, InvitedParentIDs: pq.Int64Array{}, IsActive: true}
	updated := room
	updated.InvitedParentIDs = pq.Int64Array{5}

	f.rooms.On("GetRoom", mock.Anything, int64(10)).Return(room, nil).Once()
	f.rooms.On("InviteParent", mock.Anything, int64(10), int64(5)).Return(nil).Once()
	f.rooms.On("GetRoom", mock.Anything, int64(10)).Return(updated, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/rooms/10/invites", bytes.NewBufferString(`{"parent_id":5}`))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Room
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Contains(t, got.InvitedParentIDs, int64(5))
	f.rooms.AssertExpectations(t)
}

func TestRemoveInvitedParent(t *testing.T) {
	f := setupRoomRouter(models.Principal{Kind: models.PrincipalParent, ID: 1})
	room := models.Room{ID: 10, ParentID: 1, ChildID: 2, InvitedParentIDs: pq.Int64Array{5}, IsActive: true}

	f.rooms.On("GetRoom", mock.Anything, int64(10)).Return(room, nil)
	f.rooms.On("RemoveInvitedParent", mock.Anything, int64(10), int64(5)).Return(nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/rooms/10/invites/5", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	f.rooms.AssertExpectations(t)
}

func TestCleanupOrphanRoomsForbiddenForParent(t *testing.T) {
	f := setupRoomRouter(models.Principal{Kind: models.PrincipalParent, ID: 1})

	req := httptest.NewRequest(http.MethodPost, "/rooms/cleanup", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCleanupOrphanRoomsAdmin(t *testing.T) {
	f := setupRoomRouter(models.Principal{Kind: models.PrincipalAdmin, ID: 50})

	f.rooms.On("DeactivateOrphanRooms", mock.Anything).Return(int64(2), nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/rooms/cleanup", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int64
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, int64(2), resp["deactivated"])
}
