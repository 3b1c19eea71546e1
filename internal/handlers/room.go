package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"familink-service/internal/chat"
	"familink-service/internal/models"
)

// RoomHandler manages room lifecycle endpoints.
type RoomHandler struct {
	chat *chat.Service
}

// NewRoomHandler builds a RoomHandler.
func NewRoomHandler(chatSvc *chat.Service) *RoomHandler {
	return &RoomHandler{chat: chatSvc}
}

// ListRooms returns the rooms visible to the authenticated principal.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}

	rooms, err := h.chat.ListRooms(c.Request.Context(), principal)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// StartRoom creates or reactivates the room for a (parent, child) pair.
func (h *RoomHandler) StartRoom(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}

	var req struct {
		ParentID int64 `json:"parent_id"`
		ChildID  int64 `json:"child_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// either side may be implied by the caller's own identity
	switch {
	case req.ParentID == 0 && principal.Kind == models.PrincipalParent:
		req.ParentID = principal.ID
	case req.ChildID == 0 && principal.Kind == models.PrincipalChild:
		req.ChildID = principal.ID
	}
	if req.ParentID == 0 || req.ChildID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "parent_id and child_id required"})
		return
	}

	room, err := h.chat.GetOrCreateRoom(c.Request.Context(), principal, req.ParentID, req.ChildID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// InviteParent grants a secondary parent access to the room.
func (h *RoomHandler) InviteParent(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	roomID, err := strconv.ParseInt(c.Param("room_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	var req struct {
		ParentID int64 `json:"parent_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.chat.InviteParent(c.Request.Context(), principal, roomID, req.ParentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// RemoveInvitedParent revokes an invited parent's room access.
func (h *RoomHandler) RemoveInvitedParent(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	roomID, err := strconv.ParseInt(c.Param("room_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	parentID, err := strconv.ParseInt(c.Param("parent_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid parent id"})
		return
	}

	room, err := h.chat.RemoveInvitedParent(c.Request.Context(), principal, roomID, parentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// CleanupOrphanRooms deactivates rooms whose child record no longer exists.
func (h *RoomHandler) CleanupOrphanRooms(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}

	count, err := h.chat.CleanupOrphanRooms(c.Request.Context(), principal)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deactivated": count})
}
