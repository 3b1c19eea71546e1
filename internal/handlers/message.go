package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"familink-service/internal/chat"
	"familink-service/internal/models"
	"familink-service/internal/storage"
)

// MessageHandler exposes the message pipeline over HTTP. Sends made here
// are broadcast to websocket subscribers identically to socket sends.
type MessageHandler struct {
	chat  *chat.Service
	media storage.MediaStore
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(chatSvc *chat.Service, media storage.MediaStore) *MessageHandler {
	return &MessageHandler{chat: chatSvc, media: media}
}

func parseRoomID(c *gin.Context) (int64, bool) {
	roomID, err := strconv.ParseInt(c.Param("room_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return 0, false
	}
	return roomID, true
}

// senderFromRequest resolves the sender pair, defaulting to the caller's
// own identity when the request leaves it out.
func senderFromRequest(c *gin.Context, principal models.Principal, model models.SenderModel, id int64) (models.SenderModel, int64, bool) {
	if model != "" && id != 0 {
		return model, id, true
	}
	m, sid, ok := principal.Sender()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sender_model and sender_id required"})
	}
	return m, sid, ok
}

// ListMessages returns room history newest first with cursor pagination.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	beforeID, _ := strconv.ParseInt(c.Query("before"), 10, 64)

	msgs, err := h.chat.ListMessages(c.Request.Context(), principal, roomID, limit, beforeID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostText stores a text message and broadcasts it.
func (h *MessageHandler) PostText(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	var req struct {
		Text        string             `json:"text" binding:"required"`
		SenderModel models.SenderModel `json:"sender_model"`
		SenderID    int64              `json:"sender_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	senderModel, senderID, ok := senderFromRequest(c, principal, req.SenderModel, req.SenderID)
	if !ok {
		return
	}

	msg, err := h.chat.SendText(c.Request.Context(), principal, roomID, senderModel, senderID, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// PostAudio uploads a voice clip to media storage, then records and
// broadcasts the audio message.
func (h *MessageHandler) PostAudio(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio file required"})
		return
	}
	defer file.Close()

	duration, _ := strconv.Atoi(c.PostForm("duration_secs"))
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	senderModel, senderID, ok := senderFromRequest(c, principal, models.SenderModel(c.PostForm("sender_model")), postFormInt64(c, "sender_id"))
	if !ok {
		return
	}

	key := fmt.Sprintf("rooms/%d/audio/%s%s", roomID, uuid.NewString(), path.Ext(header.Filename))
	url, storageID, err := h.media.Upload(c.Request.Context(), key, file, contentType)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to store audio"})
		return
	}

	msg, err := h.chat.SendAudio(c.Request.Context(), principal, roomID, senderModel, senderID, models.AudioMeta{
		URL:          url,
		DurationSecs: duration,
		MimeType:     contentType,
		SizeBytes:    header.Size,
		StorageID:    storageID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func postFormInt64(c *gin.Context, field string) int64 {
	val, _ := strconv.ParseInt(c.PostForm(field), 10, 64)
	return val
}

// ListAudio returns voice clips filtered by sender: all, parent, child, me.
func (h *MessageHandler) ListAudio(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	msgs, err := h.chat.ListAudioMessages(c.Request.Context(), principal, roomID, c.Query("sender"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// PostSignal persists and relays a WebRTC signaling message.
func (h *MessageHandler) PostSignal(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	roomID, ok := parseRoomID(c)
	if !ok {
		return
	}

	var req struct {
		Type        models.MessageType `json:"type" binding:"required"`
		SenderModel models.SenderModel `json:"sender_model"`
		SenderID    int64              `json:"sender_id"`
		Payload     json.RawMessage    `json:"payload" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	senderModel, senderID, ok := senderFromRequest(c, principal, req.SenderModel, req.SenderID)
	if !ok {
		return
	}

	msg, err := h.chat.SendSignal(c.Request.Context(), roomID, senderModel, senderID, req.Type, req.Payload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// DeleteMessage removes a message; only its author may do so.
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	messageID, err := strconv.ParseInt(c.Param("message_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	if err := h.chat.DeleteMessage(c.Request.Context(), principal, messageID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
