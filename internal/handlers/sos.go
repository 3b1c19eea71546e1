package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"familink-service/internal/models"
	"familink-service/internal/repositories"
	"familink-service/internal/sos"
)

// SosHandler exposes the escalation engine over HTTP.
type SosHandler struct {
	engine *sos.Engine
}

// NewSosHandler builds a SosHandler.
func NewSosHandler(engine *sos.Engine) *SosHandler {
	return &SosHandler{engine: engine}
}

// Trigger raises an SOS alert for the calling child.
func (h *SosHandler) Trigger(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}

	var req struct {
		ChildID  int64                `json:"child_id"`
		Location *sos.TriggerLocation `json:"location"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.ChildID == 0 {
		req.ChildID = principal.ID
	}

	alert, err := h.engine.Trigger(c.Request.Context(), req.ChildID, principal, req.Location)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, alert)
}

func (h *SosHandler) alertID(c *gin.Context) (int64, bool) {
	alertID, err := strconv.ParseInt(c.Param("alert_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return 0, false
	}
	return alertID, true
}

// ParentAnswered records that the parent picked up the in-app call.
func (h *SosHandler) ParentAnswered(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	alertID, ok := h.alertID(c)
	if !ok {
		return
	}

	alert, err := h.engine.MarkParentAnswered(c.Request.Context(), alertID, principal)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// Resolve closes the alert.
func (h *SosHandler) Resolve(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	alertID, ok := h.alertID(c)
	if !ok {
		return
	}

	alert, err := h.engine.Resolve(c.Request.Context(), alertID, principal)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

// Cancel dismisses the alert.
func (h *SosHandler) Cancel(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}
	alertID, ok := h.alertID(c)
	if !ok {
		return
	}

	alert, err := h.engine.Cancel(c.Request.Context(), alertID, principal)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *SosHandler) childID(c *gin.Context, principal models.Principal) int64 {
	if id, err := strconv.ParseInt(c.Query("child_id"), 10, 64); err == nil && id > 0 {
		return id
	}
	return principal.ID
}

// ActiveAlert returns the child's current non-terminal alert.
func (h *SosHandler) ActiveAlert(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}

	alert, err := h.engine.ActiveAlert(c.Request.Context(), h.childID(c, principal), principal)
	if errors.Is(err, repositories.ErrAlertNotFound) {
		c.JSON(http.StatusOK, gin.H{"alert": nil})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alert": alert})
}

// AlertHistory lists the child's alerts newest first.
func (h *SosHandler) AlertHistory(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		return
	}

	alerts, err := h.engine.AlertHistory(c.Request.Context(), h.childID(c, principal), principal)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}
