package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"familink-service/internal/observability"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		err := observability.PublishEvent(c.Request.Context(), observability.RoutingSosEvents, observability.EventEnvelope{
			EventType: "audit_test",
			EventName: "audit_test",
			Payload:   gin.H{"request_id": requestIDFromContext(c)},
		}, nil)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "publish failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
