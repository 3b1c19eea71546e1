package ws

import (
	"time"

	"familink-service/internal/models"
)

// ConnInfo is cached on a connection at handshake time; the credential is
// verified once and never re-checked per message.
type ConnInfo struct {
	ConnID        string
	Principal     models.Principal
	Authenticated bool
	DeviceID      string
	IP            string
	RequestID     string
	TraceID       string
	ConnectedAt   time.Time
}
