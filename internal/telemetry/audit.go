package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"familink-service/internal/observability"
)

// AlertAudit records one SOS alert transition for the audit trail.
type AlertAudit struct {
	SchemaVersion int    `json:"schema_version"`
	EventType     string `json:"event_type"`
	OccurredAt    string `json:"occurred_at"`
	Service       string `json:"service"`
	Environment   string `json:"environment"`
	AlertID       int64  `json:"alert_id"`
	ChildID       int64  `json:"child_id"`
	Status        string `json:"status"`
	Detail        string `json:"detail,omitempty"`
}

// AuditEmitter publishes alert transitions to the audit exchange.
type AuditEmitter struct {
	service     string
	environment string
	log         zerolog.Logger
}

// NewAuditEmitter constructs an AuditEmitter.
func NewAuditEmitter(service, environment string, log zerolog.Logger) *AuditEmitter {
	return &AuditEmitter{service: service, environment: environment, log: log}
}

// EmitAlertTransition records that an alert reached a status. Publish
// failures are logged and dropped; the audit trail is advisory.
func (e *AuditEmitter) EmitAlertTransition(ctx context.Context, alertID, childID int64, status, detail string) {
	if e == nil {
		return
	}

	audit := AlertAudit{
		SchemaVersion: 1,
		EventType:     "sos_transition",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		AlertID:       alertID,
		ChildID:       childID,
		Status:        status,
		Detail:        detail,
	}

	if err := observability.PublishEvent(ctx, observability.RoutingSosEvents, audit, nil); err != nil {
		e.log.Warn().Err(err).Int64("alert_id", alertID).Msg("audit publish failed")
	}
	observability.IncSosTransition(status)
}
