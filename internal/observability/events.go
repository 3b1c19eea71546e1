package observability

// EventEnvelope is the wire shape of every event published to the audit
// exchange.
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// Routing keys per event family.
const (
	RoutingWSEvents  = "ws_events.rooms"
	RoutingSosEvents = "sos_events.alerts"
)

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
