package models

// Event type names broadcast through the websocket gateway.
const (
	EventNewMessage     = "newMessage"
	EventSignal         = "signal"
	EventMessageDeleted = "messageDeleted"
	EventPresence       = "presence"
	EventError          = "error"
	EventSosCall        = "sos-call"
	EventSosEmergency   = "sos-emergency"
	EventSosResolved    = "sos-resolved"

	// SignalSosCallOffer is the room-addressed incoming-emergency-call
	// signal; it is transport-only and never persisted.
	SignalSosCallOffer = "SOS_CALL_OFFER"
)

// EventSender identifies the originator of a relayed signal.
type EventSender struct {
	SenderModel SenderModel `json:"sender_model"`
	SenderID    int64       `json:"sender_id"`
}

// PresenceUpdate reports a subscriber entering or leaving a room.
type PresenceUpdate struct {
	UserModel SenderModel `json:"user_model"`
	UserID    int64       `json:"user_id"`
	State     string      `json:"state"`
	RoomID    int64       `json:"room_id"`
}

// Event is the envelope written to websocket subscribers.
type Event struct {
	Type        string          `json:"type"`
	RoomID      int64           `json:"room_id,omitempty"`
	Message     *Message        `json:"message,omitempty"`
	MessageID   int64           `json:"message_id,omitempty"`
	SignalType  string          `json:"signal_type,omitempty"`
	From        *EventSender    `json:"from,omitempty"`
	Presence    *PresenceUpdate `json:"presence,omitempty"`
	Alert       *SosAlert       `json:"alert,omitempty"`
	PhoneNumber string          `json:"phone_number,omitempty"`
	Error       string          `json:"error,omitempty"`
}
