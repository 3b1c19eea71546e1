package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// AlertStatus enumerates the SOS escalation states.
type AlertStatus string

const (
	AlertPending          AlertStatus = "PENDING"
	AlertCallingParent    AlertStatus = "CALLING_PARENT"
	AlertParentAnswered   AlertStatus = "PARENT_ANSWERED"
	AlertCallingEmergency AlertStatus = "CALLING_EMERGENCY"
	AlertEmergencyCalled  AlertStatus = "EMERGENCY_CALLED"
	AlertResolved         AlertStatus = "RESOLVED"
	AlertCancelled        AlertStatus = "CANCELLED"
)

// ActiveAlertStatuses are the non-terminal states. Timers must treat any
// alert outside this set as inert.
var ActiveAlertStatuses = []AlertStatus{AlertPending, AlertCallingParent, AlertCallingEmergency}

// Terminal reports whether the status can no longer change.
func (s AlertStatus) Terminal() bool {
	switch s {
	case AlertParentAnswered, AlertEmergencyCalled, AlertResolved, AlertCancelled:
		return true
	}
	return false
}

// CallType labels a call-history entry.
type CallType string

const (
	CallParent    CallType = "PARENT"
	CallEmergency CallType = "EMERGENCY"
)

// CallAttempt is one entry of an alert's ordered call history.
type CallAttempt struct {
	ID          int64     `db:"id" json:"id"`
	AlertID     int64     `db:"alert_id" json:"alert_id"`
	CallType    CallType  `db:"call_type" json:"call_type"`
	Status      string    `db:"status" json:"status"`
	Answered    bool      `db:"answered" json:"answered"`
	PhoneNumber string    `db:"phone_number" json:"phone_number,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// SosAlert tracks one escalating emergency alert raised by a child. At most
// one alert per child is in a non-terminal status at any time.
type SosAlert struct {
	ID                    int64       `db:"id" json:"id"`
	ChildID               int64       `db:"child_id" json:"child_id"`
	ParentID              int64       `db:"parent_id" json:"parent_id"`
	RoomID                int64       `db:"room_id" json:"room_id"`
	Status                AlertStatus `db:"status" json:"status"`
	ParentCallAttempts    int         `db:"parent_call_attempts" json:"parent_call_attempts"`
	EmergencyCallAttempts int         `db:"emergency_call_attempts" json:"emergency_call_attempts"`

	ResolvedAt *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy *string    `db:"resolved_by" json:"resolved_by,omitempty"`

	Metadata types.JSONText `db:"metadata" json:"metadata,omitempty"`

	CallHistory []CallAttempt `db:"-" json:"call_history,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
