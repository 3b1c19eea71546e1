package models

import (
	"time"

	"github.com/lib/pq"
)

// SenderModel tells which table a sender id points into.
type SenderModel string

const (
	SenderUser  SenderModel = "User"
	SenderChild SenderModel = "Child"
)

// Room is the persistent channel pairing a child with a primary parent and
// any invited parents. At most one active room exists per (parent, child)
// pair; an inactive room is reactivated instead of duplicated.
type Room struct {
	ID               int64         `db:"id" json:"id"`
	ParentID         int64         `db:"parent_id" json:"parent_id"`
	ChildID          int64         `db:"child_id" json:"child_id"`
	InvitedParentIDs pq.Int64Array `db:"invited_parent_ids" json:"invited_parent_ids"`
	IsActive         bool          `db:"is_active" json:"is_active"`

	LastMessageText        *string      `db:"last_message_text" json:"last_message_text,omitempty"`
	LastMessageSenderModel *SenderModel `db:"last_message_sender_model" json:"last_message_sender_model,omitempty"`
	LastMessageSenderID    *int64       `db:"last_message_sender_id" json:"last_message_sender_id,omitempty"`
	LastMessageAt          *time.Time   `db:"last_message_at" json:"last_message_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// HasInvitedParent reports whether the parent id is in the invited set.
func (r Room) HasInvitedParent(parentID int64) bool {
	for _, id := range r.InvitedParentIDs {
		if id == parentID {
			return true
		}
	}
	return false
}
