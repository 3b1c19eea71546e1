// Package access holds the authorization predicates for rooms. Chat access
// and call signaling are deliberately gated by different checks: a call may
// be initiated before either party has joined the room in the UI sense, so
// signaling must not be blocked by the stricter chat rules.
package access

import (
	"context"
	"errors"

	"familink-service/internal/models"
	"familink-service/internal/repositories"
)

var ErrForbidden = errors.New("forbidden")

// Checker decides, for a given room and acting principal, whether an
// operation is permitted.
type Checker struct {
	links repositories.LinkRepository
}

// NewChecker constructs a Checker.
func NewChecker(links repositories.LinkRepository) *Checker {
	return &Checker{links: links}
}

// AssertRoomAccess gates reading history and full-access mutations
// (invite, delete). Admins always pass; a child passes only for its own
// room; a parent passes as primary or invited parent.
func (c *Checker) AssertRoomAccess(room models.Room, actor models.Principal) error {
	switch actor.Kind {
	case models.PrincipalAdmin:
		return nil
	case models.PrincipalChild:
		if actor.ID == room.ChildID {
			return nil
		}
	case models.PrincipalParent:
		if actor.ID == room.ParentID || room.HasInvitedParent(actor.ID) {
			return nil
		}
	}
	return ErrForbidden
}

// IsRoomParticipant is the looser, signaling-specific check. There is no
// admin bypass: signals are always sent on behalf of a live participant,
// never an operator.
func (c *Checker) IsRoomParticipant(room models.Room, senderModel models.SenderModel, senderID int64) bool {
	switch senderModel {
	case models.SenderChild:
		return senderID == room.ChildID
	case models.SenderUser:
		return senderID == room.ParentID || room.HasInvitedParent(senderID)
	}
	return false
}

// ValidateSender is checked once, before persisting a TEXT or AUDIO
// message. A parent who is neither primary nor invited still passes when
// linked to the child record, tolerating rooms whose invite list has not
// caught up with the child's linked parents.
func (c *Checker) ValidateSender(ctx context.Context, room models.Room, senderModel models.SenderModel, senderID int64) error {
	switch senderModel {
	case models.SenderChild:
		if senderID == room.ChildID {
			return nil
		}
	case models.SenderUser:
		if senderID == room.ParentID || room.HasInvitedParent(senderID) {
			return nil
		}
		linked, err := c.links.IsLinked(ctx, room.ChildID, senderID)
		if err != nil {
			return err
		}
		if linked {
			return nil
		}
	}
	return ErrForbidden
}
