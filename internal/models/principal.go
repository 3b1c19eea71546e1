package models

// PrincipalKind discriminates the closed set of acting identities.
type PrincipalKind string

const (
	PrincipalChild  PrincipalKind = "child"
	PrincipalParent PrincipalKind = "parent"
	PrincipalAdmin  PrincipalKind = "admin"
)

// Principal is the verified identity attached to every request. It is
// resolved once at the auth boundary; downstream code switches on Kind
// instead of probing optional fields.
type Principal struct {
	Kind PrincipalKind `json:"kind"`
	ID   int64         `json:"id"`
}

// Sender maps the principal onto the sender identity it writes messages as.
// Admins act as operators, not senders, so ok is false for them.
func (p Principal) Sender() (SenderModel, int64, bool) {
	switch p.Kind {
	case PrincipalChild:
		return SenderChild, p.ID, true
	case PrincipalParent:
		return SenderUser, p.ID, true
	default:
		return "", 0, false
	}
}

// Matches reports whether the principal is the author identified by the
// given sender pair.
func (p Principal) Matches(model SenderModel, id int64) bool {
	senderModel, senderID, ok := p.Sender()
	return ok && senderModel == model && senderID == id
}

func (p Principal) IsAdmin() bool {
	return p.Kind == PrincipalAdmin
}
