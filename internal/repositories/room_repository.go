package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"familink-service/internal/models"
)

var ErrRoomNotFound = errors.New("room not found")

const roomColumns = `id, parent_id, child_id, invited_parent_ids, is_active,
    last_message_text, last_message_sender_model, last_message_sender_id, last_message_at, created_at`

// RoomRepository abstracts room persistence.
type RoomRepository interface {
	GetRoom(ctx context.Context, roomID int64) (models.Room, error)
	GetOrCreateRoom(ctx context.Context, parentID, childID int64) (models.Room, error)
	ActiveRoomForPair(ctx context.Context, parentID, childID int64) (models.Room, error)
	ListRoomsForParent(ctx context.Context, parentID int64) ([]models.Room, error)
	ListRoomsForChild(ctx context.Context, childID int64) ([]models.Room, error)
	SetLastMessage(ctx context.Context, roomID int64, text string, senderModel models.SenderModel, senderID int64, at time.Time) error
	ClearLastMessage(ctx context.Context, roomID int64) error
	InviteParent(ctx context.Context, roomID, parentID int64) error
	RemoveInvitedParent(ctx context.Context, roomID, parentID int64) error
	DeactivateOrphanRooms(ctx context.Context) (int64, error)
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// GetRoom fetches a room by id.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID int64) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// GetOrCreateRoom returns the room for a (parent, child) pair, reactivating
// an inactive one rather than inserting a duplicate.
func (r *RoomRepo) GetOrCreateRoom(ctx context.Context, parentID, childID int64) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room,
		`SELECT `+roomColumns+` FROM rooms WHERE parent_id=$1 AND child_id=$2 ORDER BY is_active DESC, id DESC LIMIT 1`,
		parentID, childID)
	if err == nil {
		if room.IsActive {
			return room, nil
		}
		err = r.db.GetContext(ctx, &room,
			`UPDATE rooms SET is_active = TRUE WHERE id=$1 RETURNING `+roomColumns, room.ID)
		return room, err
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, err
	}

	err = r.db.GetContext(ctx, &room,
		`INSERT INTO rooms (parent_id, child_id) VALUES ($1, $2) RETURNING `+roomColumns,
		parentID, childID)
	return room, err
}

// ActiveRoomForPair fetches the active room between a parent and child.
func (r *RoomRepo) ActiveRoomForPair(ctx context.Context, parentID, childID int64) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room,
		`SELECT `+roomColumns+` FROM rooms WHERE parent_id=$1 AND child_id=$2 AND is_active`,
		parentID, childID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// ListRoomsForParent returns active rooms where the parent is primary or invited.
func (r *RoomRepo) ListRoomsForParent(ctx context.Context, parentID int64) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.SelectContext(ctx, &rooms,
		`SELECT `+roomColumns+` FROM rooms
         WHERE is_active AND (parent_id=$1 OR $1 = ANY(invited_parent_ids))
         ORDER BY last_message_at DESC NULLS LAST, id DESC`, parentID)
	return rooms, err
}

// ListRoomsForChild returns the child's active rooms.
func (r *RoomRepo) ListRoomsForChild(ctx context.Context, childID int64) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.SelectContext(ctx, &rooms,
		`SELECT `+roomColumns+` FROM rooms WHERE is_active AND child_id=$1
         ORDER BY last_message_at DESC NULLS LAST, id DESC`, childID)
	return rooms, err
}

// SetLastMessage overwrites the room's last-message projection.
func (r *RoomRepo) SetLastMessage(ctx context.Context, roomID int64, text string, senderModel models.SenderModel, senderID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET last_message_text=$2, last_message_sender_model=$3,
             last_message_sender_id=$4, last_message_at=$5 WHERE id=$1`,
		roomID, text, senderModel, senderID, at)
	return err
}

// ClearLastMessage resets the projection when no messages remain.
func (r *RoomRepo) ClearLastMessage(ctx context.Context, roomID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET last_message_text=NULL, last_message_sender_model=NULL,
             last_message_sender_id=NULL, last_message_at=NULL WHERE id=$1`, roomID)
	return err
}

// InviteParent appends a parent to the invited set if not already present.
func (r *RoomRepo) InviteParent(ctx context.Context, roomID, parentID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET invited_parent_ids = array_append(invited_parent_ids, $2)
         WHERE id=$1 AND NOT ($2 = ANY(invited_parent_ids))`, roomID, parentID)
	if err != nil {
		return err
	}
	// zero rows means the room is absent or the parent was already invited;
	// disambiguate so callers can surface NotFound
	if count, err := res.RowsAffected(); err != nil || count > 0 {
		return err
	}
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM rooms WHERE id=$1)`, roomID); err != nil {
		return err
	}
	if !exists {
		return ErrRoomNotFound
	}
	return nil
}

// RemoveInvitedParent drops a parent from the invited set.
func (r *RoomRepo) RemoveInvitedParent(ctx context.Context, roomID, parentID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET invited_parent_ids = array_remove(invited_parent_ids, $2) WHERE id=$1`,
		roomID, parentID)
	return err
}

// DeactivateOrphanRooms deactivates rooms whose child has no link rows left.
func (r *RoomRepo) DeactivateOrphanRooms(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET is_active = FALSE
         WHERE is_active AND NOT EXISTS (SELECT 1 FROM child_links cl WHERE cl.child_id = rooms.child_id)`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
