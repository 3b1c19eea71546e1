package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"familink-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, room_id, sender_model, sender_id, type, text,
    audio_url, audio_duration_secs, audio_mime_type, audio_size_bytes, storage_id, payload, created_at`

// MessageRepository defines interactions for room messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.Message) (models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	ListMessages(ctx context.Context, roomID int64, limit int, beforeID int64) ([]models.Message, error)
	ListAudioMessages(ctx context.Context, roomID int64, senderModel *models.SenderModel, senderID *int64) ([]models.Message, error)
	LatestMessage(ctx context.Context, roomID int64) (models.Message, error)
	DeleteMessage(ctx context.Context, messageID int64) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a message of any type.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	var out models.Message
	err := r.db.GetContext(ctx, &out,
		`INSERT INTO messages (room_id, sender_model, sender_id, type, text,
             audio_url, audio_duration_secs, audio_mime_type, audio_size_bytes, storage_id, payload)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
         RETURNING `+messageColumns,
		msg.RoomID, msg.SenderModel, msg.SenderID, msg.Type, msg.Text,
		msg.AudioURL, msg.AudioDuration, msg.AudioMimeType, msg.AudioSizeBytes, msg.StorageID, msg.Payload)
	return out, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListMessages returns messages newest first, optionally strictly before a
// message id for cursor pagination.
func (r *MessageRepo) ListMessages(ctx context.Context, roomID int64, limit int, beforeID int64) ([]models.Message, error) {
	var msgs []models.Message
	if beforeID > 0 {
		err := r.db.SelectContext(ctx, &msgs,
			`SELECT `+messageColumns+` FROM messages WHERE room_id=$1 AND id < $2 ORDER BY id DESC LIMIT $3`,
			roomID, beforeID, limit)
		return msgs, err
	}
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages WHERE room_id=$1 ORDER BY id DESC LIMIT $2`,
		roomID, limit)
	return msgs, err
}

// ListAudioMessages returns the room's audio messages, optionally filtered
// by sender model and id.
func (r *MessageRepo) ListAudioMessages(ctx context.Context, roomID int64, senderModel *models.SenderModel, senderID *int64) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE room_id=$1 AND type='AUDIO'`
	args := []interface{}{roomID}
	if senderModel != nil {
		query += ` AND sender_model=$2`
		args = append(args, *senderModel)
		if senderID != nil {
			query += ` AND sender_id=$3`
			args = append(args, *senderID)
		}
	}
	query += ` ORDER BY id DESC`

	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, query, args...)
	return msgs, err
}

// LatestMessage returns the newest message of a room.
func (r *MessageRepo) LatestMessage(ctx context.Context, roomID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM messages WHERE room_id=$1 ORDER BY id DESC LIMIT 1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// DeleteMessage removes a message row.
func (r *MessageRepo) DeleteMessage(ctx context.Context, messageID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
