package chat

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"familink-service/internal/access"
	"familink-service/internal/models"
	"familink-service/internal/repositories"
	"familink-service/internal/storage"
)

var (
	ErrInvalidSignal = errors.New("invalid signal payload")
	ErrInvalidFilter = errors.New("invalid sender filter")
)

// audioPlaceholder is what the room projection shows for voice clips; the
// clip content itself never lands in the projection.
const audioPlaceholder = "Voice message"

// Broadcaster is the gateway injection point: request/response sends fan
// out to subscribers exactly like socket-originated ones.
type Broadcaster interface {
	BroadcastMessage(roomID int64, msg models.Message)
	BroadcastSignal(roomID int64, msg models.Message)
	BroadcastDeletion(roomID, messageID int64)
}

// Service validates, persists and fans out room messages.
type Service struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	links    repositories.LinkRepository
	checker  *access.Checker
	media    storage.MediaStore
	bus      Broadcaster
	log      zerolog.Logger
}

// NewService builds the message pipeline.
func NewService(
	rooms repositories.RoomRepository,
	messages repositories.MessageRepository,
	links repositories.LinkRepository,
	checker *access.Checker,
	media storage.MediaStore,
	bus Broadcaster,
	log zerolog.Logger,
) *Service {
	return &Service{
		rooms:    rooms,
		messages: messages,
		links:    links,
		checker:  checker,
		media:    media,
		bus:      bus,
		log:      log,
	}
}

// GetOrCreateRoom returns the active room for a (parent, child) pair,
// creating or reactivating it. The parent must be linked to the child.
func (s *Service) GetOrCreateRoom(ctx context.Context, actor models.Principal, parentID, childID int64) (models.Room, error) {
	switch actor.Kind {
	case models.PrincipalAdmin:
	case models.PrincipalParent:
		if actor.ID != parentID {
			return models.Room{}, access.ErrForbidden
		}
	case models.PrincipalChild:
		if actor.ID != childID {
			return models.Room{}, access.ErrForbidden
		}
	default:
		return models.Room{}, access.ErrForbidden
	}

	linked, err := s.links.IsLinked(ctx, childID, parentID)
	if err != nil {
		return models.Room{}, err
	}
	if !linked {
		return models.Room{}, access.ErrForbidden
	}
	return s.rooms.GetOrCreateRoom(ctx, parentID, childID)
}

// ListRooms returns the rooms visible to the actor.
func (s *Service) ListRooms(ctx context.Context, actor models.Principal) ([]models.Room, error) {
	switch actor.Kind {
	case models.PrincipalChild:
		return s.rooms.ListRoomsForChild(ctx, actor.ID)
	case models.PrincipalParent:
		return s.rooms.ListRoomsForParent(ctx, actor.ID)
	}
	return nil, access.ErrForbidden
}

// SendText persists a TEXT message and updates the room projection.
func (s *Service) SendText(ctx context.Context, actor models.Principal, roomID int64, senderModel models.SenderModel, senderID int64, text string) (models.Message, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return models.Message{}, err
	}
	if err := s.checker.AssertRoomAccess(room, actor); err != nil {
		return models.Message{}, err
	}
	if err := s.checker.ValidateSender(ctx, room, senderModel, senderID); err != nil {
		return models.Message{}, err
	}

	msg, err := s.messages.CreateMessage(ctx, models.Message{
		RoomID:      roomID,
		SenderModel: senderModel,
		SenderID:    senderID,
		Type:        models.MessageText,
		Text:        text,
	})
	if err != nil {
		return models.Message{}, err
	}

	if err := s.rooms.SetLastMessage(ctx, roomID, text, senderModel, senderID, msg.CreatedAt); err != nil {
		s.log.Warn().Err(err).Int64("room_id", roomID).Msg("failed to update room projection")
	}

	s.bus.BroadcastMessage(roomID, msg)
	return msg, nil
}

// SendAudio persists an AUDIO message; the projection gets a fixed
// placeholder instead of the clip content.
func (s *Service) SendAudio(ctx context.Context, actor models.Principal, roomID int64, senderModel models.SenderModel, senderID int64, audio models.AudioMeta) (models.Message, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return models.Message{}, err
	}
	if err := s.checker.AssertRoomAccess(room, actor); err != nil {
		return models.Message{}, err
	}
	if err := s.checker.ValidateSender(ctx, room, senderModel, senderID); err != nil {
		return models.Message{}, err
	}

	msg, err := s.messages.CreateMessage(ctx, models.Message{
		RoomID:         roomID,
		SenderModel:    senderModel,
		SenderID:       senderID,
		Type:           models.MessageAudio,
		AudioURL:       &audio.URL,
		AudioDuration:  &audio.DurationSecs,
		AudioMimeType:  &audio.MimeType,
		AudioSizeBytes: &audio.SizeBytes,
		StorageID:      &audio.StorageID,
	})
	if err != nil {
		return models.Message{}, err
	}

	if err := s.rooms.SetLastMessage(ctx, roomID, audioPlaceholder, senderModel, senderID, msg.CreatedAt); err != nil {
		s.log.Warn().Err(err).Int64("room_id", roomID).Msg("failed to update room projection")
	}

	s.bus.BroadcastMessage(roomID, msg)
	return msg, nil
}

// SendSignal persists a WebRTC signaling message. The access check is the
// looser participant check and the room projection is left untouched.
func (s *Service) SendSignal(ctx context.Context, roomID int64, senderModel models.SenderModel, senderID int64, signalType models.MessageType, payload json.RawMessage) (models.Message, error) {
	if err := validateSignalPayload(signalType, payload); err != nil {
		return models.Message{}, err
	}

	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return models.Message{}, err
	}
	if !s.checker.IsRoomParticipant(room, senderModel, senderID) {
		return models.Message{}, access.ErrForbidden
	}

	msg, err := s.messages.CreateMessage(ctx, models.Message{
		RoomID:      roomID,
		SenderModel: senderModel,
		SenderID:    senderID,
		Type:        signalType,
		Payload:     []byte(payload),
	})
	if err != nil {
		return models.Message{}, err
	}

	s.bus.BroadcastSignal(roomID, msg)
	return msg, nil
}

func validateSignalPayload(signalType models.MessageType, payload json.RawMessage) error {
	if !signalType.IsSignal() {
		return ErrInvalidSignal
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return ErrInvalidSignal
	}
	switch signalType {
	case models.MessageCallOffer, models.MessageCallAnswer:
		if _, ok := fields["sdp"]; !ok {
			return ErrInvalidSignal
		}
	case models.MessageICECandidate:
		if _, ok := fields["candidate"]; !ok {
			return ErrInvalidSignal
		}
	}
	return nil
}

// DeleteMessage removes a message. Only the original author may delete,
// admins included; the asymmetry with other operations is intentional
// pending product clarification.
func (s *Service) DeleteMessage(ctx context.Context, actor models.Principal, messageID int64) error {
	msg, err := s.messages.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	room, err := s.rooms.GetRoom(ctx, msg.RoomID)
	if err != nil {
		return err
	}
	if err := s.checker.AssertRoomAccess(room, actor); err != nil {
		return err
	}
	if !actor.Matches(msg.SenderModel, msg.SenderID) {
		return access.ErrForbidden
	}

	if err := s.messages.DeleteMessage(ctx, messageID); err != nil {
		return err
	}

	if msg.Type == models.MessageAudio && msg.StorageID != nil && s.media != nil {
		// storage cleanup must never fail the chat mutation
		if err := s.media.Delete(ctx, *msg.StorageID); err != nil {
			s.log.Warn().Err(err).Str("storage_id", *msg.StorageID).Msg("media delete failed")
		}
	}

	s.recomputeLastMessage(ctx, msg.RoomID)
	s.bus.BroadcastDeletion(msg.RoomID, messageID)
	return nil
}

func (s *Service) recomputeLastMessage(ctx context.Context, roomID int64) {
	latest, err := s.messages.LatestMessage(ctx, roomID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		if err := s.rooms.ClearLastMessage(ctx, roomID); err != nil {
			s.log.Warn().Err(err).Int64("room_id", roomID).Msg("failed to clear room projection")
		}
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Int64("room_id", roomID).Msg("failed to reload latest message")
		return
	}

	text := latest.Text
	if latest.Type == models.MessageAudio {
		text = audioPlaceholder
	}
	if err := s.rooms.SetLastMessage(ctx, roomID, text, latest.SenderModel, latest.SenderID, latest.CreatedAt); err != nil {
		s.log.Warn().Err(err).Int64("room_id", roomID).Msg("failed to update room projection")
	}
}

// ListMessages returns room messages newest first with cursor pagination.
func (s *Service) ListMessages(ctx context.Context, actor models.Principal, roomID int64, limit int, beforeID int64) ([]models.Message, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.checker.AssertRoomAccess(room, actor); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.messages.ListMessages(ctx, roomID, limit, beforeID)
}

// ListAudioMessages returns voice clips filtered by a semantic sender
// filter: all, parent, child or me.
func (s *Service) ListAudioMessages(ctx context.Context, actor models.Principal, roomID int64, filter string) ([]models.Message, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.checker.AssertRoomAccess(room, actor); err != nil {
		return nil, err
	}

	var senderModel *models.SenderModel
	var senderID *int64
	switch filter {
	case "", "all":
	case "parent":
		model := models.SenderUser
		senderModel = &model
	case "child":
		model := models.SenderChild
		senderModel = &model
	case "me":
		model, id, ok := actor.Sender()
		if !ok {
			return nil, ErrInvalidFilter
		}
		senderModel, senderID = &model, &id
	default:
		return nil, ErrInvalidFilter
	}
	return s.messages.ListAudioMessages(ctx, roomID, senderModel, senderID)
}

// InviteParent grants a secondary parent access to the room.
func (s *Service) InviteParent(ctx context.Context, actor models.Principal, roomID, parentID int64) (models.Room, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return models.Room{}, err
	}
	if err := s.checker.AssertRoomAccess(room, actor); err != nil {
		return models.Room{}, err
	}
	if err := s.rooms.InviteParent(ctx, roomID, parentID); err != nil {
		return models.Room{}, err
	}
	return s.rooms.GetRoom(ctx, roomID)
}

// RemoveInvitedParent revokes an invited parent's access.
func (s *Service) RemoveInvitedParent(ctx context.Context, actor models.Principal, roomID, parentID int64) (models.Room, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return models.Room{}, err
	}
	if err := s.checker.AssertRoomAccess(room, actor); err != nil {
		return models.Room{}, err
	}
	if err := s.rooms.RemoveInvitedParent(ctx, roomID, parentID); err != nil {
		return models.Room{}, err
	}
	return s.rooms.GetRoom(ctx, roomID)
}

// CleanupOrphanRooms deactivates rooms whose child record vanished.
func (s *Service) CleanupOrphanRooms(ctx context.Context, actor models.Principal) (int64, error) {
	if !actor.IsAdmin() {
		return 0, access.ErrForbidden
	}
	count, err := s.rooms.DeactivateOrphanRooms(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.log.Info().Int64("rooms", count).Msg("deactivated orphan rooms")
	}
	return count, nil
}
