package mocks

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"familink-service/internal/models"
	"familink-service/internal/repositories"
	"familink-service/internal/storage"
)

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) GetRoom(ctx context.Context, roomID int64) (models.Room, error) {
	args := m.Called(ctx, roomID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) GetOrCreateRoom(ctx context.Context, parentID, childID int64) (models.Room, error) {
	args := m.Called(ctx, parentID, childID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) ActiveRoomForPair(ctx context.Context, parentID, childID int64) (models.Room, error) {
	args := m.Called(ctx, parentID, childID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) ListRoomsForParent(ctx context.Context, parentID int64) ([]models.Room, error) {
	args := m.Called(ctx, parentID)
	var rooms []models.Room
	if val := args.Get(0); val != nil {
		rooms = val.([]models.Room)
	}
	return rooms, args.Error(1)
}

func (m *RoomRepositoryMock) ListRoomsForChild(ctx context.Context, childID int64) ([]models.Room, error) {
	args := m.Called(ctx, childID)
	var rooms []models.Room
	if val := args.Get(0); val != nil {
		rooms = val.([]models.Room)
	}
	return rooms, args.Error(1)
}

func (m *RoomRepositoryMock) SetLastMessage(ctx context.Context, roomID int64, text string, senderModel models.SenderModel, senderID int64, at time.Time) error {
	args := m.Called(ctx, roomID, text, senderModel, senderID, at)
	return args.Error(0)
}

func (m *RoomRepositoryMock) ClearLastMessage(ctx context.Context, roomID int64) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

func (m *RoomRepositoryMock) InviteParent(ctx context.Context, roomID, parentID int64) error {
	args := m.Called(ctx, roomID, parentID)
	return args.Error(0)
}

func (m *RoomRepositoryMock) RemoveInvitedParent(ctx context.Context, roomID, parentID int64) error {
	args := m.Called(ctx, roomID, parentID)
	return args.Error(0)
}

func (m *RoomRepositoryMock) DeactivateOrphanRooms(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, roomID int64, limit int, beforeID int64) ([]models.Message, error) {
	args := m.Called(ctx, roomID, limit, beforeID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) ListAudioMessages(ctx context.Context, roomID int64, senderModel *models.SenderModel, senderID *int64) ([]models.Message, error) {
	args := m.Called(ctx, roomID, senderModel, senderID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) LatestMessage(ctx context.Context, roomID int64) (models.Message, error) {
	args := m.Called(ctx, roomID)
	var out models.Message
	if val := args.Get(0); val != nil {
		out = val.(models.Message)
	}
	return out, args.Error(1)
}

func (m *MessageRepositoryMock) DeleteMessage(ctx context.Context, messageID int64) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

type LinkRepositoryMock struct {
	mock.Mock
}

func (m *LinkRepositoryMock) IsLinked(ctx context.Context, childID, parentID int64) (bool, error) {
	args := m.Called(ctx, childID, parentID)
	return args.Bool(0), args.Error(1)
}

func (m *LinkRepositoryMock) PrimaryParent(ctx context.Context, childID int64) (int64, error) {
	args := m.Called(ctx, childID)
	return args.Get(0).(int64), args.Error(1)
}

type AlertRepositoryMock struct {
	mock.Mock
}

func (m *AlertRepositoryMock) CreateAlert(ctx context.Context, alert models.SosAlert) (models.SosAlert, error) {
	args := m.Called(ctx, alert)
	var out models.SosAlert
	if val := args.Get(0); val != nil {
		out = val.(models.SosAlert)
	}
	return out, args.Error(1)
}

func (m *AlertRepositoryMock) GetAlert(ctx context.Context, alertID int64) (models.SosAlert, error) {
	args := m.Called(ctx, alertID)
	var out models.SosAlert
	if val := args.Get(0); val != nil {
		out = val.(models.SosAlert)
	}
	return out, args.Error(1)
}

func (m *AlertRepositoryMock) ActiveAlertForChild(ctx context.Context, childID int64) (models.SosAlert, error) {
	args := m.Called(ctx, childID)
	var out models.SosAlert
	if val := args.Get(0); val != nil {
		out = val.(models.SosAlert)
	}
	return out, args.Error(1)
}

func (m *AlertRepositoryMock) ListAlertsForChild(ctx context.Context, childID int64) ([]models.SosAlert, error) {
	args := m.Called(ctx, childID)
	var out []models.SosAlert
	if val := args.Get(0); val != nil {
		out = val.([]models.SosAlert)
	}
	return out, args.Error(1)
}

func (m *AlertRepositoryMock) AdvanceStatus(ctx context.Context, alertID int64, from []models.AlertStatus, to models.AlertStatus) (bool, error) {
	args := m.Called(ctx, alertID, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *AlertRepositoryMock) IncrementParentAttempts(ctx context.Context, alertID int64, ifStatus models.AlertStatus) (bool, error) {
	args := m.Called(ctx, alertID, ifStatus)
	return args.Bool(0), args.Error(1)
}

func (m *AlertRepositoryMock) IncrementEmergencyAttempts(ctx context.Context, alertID int64, ifStatus models.AlertStatus) (bool, error) {
	args := m.Called(ctx, alertID, ifStatus)
	return args.Bool(0), args.Error(1)
}

func (m *AlertRepositoryMock) MarkResolved(ctx context.Context, alertID int64, status models.AlertStatus, resolvedBy string, at time.Time) (bool, error) {
	args := m.Called(ctx, alertID, status, resolvedBy, at)
	return args.Bool(0), args.Error(1)
}

func (m *AlertRepositoryMock) AppendCallAttempt(ctx context.Context, attempt models.CallAttempt) (models.CallAttempt, error) {
	args := m.Called(ctx, attempt)
	var out models.CallAttempt
	if val := args.Get(0); val != nil {
		out = val.(models.CallAttempt)
	}
	return out, args.Error(1)
}

func (m *AlertRepositoryMock) MarkLatestParentAttemptAnswered(ctx context.Context, alertID int64) error {
	args := m.Called(ctx, alertID)
	return args.Error(0)
}

type MediaStoreMock struct {
	mock.Mock
}

func (m *MediaStoreMock) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, string, error) {
	args := m.Called(ctx, key, body, contentType)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MediaStoreMock) Delete(ctx context.Context, storageID string) error {
	args := m.Called(ctx, storageID)
	return args.Error(0)
}

var _ repositories.RoomRepository = (*RoomRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.LinkRepository = (*LinkRepositoryMock)(nil)
var _ repositories.AlertRepository = (*AlertRepositoryMock)(nil)
var _ storage.MediaStore = (*MediaStoreMock)(nil)
