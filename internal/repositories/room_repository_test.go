package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRoomRepo(t *testing.T) (sqlmock.Sqlmock, *RoomRepo) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, NewRoomRepo(sqlx.NewDb(db, "sqlmock"))
}

var roomColumnNames = []string{
	"id", "parent_id", "child_id", "invited_parent_ids", "is_active",
	"last_message_text", "last_message_sender_model", "last_message_sender_id", "last_message_at", "created_at",
}

func roomRow(id int64, active bool) *sqlmock.Rows {
	return sqlmock.NewRows(roomColumnNames).
		AddRow(id, 1, 2, "{}", active, nil, nil, nil, nil, time.Now())
}

func TestGetRoomNotFound(t *testing.T) {
	mock, repo := setupRoomRepo(t)

	mock.ExpectQuery(`FROM rooms WHERE id=\$1`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(roomColumnNames))

	_, err := repo.GetRoom(context.Background(), 99)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestGetOrCreateRoomReturnsActiveExisting(t *testing.T) {
	mock, repo := setupRoomRepo(t)

	mock.ExpectQuery(`FROM rooms WHERE parent_id=\$1 AND child_id=\$2 ORDER BY is_active DESC`).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(roomRow(10, true))

	room, err := repo.GetOrCreateRoom(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(10), room.ID)
	assert.True(t, room.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrCreateRoomReactivatesInactive(t *testing.T) {
	mock, repo := setupRoomRepo(t)

	mock.ExpectQuery(`FROM rooms WHERE parent_id=\$1 AND child_id=\$2 ORDER BY is_active DESC`).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(roomRow(10, false))
	mock.ExpectQuery(`UPDATE rooms SET is_active = TRUE WHERE id=\$1 RETURNING`).
		WithArgs(int64(10)).
		WillReturnRows(roomRow(10, true))

	room, err := repo.GetOrCreateRoom(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.True(t, room.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrCreateRoomInsertsWhenMissing(t *testing.T) {
	mock, repo := setupRoomRepo(t)

	mock.ExpectQuery(`FROM rooms WHERE parent_id=\$1 AND child_id=\$2 ORDER BY is_active DESC`).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows(roomColumnNames))
	mock.ExpectQuery(`INSERT INTO rooms \(parent_id, child_id\) VALUES \(\$1, \$2\) RETURNING`).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(roomRow(11, true))

	room, err := repo.GetOrCreateRoom(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(11), room.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInviteParentAlreadyInvitedIsNoError(t *testing.T) {
	mock, repo := setupRoomRepo(t)

	mock.ExpectExec(`UPDATE rooms SET invited_parent_ids = array_append`).
		WithArgs(int64(10), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM rooms WHERE id=\$1\)`).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	require.NoError(t, repo.InviteParent(context.Background(), 10, 5))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInviteParentRoomMissing(t *testing.T) {
	mock, repo := setupRoomRepo(t)

	mock.ExpectExec(`UPDATE rooms SET invited_parent_ids = array_append`).
		WithArgs(int64(99), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM rooms WHERE id=\$1\)`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.InviteParent(context.Background(), 99, 5)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestDeactivateOrphanRoomsReportsCount(t *testing.T) {
	mock, repo := setupRoomRepo(t)

	mock.ExpectExec(`UPDATE rooms SET is_active = FALSE`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.DeactivateOrphanRooms(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
