package entitystore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warecollabgo/internal/collab"
)

func newStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestLockState(t *testing.T) {
	store, mock := newStore(t)
	at := time.Now().UTC()

	mock.ExpectQuery(`SELECT locked_by_user_id, locked_at FROM orders WHERE id = $1`).
		WithArgs("ord-1").
		WillReturnRows(sqlmock.NewRows([]string{"locked_by_user_id", "locked_at"}).AddRow("user-1", at))

	ml, err := store.LockState(context.Background(), collab.RoomTypeOrder, "ord-1")
	require.NoError(t, err)
	require.NotNil(t, ml)
	assert.Equal(t, "user-1", ml.UserID)
	assert.Equal(t, at, ml.LockedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockStateNoLock(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectQuery(`SELECT locked_by_user_id, locked_at FROM shipments WHERE id = $1`).
		WithArgs("shp-1").
		WillReturnRows(sqlmock.NewRows([]string{"locked_by_user_id", "locked_at"}).AddRow(nil, nil))

	ml, err := store.LockState(context.Background(), collab.RoomTypeShipment, "shp-1")
	require.NoError(t, err)
	assert.Nil(t, ml)
}

func TestLockStateUnknownEntity(t *testing.T) {
	store, mock := newStore(t)

	mock.ExpectQuery(`SELECT locked_by_user_id, locked_at FROM orders WHERE id = $1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	ml, err := store.LockState(context.Background(), collab.RoomTypeOrder, "missing")
	require.NoError(t, err)
	assert.Nil(t, ml)
}

func TestSaveAndClearLock(t *testing.T) {
	store, mock := newStore(t)
	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE orders SET locked_by_user_id = $1, locked_at = $2 WHERE id = $3`).
		WithArgs("user-1", at, "ord-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.SaveLock(context.Background(), collab.RoomTypeOrder, "ord-1", "user-1", at))

	mock.ExpectExec(`UPDATE orders SET locked_by_user_id = NULL, locked_at = NULL WHERE id = $1`).
		WithArgs("ord-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.ClearLock(context.Background(), collab.RoomTypeOrder, "ord-1"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveViewers(t *testing.T) {
	store, mock := newStore(t)
	joined := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE shipments SET viewed_by = $1 WHERE id = $2`).
		WithArgs([]byte(`[{"userId":"user-1","userName":"Jane","joinedAt":"2025-08-01T12:00:00.000Z"}]`), "shp-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SaveViewers(context.Background(), collab.RoomTypeShipment, "shp-1", []collab.Viewer{
		{UserID: "user-1", UserName: "Jane", ConnID: "c1", JoinedAt: joined},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUnknownRoomType(t *testing.T) {
	store, _ := newStore(t)

	_, err := store.LockState(context.Background(), collab.RoomType("carton"), "x")
	assert.Error(t, err)
	assert.Error(t, store.ClearLock(context.Background(), collab.RoomType("carton"), "x"))
}
