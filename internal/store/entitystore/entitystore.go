package entitystore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"warecollabgo/internal/collab"
)

// Store implements collab.MirrorStore on top of the order-management
// Postgres schema. Only the collaboration columns are ever touched:
// locked_by_user_id, locked_at, viewed_by.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store { return &Store{db: db} }

// tableFor whitelists the two entity tables; room types are validated at
// the wire boundary but the store guards its own SQL anyway.
func tableFor(rt collab.RoomType) (string, error) {
	switch rt {
	case collab.RoomTypeOrder:
		return "orders", nil
	case collab.RoomTypeShipment:
		return "shipments", nil
	}
	return "", fmt.Errorf("no table for room type %q", rt)
}

func (s *Store) LockState(ctx context.Context, rt collab.RoomType, entityID string) (*collab.MirroredLock, error) {
	table, err := tableFor(rt)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`SELECT locked_by_user_id, locked_at FROM %s WHERE id = $1`, table)
	var (
		userID   sql.NullString
		lockedAt sql.NullTime
	)
	err = s.db.QueryRowContext(ctx, q, entityID).Scan(&userID, &lockedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // unknown entity carries no lock
	}
	if err != nil {
		return nil, err
	}
	if !userID.Valid || userID.String == "" || !lockedAt.Valid {
		return nil, nil
	}
	return &collab.MirroredLock{
		UserID:   userID.String,
		LockedAt: lockedAt.Time,
	}, nil
}

func (s *Store) SaveLock(ctx context.Context, rt collab.RoomType, entityID, userID string, at time.Time) error {
	table, err := tableFor(rt)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE %s SET locked_by_user_id = $1, locked_at = $2 WHERE id = $3`, table)
	_, err = s.db.ExecContext(ctx, q, userID, at, entityID)
	return err
}

func (s *Store) ClearLock(ctx context.Context, rt collab.RoomType, entityID string) error {
	table, err := tableFor(rt)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE %s SET locked_by_user_id = NULL, locked_at = NULL WHERE id = $1`, table)
	_, err = s.db.ExecContext(ctx, q, entityID)
	return err
}

func (s *Store) SaveViewers(ctx context.Context, rt collab.RoomType, entityID string, viewers []collab.Viewer) error {
	table, err := tableFor(rt)
	if err != nil {
		return err
	}
	snapshot, err := json.Marshal(viewerRows(viewers))
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`UPDATE %s SET viewed_by = $1 WHERE id = $2`, table)
	_, err = s.db.ExecContext(ctx, q, snapshot, entityID)
	return err
}

// viewerRow is the persisted viewed_by element shape.
type viewerRow struct {
	UserID     string `json:"userId"`
	UserName   string `json:"userName"`
	UserAvatar string `json:"userAvatar,omitempty"`
	JoinedAt   string `json:"joinedAt"`
}

func viewerRows(viewers []collab.Viewer) []viewerRow {
	rows := make([]viewerRow, 0, len(viewers))
	for _, v := range viewers {
		rows = append(rows, viewerRow{
			UserID:     v.UserID,
			UserName:   v.UserName,
			UserAvatar: v.UserAvatar,
			JoinedAt:   v.JoinedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	return rows
}
