package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/existflow/duetask/internal/model"
)

// GetUser returns the cached user with the given remote id
func (q *Queries) GetUser(ctx context.Context, remoteID string) (model.User, error) {
	var (
		u        model.User
		lastSync sql.NullString
	)
	err := q.db.QueryRowContext(ctx,
		`SELECT id, remote_id, name, email, last_sync_at, auto_sync FROM users WHERE remote_id = ?`, remoteID).
		Scan(&u.ID, &u.RemoteID, &u.Name, &u.Email, &lastSync, &u.AutoSync)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	if u.LastSyncAt, err = parseNullTime(lastSync); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// UpsertUser stores the identity fields of u. Sync bookkeeping of an existing
// row is kept.
func (q *Queries) UpsertUser(ctx context.Context, u model.User) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO users (id, remote_id, name, email, last_sync_at, auto_sync) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(remote_id) DO UPDATE SET
    name = excluded.name,
    email = excluded.email`,
		u.ID, u.RemoteID, u.Name, u.Email, nullTime(u.LastSyncAt), u.AutoSync)
	return err
}

// SetLastSync stamps the time of the last complete sync
func (q *Queries) SetLastSync(ctx context.Context, remoteID string, at time.Time) error {
	res, err := q.db.ExecContext(ctx, `UPDATE users SET last_sync_at = ? WHERE remote_id = ?`, formatTime(at), remoteID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// SetAutoSync toggles background sync for the user
func (q *Queries) SetAutoSync(ctx context.Context, remoteID string, on bool) error {
	res, err := q.db.ExecContext(ctx, `UPDATE users SET auto_sync = ? WHERE remote_id = ?`, on, remoteID)
	if err != nil {
		return err
	}
	return expectOne(res)
}
