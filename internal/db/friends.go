package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/existflow/duetask/internal/model"
)

const friendColumns = `id, user_id, friend_id, name, remote_uid, email`

func scanFriend(row scanner) (model.Friend, error) {
	var f model.Friend
	err := row.Scan(&f.ID, &f.UserID, &f.FriendID, &f.Name, &f.RemoteUID, &f.Email)
	return f, err
}

// UpsertFriend inserts a friend or refreshes the existing row with the same
// remote UID. The local row id of an existing friend is kept.
func (q *Queries) UpsertFriend(ctx context.Context, f model.Friend) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO friends (`+friendColumns+`) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id, remote_uid) DO UPDATE SET
    name = excluded.name,
    email = excluded.email`,
		f.ID, f.UserID, f.FriendID, f.Name, f.RemoteUID, f.Email)
	return err
}

// GetFriend returns userID's friend with the given remote UID
func (q *Queries) GetFriend(ctx context.Context, userID, remoteUID string) (model.Friend, error) {
	f, err := scanFriend(q.db.QueryRowContext(ctx,
		`SELECT `+friendColumns+` FROM friends WHERE user_id = ? AND remote_uid = ?`, userID, remoteUID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Friend{}, ErrNotFound
	}
	return f, err
}

// ListFriends returns userID's friends ordered by name
func (q *Queries) ListFriends(ctx context.Context, userID string) ([]model.Friend, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+friendColumns+` FROM friends WHERE user_id = ? ORDER BY name, email`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []model.Friend
	for rows.Next() {
		f, err := scanFriend(rows)
		if err != nil {
			return nil, err
		}
		friends = append(friends, f)
	}
	return friends, rows.Err()
}

// DeleteFriend removes userID's friend with the given remote UID
func (q *Queries) DeleteFriend(ctx context.Context, userID, remoteUID string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM friends WHERE user_id = ? AND remote_uid = ?`, userID, remoteUID)
	return err
}

// ReplaceFriends makes friends the complete friend list of userID. Rows for
// remote UIDs that are still present keep their local id.
func (q *Queries) ReplaceFriends(ctx context.Context, userID string, friends []model.Friend) error {
	keep := make(map[string]bool, len(friends))
	for _, f := range friends {
		f.UserID = userID
		if err := q.UpsertFriend(ctx, f); err != nil {
			return err
		}
		keep[f.RemoteUID] = true
	}

	existing, err := q.ListFriends(ctx, userID)
	if err != nil {
		return err
	}
	for _, f := range existing {
		if !keep[f.RemoteUID] {
			if err := q.DeleteFriend(ctx, userID, f.RemoteUID); err != nil {
				return err
			}
		}
	}
	return nil
}
