package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/existflow/duetask/internal/model"
)

const requestColumns = `id, remote_id, from_uid, to_uid, from_email, to_email,
    from_name, to_name, sent_at, resolved_at, accepted, resolved`

func scanRequest(row scanner) (model.FriendRequest, error) {
	var (
		r          model.FriendRequest
		remoteID   sql.NullString
		sentAt     string
		resolvedAt sql.NullString
	)
	err := row.Scan(&r.ID, &remoteID, &r.FromUID, &r.ToUID, &r.FromEmail, &r.ToEmail,
		&r.FromName, &r.ToName, &sentAt, &resolvedAt, &r.Accepted, &r.Resolved)
	if err != nil {
		return model.FriendRequest{}, err
	}
	r.RemoteID = remoteID.String
	if r.SentAt, err = parseTime(sentAt); err != nil {
		return model.FriendRequest{}, fmt.Errorf("friend request %s sent_at: %w", r.ID, err)
	}
	if r.ResolvedAt, err = parseNullTime(resolvedAt); err != nil {
		return model.FriendRequest{}, err
	}
	return r, nil
}

// UpsertFriendRequest inserts a request or, when its remote id is already
// known, overwrites the stored copy.
func (q *Queries) UpsertFriendRequest(ctx context.Context, r model.FriendRequest) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO friend_requests (`+requestColumns+`) VALUES (`+placeholders(12)+`)
ON CONFLICT(remote_id) DO UPDATE SET
    from_uid = excluded.from_uid,
    to_uid = excluded.to_uid,
    from_email = excluded.from_email,
    to_email = excluded.to_email,
    from_name = excluded.from_name,
    to_name = excluded.to_name,
    sent_at = excluded.sent_at,
    resolved_at = excluded.resolved_at,
    accepted = excluded.accepted,
    resolved = excluded.resolved`,
		r.ID, nullString(r.RemoteID), r.FromUID, r.ToUID, r.FromEmail, r.ToEmail,
		r.FromName, r.ToName, formatTime(r.SentAt), nullTime(r.ResolvedAt), r.Accepted, r.Resolved)
	return err
}

// GetFriendRequest returns a request by its remote id
func (q *Queries) GetFriendRequest(ctx context.Context, remoteID string) (model.FriendRequest, error) {
	r, err := scanRequest(q.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM friend_requests WHERE remote_id = ?`, remoteID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.FriendRequest{}, ErrNotFound
	}
	return r, err
}

// ListPendingRequests returns unresolved requests addressed to toUID
func (q *Queries) ListPendingRequests(ctx context.Context, toUID string) ([]model.FriendRequest, error) {
	return q.listRequests(ctx,
		`SELECT `+requestColumns+` FROM friend_requests WHERE to_uid = ? AND resolved = 0 ORDER BY sent_at`, toUID)
}

// ListSentRequests returns unresolved requests sent by fromUID
func (q *Queries) ListSentRequests(ctx context.Context, fromUID string) ([]model.FriendRequest, error) {
	return q.listRequests(ctx,
		`SELECT `+requestColumns+` FROM friend_requests WHERE from_uid = ? AND resolved = 0 ORDER BY sent_at`, fromUID)
}

func (q *Queries) listRequests(ctx context.Context, query string, args ...any) ([]model.FriendRequest, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.FriendRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReplacePendingRequests makes reqs the complete pending list for toUID.
// Resolved rows are left alone.
func (q *Queries) ReplacePendingRequests(ctx context.Context, toUID string, reqs []model.FriendRequest) error {
	if _, err := q.db.ExecContext(ctx,
		`DELETE FROM friend_requests WHERE to_uid = ? AND resolved = 0`, toUID); err != nil {
		return err
	}
	for _, r := range reqs {
		if err := q.UpsertFriendRequest(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// ResolveFriendRequest marks the request with remoteID as resolved
func (q *Queries) ResolveFriendRequest(ctx context.Context, remoteID string, accepted bool, at time.Time) error {
	res, err := q.db.ExecContext(ctx, `
UPDATE friend_requests SET resolved = 1, accepted = ?, resolved_at = ?
WHERE remote_id = ?`, accepted, formatTime(at), remoteID)
	if err != nil {
		return err
	}
	return expectOne(res)
}
